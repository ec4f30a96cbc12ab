package metrics

import "time"

// StatsSource is the subset of a running cluster-server runtime's state
// that Collector samples periodically. pkg/csserver's Runtime implements
// this without pkg/metrics importing it back, avoiding an import cycle.
type StatsSource interface {
	IsLeader() bool
	ConfigGeneration() int
	ReceivePagesInUse() int
}

// Collector polls a StatsSource on an interval and updates the gauges
// that aren't naturally updated at the point of the event (configstore
// generation, Raft leadership, receive-page pool occupancy).
type Collector struct {
	source StatsSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.source.IsLeader() {
		RaftIsLeader.Set(1)
	} else {
		RaftIsLeader.Set(0)
	}
	ConfigstoreGeneration.Set(float64(c.source.ConfigGeneration()))
	TransportReceivePagesInUse.Set(float64(c.source.ReceivePagesInUse()))
}
