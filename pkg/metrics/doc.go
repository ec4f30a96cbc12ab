/*
Package metrics defines and registers the Prometheus metrics for this
module: parameter registry size, codec encode/decode latency, config-store
generation and lock contention, per-action configuration-protocol request
counts, Raft generation-commit latency and leadership, and the data
transport's send-queue depth, adaptive max_num_waits, heartbeat misses and
receive-page pool occupancy.

Metrics are registered at package init on the default Prometheus registry
and served over HTTP via Handler(). Timer wraps a start time for latency
histograms:

	t := metrics.NewTimer()
	defer t.ObserveDuration(metrics.CodecDecodeDuration)

Collector periodically samples the gauges that don't update at the point
of the triggering event (Raft leadership, config generation, receive-page
occupancy) from a StatsSource, implemented by pkg/csserver's Runtime.
*/
package metrics
