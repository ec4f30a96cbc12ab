package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry metrics (pkg/registry)
	RegistryParametersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ic_registry_parameters_total",
			Help: "Total number of registered configuration parameters by applicable node kind",
		},
		[]string{"kind"},
	)

	// Config codec metrics (pkg/configwire)
	CodecEncodeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ic_codec_encode_duration_seconds",
			Help:    "Time taken to encode a cluster configuration to the wire key-value stream",
			Buckets: prometheus.DefBuckets,
		},
	)

	CodecDecodeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ic_codec_decode_duration_seconds",
			Help:    "Time taken to decode the wire key-value stream into a cluster configuration",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Config file store metrics (pkg/configstore)
	ConfigstoreGeneration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ic_configstore_generation",
			Help: "Current config.version generation number held by this process",
		},
	)

	ConfigstoreLockContentionTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ic_configstore_lock_contention_total",
			Help: "Total number of CouldNotLockConfiguration outcomes from lock_and_load",
		},
	)

	// Configuration protocol metrics (pkg/csproto)
	CsprotoRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ic_csproto_requests_total",
			Help: "Total number of configuration-protocol requests by action and result",
		},
		[]string{"action", "result"},
	)

	// Raft replication metrics (pkg/csserver/replication)
	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ic_raft_apply_duration_seconds",
			Help:    "Time taken to apply a CommitGeneration Raft log entry",
			Buckets: prometheus.DefBuckets,
		},
	)

	RaftIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ic_raft_is_leader",
			Help: "Whether this cluster server is the Raft leader for generation commits (1 = leader, 0 = follower)",
		},
	)

	// Data transport metrics (pkg/transport)
	TransportSendQueueBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ic_transport_send_queue_bytes",
			Help: "Bytes currently queued on a send-node's send queue",
		},
		[]string{"peer"},
	)

	TransportAdaptiveMaxNumWaits = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ic_transport_adaptive_max_num_waits",
			Help: "Current max_num_waits value of a send-node's adaptive send algorithm",
		},
		[]string{"peer"},
	)

	TransportHeartbeatMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ic_transport_heartbeat_misses_total",
			Help: "Total number of missed heartbeat sends by peer",
		},
		[]string{"peer"},
	)

	TransportReceivePagesInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ic_transport_receive_pages_in_use",
			Help: "Number of receive pages currently checked out of the shared page pool",
		},
	)
)

func init() {
	prometheus.MustRegister(RegistryParametersTotal)
	prometheus.MustRegister(CodecEncodeDuration)
	prometheus.MustRegister(CodecDecodeDuration)
	prometheus.MustRegister(ConfigstoreGeneration)
	prometheus.MustRegister(ConfigstoreLockContentionTotal)
	prometheus.MustRegister(CsprotoRequestsTotal)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(RaftIsLeader)
	prometheus.MustRegister(TransportSendQueueBytes)
	prometheus.MustRegister(TransportAdaptiveMaxNumWaits)
	prometheus.MustRegister(TransportHeartbeatMissesTotal)
	prometheus.MustRegister(TransportReceivePagesInUse)
}

// Handler returns the Prometheus HTTP handler, served by ic-csd under /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
