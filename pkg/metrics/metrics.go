package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Storage manager / disk manager metrics
	DisksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "silo_disks_total",
			Help: "Total number of disks owned by this node's storage manager",
		},
	)

	DisksAvailableTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "silo_disks_available_total",
			Help: "Number of disks currently considered available",
		},
	)

	ReplicasTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "silo_replicas_total",
			Help: "Total number of local replicas by current state",
		},
		[]string{"state"},
	)

	DiskAvailableBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "silo_disk_available_bytes",
			Help: "Available capacity per disk mount path",
		},
		[]string{"mount_path"},
	)

	// Compaction metrics
	CompactionCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "silo_compaction_cycles_total",
			Help: "Total number of compaction scheduler cycles completed",
		},
	)

	CompactionCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "silo_compaction_cycle_duration_seconds",
			Help:    "Time taken for one compaction scheduler cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	// State machine metrics
	StateTransitionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "silo_state_transition_duration_seconds",
			Help:    "Time taken to process a partition state transition callback",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transition"},
	)

	StateTransitionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silo_state_transition_failures_total",
			Help: "Total number of state transition callback failures by kind",
		},
		[]string{"transition", "kind"},
	)

	ResumeDecommissionErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "silo_resume_decommission_errors_total",
			Help: "Total number of failures encountered while resuming a decommission",
		},
	)

	// Startup/shutdown metrics
	StorageManagerStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "silo_storage_manager_start_duration_seconds",
			Help:    "Time taken for the storage manager to start all disk managers",
			Buckets: prometheus.DefBuckets,
		},
	)

	DiskManagerStartDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "silo_disk_manager_start_duration_seconds",
			Help:    "Time taken for one disk manager to start",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mount_path"},
	)

	// Cluster map (raft) metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "silo_raft_is_leader",
			Help: "Whether this node is the raft leader for the cluster map (1 = leader, 0 = follower)",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "silo_raft_apply_duration_seconds",
			Help:    "Time taken to apply a cluster map raft log entry",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(DisksTotal)
	prometheus.MustRegister(DisksAvailableTotal)
	prometheus.MustRegister(ReplicasTotal)
	prometheus.MustRegister(DiskAvailableBytes)
	prometheus.MustRegister(CompactionCyclesTotal)
	prometheus.MustRegister(CompactionCycleDuration)
	prometheus.MustRegister(StateTransitionDuration)
	prometheus.MustRegister(StateTransitionFailuresTotal)
	prometheus.MustRegister(ResumeDecommissionErrorsTotal)
	prometheus.MustRegister(StorageManagerStartDuration)
	prometheus.MustRegister(DiskManagerStartDuration)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftApplyDuration)
}

// Handler returns the Prometheus HTTP handler.
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
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
