package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job metrics
	JobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gosync_jobs_total",
			Help: "Number of configured jobs by status",
		},
		[]string{"status"},
	)

	// Sync cycle metrics
	SyncCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosync_sync_cycles_total",
			Help: "Total number of sync cycles by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	SyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gosync_sync_duration_seconds",
			Help:    "Duration of a full sync cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	ChangesFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosync_changes_fetched_total",
			Help: "Change records fetched per side of each sync",
		},
		[]string{"job", "side"},
	)

	ChangesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosync_changes_applied_total",
			Help: "Reconciliation operations applied per side",
		},
		[]string{"job", "side"},
	)

	ConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosync_conflicts_total",
			Help: "Conflicting paths seen per job",
		},
		[]string{"job"},
	)

	ApplyFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosync_apply_failures_total",
			Help: "Operations that failed to apply and were skipped",
		},
		[]string{"job", "side"},
	)

	// Watcher metrics
	WatcherEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosync_watcher_events_total",
			Help: "Filesystem events handled by type",
		},
		[]string{"type"},
	)

	// Index metrics
	ChangeLogLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gosync_change_log_length",
			Help: "Rows currently pending in each job's change log",
		},
		[]string{"job"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(SyncCyclesTotal)
	prometheus.MustRegister(SyncDuration)
	prometheus.MustRegister(ChangesFetched)
	prometheus.MustRegister(ChangesApplied)
	prometheus.MustRegister(ConflictsTotal)
	prometheus.MustRegister(ApplyFailuresTotal)
	prometheus.MustRegister(WatcherEventsTotal)
	prometheus.MustRegister(ChangeLogLength)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
