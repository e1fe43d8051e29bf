// Package metrics exposes the Prometheus instrumentation for schedcore's
// dispatcher, managers and loops, adapted from the teacher's metrics
// package (same Timer helper, same registration style).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dispatcher metrics
	DispatchCallbackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schedcore_dispatch_callback_duration_seconds",
			Help:    "Duration of each Driver callback, by callback name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"callback"},
	)

	DispatchThresholdViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedcore_dispatch_threshold_violations_total",
			Help: "Total callbacks that exceeded their latency warning threshold, by callback name",
		},
		[]string{"callback"},
	)

	DispatchPanicsRecovered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedcore_dispatch_panics_recovered_total",
			Help: "Total panics recovered inside a Driver callback, by callback name",
		},
		[]string{"callback"},
	)

	// Offer manager metrics
	OffersHeld = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schedcore_offers_held",
			Help: "Number of offers currently accumulated, awaiting use",
		},
	)

	OffersDeclinedAgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schedcore_offers_declined_aged_total",
			Help: "Total offers proactively declined for exceeding the configured hold duration",
		},
	)

	// Execution manager metrics
	RunningExecutions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schedcore_running_executions",
			Help: "Number of job executions currently tracked by the running-execution manager",
		},
	)

	// Reconciliation metrics
	ReconciliationSetSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schedcore_reconciliation_set_size",
			Help: "Number of task ids currently pending reconciliation",
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schedcore_reconciliation_cycles_total",
			Help: "Total reconciliation cycles completed",
		},
	)

	// Scheduling loop metrics
	SchedulingPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "schedcore_scheduling_pass_duration_seconds",
			Help:    "Duration of a single scheduling loop pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	SchedulingLaunchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schedcore_scheduling_launches_total",
			Help: "Total tasks launched by the scheduling loop",
		},
	)

	SchedulingRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schedcore_scheduling_rejected_total",
			Help: "Total job executions rejected this pass for lack of a fitting offer",
		},
	)

	// DB-sync loop metrics
	DBSyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "schedcore_db_sync_duration_seconds",
			Help:    "Duration of a single database-sync cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	DBSyncFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schedcore_db_sync_failures_total",
			Help: "Total database-sync cycles that logged at least one failure",
		},
	)
)

func init() {
	prometheus.MustRegister(
		DispatchCallbackDuration,
		DispatchThresholdViolations,
		DispatchPanicsRecovered,
		OffersHeld,
		OffersDeclinedAgedTotal,
		RunningExecutions,
		ReconciliationSetSize,
		ReconciliationCyclesTotal,
		SchedulingPassDuration,
		SchedulingLaunchesTotal,
		SchedulingRejectedTotal,
		DBSyncDuration,
		DBSyncFailuresTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for timing an operation and recording its
// duration into a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration into histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration into a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
