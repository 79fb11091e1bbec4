package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs and reminders.
type Metrics struct {
	runs            *prometheus.CounterVec
	failures        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	reminders       *prometheus.CounterVec
	reminderErrors  *prometheus.CounterVec
	trackingLocally prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// ReminderSent counts a recorded reminder.
func (m *Metrics) ReminderSent(mode string, local bool) {
	if m == nil {
		return
	}
	tracking := "store"
	if local {
		tracking = "memory"
	}
	m.reminders.WithLabelValues(mode, tracking).Inc()
}

// ReminderFailed counts a reminder whose date could not be recorded.
func (m *Metrics) ReminderFailed(mode string) {
	if m == nil {
		return
	}
	m.reminderErrors.WithLabelValues(mode).Inc()
}

// TrackingLocally flags that reminder dates are held in memory.
func (m *Metrics) TrackingLocally() {
	if m == nil {
		return
	}
	m.trackingLocally.Set(1)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billdesk_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billdesk_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billdesk_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	reminders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billdesk_reminders_sent_total",
		Help: "Payment reminders recorded, by mode and where the reminder date was kept.",
	}, []string{"mode", "tracking"})
	reminderErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billdesk_reminders_failed_total",
		Help: "Payment reminders that could not be recorded.",
	}, []string{"mode"})
	trackingLocally := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "billdesk_reminders_tracking_locally",
		Help: "1 when reminder dates are kept in memory because the store lacks the column.",
	})
	registerer.MustRegister(runs, failures, duration, reminders, reminderErrors, trackingLocally)
	return &Metrics{
		runs:            runs,
		failures:        failures,
		duration:        duration,
		reminders:       reminders,
		reminderErrors:  reminderErrors,
		trackingLocally: trackingLocally,
	}
}
