package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Submission outcomes
const (
	OutcomeAccepted   = "accepted"
	OutcomeOverridden = "overridden"
	OutcomeRejected   = "rejected"
	OutcomeLimited    = "rate_limited"
	OutcomeError      = "error"
)

// Metrics holds the service's Prometheus collectors
type Metrics struct {
	submissions        *prometheus.CounterVec
	validationIssues   *prometheus.CounterVec
	leaderboardLatency *prometheus.HistogramVec
	leaderboardErrors  *prometheus.CounterVec
	imports            *prometheus.CounterVec
	maxIndexRebuilt    prometheus.Gauge
}

// New creates the collectors and registers them
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshot_submissions_total",
				Help: "Snapshot submissions by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		validationIssues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshot_validation_issues_total",
				Help: "Validation issues raised by severity and code",
			},
			[]string{"severity", "code"},
		),
		leaderboardLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leaderboard_request_duration_seconds",
				Help:    "Duration of leaderboard computations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		leaderboardErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leaderboard_request_errors_total",
				Help: "Failed leaderboard requests by mode and reason",
			},
			[]string{"mode", "reason"},
		),
		imports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshot_import_messages_total",
				Help: "Snapshot import messages consumed by outcome",
			},
			[]string{"outcome"},
		),
		maxIndexRebuilt: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "max_index_last_rebuild_timestamp_seconds",
				Help: "Unix time of the last successful max index rebuild",
			},
		),
	}

	reg.MustRegister(
		m.submissions,
		m.validationIssues,
		m.leaderboardLatency,
		m.leaderboardErrors,
		m.imports,
		m.maxIndexRebuilt,
	)
	return m
}

// Submission counts one processed submission
func (m *Metrics) Submission(source, outcome string) {
	m.submissions.WithLabelValues(source, outcome).Inc()
}

// ValidationIssue counts one raised issue
func (m *Metrics) ValidationIssue(severity, code string) {
	m.validationIssues.WithLabelValues(severity, code).Inc()
}

// Leaderboard records a computed leaderboard
func (m *Metrics) Leaderboard(mode string, took time.Duration) {
	m.leaderboardLatency.WithLabelValues(mode).Observe(took.Seconds())
}

// LeaderboardError counts a failed leaderboard request
func (m *Metrics) LeaderboardError(mode, reason string) {
	m.leaderboardErrors.WithLabelValues(mode, reason).Inc()
}

// Import counts one consumed import message
func (m *Metrics) Import(outcome string) {
	m.imports.WithLabelValues(outcome).Inc()
}

// MaxIndexRebuilt records a successful rebuild
func (m *Metrics) MaxIndexRebuilt(at time.Time) {
	m.maxIndexRebuilt.Set(float64(at.Unix()))
}
