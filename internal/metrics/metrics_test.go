package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Submission("web_quick", OutcomeAccepted)
	m.Submission("web_quick", OutcomeAccepted)
	m.Submission("ss_ocr", OutcomeOverridden)
	m.ValidationIssue("soft", "rate")
	m.Leaderboard("snapshot", 20*time.Millisecond)
	m.LeaderboardError("gain", "invalid_stat")
	m.Import(OutcomeRejected)
	m.MaxIndexRebuilt(time.Unix(1700000000, 0))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissions.WithLabelValues("web_quick", OutcomeAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("ss_ocr", OutcomeOverridden)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validationIssues.WithLabelValues("soft", "rate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.leaderboardErrors.WithLabelValues("gain", "invalid_stat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.imports.WithLabelValues(OutcomeRejected)))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.maxIndexRebuilt))
	assert.Equal(t, 1, testutil.CollectAndCount(m.leaderboardLatency))

	assert.Panics(t, func() { New(reg) }, "collectors register once per registry")
}
