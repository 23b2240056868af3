package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusRecorder(t *testing.T) {
	var p Prometheus

	before := testutil.ToFloat64(processingTotalMetric.With(prometheus.Labels{statusLabel: "failure", kindLabel: "media"}))
	p.ObserveRun("failure", "media", 3*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(processingTotalMetric.With(prometheus.Labels{statusLabel: "failure", kindLabel: "media"})))

	q, f := testutil.ToFloat64(questionsTotalMetric), testutil.ToFloat64(failedAnswersTotalMetric)
	p.AddQuestions(4, 1)
	assert.Equal(t, q+4, testutil.ToFloat64(questionsTotalMetric))
	assert.Equal(t, f+1, testutil.ToFloat64(failedAnswersTotalMetric))

	a := testutil.ToFloat64(processingAttemptsMetric)
	p.IncAttempts()
	assert.Equal(t, a+1, testutil.ToFloat64(processingAttemptsMetric))

	assert.Equal(t, 1, testutil.CollectAndCount(processingDurationMetric, "interview_processing_duration_seconds"))
}
