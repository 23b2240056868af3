package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	subsystem = "interview"

	processingTotal    = "processing_total"
	processingDuration = "processing_duration_seconds"
	questionsTotal     = "questions_extracted_total"
	processingAttempts = "processing_attempts_total"
	failedAnswersTotal = "failed_answers_total"

	// Labels
	statusLabel = "status"
	kindLabel   = "kind"
)

/**
* Metrics definition
**/
var processingTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      processingTotal,
		Help:      "number of processed interviews by outcome",
	},
	[]string{statusLabel, kindLabel},
)

var processingDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      processingDuration,
		Help:      "wall time of one interview processing run",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
	},
	[]string{statusLabel},
)

var questionsTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      questionsTotal,
		Help:      "number of questions persisted",
	},
)

var failedAnswersTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      failedAnswersTotal,
		Help:      "number of questions persisted with a failed answer",
	},
)

var processingAttemptsMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      processingAttempts,
		Help:      "number of media/transcription/extraction attempts, retries included",
	},
)

func init() {
	prometheus.MustRegister(
		processingTotalMetric,
		processingDurationMetric,
		questionsTotalMetric,
		failedAnswersTotalMetric,
		processingAttemptsMetric,
	)
}

// Prometheus records workflow outcomes in the default registry.
type Prometheus struct{}

func (Prometheus) ObserveRun(status, kind string, d time.Duration) {
	processingTotalMetric.With(prometheus.Labels{statusLabel: status, kindLabel: kind}).Inc()
	processingDurationMetric.With(prometheus.Labels{statusLabel: status}).Observe(d.Seconds())
}

func (Prometheus) AddQuestions(saved, failedAnswers int) {
	questionsTotalMetric.Add(float64(saved))
	failedAnswersTotalMetric.Add(float64(failedAnswers))
}

func (Prometheus) IncAttempts() {
	processingAttemptsMetric.Inc()
}
