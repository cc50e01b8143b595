// Package metrics exposes Prometheus instrumentation for the generation
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Tracker holds the pipeline's Prometheus collectors.
type Tracker struct {
	runs          *prometheus.CounterVec
	stageAttempts *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	candidates    prometheus.Counter
}

// NewTracker creates the collectors and registers them with reg.
func NewTracker(reg prometheus.Registerer) *Tracker {
	t := &Tracker{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notegen",
			Name:      "pipeline_runs_total",
			Help:      "Completed pipeline runs by platform and outcome.",
		}, []string{"platform", "outcome"}),
		stageAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notegen",
			Name:      "stage_attempts_total",
			Help:      "Stage attempts by stage name and outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notegen",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notegen",
			Name:      "candidates_attempted_total",
			Help:      "Candidates pulled into the fallback loop.",
		}),
	}

	reg.MustRegister(t.runs, t.stageAttempts, t.stageDuration, t.candidates)
	return t
}

// RunCompleted records one finished pipeline run.
func (t *Tracker) RunCompleted(platform string, success bool) {
	t.runs.WithLabelValues(platform, outcome(success)).Inc()
}

// StageObserved records one stage execution with its duration.
func (t *Tracker) StageObserved(stage string, success bool, elapsed time.Duration) {
	t.stageAttempts.WithLabelValues(stage, outcome(success)).Inc()
	t.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// CandidateAttempted records one candidate entering the fallback loop.
func (t *Tracker) CandidateAttempted() {
	t.candidates.Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
