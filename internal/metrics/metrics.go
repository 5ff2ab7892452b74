// Package metrics holds the prometheus collectors of the job agent.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spigell/job-agent/internal/llm"
)

const namespace = "job_agent"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	llmAttempts    *prometheus.CounterVec
	llmInvocations *prometheus.CounterVec
	llmRecoveries  *prometheus.CounterVec
	llmRetries     *prometheus.CounterVec
	llmDuration    *prometheus.HistogramVec

	stageDuration *prometheus.HistogramVec
	matchScore    prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		llmAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_attempts_total",
				Help:      "Backend calls made by the invoker, by result",
			},
			[]string{"provider", "result"},
		),
		llmInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_invocations_total",
				Help:      "Logical LLM invocations, by outcome",
			},
			[]string{"provider", "outcome"},
		),
		llmRecoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_json_recoveries_total",
				Help:      "JSON responses that needed cleanup before parsing",
			},
			[]string{"provider", "method"},
		),
		llmRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_retries_total",
				Help:      "Retries scheduled by the invoker",
			},
			[]string{"provider"},
		),
		llmDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_invocation_duration_seconds",
				Help:      "Wall time of logical LLM invocations including backoff",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"provider"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_stage_duration_seconds",
				Help:      "Duration of pipeline stages",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		matchScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "match_overall_score",
				Help:      "Overall match scores computed by the scorer",
				Buckets:   prometheus.LinearBuckets(10, 10, 10),
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"method", "path", "status"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.llmAttempts,
			m.llmInvocations,
			m.llmRecoveries,
			m.llmRetries,
			m.llmDuration,
			m.stageDuration,
			m.matchScore,
			m.httpRequests,
			m.httpDuration,
		)
	}

	return m
}

// ObserveStage records the duration of a pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveMatch records an overall match score.
func (m *Metrics) ObserveMatch(score int) {
	if m == nil {
		return
	}
	m.matchScore.Observe(float64(score))
}

// LLMObserver returns an llm.Observer that feeds the LLM collectors.
func (m *Metrics) LLMObserver() llm.Observer {
	return llmObserver{m: m}
}

type llmObserver struct {
	m *Metrics
}

func (o llmObserver) AttemptFinished(ev llm.Event) {
	if o.m == nil {
		return
	}
	o.m.llmAttempts.WithLabelValues(ev.Provider, attemptResult(ev.Err)).Inc()
}

func (o llmObserver) RetryScheduled(ev llm.Event) {
	if o.m == nil {
		return
	}
	o.m.llmRetries.WithLabelValues(ev.Provider).Inc()
}

func (o llmObserver) Finished(ev llm.Event) {
	if o.m == nil {
		return
	}
	outcome := "success"
	if ev.Reason != "" {
		outcome = string(ev.Reason)
	}
	o.m.llmInvocations.WithLabelValues(ev.Provider, outcome).Inc()
	o.m.llmDuration.WithLabelValues(ev.Provider).Observe(ev.Duration.Seconds())

	if ev.Reason == "" && ev.Recovery != "" && ev.Recovery != llm.RecoveryNone {
		o.m.llmRecoveries.WithLabelValues(ev.Provider, string(ev.Recovery)).Inc()
	}
}

func attemptResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, llm.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, llm.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
