package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a scraping run. All methods are
// nil-safe so the engine can run with metrics disabled.
type Metrics struct {
	Registry        *prometheus.Registry
	AttemptsTotal   *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	RotationsTotal  prometheus.Counter
	DatesTotal      *prometheus.CounterVec
	AttemptDuration prometheus.Histogram
	TokensTotal     *prometheus.CounterVec
}

// New constructs and registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratescout_attempts_total",
			Help: "Page scrape attempts by outcome.",
		},
		[]string{"outcome"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ratescout_retries_total",
			Help: "Attempts that were retried after a recoverable outcome.",
		},
	)
	rotations := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ratescout_session_rotations_total",
			Help: "Session identity rotations.",
		},
	)
	dates := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratescout_dates_total",
			Help: "Planned dates by final disposition.",
		},
		[]string{"result"},
	)
	attemptDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ratescout_attempt_duration_seconds",
			Help:    "Wall time of one page scrape attempt.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 180, 300},
		},
	)
	tokens := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratescout_llm_tokens_total",
			Help: "Tokens spent on extraction calls, by kind.",
		},
		[]string{"kind"},
	)

	registry.MustRegister(attempts, retries, rotations, dates, attemptDuration, tokens)

	return &Metrics{
		Registry:        registry,
		AttemptsTotal:   attempts,
		RetriesTotal:    retries,
		RotationsTotal:  rotations,
		DatesTotal:      dates,
		AttemptDuration: attemptDuration,
		TokensTotal:     tokens,
	}
}

// IncAttempt counts one attempt with its outcome label.
func (m *Metrics) IncAttempt(outcome string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
}

// IncRetry counts a retried date attempt.
func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncRotation counts a session rotation.
func (m *Metrics) IncRotation() {
	if m == nil {
		return
	}
	m.RotationsTotal.Inc()
}

// IncDate counts a date reaching its final disposition ("accepted" or
// "aborted").
func (m *Metrics) IncDate(result string) {
	if m == nil {
		return
	}
	m.DatesTotal.WithLabelValues(result).Inc()
}

// ObserveAttempt records how long one attempt took.
func (m *Metrics) ObserveAttempt(d time.Duration) {
	if m == nil {
		return
	}
	m.AttemptDuration.Observe(d.Seconds())
}

// AddTokens records token spend reported by the extraction provider.
func (m *Metrics) AddTokens(prompt, completion int) {
	if m == nil {
		return
	}
	m.TokensTotal.WithLabelValues("prompt").Add(float64(prompt))
	m.TokensTotal.WithLabelValues("completion").Add(float64(completion))
}
