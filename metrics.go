package chatkit

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of a client. A nil *Metrics
// records nothing.
type Metrics struct {
	Requests      *prometheus.CounterVec
	ToolCalls     *prometheus.CounterVec
	RateLimitWait prometheus.Histogram
	PromptTokens  *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of chat requests dispatched",
			},
			[]string{"provider", "model", "mode", "outcome"},
		),
		ToolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool invocations",
			},
			[]string{"tool", "outcome"},
		),
		RateLimitWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rate_limit_wait_seconds",
				Help:      "Time spent waiting for a rate limiter permit",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
		),
		PromptTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prompt_tokens_total",
				Help:      "Prompt tokens counted by the budget check",
			},
			[]string{"model"},
		),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	var errs []error
	for _, c := range []prometheus.Collector{m.Requests, m.ToolCalls, m.RateLimitWait, m.PromptTokens} {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) observeRequest(provider, model, mode string, err error) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(provider, model, mode, outcome(err)).Inc()
}

func (m *Metrics) observeTool(name string, err error) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(name, outcome(err)).Inc()
}

func (m *Metrics) observeWait(d time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWait.Observe(d.Seconds())
}

func (m *Metrics) addPromptTokens(model string, n int) {
	if m == nil {
		return
	}
	m.PromptTokens.WithLabelValues(model).Add(float64(n))
}
