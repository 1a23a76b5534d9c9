// Package observability exposes Prometheus metrics for runs, steps, tool
// calls, token usage and stream keepalives. All recorder methods are safe to
// call on a nil *Metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the engine collectors.
type Metrics struct {
	RunsTotal      *prometheus.CounterVec
	ActiveRuns     prometheus.Gauge
	StepsTotal     *prometheus.CounterVec
	ToolCallsTotal *prometheus.CounterVec
	ModelTokens    *prometheus.CounterVec
	Keepalives     prometheus.Counter
	RunDuration    prometheus.Histogram
}

// NewMetrics registers the collectors with reg. A nil reg registers with
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	f := promauto.With(reg)

	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rossum_agent_runs_total",
			Help: "Finished runs by outcome",
		}, []string{"outcome"}),
		ActiveRuns: f.NewGauge(prometheus.GaugeOpts{
			Name: "rossum_agent_active_runs",
			Help: "Runs currently in flight",
		}),
		StepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rossum_agent_steps_total",
			Help: "Steps emitted by kind",
		}, []string{"kind"}),
		ToolCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rossum_agent_tool_calls_total",
			Help: "Tool calls by tool and outcome",
		}, []string{"tool", "outcome"}),
		ModelTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rossum_agent_model_tokens_total",
			Help: "Model tokens by direction",
		}, []string{"direction"}),
		Keepalives: f.NewCounter(prometheus.CounterOpts{
			Name: "rossum_agent_keepalives_total",
			Help: "Keepalive frames sent on event streams",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rossum_agent_run_duration_seconds",
			Help:    "Wall time of finished runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
	}
}

// RunStarted increments the active run gauge.
func (m *Metrics) RunStarted() {
	if m == nil || m.ActiveRuns == nil {
		return
	}
	m.ActiveRuns.Inc()
}

// RunFinished records the outcome and duration of a run.
func (m *Metrics) RunFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if m.ActiveRuns != nil {
		m.ActiveRuns.Dec()
	}
	if m.RunsTotal != nil {
		m.RunsTotal.WithLabelValues(outcome).Inc()
	}
	if m.RunDuration != nil {
		m.RunDuration.Observe(d.Seconds())
	}
}

// Step counts an emitted step.
func (m *Metrics) Step(kind string) {
	if m == nil || m.StepsTotal == nil {
		return
	}
	m.StepsTotal.WithLabelValues(kind).Inc()
}

// ToolCall counts a tool call outcome.
func (m *Metrics) ToolCall(tool, outcome string) {
	if m == nil || m.ToolCallsTotal == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// Tokens adds model token usage.
func (m *Metrics) Tokens(input, output int) {
	if m == nil || m.ModelTokens == nil {
		return
	}
	m.ModelTokens.WithLabelValues("input").Add(float64(input))
	m.ModelTokens.WithLabelValues("output").Add(float64(output))
}

// Keepalive counts a keepalive frame.
func (m *Metrics) Keepalive() {
	if m == nil || m.Keepalives == nil {
		return
	}
	m.Keepalives.Inc()
}
