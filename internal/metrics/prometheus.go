package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	turnsTotal     *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	toolCallsTotal *prometheus.CounterVec
	tokensTotal    *prometheus.CounterVec
	costsTotal     *prometheus.CounterVec
}

// NewPrometheusRecorder registers the agent metrics on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drew_turns_total",
				Help: "Total number of turns by path and router rule",
			},
			[]string{"path", "rule"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "drew_turn_duration_seconds",
				Help:    "Duration of turns in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		toolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drew_tool_calls_total",
				Help: "Total number of tool executions by tool and status",
			},
			[]string{"tool", "status"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drew_llm_tokens_total",
				Help: "Total number of tokens used in model calls",
			},
			[]string{"model", "type"},
		),
		costsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drew_llm_cost_usd_total",
				Help: "Total cost in USD for model calls",
			},
			[]string{"model"},
		),
	}
}

// ObserveTurn records a completed turn.
func (p *PrometheusRecorder) ObserveTurn(path, rule string, duration time.Duration) {
	p.turnsTotal.WithLabelValues(path, rule).Inc()
	p.turnDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// IncToolCall counts one tool execution.
func (p *PrometheusRecorder) IncToolCall(tool string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	p.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

// ObserveModelUsage records token usage and cost for one model call.
func (p *PrometheusRecorder) ObserveModelUsage(model string, promptTokens, completionTokens int, cost float64) {
	p.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	p.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	p.costsTotal.WithLabelValues(model).Add(cost)
}
