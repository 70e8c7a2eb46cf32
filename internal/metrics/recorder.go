// Package metrics records turn, tool and model usage metrics.
package metrics

import "time"

// Turn paths.
const (
	PathRouter       = "router"
	PathOrchestrator = "orchestrator"
	PathStuck        = "stuck"
	PathError        = "error"
)

// Recorder defines the interface for recording agent metrics.
type Recorder interface {
	// ObserveTurn records a completed turn and the path that produced it.
	ObserveTurn(path, rule string, duration time.Duration)

	// IncToolCall counts one tool execution.
	IncToolCall(tool string, success bool)

	// ObserveModelUsage records token usage and cost for one model call.
	ObserveModelUsage(model string, promptTokens, completionTokens int, cost float64)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveTurn(_, _ string, _ time.Duration) {}

func (n *NoopRecorder) IncToolCall(_ string, _ bool) {}

func (n *NoopRecorder) ObserveModelUsage(_ string, _, _ int, _ float64) {}
