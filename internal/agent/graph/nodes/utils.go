package nodes

import (
	"context"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/drew-quote-core/server/internal/agent/model"
)

// Node keys.
const (
	NodeRouter          = "router"
	NodeShortCircuit    = "short_circuit"
	NodePromptAssembler = "prompt_assembler"
	NodeChatModel       = "chat_model"
	NodeToolExecutor    = "tool_executor"
	NodeFinalizer       = "finalizer"
	NodeStuck           = "stuck"
)

const DefaultMaxIterations = 6

const (
	StuckMessage   = "I got a little stuck on that one. Let's try again..."
	TroubleMessage = "I had trouble understanding that. Could you say it another way?"
)

// normalizeMaxIterations returns a sane default when the provided value is invalid.
func normalizeMaxIterations(n int) int {
	if n <= 0 {
		return DefaultMaxIterations
	}
	return n
}

// MaxRunSteps bounds the graph: router, assembler and terminal node plus one
// model and one tool step per iteration, with headroom.
func MaxRunSteps(maxIterations int) int {
	steps := 10 + normalizeMaxIterations(maxIterations)*2
	if steps < 20 {
		steps = 20
	}
	return steps
}

// readState copies what fn needs out of the graph state.
func readState(ctx context.Context, fn func(*model.AppState)) error {
	return compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
		fn(s)
		return nil
	})
}

// countToolUses seeds the synthesized call id sequence so ids stay unique across the log.
func countToolUses(state *model.ConversationState) int {
	if state == nil {
		return 0
	}
	n := 0
	for _, m := range state.Messages {
		for _, b := range m.Blocks {
			if b.Type == model.BlockToolUse {
				n++
			}
		}
	}
	return n
}

func elapsed(start time.Time) time.Duration {
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}
