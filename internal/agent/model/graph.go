package model

import (
	"time"

	"github.com/cloudwego/eino/schema"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers or compose.ProcessState.
//   - Each turn gets a fresh AppState; nothing survives the request.
type AppState struct {
	Request      TurnRequest
	Started      time.Time
	Conversation ConversationState // running snapshot, returned to the client
	History      []*schema.Message // model context for this turn, system prompt first
	Produced     []*schema.Message // assistant and tool messages generated this turn

	Iterations    int              // model calls made this turn
	ToolCalls     []ToolCallRecord // tools executed this turn
	ToolCallIDSeq int              // local sequence to synthesize tool_call_id when provider omits

	// Accumulated total LLM cost (USD) across model invocations for this turn
	TotalCostUSD float64
}
