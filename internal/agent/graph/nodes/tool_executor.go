package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/drew-quote-core/server/internal/agent/graph/conversations"
	"github.com/drew-quote-core/server/internal/agent/model"
	logx "github.com/drew-quote-core/server/pkg/logger"
)

// stateTool adapts a registry entry to an Eino tool. The conversation snapshot is read
// from and written back to the graph state around each call.
type stateTool struct {
	info *schema.ToolInfo
	deps *Deps
}

func (t *stateTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.info, nil
}

func (t *stateTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	return runTool(ctx, t.deps, t.info.Name, argumentsInJSON)
}

func runTool(ctx context.Context, deps *Deps, name, arguments string) (string, error) {
	var (
		conv model.ConversationState
		req  model.TurnRequest
	)
	if err := readState(ctx, func(s *model.AppState) {
		conv = s.Conversation
		req = s.Request
	}); err != nil {
		return "", fmt.Errorf("failed to access state: %w", err)
	}

	exec := deps.Registry.Execute(ctx, deps.toolEnv(req), conv, schema.ToolCall{
		Function: schema.FunctionCall{Name: name, Arguments: arguments},
	})
	deps.Metrics.IncToolCall(exec.Name, exec.Err == nil)

	err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
		s.Conversation = exec.State
		s.ToolCalls = append(s.ToolCalls, model.ToolCallRecord{Name: exec.Name, Input: exec.Input})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to access state: %w", err)
	}
	return conversations.ToolPayload(exec.Text), nil
}

// NewToolsNode wraps the registry in an Eino tools node that runs calls one at a time.
func NewToolsNode(ctx context.Context, deps *Deps) (*compose.ToolsNode, error) {
	infos := deps.Registry.Infos()
	businessTools := make([]tool.BaseTool, 0, len(infos))
	for _, info := range infos {
		businessTools = append(businessTools, &stateTool{info: info, deps: deps})
	}

	return compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               businessTools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// hallucinated or malformed tool calls become an error result for the model
			return runTool(ctx, deps, name, input)
		},
	})
}

// NewToolExecutorPreHandler logs each batch of tool calls.
func NewToolExecutorPreHandler() func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		logx.Debug().
			Int("tool_count", len(in.ToolCalls)).
			Int("tool_calls_so_far", len(state.ToolCalls)).
			Int("iteration", state.Iterations).
			Msg("Tool execution attempt")
		return in, nil
	}
}

// NewToolExecutorPostHandler records the tool results produced this turn.
func NewToolExecutorPostHandler() func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, out []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		state.Produced = append(state.Produced, out...)
		return out, nil
	}
}
