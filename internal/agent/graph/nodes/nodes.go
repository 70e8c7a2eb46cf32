package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/drew-quote-core/server/internal/agent/graph/conversations"
	"github.com/drew-quote-core/server/internal/agent/graph/formatter"
	"github.com/drew-quote-core/server/internal/agent/graph/parsers"
	"github.com/drew-quote-core/server/internal/agent/graph/prompts"
	"github.com/drew-quote-core/server/internal/agent/graph/router"
	"github.com/drew-quote-core/server/internal/agent/graph/tools"
	"github.com/drew-quote-core/server/internal/agent/model"
	"github.com/drew-quote-core/server/internal/agent/rules"
	"github.com/drew-quote-core/server/internal/metrics"
	logx "github.com/drew-quote-core/server/pkg/logger"
)

// Deps are the collaborators shared by every node of the turn graph.
type Deps struct {
	Router    *router.Router
	Registry  *tools.Registry
	Messages  *conversations.MessagesManager
	Rules     *rules.Rules
	Lookups   model.Lookups
	Config    model.AgentConfig
	Metrics   metrics.Recorder
	ModelName string
}

func (d *Deps) toolEnv(req model.TurnRequest) tools.Env {
	return tools.Env{
		Lookups:  d.Lookups,
		Rules:    d.Rules,
		UserID:   req.UserID,
		Settings: req.UserSettings,
		Config:   d.Config,
	}
}

// NewRouterPreHandler resets the per-turn state and records the request.
func NewRouterPreHandler() func(context.Context, model.TurnRequest, *model.AppState) (model.TurnRequest, error) {
	return func(ctx context.Context, in model.TurnRequest, s *model.AppState) (model.TurnRequest, error) {
		s.Request = in
		s.Started = time.Now()
		s.History = nil
		s.Produced = nil
		s.Iterations = 0
		s.ToolCalls = nil
		s.ToolCallIDSeq = countToolUses(in.State)
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewRouterNode runs the deterministic phase router.
func NewRouterNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnRequest) (router.Outcome, error) {
		return deps.Router.Route(ctx, in), nil
	})
}

// NewRouterPostHandler carries the router's snapshot forward, including partial progress on fall-through.
func NewRouterPostHandler() func(context.Context, router.Outcome, *model.AppState) (router.Outcome, error) {
	return func(ctx context.Context, out router.Outcome, s *model.AppState) (router.Outcome, error) {
		s.Conversation = out.State
		return out, nil
	}
}

// NewRouterCondition sends handled turns straight to the response.
func NewRouterCondition() func(context.Context, router.Outcome) (string, error) {
	return func(ctx context.Context, out router.Outcome) (string, error) {
		if out.Handled {
			logx.Debug().Str("rule", out.Rule).Msg("Routing to ShortCircuit")
			return NodeShortCircuit, nil
		}
		logx.Debug().Msg("No rule matched - routing to PromptAssembler")
		return NodePromptAssembler, nil
	}
}

// NewShortCircuitNode turns a router outcome into the turn response.
func NewShortCircuitNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, out router.Outcome) (*model.TurnResponse, error) {
		var started time.Time
		if err := readState(ctx, func(s *model.AppState) { started = s.Started }); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		deps.Metrics.ObserveTurn(metrics.PathRouter, out.Rule, elapsed(started))

		return &model.TurnResponse{
			Message:      out.Message,
			State:        out.State,
			Display:      formatter.Display(out.State, out.Display),
			QuickReplies: formatter.QuickReplies(out.QuickReplies, out.State, deps.Rules),
		}, nil
	})
}

// NewPromptAssemblerNode records the user message and builds the model context.
func NewPromptAssemblerNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ router.Outcome) ([]*schema.Message, error) {
		var (
			conv     model.ConversationState
			settings *model.UserSettings
		)
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			s.Conversation.AppendMessages(model.Message{Role: model.RoleUser, Content: s.Request.UserMessage})
			conv = s.Conversation
			settings = s.Request.UserSettings
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		// Generate system prompt via Eino prompt component (enables prompt callbacks)
		systemPrompt, err := prompts.RenderSystem(ctx, conv, settings)
		if err != nil {
			return nil, fmt.Errorf("generate system prompt: %w", err)
		}
		return deps.Messages.BuildContext(systemPrompt, conv.Messages), nil
	})
}

// NewChatModelPreHandler accumulates the model context and counts the call.
func NewChatModelPreHandler() func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		state.History = append(state.History, in...)
		state.Iterations++

		logx.Debug().Int("iteration", state.Iterations).Msg("AI thinking...")
		return state.History, nil
	}
}

// NewChatModelPostHandler computes usage cost, fills missing tool call ids and records the reply.
func NewChatModelPostHandler(deps *Deps) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("chat model returned no message")
		}

		if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			cost := model.CostOf(deps.ModelName, out.ResponseMeta.Usage)
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			out.Extra["usage_cost"] = cost.Extra()
			logx.Debug().
				Str("node", NodeChatModel).
				Str("model", cost.Model).
				Str("phase", string(state.Conversation.CurrentPhase())).
				Int("prompt_tokens", cost.PromptTokens).
				Int("completion_tokens", cost.CompletionTokens).
				Int("total_tokens", cost.TotalTokens).
				Float64("total_cost_usd", cost.TotalUSD).
				Msg("LLM usage")

			state.TotalCostUSD += cost.TotalUSD
			out.Extra["usage_cost_total_usd"] = state.TotalCostUSD
			deps.Metrics.ObserveModelUsage(cost.Model, cost.PromptTokens, cost.CompletionTokens, cost.TotalUSD)
		}

		// Normalize tool calls: some providers may omit tool_call IDs.
		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
		}

		state.History = append(state.History, out)
		state.Produced = append(state.Produced, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			logx.Debug().Msg("AI response ready")
		}
		return out, nil
	}
}

// NewChatModelCondition routes tool requests to the executor until the iteration cap.
func NewChatModelCondition(maxIterations int) func(context.Context, *schema.Message) (string, error) {
	maxIterations = normalizeMaxIterations(maxIterations)
	return func(ctx context.Context, input *schema.Message) (string, error) {
		if len(input.ToolCalls) == 0 {
			logx.Debug().Msg("No tool calls - routing to Finalizer")
			return NodeFinalizer, nil
		}

		var iterations int
		if err := readState(ctx, func(s *model.AppState) { iterations = s.Iterations }); err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}
		if iterations >= maxIterations {
			logx.Warn().
				Int("iterations", iterations).
				Int("max_iterations", maxIterations).
				Msg("Iteration limit reached with pending tool calls - routing to Stuck")
			return NodeStuck, nil
		}

		logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolExecutor")
		return NodeToolExecutor, nil
	}
}

// NewFinalizerNode strips the quick-reply directive and assembles the turn response.
func NewFinalizerNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*model.TurnResponse, error) {
		parsed := parsers.ParseQuickReplies(in.Content)
		text := parsed.Text
		lowConfidence := parsed.Malformed
		if text == "" {
			lowConfidence = true
			text = TroubleMessage
		}
		if lowConfidence {
			logx.Warn().
				Bool("directive_malformed", parsed.Malformed).
				Int("content_length", len(in.Content)).
				Msg("Low-confidence model output passed through")
		}

		var resp *model.TurnResponse
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			produced := s.Produced
			if n := len(produced); n > 0 && produced[n-1] == in {
				produced = produced[:n-1]
			}
			appendTurn(s, produced, text)
			deps.Metrics.ObserveTurn(metrics.PathOrchestrator, "", elapsed(s.Started))

			resp = &model.TurnResponse{
				Message:       text,
				State:         s.Conversation,
				Display:       formatter.Display(s.Conversation, nil),
				QuickReplies:  formatter.QuickReplies(parsed.Options, s.Conversation, deps.Rules),
				ToolCalls:     s.ToolCalls,
				LowConfidence: lowConfidence,
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return resp, nil
	})
}

// NewStuckNode answers with a recoverable message once the iteration cap is hit.
// The unanswered tool request is dropped so the log stays well formed.
func NewStuckNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*model.TurnResponse, error) {
		var resp *model.TurnResponse
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			produced := s.Produced
			if n := len(produced); n > 0 && len(produced[n-1].ToolCalls) > 0 {
				produced = produced[:n-1]
			}
			appendTurn(s, produced, StuckMessage)
			deps.Metrics.ObserveTurn(metrics.PathStuck, "", elapsed(s.Started))

			resp = &model.TurnResponse{
				Message:      StuckMessage,
				State:        s.Conversation,
				Display:      formatter.Display(s.Conversation, nil),
				QuickReplies: formatter.QuickReplies(nil, s.Conversation, deps.Rules),
				ToolCalls:    s.ToolCalls,
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return resp, nil
	})
}

// appendTurn writes the turn's messages and the final reply into the conversation log.
func appendTurn(s *model.AppState, produced []*schema.Message, reply string) {
	msgs := conversations.FromSchema(produced)
	msgs = append(msgs, model.Message{Role: model.RoleAssistant, Content: reply})
	s.Conversation.AppendMessages(msgs...)
}
