package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/drew-quote-core/server/internal/agent/model"
	"github.com/drew-quote-core/server/internal/agent/rules"
	logx "github.com/drew-quote-core/server/pkg/logger"
)

// Env carries the request-scoped collaborators a tool may use.
type Env struct {
	Lookups  model.Lookups
	Rules    *rules.Rules
	UserID   string
	Settings *model.UserSettings
	Config   model.AgentConfig
}

// Result is what a tool hands back: text for the model and the next state snapshot.
type Result struct {
	Text  string
	State model.ConversationState
}

// Tool is one dispatch table entry.
type Tool struct {
	Info *schema.ToolInfo
	run  func(ctx context.Context, env Env, state model.ConversationState, args string) (Result, error)
}

// define builds a Tool whose handler receives arguments decoded into T.
func define[T any](info *schema.ToolInfo, handler func(ctx context.Context, env Env, state model.ConversationState, in T) (Result, error)) Tool {
	return Tool{
		Info: info,
		run: func(ctx context.Context, env Env, state model.ConversationState, args string) (Result, error) {
			var in T
			if strings.TrimSpace(args) != "" {
				if err := json.Unmarshal([]byte(args), &in); err != nil {
					return Result{}, fmt.Errorf("invalid arguments: %w", err)
				}
			}
			return handler(ctx, env, state, in)
		},
	}
}

// Registry maps tool names to their definitions.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Info.Name] = t
	}
	return r
}

// Default returns the full quote-building tool set.
func Default() *Registry {
	return NewRegistry(
		searchKnowledgeBase(),
		proposeChecklist(),
		searchMaterials(),
		addItems(),
		removeItems(),
		setLabor(),
		setMarkup(),
		setQuoteInfo(),
		getSummary(),
		finalizeQuote(),
	)
}

// Infos returns the tool manifest sorted by name.
func (r *Registry) Infos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		infos = append(infos, t.Info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Execution is the outcome of one tool call.
type Execution struct {
	Name  string
	Input json.RawMessage
	Text  string
	State model.ConversationState
	// Err is the failure that was converted into Text, if any.
	Err error
}

// Execute runs one tool call. It never returns an error: unknown tools, bad arguments
// and handler failures become tool-result text so the model can react, and the state
// is left unchanged.
func (r *Registry) Execute(ctx context.Context, env Env, state model.ConversationState, call schema.ToolCall) Execution {
	name := strings.TrimSpace(call.Function.Name)
	args := strings.TrimSpace(call.Function.Arguments)
	exec := Execution{Name: name, Input: rawInput(args), State: state}

	t, ok := r.tools[name]
	if !ok {
		logx.Warn().Str("tool_name", name).Str("arguments", args).Msg("unknown tool call")
		exec.Err = fmt.Errorf("unknown tool %q", name)
		exec.Text = fmt.Sprintf("Error: unknown tool %q. Use only the tools you were given.", name)
		return exec
	}

	if d := env.Config.LookupTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	res, err := t.run(ctx, env, state.Clone(), args)
	logx.Debug().
		Str("tool_name", name).
		Dur("elapsed", time.Since(start)).
		Bool("failed", err != nil).
		Msg("tool executed")
	if err != nil {
		logx.Warn().Err(err).Str("tool_name", name).Msg("tool failed")
		exec.Err = err
		exec.Text = fmt.Sprintf("Error: %s failed: %v", name, err)
		return exec
	}
	exec.Text = res.Text
	exec.State = res.State
	return exec
}

func rawInput(args string) json.RawMessage {
	if args == "" || !json.Valid([]byte(args)) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(args)
}
