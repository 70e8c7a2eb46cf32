package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/drew-quote-core/server/internal/agent/graph/conversations"
	"github.com/drew-quote-core/server/internal/agent/graph/nodes"
	"github.com/drew-quote-core/server/internal/agent/graph/observers"
	"github.com/drew-quote-core/server/internal/agent/graph/router"
	"github.com/drew-quote-core/server/internal/agent/graph/tools"
	"github.com/drew-quote-core/server/internal/agent/model"
	"github.com/drew-quote-core/server/internal/agent/rules"
	errx "github.com/drew-quote-core/server/internal/core/error"
	"github.com/drew-quote-core/server/internal/metrics"
	logx "github.com/drew-quote-core/server/pkg/logger"
)

// Runner is a thin wrapper to execute the compiled graph for one turn.
type Runner interface {
	Invoke(ctx context.Context, in model.TurnRequest) (*model.TurnResponse, error)
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	// ChatModel must already carry any per-call timeout; tools are bound here.
	ChatModel einomodel.ToolCallingChatModel
	ModelName string
	Lookups   model.Lookups
	Rules     *rules.Rules
	Registry  *tools.Registry
	Agent     model.AgentConfig
	Metrics   metrics.Recorder
}

// GraphBuilder handles the construction of the turn graph
type GraphBuilder struct {
	config *GraphConfig
	deps   *nodes.Deps
	graph  *compose.Graph[model.TurnRequest, *model.TurnResponse]
}

type graphRunner struct {
	runnable compose.Runnable[model.TurnRequest, *model.TurnResponse]
	metrics  metrics.Recorder
}

func (r *graphRunner) Invoke(ctx context.Context, in model.TurnRequest) (*model.TurnResponse, error) {
	start := time.Now()
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		r.metrics.ObserveTurn(metrics.PathError, "", time.Since(start))
		logx.Error().Err(err).Msg("Turn failed")
		return nil, errx.Upstream(fmt.Errorf("turn graph: %w", err))
	}
	if out == nil {
		return nil, fmt.Errorf("turn graph returned no response")
	}
	return out, nil
}

// BuildTurnGraph validates cfg, builds the graph, and returns a Runner.
func BuildTurnGraph(ctx context.Context, cfg GraphConfig) (Runner, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("chat model is nil")
	}
	if cfg.Lookups.Knowledge == nil || cfg.Lookups.Checklists == nil || cfg.Lookups.Materials == nil {
		return nil, fmt.Errorf("lookups are not properly initialized")
	}
	if cfg.Rules == nil {
		cfg.Rules = rules.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = tools.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop()
	}

	runnable, err := BuildGraph(ctx, &cfg)
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Turn graph built successfully")
	return &graphRunner{runnable: runnable, metrics: cfg.Metrics}, nil
}

// BuildGraph constructs and returns the compiled turn graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.TurnRequest, *model.TurnResponse], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}

	builder := &GraphBuilder{
		config: config,
		deps: &nodes.Deps{
			Router:    router.New(config.Rules, config.Lookups, config.Agent),
			Registry:  config.Registry,
			Messages:  conversations.NewMessagesManager(config.Agent),
			Rules:     config.Rules,
			Lookups:   config.Lookups,
			Config:    config.Agent,
			Metrics:   config.Metrics,
			ModelName: config.ModelName,
		},
		graph: compose.NewGraph[model.TurnRequest, *model.TurnResponse](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}
	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	builder.addEdges()
	if err := builder.addBranches(); err != nil {
		return nil, err
	}
	return builder.compile(ctx)
}

// setupTools binds the tool manifest to the chat model and adds the tools node
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	bound, err := b.config.ChatModel.WithTools(b.config.Registry.Infos())
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to chat model")
		return fmt.Errorf("failed to bind tools to chat model: %w", err)
	}
	b.config.ChatModel = bound

	toolsNode, err := nodes.NewToolsNode(ctx, b.deps)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	return b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler()),
		compose.WithStatePostHandler(nodes.NewToolExecutorPostHandler()),
	)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	adds := []error{
		b.graph.AddLambdaNode(nodes.NodeRouter,
			nodes.NewRouterNode(b.deps),
			compose.WithStatePreHandler(nodes.NewRouterPreHandler()),
			compose.WithStatePostHandler(nodes.NewRouterPostHandler()),
		),
		b.graph.AddLambdaNode(nodes.NodeShortCircuit, nodes.NewShortCircuitNode(b.deps)),
		b.graph.AddLambdaNode(nodes.NodePromptAssembler, nodes.NewPromptAssemblerNode(b.deps)),
		b.graph.AddChatModelNode(nodes.NodeChatModel, b.config.ChatModel,
			compose.WithStatePreHandler(nodes.NewChatModelPreHandler()),
			compose.WithStatePostHandler(nodes.NewChatModelPostHandler(b.deps)),
		),
		b.graph.AddLambdaNode(nodes.NodeFinalizer, nodes.NewFinalizerNode(b.deps)),
		b.graph.AddLambdaNode(nodes.NodeStuck, nodes.NewStuckNode(b.deps)),
	}
	for _, err := range adds {
		if err != nil {
			logx.Error().Err(err).Msg("Error adding node")
			return fmt.Errorf("error adding node: %w", err)
		}
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeRouter},
		{nodes.NodePromptAssembler, nodes.NodeChatModel},
		{nodes.NodeToolExecutor, nodes.NodeChatModel},
		{nodes.NodeShortCircuit, compose.END},
		{nodes.NodeFinalizer, compose.END},
		{nodes.NodeStuck, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	routerBranch := compose.NewGraphBranch(
		nodes.NewRouterCondition(),
		map[string]bool{
			nodes.NodeShortCircuit:    true,
			nodes.NodePromptAssembler: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeRouter, routerBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding router branch")
		return fmt.Errorf("error adding router branch: %w", err)
	}

	decisionBranch := compose.NewGraphBranch(
		nodes.NewChatModelCondition(b.config.Agent.MaxIterations),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			nodes.NodeFinalizer:    true,
			nodes.NodeStuck:        true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnRequest, *model.TurnResponse], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(nodes.MaxRunSteps(b.config.Agent.MaxIterations)))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
