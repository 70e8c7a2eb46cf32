package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/genai"

	"github.com/drew-quote-core/server/internal/agent/graph"
	"github.com/drew-quote-core/server/internal/agent/graph/nodes"
	"github.com/drew-quote-core/server/internal/agent/model"
	"github.com/drew-quote-core/server/internal/agent/repo"
	"github.com/drew-quote-core/server/internal/agent/rules"
	"github.com/drew-quote-core/server/internal/core"
	errx "github.com/drew-quote-core/server/internal/core/error"
	"github.com/drew-quote-core/server/internal/http/handler"
	httprouter "github.com/drew-quote-core/server/internal/http/router"
	"github.com/drew-quote-core/server/internal/lookup/checklist"
	"github.com/drew-quote-core/server/internal/lookup/knowledge"
	"github.com/drew-quote-core/server/internal/lookup/materials"
	"github.com/drew-quote-core/server/internal/lookup/static"
	"github.com/drew-quote-core/server/internal/metrics"
	logx "github.com/drew-quote-core/server/pkg/logger"
	pkgpostgres "github.com/drew-quote-core/server/pkg/postgres"
	pkgredis "github.com/drew-quote-core/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the server,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	HTTPPort    string `envconfig:"HTTP_PORT" default:"8080"`

	// Infrastructure; both optional
	Database pkgpostgres.Config
	Redis    pkgredis.Config

	// LLM provider. A missing key is reported on every chat request.
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Response  model.ResponseModelConfig
	Embedding model.EmbeddingConfig
	Agent     model.AgentConfig
	Lookup    model.LookupConfig
}

func main() {
	logx.Init()

	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		logx.Warn().Err(err).Msg("Could not load .env file")
	}

	// Load structured config from env
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("Failed to process environment config")
	}
	env := core.ParseEnvironment(cfg.Environment)
	logx.Init(logx.LoggerOpts{Environment: env})
	if env.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(reg)

	var (
		runner    handler.TurnRunner
		configErr error
		cleanup   = func() {}
	)
	if cfg.APIKey == "" {
		configErr = errx.Config(errors.New("GEMINI_API_KEY is not set"))
		logx.Warn().Msg("GEMINI_API_KEY is not set; chat requests will be rejected")
	} else {
		r, closeFn, err := buildRunner(ctx, cfg, recorder)
		if err != nil {
			logx.Fatal().Err(err).Msg("Failed to build turn graph")
		}
		runner, cleanup = r, closeFn
	}
	defer cleanup()

	engine := httprouter.New(handler.NewChatHandler(runner, configErr), httprouter.RouterConfig{Gatherer: reg})
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logx.Info().Str("addr", server.Addr).Str("environment", env.String()).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logx.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("http server shutdown error")
	}
	logx.Info().Msg("shutdown complete")
}

// buildRunner wires the Gemini model, the lookups and the turn graph.
func buildRunner(ctx context.Context, cfg AppConfig, recorder metrics.Recorder) (graph.Runner, func(), error) {
	client, err := nodes.NewGenAIClient(ctx, cfg.APIKey, cfg.BaseURL)
	if err != nil {
		return nil, nil, err
	}

	cms, err := nodes.NewChatModels(ctx, client, nodes.ChatModelConfig{
		RespConfig: &cfg.Response,
		Timeout:    cfg.Agent.ModelTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	lookups, cleanup, err := buildLookups(ctx, cfg, client)
	if err != nil {
		return nil, nil, err
	}

	runner, err := graph.BuildTurnGraph(ctx, graph.GraphConfig{
		ChatModel: cms.Response,
		ModelName: cms.ResponseModelName,
		Lookups:   lookups,
		Rules:     rules.Default(),
		Agent:     cfg.Agent,
		Metrics:   recorder,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return runner, cleanup, nil
}

// buildLookups selects Postgres or the bundled seed data and adds the Redis cache when configured.
func buildLookups(ctx context.Context, cfg AppConfig, client *genai.Client) (model.Lookups, func(), error) {
	var (
		lookups model.Lookups
		closers []func()
		cleanup = func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	)

	if cfg.Database.Enabled() {
		pool, err := cfg.Database.New(ctx)
		if err != nil {
			return lookups, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		closers = append(closers, pool.Close)
		lookups = model.Lookups{
			Knowledge:  knowledge.NewStore(pool, knowledge.NewGeminiEmbedder(client, cfg.Embedding.Model), cfg.Embedding.MaxDistance),
			Checklists: checklist.NewStore(pool),
			Materials:  materials.NewPostgresSearcher(pool),
		}
		logx.Info().Msg("Using Postgres lookups")
	} else {
		store, err := static.Load()
		if err != nil {
			return lookups, nil, fmt.Errorf("failed to load seed data: %w", err)
		}
		lookups = model.Lookups{Knowledge: store, Checklists: store, Materials: store.Materials()}
		logx.Info().Msg("DATABASE_URL not set; using bundled seed data")
	}

	if cfg.Redis.Enabled() {
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			cleanup()
			return lookups, nil, fmt.Errorf("failed to initialise Redis client: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		cache := repo.NewLookupCache(rdb, cfg.Lookup.CacheTTL)
		lookups.Knowledge = cache.Knowledge(lookups.Knowledge)
		lookups.Checklists = cache.Checklists(lookups.Checklists)
		logx.Info().Dur("ttl", cfg.Lookup.CacheTTL).Msg("Lookup cache enabled")
	}

	return lookups, cleanup, nil
}
