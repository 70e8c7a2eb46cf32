package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/drew-quote-core/server/internal/agent/model"
	logx "github.com/drew-quote-core/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey     string
	BaseURL    string
	RespConfig *model.ResponseModelConfig
	// Timeout bounds each Generate call; zero disables it.
	Timeout time.Duration
}

// ChatModels holds the orchestrator chat model
type ChatModels struct {
	Response          einomodel.ToolCallingChatModel
	ResponseModelName string
}

// NewGenAIClient creates the Gemini API client shared by chat and embedding calls.
func NewGenAIClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// NewChatModels creates the Gemini response model on client.
func NewChatModels(ctx context.Context, client *genai.Client, config ChatModelConfig) (*ChatModels, error) {
	if config.RespConfig == nil {
		return nil, fmt.Errorf("response model config is nil")
	}

	chatModelResponse, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.RespConfig.Model,
		Temperature: &config.RespConfig.Temperature,
		MaxTokens:   &config.RespConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(2000)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Response model")
		return nil, fmt.Errorf("error creating Response model: %w", err)
	}

	return &ChatModels{
		Response:          WithTimeout(chatModelResponse, config.Timeout),
		ResponseModelName: config.RespConfig.Model,
	}, nil
}

type timeoutModel struct {
	inner   einomodel.ToolCallingChatModel
	timeout time.Duration
}

// WithTimeout bounds every Generate call of m by d. A non-positive d returns m unchanged.
func WithTimeout(m einomodel.ToolCallingChatModel, d time.Duration) einomodel.ToolCallingChatModel {
	if d <= 0 {
		return m
	}
	return &timeoutModel{inner: m, timeout: d}
}

func (t *timeoutModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Generate(ctx, input, opts...)
}

// Stream is not used by the turn graph and is passed through without a deadline.
func (t *timeoutModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return t.inner.Stream(ctx, input, opts...)
}

func (t *timeoutModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	bound, err := t.inner.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &timeoutModel{inner: bound, timeout: t.timeout}, nil
}

// IsCallbacksEnabled defers to the wrapped model so callbacks fire exactly once.
func (t *timeoutModel) IsCallbacksEnabled() bool {
	return components.IsCallbacksEnabled(t.inner)
}
