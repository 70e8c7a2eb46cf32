package model

import "time"

// ================ Config ================
type AgentConfig struct {
	MaxIterations      int           `envconfig:"AGENT_MAX_ITERATIONS" default:"6"`
	MaxContextMessages int           `envconfig:"AGENT_MAX_CONTEXT_MESSAGES" default:"40"`
	ModelTimeout       time.Duration `envconfig:"AGENT_MODEL_TIMEOUT" default:"30s"`
	LookupTimeout      time.Duration `envconfig:"AGENT_LOOKUP_TIMEOUT" default:"10s"`
	FallbackLaborRate  float64       `envconfig:"AGENT_FALLBACK_LABOR_RATE" default:"85"`
	MaxSearchResults   int           `envconfig:"AGENT_MAX_SEARCH_RESULTS" default:"8"`
}

type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.3"`
}

type EmbeddingConfig struct {
	Model string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	// MaxDistance drops knowledge matches whose cosine distance exceeds it.
	MaxDistance float64 `envconfig:"EMBEDDING_MAX_DISTANCE" default:"0.6"`
}

type LookupConfig struct {
	CacheTTL time.Duration `envconfig:"LOOKUP_CACHE_TTL" default:"10m"`
}

// DefaultAgentConfig mirrors the envconfig defaults for callers that skip env binding.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxIterations:      6,
		MaxContextMessages: 40,
		ModelTimeout:       30 * time.Second,
		LookupTimeout:      10 * time.Second,
		FallbackLaborRate:  85,
		MaxSearchResults:   8,
	}
}
