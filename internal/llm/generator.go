// Package llm wraps the generative model behind a single-prompt Generator interface, with retry,
// circuit breaking and rate limiting decorators.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kensho/internal/config"
	"github.com/hyperjump/kensho/pkg/utils"
)

var (
	ErrEmptyPrompt   = errors.New("prompt cannot be empty")
	ErrEmptyResponse = errors.New("model returned no content")
	ErrCircuitOpen   = errors.New("model circuit breaker is open")
)

// GeminiOpenAIBaseURL is Gemini's OpenAI-compatible endpoint.
const GeminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// Generator sends one prompt to a generative model and returns its text reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// New builds the configured provider client wrapped in rate limiting, retries and, when enabled, a
// circuit breaker. The breaker sits outermost so one verification counts once however often it retried.
func New(cfg config.LLMConfig, logger *zap.Logger) (Generator, error) {
	logger = utils.OrNop(logger)
	if err := validateAPIKey(cfg); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" && cfg.Provider == config.ProviderGemini {
		baseURL = GeminiOpenAIBaseURL
	}
	var g Generator = NewOpenAIGenerator(OpenAIOptions{
		APIKey:      cfg.APIKey,
		BaseURL:     baseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if cfg.RateLimit > 0 {
		g = NewLimitedGenerator(g, cfg.RateLimit, cfg.Burst)
	}
	if cfg.MaxRetries > 0 {
		g = NewRetryGenerator(g, RetryConfig{MaxRetries: cfg.MaxRetries, InitialDelay: cfg.RetryInitialDelay}, logger)
	}
	if cfg.Breaker.Enabled {
		g = NewBreakerGenerator(g, cfg.Breaker, cfg.Provider, logger)
	}
	logger.Info("LLM client initialized", zap.String("provider", cfg.Provider), zap.String("model", cfg.Model))
	return g, nil
}

func validateAPIKey(cfg config.LLMConfig) error {
	keyName := "OPENAI_API_KEY"
	if cfg.Provider == config.ProviderGemini {
		keyName = "GEMINI_API_KEY"
	}
	key := strings.TrimSpace(cfg.APIKey)
	switch {
	case key == "":
		return fmt.Errorf("missing %s: set it in the environment, a .env file or llm.api_key", keyName)
	case strings.HasPrefix(key, "your_") && strings.HasSuffix(key, "_here"):
		return fmt.Errorf("%s is set to a placeholder value", keyName)
	}
	return nil
}
