package embedding

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/kensho/internal/config"
	"github.com/hyperjump/kensho/pkg/utils"
)

// New builds the configured embedding backend wrapped in a query cache. A backend that fails to load is
// an error: corpus embeddings cached by one model are meaningless to another.
func New(cfg *config.Config, logger *zap.Logger) (Embedder, error) {
	logger = utils.OrNop(logger)
	ec := cfg.Embedding

	var base Embedder
	var err error
	switch ec.Backend {
	case config.EmbeddingMock:
		base = NewMockEmbedder(ec.Dimensions)
	case config.EmbeddingONNX:
		base, err = NewONNXEmbedder(ec.ModelPath, ec.Dimensions, ec.MaxTokens)
	case config.EmbeddingHugot:
		base, err = NewHugotEmbedder(ec.ModelPath, ec.Dimensions)
	case config.EmbeddingOpenAI:
		apiKey := os.Getenv("OPENAI_API_KEY")
		baseURL := ""
		if cfg.LLM.Provider == config.ProviderOpenAI {
			if cfg.LLM.APIKey != "" {
				apiKey = cfg.LLM.APIKey
			}
			baseURL = cfg.LLM.BaseURL
		}
		base, err = NewOpenAIEmbedder(apiKey, baseURL, ec.Model, ec.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", ec.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%s embedding backend: %w", ec.Backend, err)
	}
	logger.Debug("Embedding backend ready",
		zap.String("backend", ec.Backend),
		zap.Int("dimensions", ec.Dimensions),
	)

	if ec.CacheSize < 0 {
		return base, nil
	}
	return NewCachedEmbedder(base, ec.CacheTTL, ec.CacheSize), nil
}
