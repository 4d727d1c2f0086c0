package config

import "time"

// Backend and provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	EmbeddingMock   = "mock"
	EmbeddingONNX   = "onnx"
	EmbeddingHugot  = "hugot"
	EmbeddingOpenAI = "openai"

	ExtractionRules  = "rules"
	ExtractionHugot  = "hugot"
	ExtractionGliner = "gliner"
	ExtractionNone   = "none"
)

// DefaultCategories is the accepted fact category set when none is configured.
var DefaultCategories = []string{"agriculture", "health", "economy", "infrastructure", "education"}

// DefaultEntityLabels are the entity labels kept by the claim extractor when none are configured.
var DefaultEntityLabels = []string{"ORG", "DATE", "GPE", "PERSON", "MONEY", "CARDINAL", "PERCENT", "PRODUCT", "EVENT", "LAW"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8001
	}
	if cfg.Server.MaxClaimLength == 0 {
		cfg.Server.MaxClaimLength = 1000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}

	if cfg.Corpus.Path == "" {
		cfg.Corpus.Path = "/usr/local/var/kensho/data/fact_base.json"
	}
	if len(cfg.Corpus.Categories) == 0 {
		cfg.Corpus.Categories = append([]string(nil), DefaultCategories...)
	}
	if cfg.Corpus.EmbedBatchSize == 0 {
		cfg.Corpus.EmbedBatchSize = 32
	}
	if cfg.Corpus.EmbedConcurrency == 0 {
		cfg.Corpus.EmbedConcurrency = 2
	}

	if cfg.Embedding.Backend == "" {
		cfg.Embedding.Backend = EmbeddingMock
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.CacheTTL == 0 {
		cfg.Embedding.CacheTTL = time.Hour
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.SimilarityThreshold == 0 {
		cfg.Retrieval.SimilarityThreshold = 0.3
	}
	if cfg.Retrieval.Timeout == 0 {
		cfg.Retrieval.Timeout = 5 * time.Second
	}

	if cfg.Extraction.Backend == "" {
		cfg.Extraction.Backend = ExtractionRules
	}
	if cfg.Extraction.Labels == nil {
		cfg.Extraction.Labels = append([]string(nil), DefaultEntityLabels...)
	}
	if cfg.Extraction.Threshold == 0 {
		cfg.Extraction.Threshold = 0.5
	}
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = 5 * time.Second
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderOpenAI
	}
	if cfg.LLM.Model == "" {
		if cfg.LLM.Provider == ProviderGemini {
			cfg.LLM.Model = "gemini-2.0-flash"
		} else {
			cfg.LLM.Model = "gpt-4o-mini"
		}
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.3
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1000
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}
	if cfg.LLM.RetryInitialDelay == 0 {
		cfg.LLM.RetryInitialDelay = 500 * time.Millisecond
	}
	if cfg.LLM.RateLimit == 0 {
		cfg.LLM.RateLimit = 5
	}
	if cfg.LLM.Burst == 0 {
		cfg.LLM.Burst = 5
	}
	if cfg.LLM.Breaker.MaxRequests == 0 {
		cfg.LLM.Breaker.MaxRequests = 1
	}
	if cfg.LLM.Breaker.Interval == 0 {
		cfg.LLM.Breaker.Interval = time.Minute
	}
	if cfg.LLM.Breaker.Timeout == 0 {
		cfg.LLM.Breaker.Timeout = 30 * time.Second
	}
	if cfg.LLM.Breaker.ReadyToTripRatio == 0 {
		cfg.LLM.Breaker.ReadyToTripRatio = 0.6
	}

	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kensho/data/db/history.db"
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 400 * time.Millisecond
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "kensho"
	}
}
