// Package config provides configuration loading and structs for the kensho service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Extraction ExtractionConfig `yaml:"extraction"`
	LLM        LLMConfig        `yaml:"llm"`
	Storage    StorageConfig    `yaml:"storage"`
	Watch      WatchConfig      `yaml:"watch"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	MaxClaimLength int           `yaml:"max_claim_length"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// CorpusConfig holds the fact corpus location and validation settings.
type CorpusConfig struct {
	Path             string   `yaml:"path"`
	Categories       []string `yaml:"categories"`
	CacheEmbeddings  *bool    `yaml:"cache_embeddings"`
	EmbedBatchSize   int      `yaml:"embed_batch_size"`
	EmbedConcurrency int      `yaml:"embed_concurrency"`
}

// CacheEmbeddingsOrDefault returns whether computed embeddings are written back; defaults to true when unset.
func (c *CorpusConfig) CacheEmbeddingsOrDefault() bool {
	if c.CacheEmbeddings != nil {
		return *c.CacheEmbeddings
	}
	return true
}

// EmbeddingConfig selects and tunes the embedding backend (mock, onnx, hugot, openai).
type EmbeddingConfig struct {
	Backend    string        `yaml:"backend"`
	ModelPath  string        `yaml:"model_path"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	MaxTokens  int           `yaml:"max_tokens"`
	CacheSize  int           `yaml:"cache_size"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// RetrievalConfig holds evidence retrieval settings.
type RetrievalConfig struct {
	TopK                int           `yaml:"top_k"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	Timeout             time.Duration `yaml:"timeout"`
}

// ExtractionConfig selects the named-entity backend (rules, hugot, gliner, none).
type ExtractionConfig struct {
	Backend   string        `yaml:"backend"`
	ModelPath string        `yaml:"model_path"`
	Endpoint  string        `yaml:"endpoint"`
	APIKey    string        `yaml:"api_key"`
	Labels    []string      `yaml:"labels"`
	Threshold float64       `yaml:"threshold"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LLMConfig holds generative model settings.
type LLMConfig struct {
	Provider          string        `yaml:"provider"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Temperature       float32       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`
	RateLimit         float64       `yaml:"rate_limit"`
	Burst             int           `yaml:"burst"`
	Breaker           BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker around model calls.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	ReadyToTripRatio float64       `yaml:"ready_to_trip_ratio"`
}

// StorageConfig holds the verification history database path.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	DisableHistory bool   `yaml:"disable_history"`
}

// WatchConfig controls corpus hot-reload.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns a config with every default applied and no file behind it.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads and parses the config file at path, applies defaults and environment overrides,
// and expands paths. Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Corpus.Path = expandPath(cfg.Corpus.Path, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Extraction.ModelPath != "" {
		cfg.Extraction.ModelPath = expandPath(cfg.Extraction.ModelPath, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides provider selection, credentials and retrieval knobs from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("MODEL_NAME"); v != "" {
		cfg.LLM.Model = v
	}
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case ProviderGemini:
			cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if v := os.Getenv("KENSHO_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("KENSHO_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.TopK = n
		}
	}
	if v := os.Getenv("KENSHO_CORPUS_PATH"); v != "" {
		cfg.Corpus.Path = v
	}
}

// Validate checks value ranges and backend names.
func (c *Config) Validate() error {
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be within [0,1], got %v", c.Retrieval.SimilarityThreshold)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("invalid llm.provider %q (supported: openai, gemini)", c.LLM.Provider)
	}
	switch c.Embedding.Backend {
	case EmbeddingMock, EmbeddingONNX, EmbeddingHugot, EmbeddingOpenAI:
	default:
		return fmt.Errorf("invalid embedding.backend %q (supported: mock, onnx, hugot, openai)", c.Embedding.Backend)
	}
	switch c.Extraction.Backend {
	case ExtractionRules, ExtractionHugot, ExtractionGliner, ExtractionNone:
	default:
		return fmt.Errorf("invalid extraction.backend %q (supported: rules, hugot, gliner, none)", c.Extraction.Backend)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
