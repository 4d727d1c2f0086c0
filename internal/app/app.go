// Package app wires the kensho components from configuration and owns the corpus reload sequence
// shared by the server, the watcher and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kensho/internal/claim"
	"github.com/hyperjump/kensho/internal/compare"
	"github.com/hyperjump/kensho/internal/config"
	"github.com/hyperjump/kensho/internal/corpus"
	"github.com/hyperjump/kensho/internal/embedding"
	"github.com/hyperjump/kensho/internal/keyword"
	"github.com/hyperjump/kensho/internal/llm"
	"github.com/hyperjump/kensho/internal/metrics"
	"github.com/hyperjump/kensho/internal/models"
	"github.com/hyperjump/kensho/internal/ner"
	"github.com/hyperjump/kensho/internal/pipeline"
	"github.com/hyperjump/kensho/internal/retrieval"
	"github.com/hyperjump/kensho/internal/search"
	"github.com/hyperjump/kensho/internal/storage"
	"github.com/hyperjump/kensho/pkg/utils"
)

// Options selects which optional components Initialize builds.
type Options struct {
	// Pipeline builds the generative model client and the orchestrator.
	Pipeline bool
	// History opens the verification history database unless disabled in config.
	History bool
	// Metrics registers the Prometheus collector when enabled in config.
	Metrics bool
	// Generator replaces the configured model client.
	Generator llm.Generator
}

// Components holds initialized services.
type Components struct {
	Config     *config.Config
	Logger     *zap.Logger
	Embedder   embedding.Embedder
	Recognizer ner.Recognizer
	Store      *corpus.Store
	Index      *retrieval.Index
	Keywords   *keyword.FactIndex
	Search     *search.Engine
	Pipeline   *pipeline.Orchestrator
	Generator  llm.Generator
	History    storage.Storage
	Metrics    *metrics.Collector

	// reloadMu keeps the published corpus and both indexes on the same version.
	reloadMu sync.Mutex
}

// Initialize builds the components selected by opts. The corpus is not loaded; call Reload.
func Initialize(cfg *config.Config, logger *zap.Logger, opts Options) (*Components, error) {
	logger = utils.OrNop(logger)
	c := &Components{Config: cfg, Logger: logger}

	embedder, err := embedding.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder

	c.Store = corpus.NewStore(cfg.Corpus.Path, cfg.Corpus.Categories, embedder, corpus.EmbedOptions{
		BatchSize:   cfg.Corpus.EmbedBatchSize,
		Concurrency: cfg.Corpus.EmbedConcurrency,
		WriteBack:   cfg.Corpus.CacheEmbeddingsOrDefault(),
		Logger:      logger,
	})
	c.Index = retrieval.New(embedder,
		retrieval.WithDefaults(cfg.Retrieval.TopK, cfg.Retrieval.SimilarityThreshold),
		retrieval.WithLogger(logger))
	if c.Keywords, err = keyword.NewFactIndex(); err != nil {
		c.Close()
		return nil, err
	}
	c.Search = search.NewEngine(c.Keywords, c.Index)

	if opts.Metrics && cfg.Metrics.Enabled {
		var cacheHits func() float64
		if cached, ok := embedder.(*embedding.CachedEmbedder); ok {
			cacheHits = func() float64 {
				hits, _ := cached.Stats()
				return float64(hits)
			}
		}
		c.Metrics = metrics.NewCollector(cfg.Metrics.Namespace, cacheHits)
	}

	if opts.History && !cfg.Storage.DisableHistory {
		history, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize history storage: %w", err)
		}
		c.History = history
	}

	if opts.Pipeline {
		if err := c.buildPipeline(opts.Generator); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Components) buildPipeline(generator llm.Generator) error {
	cfg := c.Config
	recognizer, err := ner.New(cfg.Extraction, c.Logger)
	if err != nil {
		c.Logger.Warn("Entity recognizer unavailable, using rules",
			zap.String("backend", cfg.Extraction.Backend), zap.Error(err))
		recognizer = ner.NewRulesRecognizer()
	}
	c.Recognizer = recognizer

	if generator == nil {
		if generator, err = llm.New(cfg.LLM, c.Logger); err != nil {
			return fmt.Errorf("failed to initialize %s model client: %w", cfg.LLM.Provider, err)
		}
	}
	c.Generator = generator

	popts := pipeline.Options{
		TopK:              cfg.Retrieval.TopK,
		Threshold:         cfg.Retrieval.SimilarityThreshold,
		ExtractionTimeout: cfg.Extraction.Timeout,
		RetrievalTimeout:  cfg.Retrieval.Timeout,
		ComparisonTimeout: cfg.LLM.Timeout,
		Components: map[string]string{
			"ner":       cfg.Extraction.Backend,
			"embedding": fmt.Sprintf("%s (%d dims)", cfg.Embedding.Backend, cfg.Embedding.Dimensions),
			"retrieval": "cosine in-memory",
			"llm":       cfg.LLM.Provider + "/" + cfg.LLM.Model,
		},
		Logger: c.Logger,
	}
	if c.Metrics != nil {
		popts.Recorder = c.Metrics
	}
	c.Pipeline = pipeline.New(
		claim.NewExtractor(recognizer, cfg.Extraction.Labels, c.Logger),
		c.Index,
		compare.NewComparator(generator, c.Logger),
		popts,
	)
	return nil
}

// Reload loads the corpus file (embedding any facts that need it) and, when it changed, rebuilds
// the evidence and keyword indexes. A failure leaves the published corpus and indexes in place.
// Concurrent calls run one at a time.
func (c *Components) Reload(ctx context.Context) (bool, error) {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	corp, changed, err := c.Store.Load(ctx)
	if err == nil && changed {
		if err = c.Index.Build(corp.Facts); err == nil {
			if kerr := c.Keywords.Rebuild(corp.Facts); kerr != nil {
				c.Logger.Warn("Keyword index rebuild failed", zap.Error(kerr))
			}
		}
	}
	if c.Metrics != nil && (changed || err != nil) {
		c.Metrics.RecordReload(c.Index.Size(), err)
	}
	if err != nil {
		return false, err
	}
	return changed, nil
}

// Verify validates the claim, runs the pipeline and records the result in the history. A history
// write failure is logged and does not fail the request.
func (c *Components) Verify(ctx context.Context, text string) (*models.RagResponse, string, error) {
	if c.Pipeline == nil {
		return nil, "", errors.New("pipeline not initialized")
	}
	req := models.VerifyRequest{Claim: text}
	if err := req.Validate(c.Config.Server.MaxClaimLength); err != nil {
		return nil, "", err
	}
	if !c.Index.Ready() {
		return nil, "", models.ErrCorpusNotReady
	}
	resp, err := c.Pipeline.Verify(ctx, text)
	if err != nil {
		return nil, "", err
	}

	var id string
	if c.History != nil {
		rec := &models.VerificationRecord{
			Claim:      strings.TrimSpace(text),
			Verdict:    resp.Verdict,
			Confidence: resp.Confidence,
			Response:   resp,
		}
		// The caller's context may already be winding down; the record is small.
		if err := c.History.SaveVerification(context.WithoutCancel(ctx), rec); err != nil {
			c.Logger.Warn("Failed to record verification", zap.Error(err))
		} else {
			id = rec.ID
		}
	}
	return resp, id, nil
}

// Close releases every initialized component.
func (c *Components) Close() {
	if c.History != nil {
		_ = c.History.Close()
	}
	if c.Keywords != nil {
		_ = c.Keywords.Close()
	}
	if c.Recognizer != nil {
		_ = c.Recognizer.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}
