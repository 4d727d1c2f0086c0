package corpus

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kensho/internal/models"
	"github.com/hyperjump/kensho/pkg/utils"
)

// Embedder is the embedding capability the corpus needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// EmbedOptions tunes EnsureEmbeddings.
type EmbedOptions struct {
	BatchSize   int
	Concurrency int
	// WriteBack rewrites the corpus file when new embeddings were computed.
	WriteBack bool
	Logger    *zap.Logger
}

// Missing returns the facts without a usable embedding of the given dimension.
func (c *Corpus) Missing(dimensions int) []*models.Fact {
	var out []*models.Fact
	for _, f := range c.Facts {
		if !f.HasEmbedding(dimensions) {
			out = append(out, f)
		}
	}
	return out
}

// EnsureEmbeddings computes embeddings for facts that lack one and returns how many were embedded.
// Batches run with bounded concurrency. A corpus that is already fully embedded makes no embedder
// calls and is not rewritten. An embedding failure leaves every fact untouched and returns a
// CorpusError; a failed write-back is only logged.
func (c *Corpus) EnsureEmbeddings(ctx context.Context, embedder Embedder, opts EmbedOptions) (int, error) {
	logger := utils.OrNop(opts.Logger)
	dims := embedder.Dimensions()
	missing := c.Missing(dims)
	if len(missing) == 0 {
		logger.Debug("All facts have cached embeddings", zap.Int("facts", len(c.Facts)))
		return 0, nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	logger.Info("Computing fact embeddings",
		zap.Int("missing", len(missing)),
		zap.Int("total", len(c.Facts)),
		zap.Int("batch_size", batchSize))

	computed := make([][]float32, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for start := 0; start < len(missing); start += batchSize {
		end := min(start+batchSize, len(missing))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, f := range missing[start:end] {
				texts = append(texts, f.Claim)
			}
			embs, err := embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed facts %d-%d: %w", start, end-1, err)
			}
			if len(embs) != len(texts) {
				return fmt.Errorf("embed facts %d-%d: got %d embeddings for %d texts", start, end-1, len(embs), len(texts))
			}
			for i, emb := range embs {
				if len(emb) != dims {
					return fmt.Errorf("embed fact %s: dimension %d, expected %d", missing[start+i].ID, len(emb), dims)
				}
				computed[start+i] = emb
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, &models.CorpusError{Path: c.Path, Err: err}
	}

	for i, f := range missing {
		f.Embedding = computed[i]
	}
	c.Embedded += len(missing)

	if opts.WriteBack && c.Path != "" {
		if err := c.Save(); err != nil {
			logger.Warn("Failed to cache embeddings in corpus file", zap.String("path", c.Path), zap.Error(err))
		} else {
			logger.Info("Cached embeddings in corpus file", zap.String("path", c.Path), zap.Int("embedded", len(missing)))
		}
	}
	return len(missing), nil
}
