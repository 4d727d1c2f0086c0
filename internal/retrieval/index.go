// Package retrieval finds the corpus facts most similar to a claim.
//
// The Index publishes immutable snapshots through an atomic pointer: Build prepares a complete vector
// index off to the side and swaps it in, so concurrent Retrieve calls always see either the old or the
// new corpus in full.
package retrieval

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kensho/internal/embedding"
	"github.com/hyperjump/kensho/internal/models"
	"github.com/hyperjump/kensho/internal/vector"
	"github.com/hyperjump/kensho/pkg/utils"
)

const (
	DefaultTopK      = 5
	DefaultThreshold = 0.3
)

// Index is the evidence index over the fact corpus.
type Index struct {
	embedder   embedding.Embedder
	dimensions int
	topK       int
	threshold  float64
	logger     *zap.Logger
	snap       atomic.Pointer[snapshot]
}

type snapshot struct {
	vectors    *vector.MemoryIndex
	facts      map[string]*models.Fact
	categories map[string]int
	builtAt    time.Time
}

// Stats describes the published snapshot and the default retrieval settings.
type Stats struct {
	TotalFacts int            `json:"totalFacts"`
	Dimensions int            `json:"dimensions"`
	TopK       int            `json:"topK"`
	Threshold  float64        `json:"similarityThreshold"`
	Categories map[string]int `json:"categories"`
	BuiltAt    time.Time      `json:"builtAt,omitempty"`
}

// Option configures an Index.
type Option func(*Index)

// WithDefaults sets the topK and threshold used by Search.
func WithDefaults(topK int, threshold float64) Option {
	return func(i *Index) {
		i.topK = topK
		i.threshold = threshold
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(i *Index) {
		i.logger = logger
	}
}

// New creates an empty index whose queries are embedded by embedder.
func New(embedder embedding.Embedder, opts ...Option) *Index {
	idx := &Index{
		embedder:   embedder,
		dimensions: embedder.Dimensions(),
		topK:       DefaultTopK,
		threshold:  DefaultThreshold,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

// Build indexes facts and publishes the result. On error the previous snapshot stays active.
func (i *Index) Build(facts []*models.Fact) error {
	vectors, err := vector.NewMemoryIndex(i.dimensions)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(facts))
	embs := make([][]float32, 0, len(facts))
	byID := make(map[string]*models.Fact, len(facts))
	categories := make(map[string]int)
	for _, f := range facts {
		if len(f.Embedding) != i.dimensions {
			return fmt.Errorf("fact %q: embedding dimension %d, index expects %d", f.ID, len(f.Embedding), i.dimensions)
		}
		if _, dup := byID[f.ID]; dup {
			return fmt.Errorf("duplicate fact id %q", f.ID)
		}
		byID[f.ID] = f
		categories[f.Category]++
		ids = append(ids, f.ID)
		embs = append(embs, f.Embedding)
	}
	if err := vectors.Add(context.Background(), ids, embs); err != nil {
		return err
	}

	i.snap.Store(&snapshot{
		vectors:    vectors,
		facts:      byID,
		categories: categories,
		builtAt:    time.Now(),
	})
	i.logger.Info("Evidence index built", zap.Int("facts", len(facts)), zap.Int("dimensions", i.dimensions))
	return nil
}

// Retrieve embeds claimText and returns up to topK facts with similarity >= threshold, most similar first.
// An empty result is not an error. Failures are returned as *models.RetrievalError.
func (i *Index) Retrieve(ctx context.Context, claimText string, topK int, threshold float64) ([]models.RetrievedEvidence, error) {
	if topK < 1 {
		return nil, &models.RetrievalError{Err: fmt.Errorf("topK must be at least 1, got %d", topK)}
	}
	if threshold < 0 || threshold > 1 {
		return nil, &models.RetrievalError{Err: fmt.Errorf("threshold must be within [0, 1], got %g", threshold)}
	}

	snap := i.snap.Load()
	if snap == nil || snap.vectors.Size() == 0 {
		return []models.RetrievedEvidence{}, nil
	}

	query, err := i.embedder.Embed(ctx, claimText)
	if err != nil {
		return nil, &models.RetrievalError{Err: fmt.Errorf("embed claim: %w", err)}
	}
	hits, err := snap.vectors.Search(ctx, query, topK)
	if err != nil {
		return nil, &models.RetrievalError{Err: err}
	}

	evidence := make([]models.RetrievedEvidence, 0, len(hits))
	for _, hit := range hits {
		sim := utils.Clamp01(hit.Score)
		if sim < threshold {
			continue
		}
		fact, ok := snap.facts[hit.ID]
		if !ok {
			continue
		}
		evidence = append(evidence, models.RetrievedEvidence{Fact: fact, Similarity: sim})
	}
	i.logger.Debug("Evidence retrieved",
		zap.Int("candidates", len(hits)),
		zap.Int("kept", len(evidence)),
		zap.Float64("threshold", threshold),
	)
	return evidence, nil
}

// Search is Retrieve with the index defaults.
func (i *Index) Search(ctx context.Context, claimText string) ([]models.RetrievedEvidence, error) {
	return i.Retrieve(ctx, claimText, i.topK, i.threshold)
}

// RetrieveByID returns the fact with id from the published snapshot.
func (i *Index) RetrieveByID(id string) (*models.Fact, bool) {
	snap := i.snap.Load()
	if snap == nil {
		return nil, false
	}
	f, ok := snap.facts[id]
	return f, ok
}

// Size returns the number of indexed facts.
func (i *Index) Size() int {
	snap := i.snap.Load()
	if snap == nil {
		return 0
	}
	return snap.vectors.Size()
}

// Ready reports whether a snapshot has been published.
func (i *Index) Ready() bool {
	return i.snap.Load() != nil
}

// Stats returns statistics for the published snapshot.
func (i *Index) Stats() Stats {
	st := Stats{
		Dimensions: i.dimensions,
		TopK:       i.topK,
		Threshold:  i.threshold,
		Categories: map[string]int{},
	}
	snap := i.snap.Load()
	if snap == nil {
		return st
	}
	st.TotalFacts = snap.vectors.Size()
	st.BuiltAt = snap.builtAt
	for k, v := range snap.categories {
		st.Categories[k] = v
	}
	return st
}

