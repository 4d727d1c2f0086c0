package corpus

import (
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hyperjump/kensho/internal/models"
	"github.com/hyperjump/kensho/pkg/utils"
)

// Store owns the corpus file and publishes the current validated, embedded corpus.
type Store struct {
	path       string
	categories []string
	embedder   Embedder
	opts       EmbedOptions
	logger     *zap.Logger

	mu      sync.Mutex // serializes loads
	current atomic.Pointer[Corpus]
}

// NewStore creates a store for the corpus at path. Nothing is read until Load.
func NewStore(path string, categories []string, embedder Embedder, opts EmbedOptions) *Store {
	opts.Logger = utils.OrNop(opts.Logger)
	return &Store{
		path:       path,
		categories: categories,
		embedder:   embedder,
		opts:       opts,
		logger:     opts.Logger,
	}
}

// Path returns the corpus file path.
func (s *Store) Path() string { return s.path }

// Dimensions returns the embedding dimension facts are held to.
func (s *Store) Dimensions() int { return s.embedder.Dimensions() }

// Load reads, validates and embeds the corpus file and publishes it. changed is false when the file
// content matches the published corpus, in which case nothing is re-read. On any error the
// previously published corpus stays current.
func (s *Store) Load(ctx context.Context) (c *Corpus, changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, false, &models.CorpusError{Path: s.path, Err: err}
	}
	if cur := s.current.Load(); cur != nil && sha256.Sum256(data) == cur.checksum {
		return cur, false, nil
	}

	c, err = parse(data)
	if err != nil {
		return nil, false, &models.CorpusError{Path: s.path, Err: err}
	}
	c.Path = s.path
	if len(c.Facts) == 0 {
		return nil, false, &models.CorpusError{Path: s.path, Err: errors.New("no facts")}
	}
	if issues := Validate(c.Facts, s.categories); len(issues) > 0 {
		return nil, false, validationError(s.path, issues)
	}
	if _, err := c.EnsureEmbeddings(ctx, s.embedder, s.opts); err != nil {
		return nil, false, err
	}

	s.current.Store(c)
	s.logger.Info("Fact corpus loaded",
		zap.String("path", s.path),
		zap.Int("facts", len(c.Facts)),
		zap.Int("embedded", c.Embedded),
		zap.String("version", c.Version))
	return c, true, nil
}

// Current returns the published corpus, or nil before the first successful Load.
func (s *Store) Current() *Corpus {
	return s.current.Load()
}

// Facts returns the facts of the published corpus.
func (s *Store) Facts() []*models.Fact {
	if c := s.current.Load(); c != nil {
		return c.Facts
	}
	return nil
}

// Size returns the number of facts in the published corpus.
func (s *Store) Size() int {
	if c := s.current.Load(); c != nil {
		return c.Len()
	}
	return 0
}

// ByID looks up a fact in the published corpus.
func (s *Store) ByID(id string) (*models.Fact, bool) {
	if c := s.current.Load(); c != nil {
		return c.ByID(id)
	}
	return nil, false
}

// ByCategory returns the published facts in category.
func (s *Store) ByCategory(category string) []*models.Fact {
	if c := s.current.Load(); c != nil {
		return c.ByCategory(category)
	}
	return nil
}

// CategoryCounts returns fact counts per category of the published corpus.
func (s *Store) CategoryCounts() map[string]int {
	if c := s.current.Load(); c != nil {
		return c.CategoryCounts()
	}
	return map[string]int{}
}

// Stats summarizes the published corpus.
func (s *Store) Stats() (models.CorpusStats, error) {
	c := s.current.Load()
	if c == nil {
		return models.CorpusStats{}, models.ErrCorpusNotReady
	}
	return c.Stats(s.embedder.Dimensions()), nil
}
