package embedding

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedEmbedder memoizes embeddings by text with a TTL. Returned slices are shared and must not be mutated.
type CachedEmbedder struct {
	inner    Embedder
	cache    *gocache.Cache
	maxItems int
	hits     atomic.Uint64
	misses   atomic.Uint64
}

// NewCachedEmbedder wraps inner. maxItems bounds the number of cached texts (0 = unbounded).
func NewCachedEmbedder(inner Embedder, ttl time.Duration, maxItems int) *CachedEmbedder {
	return &CachedEmbedder{
		inner:    inner,
		cache:    gocache.New(ttl, 2*ttl),
		maxItems: maxItems,
	}
}

// Embed returns the cached embedding for text, computing it on a miss.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		c.hits.Add(1)
		return v.([]float32), nil
	}
	c.misses.Add(1)
	emb, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(text, emb)
	return emb, nil
}

// EmbedBatch serves hits from the cache and sends only the misses to the wrapped embedder in one batch.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			c.hits.Add(1)
			out[i] = v.([]float32)
			continue
		}
		c.misses.Add(1)
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	embs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = embs[j]
		c.store(missTexts[j], embs[j])
	}
	return out, nil
}

func (c *CachedEmbedder) store(text string, emb []float32) {
	if c.maxItems > 0 && c.cache.ItemCount() >= c.maxItems {
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.maxItems {
			return
		}
	}
	c.cache.SetDefault(text, emb)
}

// Stats returns cache hit and miss counts.
func (c *CachedEmbedder) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Dimensions returns the wrapped embedder's dimension.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Close flushes the cache and closes the wrapped embedder.
func (c *CachedEmbedder) Close() error {
	c.cache.Flush()
	return c.inner.Close()
}
