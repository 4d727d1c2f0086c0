package embedding

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	*MockEmbedder
	calls     atomic.Int32
	batchSize atomic.Int32
	fail      bool
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, errors.New("boom")
	}
	return c.MockEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchSize.Store(int32(len(texts)))
	return embedEach(ctx, c, texts)
}

func TestCachedEmbedder_Embed(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	c := NewCachedEmbedder(inner, time.Minute, 0)
	ctx := context.Background()

	a, err := c.Embed(ctx, "rice yield")
	require.NoError(t, err)
	b, err := c.Embed(ctx, "rice yield")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, int32(1), inner.calls.Load())
	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, 8, c.Dimensions())
}

func TestCachedEmbedder_errorNotCached(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(8), fail: true}
	c := NewCachedEmbedder(inner, time.Minute, 0)

	_, err := c.Embed(context.Background(), "x")
	require.Error(t, err)
	_, err = c.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedEmbedder_EmbedBatchOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	c := NewCachedEmbedder(inner, time.Minute, 0)
	ctx := context.Background()

	first, err := c.Embed(ctx, "a")
	require.NoError(t, err)

	out, err := c.EmbedBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, first, out[0])
	assert.Equal(t, int32(2), inner.batchSize.Load())
}

func TestCachedEmbedder_maxItems(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	c := NewCachedEmbedder(inner, time.Minute, 2)
	ctx := context.Background()

	for _, s := range []string{"a", "b", "c"} {
		_, err := c.Embed(ctx, s)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.cache.ItemCount())

	_, err := c.Embed(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int32(4), inner.calls.Load())
}
