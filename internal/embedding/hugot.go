package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// HugotEmbedder runs a sentence-transformers model (e.g. all-MiniLM-L6-v2) with the pure Go hugot backend.
type HugotEmbedder struct {
	session    *hugot.Session
	pipeline   *pipelines.FeatureExtractionPipeline
	dimensions int
	mu         sync.Mutex
}

// NewHugotEmbedder loads the exported model directory at modelPath.
func NewHugotEmbedder(modelPath string, dimensions int) (*HugotEmbedder, error) {
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}
	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "kensho-embedder",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create embedding pipeline: %w", err)
	}
	return &HugotEmbedder{session: session, pipeline: pipeline, dimensions: dimensions}, nil
}

// Embed returns the embedding for text.
func (e *HugotEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// EmbedBatch runs the pipeline over texts in one pass.
func (e *HugotEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	result, err := e.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("hugot returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}
	for i, emb := range result.Embeddings {
		if len(emb) != e.dimensions {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(emb), e.dimensions)
		}
	}
	return result.Embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HugotEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the hugot session.
func (e *HugotEmbedder) Close() error {
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}
