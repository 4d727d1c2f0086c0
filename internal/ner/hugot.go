package ner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// HugotRecognizer runs a token classification model (e.g. KnightsAnalytics/distilbert-NER) locally.
type HugotRecognizer struct {
	session   *hugot.Session
	pipeline  *pipelines.TokenClassificationPipeline
	threshold float64
	mu        sync.Mutex
}

// NewHugotRecognizer loads the model directory at modelPath. Entities scoring below threshold are dropped.
func NewHugotRecognizer(modelPath string, threshold float64) (*HugotRecognizer, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("extraction.model_path is required for the hugot backend")
	}
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}
	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "kensho-ner",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}
	return &HugotRecognizer{session: session, pipeline: pipeline, threshold: threshold}, nil
}

// Recognize runs the model over text. The pipeline is not cancellable mid-run; ctx is checked before it starts.
func (r *HugotRecognizer) Recognize(ctx context.Context, text string) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	result, err := r.pipeline.RunPipeline([]string{text})
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to run NER: %w", err)
	}
	if len(result.Entities) == 0 {
		return nil, nil
	}

	var entities []Entity
	for _, e := range result.Entities[0] {
		score := float64(e.Score)
		if score < r.threshold {
			continue
		}
		word := strings.TrimSpace(e.Word)
		if word == "" {
			continue
		}
		entities = append(entities, Entity{
			Text:  word,
			Label: NormalizeLabel(e.Entity),
			Score: score,
			Start: int(e.Start),
			End:   int(e.End),
		})
	}
	return entities, nil
}

// Close destroys the hugot session.
func (r *HugotRecognizer) Close() error {
	if r.session == nil {
		return nil
	}
	err := r.session.Destroy()
	r.session = nil
	return err
}
