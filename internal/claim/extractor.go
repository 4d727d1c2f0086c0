// Package claim turns raw input text into an ExtractedClaim.
package claim

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kensho/internal/models"
	"github.com/hyperjump/kensho/internal/ner"
	"github.com/hyperjump/kensho/pkg/utils"
)

const (
	confidenceWithEntities    = 1.0
	confidenceWithoutEntities = 0.5
)

// Extractor groups recognizer output into the entity map of a claim. The whole trimmed input is one claim.
type Extractor struct {
	recognizer ner.Recognizer
	labels     map[string]bool
	logger     *zap.Logger
}

// NewExtractor creates an extractor keeping only entities whose label is in labels. An empty list keeps all.
func NewExtractor(recognizer ner.Recognizer, labels []string, logger *zap.Logger) *Extractor {
	var allowed map[string]bool
	if len(labels) > 0 {
		allowed = make(map[string]bool, len(labels))
		for _, l := range labels {
			allowed[ner.NormalizeLabel(l)] = true
		}
	}
	return &Extractor{recognizer: recognizer, labels: allowed, logger: utils.OrNop(logger)}
}

// Extract recognizes entities in text. Empty input is not rejected here. Recognizer failures are
// returned as *models.ExtractionError.
func (e *Extractor) Extract(ctx context.Context, text string) (*models.ExtractedClaim, error) {
	trimmed := strings.TrimSpace(text)
	found, err := e.recognizer.Recognize(ctx, trimmed)
	if err != nil {
		return nil, &models.ExtractionError{Err: err}
	}

	entities := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	for _, ent := range found {
		label := ner.NormalizeLabel(ent.Label)
		surface := strings.TrimSpace(ent.Text)
		if surface == "" || (e.labels != nil && !e.labels[label]) {
			continue
		}
		if seen[label] == nil {
			seen[label] = make(map[string]bool)
		}
		if seen[label][surface] {
			continue
		}
		seen[label][surface] = true
		entities[label] = append(entities[label], surface)
	}

	confidence := confidenceWithoutEntities
	if len(entities) > 0 {
		confidence = confidenceWithEntities
	}
	e.logger.Debug("Claim extracted", zap.Int("entities", len(found)), zap.Int("labels", len(entities)))
	return &models.ExtractedClaim{
		Text:       trimmed,
		Entities:   entities,
		Confidence: confidence,
	}, nil
}

// ExtractBatch extracts each text in order, stopping at the first failure.
func (e *Extractor) ExtractBatch(ctx context.Context, texts []string) ([]*models.ExtractedClaim, error) {
	out := make([]*models.ExtractedClaim, 0, len(texts))
	for _, t := range texts {
		c, err := e.Extract(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
