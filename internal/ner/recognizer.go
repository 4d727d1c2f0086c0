// Package ner provides named-entity recognizers used by claim extraction: a regex rule set, a local
// hugot token classification model and a GLiNER HTTP service.
package ner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kensho/internal/config"
)

// Entity is a typed span found in text.
type Entity struct {
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Score float64 `json:"score,omitempty"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

// Recognizer finds named entities in text.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
	Close() error
}

// Nop recognizes nothing. Every claim then gets an empty entity map.
type Nop struct{}

func (Nop) Recognize(ctx context.Context, text string) ([]Entity, error) { return nil, ctx.Err() }
func (Nop) Close() error                                                { return nil }

// labelAliases maps model-specific tags onto the OntoNotes-style labels used in claims.
var labelAliases = map[string]string{
	"PER":          "PERSON",
	"LOC":          "GPE",
	"LOCATION":     "GPE",
	"ORGANIZATION": "ORG",
	"ORGANISATION": "ORG",
	"MISC":         "MISC",
}

// NormalizeLabel strips BIO prefixes, upper-cases and applies common aliases.
func NormalizeLabel(label string) string {
	label = strings.ToUpper(strings.TrimSpace(label))
	label = strings.TrimPrefix(label, "B-")
	label = strings.TrimPrefix(label, "I-")
	if alias, ok := labelAliases[label]; ok {
		return alias
	}
	return label
}

// New creates the recognizer selected by cfg.Backend.
func New(cfg config.ExtractionConfig, logger *zap.Logger) (Recognizer, error) {
	switch cfg.Backend {
	case config.ExtractionRules, "":
		return NewRulesRecognizer(), nil
	case config.ExtractionHugot:
		r, err := NewHugotRecognizer(cfg.ModelPath, cfg.Threshold)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.ExtractionGliner:
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		c, err := NewGlinerClient(cfg.Endpoint, cfg.APIKey, cfg.Labels, cfg.Threshold, timeout, logger)
		if err != nil {
			return nil, err
		}
		// The service may come up after us; extraction failures fall back per request.
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := c.Health(ctx); err != nil && logger != nil {
			logger.Warn("NER service not reachable yet", zap.String("endpoint", cfg.Endpoint), zap.Error(err))
		}
		return c, nil
	case config.ExtractionNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown extraction backend %q", cfg.Backend)
	}
}
