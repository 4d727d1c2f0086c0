package claim

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kensho/internal/models"
	"github.com/hyperjump/kensho/internal/ner"
)

type fakeRecognizer struct {
	entities []ner.Entity
	err      error
	got      string
}

func (f *fakeRecognizer) Recognize(ctx context.Context, text string) ([]ner.Entity, error) {
	f.got = text
	return f.entities, f.err
}

func (f *fakeRecognizer) Close() error { return nil }

func TestExtractor_Extract(t *testing.T) {
	tests := []struct {
		name           string
		labels         []string
		entities       []ner.Entity
		wantEntities   map[string][]string
		wantConfidence float64
	}{
		{
			name:           "no entities",
			labels:         []string{"ORG"},
			wantEntities:   map[string][]string{},
			wantConfidence: 0.5,
		},
		{
			name:   "grouped and deduplicated in first-seen order",
			labels: []string{"ORG", "DATE", "GPE"},
			entities: []ner.Entity{
				{Text: "KNBS", Label: "ORG"},
				{Text: "2023", Label: "DATE"},
				{Text: "Kenya", Label: "B-LOC"},
				{Text: "KNBS", Label: "ORG"},
				{Text: "Treasury", Label: "ORG"},
			},
			wantEntities: map[string][]string{
				"ORG":  {"KNBS", "Treasury"},
				"DATE": {"2023"},
				"GPE":  {"Kenya"},
			},
			wantConfidence: 1.0,
		},
		{
			name:           "labels outside the whitelist are dropped",
			labels:         []string{"DATE"},
			entities:       []ner.Entity{{Text: "Ada", Label: "PERSON"}},
			wantEntities:   map[string][]string{},
			wantConfidence: 0.5,
		},
		{
			name:           "empty whitelist keeps everything",
			entities:       []ner.Entity{{Text: "Ada", Label: "PERSON"}, {Text: "  ", Label: "ORG"}},
			wantEntities:   map[string][]string{"PERSON": {"Ada"}},
			wantConfidence: 1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecognizer{entities: tt.entities}
			got, err := NewExtractor(rec, tt.labels, nil).Extract(context.Background(), "  The claim text.\n")
			require.NoError(t, err)
			assert.Equal(t, "The claim text.", got.Text)
			assert.Equal(t, "The claim text.", rec.got)
			assert.Equal(t, tt.wantEntities, got.Entities)
			assert.Equal(t, tt.wantConfidence, got.Confidence)
		})
	}
}

func TestExtractor_recognizerFailure(t *testing.T) {
	rec := &fakeRecognizer{err: context.DeadlineExceeded}
	_, err := NewExtractor(rec, nil, nil).Extract(context.Background(), "claim")
	var ee *models.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestExtractor_withRules(t *testing.T) {
	ex := NewExtractor(ner.NewRulesRecognizer(), []string{"DATE", "PERCENT"}, nil)
	got, err := ex.ExtractBatch(context.Background(), []string{
		"Inflation fell to 4.5% in 2024.",
		"Nothing measurable here.",
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, map[string][]string{"PERCENT": {"4.5%"}, "DATE": {"2024"}}, got[0].Entities)
	assert.Empty(t, got[1].Entities)
	assert.Equal(t, 0.5, got[1].Confidence)
}
