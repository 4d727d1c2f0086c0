package ner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labelsOf(entities []Entity) map[string][]string {
	out := map[string][]string{}
	for _, e := range entities {
		out[e.Label] = append(out[e.Label], e.Text)
	}
	return out
}

func TestRulesRecognizer(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string][]string
	}{
		{
			name: "mixed",
			text: "Maize output rose 12.5% to 44 million bags in March 2023, earning KES 3.2 billion.",
			want: map[string][]string{
				"PERCENT":  {"12.5%"},
				"CARDINAL": {"44 million"},
				"DATE":     {"March 2023"},
				"MONEY":    {"KES 3.2 billion"},
			},
		},
		{
			name: "iso date and dollars",
			text: "On 2024-01-15 the bank lent $500 to 1,200 farmers.",
			want: map[string][]string{
				"DATE":     {"2024-01-15"},
				"MONEY":    {"$500"},
				"CARDINAL": {"1,200"},
			},
		},
		{
			name: "spelled out units",
			text: "Fees fell by 3 percent, saving 200 shillings per pupil since 2019.",
			want: map[string][]string{
				"PERCENT": {"3 percent"},
				"MONEY":   {"200 shillings"},
				"DATE":    {"2019"},
			},
		},
		{
			name: "words that merely contain codes or months",
			text: "The Mayor makes sure the Market opens.",
			want: map[string][]string{},
		},
	}
	r := NewRulesRecognizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Recognize(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, labelsOf(got))
			for _, e := range got {
				assert.Equal(t, e.Text, tt.text[e.Start:e.End])
			}
		})
	}
}

func TestRulesRecognizer_orderedByPosition(t *testing.T) {
	got, err := NewRulesRecognizer().Recognize(context.Background(), "In 2020 there were 30 clinics and 5% growth.")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].Start, got[i].Start)
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := map[string]string{
		"B-PER":  "PERSON",
		"I-LOC":  "GPE",
		"org":    "ORG",
		"B-ORG":  "ORG",
		"DATE":   "DATE",
		" misc ": "MISC",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeLabel(in), in)
	}
}
