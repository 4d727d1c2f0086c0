// Package models defines the fact, claim, evidence and verification types shared across the pipeline.
package models

import "time"

// DateLayout is the calendar date format used by fact publication dates.
const DateLayout = "2006-01-02"

// Fact is one reference statement from the corpus. Key names follow the corpus file format.
type Fact struct {
	ID              string                 `json:"id"`
	Claim           string                 `json:"claim"`
	Category        string                 `json:"category"`
	Source          string                 `json:"source"`
	PublicationDate string                 `json:"publication_date"`
	Embedding       []float32              `json:"embedding,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// PublishedAt parses PublicationDate.
func (f *Fact) PublishedAt() (time.Time, error) {
	return time.Parse(DateLayout, f.PublicationDate)
}

// HasEmbedding reports whether the fact carries a usable cached embedding of the given dimension.
// Empty, wrongly sized and all-zero placeholder vectors are treated as missing.
func (f *Fact) HasEmbedding(dimensions int) bool {
	if len(f.Embedding) == 0 || len(f.Embedding) != dimensions {
		return false
	}
	for _, v := range f.Embedding {
		if v != 0 {
			return true
		}
	}
	return false
}

// CorpusStats summarizes a loaded corpus.
type CorpusStats struct {
	Path           string         `json:"path"`
	Version        string         `json:"version,omitempty"`
	LastUpdated    string         `json:"last_updated,omitempty"`
	TotalFacts     int            `json:"total_facts"`
	Dimensions     int            `json:"dimensions"`
	Categories     map[string]int `json:"categories"`
	LoadedAt       time.Time      `json:"loaded_at"`
	EmbeddedOnLoad int            `json:"embedded_on_load"`
}
