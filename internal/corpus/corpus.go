// Package corpus loads, validates and embeds the reference fact corpus.
//
// The corpus file is a JSON object with a "facts" array plus optional "version" and "last_updated"
// keys. Any other top-level keys are kept as raw JSON and written back unchanged when computed
// embeddings are cached into the file.
package corpus

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hyperjump/kensho/internal/models"
)

const (
	keyFacts       = "facts"
	keyVersion     = "version"
	keyLastUpdated = "last_updated"
)

// Corpus is one parsed corpus file. It is treated as read-only once published by a Store.
type Corpus struct {
	Path        string
	Version     string
	LastUpdated string
	Facts       []*models.Fact
	LoadedAt    time.Time
	// Embedded is the number of facts whose embedding was computed while loading.
	Embedded int

	byID     map[string]*models.Fact
	raw      map[string]json.RawMessage
	checksum [sha256.Size]byte
}

// ReadFile parses the corpus file at path without validating its facts.
func ReadFile(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.CorpusError{Path: path, Err: err}
	}
	c, err := parse(data)
	if err != nil {
		return nil, &models.CorpusError{Path: path, Err: err}
	}
	c.Path = path
	return c, nil
}

func parse(data []byte) (*Corpus, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed corpus JSON: %w", err)
	}
	factsRaw, ok := raw[keyFacts]
	if !ok {
		return nil, errors.New(`missing "facts" array`)
	}
	var facts []*models.Fact
	if err := json.Unmarshal(factsRaw, &facts); err != nil {
		return nil, fmt.Errorf("malformed facts: %w", err)
	}

	c := &Corpus{
		Facts:    facts,
		LoadedAt: time.Now(),
		raw:      raw,
		checksum: sha256.Sum256(data),
	}
	// Non-string version values are left in raw and simply not surfaced.
	_ = json.Unmarshal(raw[keyVersion], &c.Version)
	_ = json.Unmarshal(raw[keyLastUpdated], &c.LastUpdated)
	c.reindex()
	return c, nil
}

func (c *Corpus) reindex() {
	c.byID = make(map[string]*models.Fact, len(c.Facts))
	for _, f := range c.Facts {
		if f == nil {
			continue
		}
		if _, dup := c.byID[f.ID]; !dup {
			c.byID[f.ID] = f
		}
	}
}

// Len returns the number of facts.
func (c *Corpus) Len() int { return len(c.Facts) }

// ByID returns the fact with the given id.
func (c *Corpus) ByID(id string) (*models.Fact, bool) {
	f, ok := c.byID[id]
	return f, ok
}

// ByCategory returns the facts in category, in corpus order.
func (c *Corpus) ByCategory(category string) []*models.Fact {
	var out []*models.Fact
	for _, f := range c.Facts {
		if f.Category == category {
			out = append(out, f)
		}
	}
	return out
}

// CategoryCounts returns the number of facts per category.
func (c *Corpus) CategoryCounts() map[string]int {
	counts := make(map[string]int)
	for _, f := range c.Facts {
		counts[f.Category]++
	}
	return counts
}

// Categories returns the categories present in the corpus, sorted.
func (c *Corpus) Categories() []string {
	counts := c.CategoryCounts()
	out := make([]string, 0, len(counts))
	for cat := range counts {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// Stats summarizes the corpus.
func (c *Corpus) Stats(dimensions int) models.CorpusStats {
	return models.CorpusStats{
		Path:           c.Path,
		Version:        c.Version,
		LastUpdated:    c.LastUpdated,
		TotalFacts:     len(c.Facts),
		Dimensions:     dimensions,
		Categories:     c.CategoryCounts(),
		LoadedAt:       c.LoadedAt,
		EmbeddedOnLoad: c.Embedded,
	}
}

// Save writes the corpus back to its path, keeping unknown top-level keys. The file is replaced
// atomically through a temporary file in the same directory.
func (c *Corpus) Save() error {
	data, err := c.encode()
	if err != nil {
		return err
	}
	dir := filepath.Dir(c.Path)
	tmp, err := os.CreateTemp(dir, ".fact_base-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace corpus file: %w", err)
	}
	c.checksum = sha256.Sum256(data)
	return nil
}

func (c *Corpus) encode() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(c.raw)+3)
	for k, v := range c.raw {
		out[k] = v
	}
	facts, err := json.Marshal(c.Facts)
	if err != nil {
		return nil, fmt.Errorf("encode facts: %w", err)
	}
	out[keyFacts] = facts
	if c.Version != "" {
		out[keyVersion], _ = json.Marshal(c.Version)
	}
	if c.LastUpdated != "" {
		out[keyLastUpdated], _ = json.Marshal(c.LastUpdated)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encode corpus: %w", err)
	}
	return buf.Bytes(), nil
}
