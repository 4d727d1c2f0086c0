// Package keyword provides an in-memory Bleve index for keyword lookup over fact text.
package keyword

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/kensho/internal/models"
)

// SearchOptions narrows a keyword search. Zero values mean defaults.
type SearchOptions struct {
	Limit    int
	Category string
	// Fuzzy matches terms within Fuzziness edits (default 1) for typo tolerance.
	Fuzzy     bool
	Fuzziness int
}

// Hit is a single keyword search result.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// FactIndex is a keyword index over fact claims. Rebuild swaps in a complete new index.
type FactIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewFactIndex creates an empty index.
func NewFactIndex() (*FactIndex, error) {
	idx, err := newMemIndex()
	if err != nil {
		return nil, err
	}
	return &FactIndex{index: idx}, nil
}

func newMemIndex() (bleve.Index, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer: lowercase and tokenize without stemming, so figures and names match as written.
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("claim", textField)
	docMapping.AddFieldMappingsAt("category", bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt("source", bleve.NewKeywordFieldMapping())
	im.DefaultMapping = docMapping

	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return idx, nil
}

// Rebuild indexes facts into a fresh index and replaces the current one.
func (x *FactIndex) Rebuild(facts []*models.Fact) error {
	idx, err := newMemIndex()
	if err != nil {
		return err
	}
	batch := idx.NewBatch()
	for _, f := range facts {
		doc := map[string]interface{}{
			"claim":    f.Claim,
			"category": strings.ToLower(f.Category),
			"source":   f.Source,
		}
		if err := batch.Index(f.ID, doc); err != nil {
			_ = idx.Close()
			return fmt.Errorf("index fact %s: %w", f.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return fmt.Errorf("index facts: %w", err)
	}

	x.mu.Lock()
	old := x.index
	x.index = idx
	x.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Search matches query against fact claims. Facts containing more of the query terms rank higher.
func (x *FactIndex) Search(ctx context.Context, query string, opts SearchOptions) ([]Hit, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return []Hit{}, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	fuzziness := opts.Fuzziness
	if fuzziness <= 0 {
		fuzziness = 1
	}

	termQueries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		if opts.Fuzzy {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(fuzziness)
			fq.SetField("claim")
			termQueries = append(termQueries, fq)
			continue
		}
		mq := bleve.NewMatchQuery(term)
		mq.SetField("claim")
		termQueries = append(termQueries, mq)
	}
	var q blevequery.Query = bleve.NewDisjunctionQuery(termQueries...)
	if opts.Category != "" {
		cq := bleve.NewTermQuery(strings.ToLower(opts.Category))
		cq.SetField("category")
		q = bleve.NewConjunctionQuery(q, cq)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = max(limit*2, 50)

	x.mu.RLock()
	defer x.mu.RUnlock()
	results, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	coverage := x.termCoverage(ctx, terms, opts, req.Size)
	hits := make([]Hit, 0, len(results.Hits))
	for _, h := range results.Hits {
		score := h.Score
		if len(terms) > 1 {
			// Squared coverage so facts matching every term outrank partial matches.
			c := float64(max(coverage[h.ID], 1)) / float64(len(terms))
			score *= c * c
		}
		hits = append(hits, Hit{ID: h.ID, Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// termCoverage counts how many distinct query terms each fact matches. Callers hold x.mu.
func (x *FactIndex) termCoverage(ctx context.Context, terms []string, opts SearchOptions, size int) map[string]int {
	coverage := make(map[string]int)
	if len(terms) < 2 {
		return coverage
	}
	for _, term := range terms {
		var q blevequery.Query
		if opts.Fuzzy {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(max(opts.Fuzziness, 1))
			fq.SetField("claim")
			q = fq
		} else {
			mq := bleve.NewMatchQuery(term)
			mq.SetField("claim")
			q = mq
		}
		req := bleve.NewSearchRequest(q)
		req.Size = size
		results, err := x.index.SearchInContext(ctx, req)
		if err != nil {
			continue
		}
		for _, h := range results.Hits {
			coverage[h.ID]++
		}
	}
	return coverage
}

// DocCount returns the number of indexed facts.
func (x *FactIndex) DocCount() (uint64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.index.DocCount()
}

// Close closes the index.
func (x *FactIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.index.Close()
}

// tokenize splits query into distinct lowercase terms.
func tokenize(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, w := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	}) {
		if !seen[w] {
			seen[w] = true
			terms = append(terms, w)
		}
	}
	return terms
}
