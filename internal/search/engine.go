// Package search provides hybrid (keyword + semantic) lookup over the loaded facts.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hyperjump/kensho/internal/keyword"
	"github.com/hyperjump/kensho/internal/models"
	"github.com/hyperjump/kensho/internal/retrieval"
)

const (
	defaultLimit          = 10
	defaultTopKCandidates = 50
)

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("query is empty")

// Query is a fact lookup request. Zero weights disable that side of the search; when both are zero
// the search is evenly weighted.
type Query struct {
	Text           string
	Category       string
	Limit          int
	Fuzzy          bool
	KeywordWeight  float64
	SemanticWeight float64
	MinScore       float64
}

func (q *Query) normalize() error {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return ErrEmptyQuery
	}
	if q.KeywordWeight < 0 || q.SemanticWeight < 0 {
		return fmt.Errorf("weights must not be negative")
	}
	if q.KeywordWeight == 0 && q.SemanticWeight == 0 {
		q.KeywordWeight, q.SemanticWeight = 0.5, 0.5
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	q.Category = strings.ToLower(strings.TrimSpace(q.Category))
	return nil
}

// Result is one fact with its fused and per-side scores.
type Result struct {
	Fact          *models.Fact `json:"fact"`
	Score         float64      `json:"score"`
	KeywordScore  float64      `json:"keywordScore"`
	SemanticScore float64      `json:"semanticScore"`
}

// Engine runs hybrid fact lookup over the keyword index and the evidence index.
type Engine struct {
	keywords *keyword.FactIndex
	evidence *retrieval.Index
}

// NewEngine creates an engine over the given indexes.
func NewEngine(keywords *keyword.FactIndex, evidence *retrieval.Index) *Engine {
	return &Engine{keywords: keywords, evidence: evidence}
}

// Search runs both lookups concurrently and fuses their scores.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	if err := q.normalize(); err != nil {
		return nil, err
	}

	var (
		hits     []keyword.Hit
		evidence []models.RetrievedEvidence
		errChan  = make(chan error, 2)
		wg       sync.WaitGroup
	)

	if q.KeywordWeight > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := e.keywords.Search(ctx, q.Text, keyword.SearchOptions{
				Limit:    defaultTopKCandidates,
				Category: q.Category,
				Fuzzy:    q.Fuzzy,
			})
			if err != nil {
				errChan <- fmt.Errorf("keyword search failed: %w", err)
				return
			}
			hits = results
		}()
	}

	if q.SemanticWeight > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := e.evidence.Retrieve(ctx, q.Text, defaultTopKCandidates, 0)
			if err != nil {
				errChan <- fmt.Errorf("semantic search failed: %w", err)
				return
			}
			evidence = results
		}()
	}

	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	if q.Category != "" {
		filtered := evidence[:0]
		for _, ev := range evidence {
			if strings.EqualFold(ev.Fact.Category, q.Category) {
				filtered = append(filtered, ev)
			}
		}
		evidence = filtered
	}

	fused := Fuse(NormalizeKeywordScores(hits), SemanticScores(evidence), q.KeywordWeight, q.SemanticWeight)
	results := make([]Result, 0, q.Limit)
	for _, r := range fused {
		if len(results) == q.Limit {
			break
		}
		if r.Score < q.MinScore {
			break
		}
		f, ok := e.evidence.RetrieveByID(r.FactID)
		if !ok {
			continue
		}
		results = append(results, Result{
			Fact:          f,
			Score:         r.Score,
			KeywordScore:  r.KeywordScore,
			SemanticScore: r.SemanticScore,
		})
	}
	return results, nil
}
