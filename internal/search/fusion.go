package search

import (
	"sort"

	"github.com/hyperjump/kensho/internal/keyword"
	"github.com/hyperjump/kensho/internal/models"
)

// FusedResult holds a fact ID and its fused keyword/semantic scores.
type FusedResult struct {
	FactID        string
	Score         float64
	KeywordScore  float64
	SemanticScore float64
}

// NormalizeKeywordScores normalizes keyword scores to [0,1] by max.
func NormalizeKeywordScores(hits []keyword.Hit) map[string]float64 {
	normalized := make(map[string]float64, len(hits))
	var maxScore float64
	for _, h := range hits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	for _, h := range hits {
		if maxScore > 0 {
			normalized[h.ID] = h.Score / maxScore
		} else {
			normalized[h.ID] = 0
		}
	}
	return normalized
}

// SemanticScores maps retrieved facts to their cosine similarity, already within [0,1].
func SemanticScores(evidence []models.RetrievedEvidence) map[string]float64 {
	scores := make(map[string]float64, len(evidence))
	for _, e := range evidence {
		scores[e.Fact.ID] = e.Similarity
	}
	return scores
}

// Fuse merges keyword and semantic score maps with weights and returns results sorted by score,
// ties broken by fact ID.
func Fuse(keywordScores, semanticScores map[string]float64, keywordWeight, semanticWeight float64) []*FusedResult {
	scoreMap := make(map[string]*FusedResult, len(keywordScores)+len(semanticScores))
	for id, score := range keywordScores {
		scoreMap[id] = &FusedResult{FactID: id, KeywordScore: score}
	}
	for id, score := range semanticScores {
		if result, exists := scoreMap[id]; exists {
			result.SemanticScore = score
		} else {
			scoreMap[id] = &FusedResult{FactID: id, SemanticScore: score}
		}
	}
	results := make([]*FusedResult, 0, len(scoreMap))
	for _, result := range scoreMap {
		result.Score = keywordWeight*result.KeywordScore + semanticWeight*result.SemanticScore
		results = append(results, result)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].FactID < results[j].FactID
	})
	return results
}
