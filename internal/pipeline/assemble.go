package pipeline

import "github.com/hyperjump/kensho/internal/models"

// assemble flattens the comparison into a response. Sources keep first-seen order without repeats.
func assemble(input string, claim *models.ExtractedClaim, result *models.ComparisonResult,
	evidence []models.RetrievedEvidence, md models.Metadata) *models.RagResponse {
	items := make([]models.EvidenceItem, 0, len(evidence))
	sources := make([]string, 0, len(evidence))
	seen := make(map[string]bool, len(evidence))
	for _, ev := range evidence {
		items = append(items, models.EvidenceItem{
			Claim:           ev.Fact.Claim,
			Similarity:      ev.Similarity,
			SourceURL:       ev.Fact.Source,
			PublicationDate: ev.Fact.PublicationDate,
			Category:        ev.Fact.Category,
		})
		if !seen[ev.Fact.Source] {
			seen[ev.Fact.Source] = true
			sources = append(sources, ev.Fact.Source)
		}
	}
	md.FactsRetrieved = len(evidence)
	return &models.RagResponse{
		Claim:          input,
		ExtractedClaim: claim,
		Verdict:        result.Verdict,
		Confidence:     result.Confidence,
		Explanation:    result.Explanation,
		Reasoning:      result.Reasoning,
		Evidence:       items,
		Sources:        sources,
		Metadata:       md,
	}
}
