// Package compare judges a claim against retrieved evidence with a generative model.
package compare

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kensho/internal/llm"
	"github.com/hyperjump/kensho/internal/models"
	"github.com/hyperjump/kensho/pkg/utils"
)

const (
	noEvidenceExplanation = "No relevant evidence found in the fact base to verify this claim."
	noEvidenceReasoning   = "Insufficient evidence: the fact base does not contain any statements similar enough to this claim for verification."
	parseFailureReasoning = "parse failure"
	parseFailureScore     = 0.5
	unverifiableCap       = 0.5
)

// Comparator produces a ComparisonResult from a claim and its evidence with one model call.
type Comparator struct {
	generator llm.Generator
	logger    *zap.Logger
}

// NewComparator creates a comparator over generator.
func NewComparator(generator llm.Generator, logger *zap.Logger) *Comparator {
	return &Comparator{generator: generator, logger: utils.OrNop(logger)}
}

// Compare judges claim against evidence. Empty evidence yields unverifiable with confidence 0 and no
// model call. Malformed model output is never an error: it becomes an unverifiable result carrying the
// raw reply. Only the model call itself can fail, as *models.LLMError.
func (c *Comparator) Compare(ctx context.Context, claim string, evidence []models.RetrievedEvidence) (*models.ComparisonResult, error) {
	if len(evidence) == 0 {
		c.logger.Debug("No evidence, skipping model call")
		return &models.ComparisonResult{
			Verdict:     models.VerdictUnverifiable,
			Confidence:  0,
			Explanation: noEvidenceExplanation,
			Reasoning:   noEvidenceReasoning,
		}, nil
	}

	prompt := BuildPrompt(strings.TrimSpace(claim), evidence)
	raw, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		timeout := models.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded)
		return nil, &models.LLMError{Err: err, Timeout: timeout}
	}

	result := c.Interpret(raw, evidence)
	c.logger.Debug("Comparison complete",
		zap.String("verdict", string(result.Verdict)),
		zap.Float64("confidence", result.Confidence),
		zap.Int("evidence", len(evidence)),
	)
	return result, nil
}

// Interpret turns a raw model reply into a ComparisonResult. It never fails.
func (c *Comparator) Interpret(raw string, evidence []models.RetrievedEvidence) *models.ComparisonResult {
	p, err := parseReply(raw)
	if err != nil {
		c.logger.Warn("Unparseable model response", zap.Error(err), zap.String("raw", utils.Truncate(raw, 500)))
		return &models.ComparisonResult{
			Verdict:     models.VerdictUnverifiable,
			Confidence:  parseFailureScore,
			Explanation: raw,
			Reasoning:   parseFailureReasoning,
		}
	}

	if !p.knownVerdict {
		c.logger.Warn("Unknown verdict, using unverifiable", zap.String("raw", utils.Truncate(raw, 500)))
	}
	confidence := utils.Clamp01(p.confidence)
	if !p.hasConfidence {
		confidence = FallbackConfidence(p.verdict, evidence)
	}
	return &models.ComparisonResult{
		Verdict:     p.verdict,
		Confidence:  confidence,
		Explanation: p.explanation,
		Reasoning:   p.reasoning,
	}
}

// FallbackConfidence is the mean evidence similarity, capped at 0.5 for unverifiable verdicts.
func FallbackConfidence(verdict models.Verdict, evidence []models.RetrievedEvidence) float64 {
	if len(evidence) == 0 {
		return 0
	}
	var sum float64
	for _, e := range evidence {
		sum += e.Similarity
	}
	confidence := utils.Clamp01(sum / float64(len(evidence)))
	if verdict == models.VerdictUnverifiable && confidence > unverifiableCap {
		confidence = unverifiableCap
	}
	return confidence
}
