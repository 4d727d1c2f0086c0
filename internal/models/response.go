package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// VerifyRequest is the body of a verification request.
type VerifyRequest struct {
	Claim string `json:"claim"`
}

// Validate rejects empty or whitespace-only claims and claims longer than maxLen characters.
// A maxLen of 0 disables the length check.
func (r *VerifyRequest) Validate(maxLen int) error {
	if strings.TrimSpace(r.Claim) == "" {
		return ErrEmptyClaim
	}
	if maxLen > 0 && utf8.RuneCountInString(r.Claim) > maxLen {
		return fmt.Errorf("%w (max %d characters)", ErrClaimTooLong, maxLen)
	}
	return nil
}

// EvidenceItem is the serialized form of a RetrievedEvidence.
type EvidenceItem struct {
	Claim           string  `json:"claim"`
	Similarity      float64 `json:"similarity"`
	SourceURL       string  `json:"sourceUrl"`
	PublicationDate string  `json:"publicationDate"`
	Category        string  `json:"category"`
}

// Metadata carries per-stage timings (seconds) and pipeline facts for one verification.
type Metadata struct {
	ExtractionTime  float64 `json:"extractionTime"`
	RetrievalTime   float64 `json:"retrievalTime"`
	ComparisonTime  float64 `json:"comparisonTime"`
	TotalTime       float64 `json:"totalTime"`
	FactsRetrieved  int     `json:"factsRetrieved"`
	FactBaseSize    int     `json:"factBaseSize"`
	PipelineVersion string  `json:"pipelineVersion"`
	ExtractionError string  `json:"extractionError,omitempty"`
	RetrievalError  string  `json:"retrievalError,omitempty"`
	ComparisonError string  `json:"comparisonError,omitempty"`
}

// RagResponse is the full result of one verification.
type RagResponse struct {
	Claim          string          `json:"claim"`
	ExtractedClaim *ExtractedClaim `json:"extractedClaim"`
	Verdict        Verdict         `json:"verdict"`
	Confidence     float64         `json:"confidence"`
	Explanation    string          `json:"explanation"`
	Reasoning      string          `json:"reasoning"`
	Evidence       []EvidenceItem  `json:"evidence"`
	Sources        []string        `json:"sources"`
	Metadata       Metadata        `json:"metadata"`
}

// VerificationRecord is a stored verification in the history.
type VerificationRecord struct {
	ID         string       `json:"id"`
	Claim      string       `json:"claim"`
	Verdict    Verdict      `json:"verdict"`
	Confidence float64      `json:"confidence"`
	Response   *RagResponse `json:"response,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}
