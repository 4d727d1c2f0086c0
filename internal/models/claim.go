package models

import "strings"

// Verdict is the three-way outcome of a verification.
type Verdict string

const (
	VerdictTrue         Verdict = "true"
	VerdictFalse        Verdict = "false"
	VerdictUnverifiable Verdict = "unverifiable"
)

// Valid reports whether v is one of the three verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictTrue, VerdictFalse, VerdictUnverifiable:
		return true
	}
	return false
}

// ParseVerdict normalizes s (case, surrounding space). Unknown values map to unverifiable with ok=false.
func ParseVerdict(s string) (Verdict, bool) {
	v := Verdict(strings.ToLower(strings.TrimSpace(s)))
	if !v.Valid() {
		return VerdictUnverifiable, false
	}
	return v, true
}

// ExtractedClaim is the normalized claim plus the entities found in it.
type ExtractedClaim struct {
	Text       string              `json:"text"`
	Entities   map[string][]string `json:"entities"`
	Confidence float64             `json:"confidence"`
}

// EntityCount returns the total number of entity strings across labels.
func (c *ExtractedClaim) EntityCount() int {
	n := 0
	for _, v := range c.Entities {
		n += len(v)
	}
	return n
}

// RetrievedEvidence pairs a fact with its similarity to the claim.
type RetrievedEvidence struct {
	Fact       *Fact
	Similarity float64
}

// ComparisonResult is the verdict produced by the evidence comparator.
type ComparisonResult struct {
	Verdict     Verdict `json:"verdict"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
	Reasoning   string  `json:"reasoning"`
}
