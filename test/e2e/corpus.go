// Package e2e runs the whole verification flow, from corpus file to HTTP response, over a generated
// fact corpus with a deterministic model stand-in.
package e2e

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperjump/kensho/internal/models"
)

// ClaimTestCase is a claim to verify, the fact that must be retrieved for it and the expected verdict.
type ClaimTestCase struct {
	Claim          string
	ExpectedFactID string
	Verdict        models.Verdict
	Description    string
}

// Corpus holds generated facts and claim test cases.
type Corpus struct {
	Facts      []*models.Fact
	TestCases  []ClaimTestCase
	TotalFacts int
}

type topic struct {
	category string
	subject  string
	figure   string
	year     string
}

// Each subject uses vocabulary no other subject shares, so the bag-of-words mock embedder retrieves
// the right fact for a paraphrase.
var topics = []topic{
	{"agriculture", "wheat procurement across Punjab mandis", "13.2 million tonnes", "2024"},
	{"agriculture", "kharif rice sowing acreage", "41 million hectares", "2023"},
	{"agriculture", "fertiliser subsidy disbursement to farmers", "1.75 lakh crore rupees", "2023"},
	{"agriculture", "horticulture output including mangoes", "355 million tonnes", "2024"},
	{"agriculture", "dairy cooperative milk collection", "230 million litres", "2022"},
	{"health", "rural primary health centres", "1,200 new facilities", "2023"},
	{"health", "measles vaccination coverage among toddlers", "93 percent", "2024"},
	{"health", "tuberculosis notification nationwide", "2.5 million patients", "2023"},
	{"health", "Ayushman insurance cards issued", "340 million beneficiaries", "2024"},
	{"health", "maternal mortality ratio", "97 deaths per lakh births", "2020"},
	{"economy", "goods and services tax collections", "1.87 lakh crore rupees", "2024"},
	{"economy", "foreign exchange reserves", "650 billion dollars", "2024"},
	{"economy", "consumer price inflation", "4.8 percent", "2023"},
	{"economy", "merchandise exports shipments", "437 billion dollars", "2023"},
	{"economy", "startup registrations recognised", "117,000 ventures", "2024"},
	{"infrastructure", "national highway construction pace", "34 kilometres per day", "2024"},
	{"infrastructure", "metro rail network length", "945 kilometres", "2024"},
	{"infrastructure", "airport count operational", "157 airports", "2024"},
	{"infrastructure", "rooftop solar installations", "10 gigawatts", "2023"},
	{"infrastructure", "broadband village connectivity under BharatNet", "210,000 gram panchayats", "2024"},
	{"education", "school enrolment ratio for girls", "89 percent", "2023"},
	{"education", "midday meal scheme children", "118 million pupils", "2024"},
	{"education", "university seats in engineering", "1.5 million seats", "2023"},
	{"education", "school vacancies filled", "65,000 posts", "2024"},
	{"education", "literacy rate among adults", "77.7 percent", "2022"},
}

// BuildCorpus returns one fact per topic and two claim test cases per fact: a paraphrase with the
// same figure (true) and one with a different figure (false).
func BuildCorpus() *Corpus {
	c := &Corpus{}
	for i, tp := range topics {
		id := fmt.Sprintf("fact_%03d", i+1)
		c.Facts = append(c.Facts, &models.Fact{
			ID:              id,
			Claim:           fmt.Sprintf("The %s reached %s in %s.", tp.subject, tp.figure, tp.year),
			Category:        tp.category,
			Source:          fmt.Sprintf("https://pib.example.gov/release/%d", 1000+i),
			PublicationDate: fmt.Sprintf("%s-0%d-15", nextYear(tp.year), 1+i%9),
		})
		c.TestCases = append(c.TestCases,
			ClaimTestCase{
				Claim:          fmt.Sprintf("In %s the %s reached %s", tp.year, tp.subject, tp.figure),
				ExpectedFactID: id,
				Verdict:        models.VerdictTrue,
				Description:    tp.subject + " (same figure)",
			},
			ClaimTestCase{
				Claim:          fmt.Sprintf("The %s reached %s in %s", tp.subject, alterFigure(tp.figure), tp.year),
				ExpectedFactID: id,
				Verdict:        models.VerdictFalse,
				Description:    tp.subject + " (altered figure)",
			},
		)
	}
	c.TotalFacts = len(c.Facts)
	return c
}

func nextYear(y string) string {
	var n int
	_, _ = fmt.Sscanf(y, "%d", &n)
	return fmt.Sprintf("%d", n+1)
}

// alterFigure replaces the leading number of a figure with a clearly different one.
func alterFigure(figure string) string {
	loc := numberPattern.FindStringIndex(figure)
	if loc == nil {
		return "999 " + figure
	}
	return figure[:loc[0]] + "999" + figure[loc[1]:]
}

// JSON renders the corpus in the fact base file format, without embeddings.
func (c *Corpus) JSON() ([]byte, error) {
	return json.MarshalIndent(map[string]interface{}{
		"version":      "1.0",
		"last_updated": "2024-12-31",
		"generator":    "e2e",
		"facts":        c.Facts,
	}, "", "  ")
}

var (
	numberPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	claimPattern  = regexp.MustCompile(`\*\*Claim to Verify:\*\*\n"([^"]*)"`)
)

// Judge answers comparison prompts the way a careful fact-checker would for this corpus: a claim is
// true when every number in it appears in the evidence, false otherwise.
func Judge(prompt string) string {
	m := claimPattern.FindStringSubmatch(prompt)
	if m == nil {
		return "I could not find the claim."
	}
	start := strings.Index(prompt, "**Retrieved Evidence:**")
	if start < 0 {
		return "No evidence section."
	}
	evidence := prompt[start:]
	if i := strings.Index(evidence, "**Task:**"); i > 0 {
		evidence = evidence[:i]
	}
	verdict := "true"
	for _, n := range numberPattern.FindAllString(m[1], -1) {
		if !strings.Contains(evidence, n) {
			verdict = "false"
			break
		}
	}
	return fmt.Sprintf("```json\n{\"verdict\": %q, \"confidence\": 0.9, \"explanation\": \"Evidence 1 was compared figure by figure.\", \"reasoning\": \"numbers checked\"}\n```", verdict)
}
