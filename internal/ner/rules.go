package ner

import (
	"context"
	"regexp"
	"sort"
)

const (
	monthNames = `(?:January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?`
	scaleWords = `(?:\s?(?:thousand|million|billion|trillion|bn|mn|m|k)\b)?`
)

type rule struct {
	label string
	re    *regexp.Regexp
}

// Rules are tried in order; later rules never claim a span an earlier rule already matched.
var defaultRules = []rule{
	{"MONEY", regexp.MustCompile(`(?:\b(?:KES|KSh|Ksh|USD|EUR|GBP)\.?|US\$|\$|€|£)\s?\d[\d,]*(?:\.\d+)?` + scaleWords)},
	{"MONEY", regexp.MustCompile(`(?i)\b\d[\d,]*(?:\.\d+)?` + scaleWords + `\s?(?:shillings|dollars|euros|pounds)\b`)},
	{"PERCENT", regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:%|percent\b|per cent\b)`)},
	{"DATE", regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)},
	{"DATE", regexp.MustCompile(`\b(?:\d{1,2}\s)?` + monthNames + `(?:\s\d{1,2})?(?:,?\s(?:19|20)\d{2})?\b`)},
	{"DATE", regexp.MustCompile(`\b(?:19|20)\d{2}(?:/\d{2})?\b`)},
	{"CARDINAL", regexp.MustCompile(`(?i)\b\d[\d,]*(?:\.\d+)?` + scaleWords)},
}

// RulesRecognizer finds DATE, MONEY, PERCENT and CARDINAL entities with regular expressions.
type RulesRecognizer struct {
	rules []rule
}

// NewRulesRecognizer returns a recognizer with the built-in rule set.
func NewRulesRecognizer() *RulesRecognizer {
	return &RulesRecognizer{rules: defaultRules}
}

// Recognize returns non-overlapping matches ordered by position.
func (r *RulesRecognizer) Recognize(ctx context.Context, text string) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	taken := make([]bool, len(text))
	var entities []Entity
	for _, rl := range r.rules {
	matches:
		for _, loc := range rl.re.FindAllStringIndex(text, -1) {
			for i := loc[0]; i < loc[1]; i++ {
				if taken[i] {
					continue matches
				}
			}
			for i := loc[0]; i < loc[1]; i++ {
				taken[i] = true
			}
			entities = append(entities, Entity{
				Text:  text[loc[0]:loc[1]],
				Label: rl.label,
				Score: 1,
				Start: loc[0],
				End:   loc[1],
			})
		}
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].Start < entities[j].Start })
	return entities, nil
}

// Close is a no-op.
func (r *RulesRecognizer) Close() error { return nil }
