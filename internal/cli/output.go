// Package cli renders verification results, facts and history for the kensho command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/hyperjump/kensho/internal/models"
	"github.com/hyperjump/kensho/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one line per item.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a --output flag value onto an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

const rule = "─────────────────────────────────────────────────────────"

var (
	heading = color.New(color.Bold)
	dim     = color.New(color.Faint)
)

// VerdictColor returns the color a verdict is printed in.
func VerdictColor(v models.Verdict) *color.Color {
	switch v {
	case models.VerdictTrue:
		return color.New(color.FgGreen, color.Bold)
	case models.VerdictFalse:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgYellow, color.Bold)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteVerification writes one verification result to w.
func WriteVerification(w io.Writer, resp *models.RagResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, resp)
	case OutputCompact:
		fmt.Fprintf(w, "%s\t%.2f\t%s\n", VerdictColor(resp.Verdict).Sprint(resp.Verdict), resp.Confidence,
			utils.Truncate(resp.Claim, 80))
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Claim:      %s\n", resp.Claim)
	if ec := resp.ExtractedClaim; ec != nil && ec.EntityCount() > 0 {
		fmt.Fprintf(w, "Entities:   %s\n", formatEntities(ec.Entities))
	}
	fmt.Fprintf(w, "Verdict:    %s (confidence %.2f)\n", VerdictColor(resp.Verdict).Sprint(strings.ToUpper(string(resp.Verdict))), resp.Confidence)
	if resp.Explanation != "" {
		fmt.Fprintf(w, "\n%s\n", resp.Explanation)
	}
	if resp.Reasoning != "" {
		dim.Fprintf(w, "%s\n", resp.Reasoning)
	}
	if len(resp.Evidence) > 0 {
		fmt.Fprintln(w)
		heading.Fprintf(w, "Evidence (%d)\n", len(resp.Evidence))
		for i, e := range resp.Evidence {
			fmt.Fprintln(w, rule)
			fmt.Fprintf(w, "%d. [%.3f] %s\n", i+1, e.Similarity, e.Claim)
			dim.Fprintf(w, "   %s | %s | %s\n", e.Category, e.PublicationDate, e.SourceURL)
		}
	}
	md := resp.Metadata
	fmt.Fprintln(w)
	dim.Fprintf(w, "extraction %.3fs, retrieval %.3fs, comparison %.3fs, total %.3fs; %d of %d facts retrieved\n",
		md.ExtractionTime, md.RetrievalTime, md.ComparisonTime, md.TotalTime, md.FactsRetrieved, md.FactBaseSize)
	for _, msg := range []string{md.ExtractionError, md.RetrievalError, md.ComparisonError} {
		if msg != "" {
			color.New(color.FgYellow).Fprintf(w, "warning: %s\n", msg)
		}
	}
	return nil
}

func formatEntities(entities map[string][]string) string {
	labels := make([]string, 0, len(entities))
	for label := range entities {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		if len(entities[label]) == 0 {
			continue
		}
		parts = append(parts, label+"="+strings.Join(entities[label], ", "))
	}
	return strings.Join(parts, "; ")
}

// FactOutput is a fact as printed, with an optional keyword score.
type FactOutput struct {
	*models.Fact
	Score float64
}

// WriteFacts writes a list of facts to w. Embeddings are never printed.
func WriteFacts(w io.Writer, facts []FactOutput, format OutputFormat) error {
	if format == OutputJSON {
		type jsonFact struct {
			models.Fact
			Score float64 `json:"score,omitempty"`
		}
		out := make([]jsonFact, len(facts))
		for i, f := range facts {
			out[i] = jsonFact{Fact: *f.Fact, Score: f.Score}
			out[i].Embedding = nil
		}
		return writeJSON(w, out)
	}
	for _, f := range facts {
		if format == OutputCompact {
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.ID, f.Category, utils.Truncate(f.Claim, 80))
			continue
		}
		fmt.Fprintln(w, rule)
		if f.Score > 0 {
			heading.Fprintf(w, "%s", f.ID)
			fmt.Fprintf(w, "  score %.3f\n", f.Score)
		} else {
			heading.Fprintf(w, "%s\n", f.ID)
		}
		fmt.Fprintf(w, "%s\n", f.Claim)
		dim.Fprintf(w, "%s | %s | %s\n", f.Category, f.PublicationDate, f.Source)
	}
	if format == OutputText {
		fmt.Fprintf(w, "\n%d fact(s)\n", len(facts))
	}
	return nil
}

// WriteStats writes corpus statistics to w.
func WriteStats(w io.Writer, stats *models.CorpusStats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "path:          %s\n", stats.Path)
	if stats.Version != "" {
		fmt.Fprintf(w, "version:       %s\n", stats.Version)
	}
	if stats.LastUpdated != "" {
		fmt.Fprintf(w, "last_updated:  %s\n", stats.LastUpdated)
	}
	fmt.Fprintf(w, "facts:         %d\n", stats.TotalFacts)
	fmt.Fprintf(w, "dimensions:    %d\n", stats.Dimensions)
	if stats.EmbeddedOnLoad > 0 {
		fmt.Fprintf(w, "embedded:      %d   # facts embedded during this load\n", stats.EmbeddedOnLoad)
	}
	categories := make([]string, 0, len(stats.Categories))
	for c := range stats.Categories {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	if len(categories) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# categories")
		for _, c := range categories {
			fmt.Fprintf(w, "%-14s %d\n", c+":", stats.Categories[c])
		}
	}
	return nil
}

// WriteHistory writes stored verifications to w, newest first as given.
func WriteHistory(w io.Writer, recs []*models.VerificationRecord, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, recs)
	}
	for _, r := range recs {
		fmt.Fprintf(w, "%s  %s  %-12s %.2f  %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			dim.Sprint(r.ID),
			VerdictColor(r.Verdict).Sprint(r.Verdict),
			r.Confidence,
			utils.Truncate(r.Claim, 60))
	}
	if len(recs) == 0 && format == OutputText {
		fmt.Fprintln(w, "no verifications recorded")
	}
	return nil
}
