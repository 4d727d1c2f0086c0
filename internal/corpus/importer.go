package corpus

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/kensho/internal/extract"
	"github.com/hyperjump/kensho/internal/models"
	"github.com/hyperjump/kensho/pkg/utils"
)

// ImportOptions supplies fact fields that a source file does not carry itself. Spreadsheet columns
// take precedence over these values.
type ImportOptions struct {
	Category        string
	Source          string
	PublicationDate string
	Sheet           string
}

// Importer turns spreadsheets and press releases into draft facts.
type Importer struct {
	extractor *extract.Extractor
	logger    *zap.Logger
}

// NewImporter creates an Importer.
func NewImporter(logger *zap.Logger) *Importer {
	return &Importer{extractor: extract.NewExtractor(), logger: utils.OrNop(logger)}
}

// header aliases for spreadsheet columns
var columnAliases = map[string]string{
	"id":               "id",
	"fact_id":          "id",
	"claim":            "claim",
	"fact":             "claim",
	"text":             "claim",
	"category":         "category",
	"source":           "source",
	"source_url":       "source",
	"url":              "source",
	"publication_date": "date",
	"date":             "date",
	"published":        "date",
}

// ImportFile reads draft facts from path. Spreadsheets (.xlsx) yield one fact per row; documents
// yield one fact per sentence that looks like a checkable statement.
func (im *Importer) ImportFile(path string, opts ImportOptions) ([]*models.Fact, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" || ext == ".xlsm" {
		return im.importSheet(path, opts)
	}
	if !extract.Supported(ext) {
		return nil, fmt.Errorf("unsupported import format %q", ext)
	}
	text, err := im.extractor.Extract(path)
	if err != nil {
		return nil, err
	}
	return im.FromText(text, opts), nil
}

// FromText splits text into sentences and keeps those of claim length that contain a number.
func (im *Importer) FromText(text string, opts ImportOptions) []*models.Fact {
	var facts []*models.Fact
	for _, s := range extract.Sentences(text) {
		n := utf8.RuneCountInString(s)
		if n < MinClaimLength || n > MaxClaimLength || !strings.ContainsFunc(s, unicode.IsDigit) {
			continue
		}
		facts = append(facts, &models.Fact{
			Claim:           s,
			Category:        opts.Category,
			Source:          opts.Source,
			PublicationDate: opts.PublicationDate,
		})
	}
	im.logger.Debug("Extracted draft facts from text", zap.Int("facts", len(facts)))
	return facts
}

func (im *Importer) importSheet(path string, opts ImportOptions) ([]*models.Fact, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("spreadsheet %s has no sheets", path)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(h), " ", "_"))
		if field, ok := columnAliases[key]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["claim"]; !ok {
		return nil, fmt.Errorf("sheet %q has no claim column", sheet)
	}

	cell := func(row []string, field, fallback string) string {
		if i, ok := cols[field]; ok && i < len(row) {
			if v := strings.TrimSpace(row[i]); v != "" {
				return v
			}
		}
		return fallback
	}

	var facts []*models.Fact
	for _, row := range rows[1:] {
		claim := cell(row, "claim", "")
		if claim == "" {
			continue
		}
		facts = append(facts, &models.Fact{
			ID:              cell(row, "id", ""),
			Claim:           claim,
			Category:        strings.ToLower(cell(row, "category", opts.Category)),
			Source:          cell(row, "source", opts.Source),
			PublicationDate: cell(row, "date", opts.PublicationDate),
		})
	}
	im.logger.Debug("Read draft facts from spreadsheet", zap.String("sheet", sheet), zap.Int("facts", len(facts)))
	return facts, nil
}

// NextID returns the first free "fact_NNN" id above the highest numbered fact in c.
func (c *Corpus) NextID() string {
	highest := 0
	for _, f := range c.Facts {
		if n, ok := strings.CutPrefix(f.ID, "fact_"); ok {
			if v, err := strconv.Atoi(n); err == nil && v > highest {
				highest = v
			}
		}
	}
	return fmt.Sprintf("fact_%03d", highest+1)
}

// Append adds drafts to the corpus, assigning ids to drafts without one, validates the combined
// fact list and saves the file with last_updated set to today. The corpus is unchanged on error.
func (c *Corpus) Append(drafts []*models.Fact, categories []string) ([]string, error) {
	before := c.Facts
	ids := make([]string, 0, len(drafts))
	for _, d := range drafts {
		if d.ID == "" {
			d.ID = c.NextID()
		}
		c.Facts = append(c.Facts, d)
		ids = append(ids, d.ID)
	}
	if issues := Validate(c.Facts, categories); len(issues) > 0 {
		c.Facts = before
		return nil, validationError(c.Path, issues)
	}

	lastUpdated := c.LastUpdated
	c.LastUpdated = time.Now().Format(models.DateLayout)
	if err := c.Save(); err != nil {
		c.Facts = before
		c.LastUpdated = lastUpdated
		return nil, err
	}
	c.reindex()
	return ids, nil
}
