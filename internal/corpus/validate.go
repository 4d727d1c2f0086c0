package corpus

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kensho/internal/models"
)

const (
	MinClaimLength = 10
	MaxClaimLength = 500
)

// Issue is one validation problem with a fact.
type Issue struct {
	FactID string
	Field  string
	Reason string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s %s", i.FactID, i.Field, i.Reason)
}

// Validate checks every fact and returns all problems found. Facts without an id are reported as
// "#<index>". An empty categories list accepts any non-empty category.
func Validate(facts []*models.Fact, categories []string) []Issue {
	allowed := make(map[string]bool, len(categories))
	for _, c := range categories {
		allowed[strings.ToLower(c)] = true
	}

	var issues []Issue
	seen := make(map[string]bool, len(facts))
	for i, f := range facts {
		if f == nil {
			issues = append(issues, Issue{FactID: fmt.Sprintf("#%d", i), Field: "fact", Reason: "is null"})
			continue
		}
		id := strings.TrimSpace(f.ID)
		ref := id
		if id == "" {
			ref = fmt.Sprintf("#%d", i)
			issues = append(issues, Issue{FactID: ref, Field: "id", Reason: "is empty"})
		} else if seen[id] {
			issues = append(issues, Issue{FactID: ref, Field: "id", Reason: "is duplicated"})
		}
		seen[id] = true

		claimLen := utf8.RuneCountInString(strings.TrimSpace(f.Claim))
		switch {
		case claimLen == 0:
			issues = append(issues, Issue{FactID: ref, Field: "claim", Reason: "is empty"})
		case claimLen < MinClaimLength || claimLen > MaxClaimLength:
			issues = append(issues, Issue{FactID: ref, Field: "claim",
				Reason: fmt.Sprintf("length %d outside [%d,%d]", claimLen, MinClaimLength, MaxClaimLength)})
		}

		if u, err := url.Parse(f.Source); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			issues = append(issues, Issue{FactID: ref, Field: "source", Reason: "is not an absolute http(s) URL"})
		}
		if _, err := f.PublishedAt(); err != nil {
			issues = append(issues, Issue{FactID: ref, Field: "publication_date", Reason: "is not YYYY-MM-DD"})
		}
		switch {
		case f.Category == "":
			issues = append(issues, Issue{FactID: ref, Field: "category", Reason: "is empty"})
		case len(allowed) > 0 && !allowed[strings.ToLower(f.Category)]:
			issues = append(issues, Issue{FactID: ref, Field: "category", Reason: fmt.Sprintf("%q is not accepted", f.Category)})
		}
	}
	return issues
}

// validationError folds issues into a CorpusError listing each offending fact once.
func validationError(path string, issues []Issue) error {
	ids := make([]string, 0, len(issues))
	seen := make(map[string]bool)
	reasons := make([]string, 0, len(issues))
	for _, is := range issues {
		if !seen[is.FactID] {
			seen[is.FactID] = true
			ids = append(ids, is.FactID)
		}
		reasons = append(reasons, is.String())
	}
	return &models.CorpusError{
		Path:    path,
		FactIDs: ids,
		Err:     fmt.Errorf("%d validation issue(s): %s", len(issues), strings.Join(reasons, "; ")),
	}
}
