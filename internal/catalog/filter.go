package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/btp-research/internal/model"
)

// Query narrows the inventory. Empty fields match everything.
type Query struct {
	Text     string
	Category string
}

// fold lowercases s and strips combining marks so "Übersicht" matches
// "ubersicht".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

// Filter returns the services matching q, preserving input order. Text
// matches display name, technical id or description; category matches
// exactly, ignoring case.
func Filter(services []model.ServiceSummary, q Query) []model.ServiceSummary {
	text := fold(strings.TrimSpace(q.Text))
	category := strings.TrimSpace(q.Category)

	out := make([]model.ServiceSummary, 0, len(services))
	for _, s := range services {
		if category != "" && !strings.EqualFold(s.Category, category) {
			continue
		}
		if text != "" &&
			!strings.Contains(fold(s.DisplayName), text) &&
			!strings.Contains(fold(s.TechnicalID), text) &&
			!strings.Contains(fold(s.Description), text) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Categories returns the distinct non-empty categories in collation order.
func Categories(services []model.ServiceSummary) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, s := range services {
		c := strings.TrimSpace(s.Category)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	collate.New(language.English, collate.IgnoreCase).SortStrings(out)
	return out
}

// FindByID returns the service with the given technical id.
func FindByID(services []model.ServiceSummary, id string) (model.ServiceSummary, bool) {
	for _, s := range services {
		if s.TechnicalID == id {
			return s, true
		}
	}
	return model.ServiceSummary{}, false
}
