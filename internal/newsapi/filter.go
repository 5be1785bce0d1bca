package newsapi

import (
	"strings"
	"unicode/utf8"
)

// Ellipsis marks a cut summary.
const Ellipsis = "..."

// Filter keeps items whose lower-cased title contains any keyword.
type Filter struct {
	keywords []string
}

func NewFilter(keywords []string) Filter {
	f := Filter{}
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			f.keywords = append(f.keywords, k)
		}
	}
	return f
}

// Match is a plain substring test, so "maroc" also matches "marocain".
func (f Filter) Match(title string) bool {
	t := strings.ToLower(title)
	for _, k := range f.keywords {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

// TruncateSummary cuts s to budget runes and appends Ellipsis when it cut.
// A non-positive budget disables the cut.
func TruncateSummary(s string, budget int) string {
	s = strings.TrimSpace(s)
	if budget <= 0 || utf8.RuneCountInString(s) <= budget {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:budget])) + Ellipsis
}
