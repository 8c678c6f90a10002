package catalog

import "strings"

// Match reports whether e satisfies every condition of f except Limit.
// Category and keyword matching is case-insensitive substring matching.
func (f Filter) Match(e *Entry) bool {
	if f.ActiveOnly && !e.Active {
		return false
	}
	if f.Category != "" && !containsFold(e.Category, f.Category) {
		return false
	}
	if f.Keyword != "" && !containsFold(e.Name, f.Keyword) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
