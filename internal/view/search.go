package view

import (
	"strings"

	"github.com/skyvault/backend/internal/model"
)

// Matches reports whether the item matches the free-text query: a
// case-insensitive substring of the name or of any content-analysis label
// or keyword. The empty query matches everything. Malformed or missing
// metadata degrades to a name-only match, never an error.
func Matches(it *model.Item, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)

	if strings.Contains(strings.ToLower(it.Name), q) {
		return true
	}
	if it.AIMetadata == nil {
		return false
	}
	for _, label := range it.AIMetadata.Labels {
		if strings.Contains(strings.ToLower(label), q) {
			return true
		}
	}
	for _, kw := range it.AIMetadata.Keywords {
		if strings.Contains(strings.ToLower(kw), q) {
			return true
		}
	}
	return false
}
