// Package view derives the overlapping listings (drive, recent, starred,
// trash, secret) from an owner's item set. Projection is a pure function:
// it filters and sorts, and it never fails.
package view

import (
	"sort"
	"strings"

	"github.com/skyvault/backend/internal/model"
)

// Kind names a projection.
type Kind string

const (
	Drive   Kind = "drive"
	Recent  Kind = "recent"
	Starred Kind = "starred"
	Trash   Kind = "trash"
	Secret  Kind = "secret"
)

// DefaultRecentLimit caps the recent view.
const DefaultRecentLimit = 20

// Category is a coarse file type derived from the mime type.
type Category string

const (
	CategoryImages    Category = "images"
	CategoryVideos    Category = "videos"
	CategoryAudio     Category = "audio"
	CategoryDocuments Category = "documents"
	CategoryPDFs      Category = "pdfs"
	CategoryText      Category = "text"
	CategoryOther     Category = "other"
)

// Query selects and narrows a projection.
type Query struct {
	View        Kind
	ParentID    string // drive and secret only
	Category    Category
	Search      string
	RecentLimit int // 0 means DefaultRecentLimit
}

// CategoryOf maps a mime type to its coarse category.
func CategoryOf(mimeType string) Category {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mt, "image/"):
		return CategoryImages
	case strings.HasPrefix(mt, "video/"):
		return CategoryVideos
	case strings.HasPrefix(mt, "audio/"):
		return CategoryAudio
	case mt == "application/pdf":
		return CategoryPDFs
	case strings.HasPrefix(mt, "text/"):
		return CategoryText
	case strings.Contains(mt, "word") || strings.Contains(mt, "document") ||
		strings.Contains(mt, "opendocument") || mt == "application/rtf":
		return CategoryDocuments
	default:
		return CategoryOther
	}
}

func (q Query) matches(it *model.Item) bool {
	switch q.View {
	case Recent:
		if it.Kind != model.KindFile || it.Deleted || it.IsSecret {
			return false
		}
	case Starred:
		if !it.Starred || it.Deleted || it.IsSecret {
			return false
		}
	case Trash:
		if !it.Deleted || it.IsSecret {
			return false
		}
	case Secret:
		if !it.IsSecret || it.Deleted || it.ParentID != q.parentOrRoot() {
			return false
		}
	default: // Drive
		if it.Deleted || it.IsSecret || it.ParentID != q.parentOrRoot() {
			return false
		}
	}

	if q.Category != "" {
		// A category filter narrows to files only.
		if it.Kind != model.KindFile || CategoryOf(it.MIMEType) != q.Category {
			return false
		}
	}
	return true
}

func (q Query) parentOrRoot() string {
	if q.ParentID == "" {
		return model.RootFolderID
	}
	return q.ParentID
}

// Project filters, searches, sorts, and truncates the owner's items per the
// query. The input slice is not modified.
func Project(items []model.Item, q Query) []model.Item {
	out := make([]model.Item, 0, len(items))
	for i := range items {
		if q.matches(&items[i]) && Matches(&items[i], q.Search) {
			out = append(out, items[i])
		}
	}

	if q.View == Recent {
		sort.SliceStable(out, func(i, j int) bool {
			if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
				return out[i].UpdatedAt.After(out[j].UpdatedAt)
			}
			return out[i].ItemID < out[j].ItemID
		})
		limit := q.RecentLimit
		if limit <= 0 {
			limit = DefaultRecentLimit
		}
		if len(out) > limit {
			out = out[:limit]
		}
		return out
	}

	model.SortSiblings(out)
	return out
}
