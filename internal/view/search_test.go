package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skyvault/backend/internal/model"
)

func TestMatches(t *testing.T) {
	it := model.Item{
		Name: "Vacation Photos.zip",
		AIMetadata: &model.AIMetadata{
			Labels:   []string{"Beach", "Sunset"},
			Keywords: []string{"holiday", "2026"},
		},
	}

	require.True(t, Matches(&it, ""))
	require.True(t, Matches(&it, "vacation"))
	require.True(t, Matches(&it, "PHOTOS"))
	require.True(t, Matches(&it, "beach"))
	require.True(t, Matches(&it, "holi"))
	require.False(t, Matches(&it, "mountain"))
}

func TestMatchesWithoutMetadata(t *testing.T) {
	it := model.Item{Name: "notes.txt"}

	require.True(t, Matches(&it, "notes"))
	require.False(t, Matches(&it, "beach"))
}

func TestProjectWithSearch(t *testing.T) {
	now := time.Now().UTC()
	items := []model.Item{
		{ItemID: "1", Name: "sunset.jpg", Kind: model.KindFile, ParentID: model.RootFolderID, MIMEType: "image/jpeg"},
		{ItemID: "2", Name: "report.pdf", Kind: model.KindFile, ParentID: model.RootFolderID, MIMEType: "application/pdf",
			AIMetadata: &model.AIMetadata{Keywords: []string{"sunset", "quarterly"}}},
		{ItemID: "3", Name: "sunset-old.jpg", Kind: model.KindFile, ParentID: model.RootFolderID, MIMEType: "image/jpeg",
			Deleted: true, DeletedAt: &now},
		// Search within a nested folder still surfaces, view rules allowing.
		{ItemID: "4", Name: "sunset-copy.jpg", Kind: model.KindFile, ParentID: "d1", MIMEType: "image/jpeg"},
	}

	// Drive search is scoped to the requested folder.
	got := Project(items, Query{View: Drive, Search: "sunset"})
	require.Equal(t, []string{"report.pdf", "sunset.jpg"}, names(got))

	// Category narrows a search further.
	got = Project(items, Query{View: Drive, Search: "sunset", Category: CategoryImages})
	require.Equal(t, []string{"sunset.jpg"}, names(got))

	// Trash search sees only trashed items.
	got = Project(items, Query{View: Trash, Search: "sunset"})
	require.Equal(t, []string{"sunset-old.jpg"}, names(got))
}
