package tree

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/skyvault/backend/internal/model"
	"github.com/skyvault/backend/internal/objectstore"
	"github.com/skyvault/backend/internal/store"
)

const owner = "user-1"

func newEngine(t *testing.T) (*Engine, *store.MemoryStore, *objectstore.MemoryObjectStore) {
	t.Helper()
	items := store.NewMemoryStore()
	objects := objectstore.NewMemoryObjectStore()
	return New(items, objects, zerolog.Nop()), items, objects
}

func TestCreateFolder(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	folder, err := e.CreateFolder(ctx, owner, "Docs", "")
	require.NoError(t, err)
	require.Equal(t, model.KindFolder, folder.Kind)
	require.Equal(t, model.RootFolderID, folder.ParentID)
	require.NotEmpty(t, folder.ItemID)

	nested, err := e.CreateFolder(ctx, owner, "Drafts", folder.ItemID)
	require.NoError(t, err)
	require.Equal(t, folder.ItemID, nested.ParentID)
}

func TestCreateFolderParentChecks(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	_, err := e.CreateFolder(ctx, owner, "Docs", "nope")
	require.ErrorIs(t, err, store.ErrNotFound)

	file, err := e.CreateFileRecord(ctx, owner, "a.txt", "", "text/plain", 1)
	require.NoError(t, err)

	_, err = e.CreateFolder(ctx, owner, "Docs", file.ItemID)
	require.ErrorIs(t, err, store.ErrInvalid)
}

func TestCreateFileRecord(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	file, err := e.CreateFileRecord(ctx, owner, "report.pdf", "", "application/pdf", 2048)
	require.NoError(t, err)
	require.Equal(t, model.KindFile, file.Kind)
	require.Equal(t, owner+"/"+file.ItemID, file.ObjectKey)
	require.Equal(t, int64(2048), file.SizeBytes)

	_, err = e.CreateFileRecord(ctx, owner, "bad", "", "", 1)
	require.ErrorIs(t, err, store.ErrInvalid)

	_, err = e.CreateFileRecord(ctx, owner, "bad", "", "text/plain", -1)
	require.ErrorIs(t, err, store.ErrInvalid)
}

func TestListChildrenOrder(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	_, err := e.CreateFileRecord(ctx, owner, "zebra.txt", "", "text/plain", 1)
	require.NoError(t, err)
	_, err = e.CreateFolder(ctx, owner, "Photos", "")
	require.NoError(t, err)
	_, err = e.CreateFileRecord(ctx, owner, "apple.txt", "", "text/plain", 1)
	require.NoError(t, err)

	kids, err := e.ListChildren(ctx, owner, "")
	require.NoError(t, err)
	require.Len(t, kids, 3)
	require.Equal(t, "Photos", kids[0].Name)
	require.Equal(t, "apple.txt", kids[1].Name)
	require.Equal(t, "zebra.txt", kids[2].Name)
}

func TestRenameRepositionsSibling(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	_, err := e.CreateFileRecord(ctx, owner, "middle.txt", "", "text/plain", 1)
	require.NoError(t, err)
	z, err := e.CreateFileRecord(ctx, owner, "zebra.txt", "", "text/plain", 1)
	require.NoError(t, err)

	_, err = e.Rename(ctx, owner, z.ItemID, "apple.txt")
	require.NoError(t, err)

	kids, err := e.ListChildren(ctx, owner, "")
	require.NoError(t, err)
	require.Equal(t, "apple.txt", kids[0].Name)
	require.Equal(t, "middle.txt", kids[1].Name)

	_, err = e.Rename(ctx, owner, z.ItemID, "")
	require.ErrorIs(t, err, store.ErrInvalid)
}

func TestMove(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	docs, err := e.CreateFolder(ctx, owner, "Docs", "")
	require.NoError(t, err)
	file, err := e.CreateFileRecord(ctx, owner, "a.txt", "", "text/plain", 1)
	require.NoError(t, err)

	moved, err := e.Move(ctx, owner, file.ItemID, docs.ItemID)
	require.NoError(t, err)
	require.Equal(t, docs.ItemID, moved.ParentID)

	// Back to root.
	moved, err = e.Move(ctx, owner, file.ItemID, model.RootFolderID)
	require.NoError(t, err)
	require.Equal(t, model.RootFolderID, moved.ParentID)
}

func TestMoveRejectsBadParents(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	f1, err := e.CreateFileRecord(ctx, owner, "a.txt", "", "text/plain", 1)
	require.NoError(t, err)
	f2, err := e.CreateFileRecord(ctx, owner, "b.txt", "", "text/plain", 1)
	require.NoError(t, err)

	_, err = e.Move(ctx, owner, f1.ItemID, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = e.Move(ctx, owner, f1.ItemID, f2.ItemID)
	require.ErrorIs(t, err, store.ErrInvalid)

	_, err = e.Move(ctx, owner, f1.ItemID, "")
	require.ErrorIs(t, err, store.ErrInvalid)
}

func TestMoveCycleRejected(t *testing.T) {
	ctx := context.Background()
	e, items, _ := newEngine(t)

	// a > b > c
	a, err := e.CreateFolder(ctx, owner, "a", "")
	require.NoError(t, err)
	b, err := e.CreateFolder(ctx, owner, "b", a.ItemID)
	require.NoError(t, err)
	c, err := e.CreateFolder(ctx, owner, "c", b.ItemID)
	require.NoError(t, err)

	// Self-parenting and descent into the own subtree both fail.
	_, err = e.Move(ctx, owner, a.ItemID, a.ItemID)
	require.ErrorIs(t, err, ErrCycle)
	_, err = e.Move(ctx, owner, a.ItemID, b.ItemID)
	require.ErrorIs(t, err, ErrCycle)
	_, err = e.Move(ctx, owner, a.ItemID, c.ItemID)
	require.ErrorIs(t, err, ErrCycle)

	// The rejected moves left the tree untouched.
	got, err := items.Get(ctx, owner, a.ItemID)
	require.NoError(t, err)
	require.Equal(t, model.RootFolderID, got.ParentID)

	// A sideways move within the subtree is fine.
	_, err = e.Move(ctx, owner, c.ItemID, a.ItemID)
	require.NoError(t, err)
}

func TestSoftDeleteDoesNotCascade(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	docs, err := e.CreateFolder(ctx, owner, "Docs", "")
	require.NoError(t, err)
	file, err := e.CreateFileRecord(ctx, owner, "a.txt", docs.ItemID, "text/plain", 1)
	require.NoError(t, err)

	trashed, err := e.SetDeleted(ctx, owner, docs.ItemID, true)
	require.NoError(t, err)
	require.True(t, trashed.Deleted)
	require.NotNil(t, trashed.DeletedAt)

	// The child keeps its own flags.
	child, err := e.Get(ctx, owner, file.ItemID)
	require.NoError(t, err)
	require.False(t, child.Deleted)

	restored, err := e.SetDeleted(ctx, owner, docs.ItemID, false)
	require.NoError(t, err)
	require.False(t, restored.Deleted)
	require.Nil(t, restored.DeletedAt)
}

func TestStarredAndSecretFlags(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	file, err := e.CreateFileRecord(ctx, owner, "a.txt", "", "text/plain", 1)
	require.NoError(t, err)

	it, err := e.SetStarred(ctx, owner, file.ItemID, true)
	require.NoError(t, err)
	require.True(t, it.Starred)

	it, err = e.SetSecret(ctx, owner, file.ItemID, true)
	require.NoError(t, err)
	require.True(t, it.IsSecret)
	require.True(t, it.Starred, "other flags survive")
}

func TestApplyRoutesMoveThroughCycleCheck(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	a, err := e.CreateFolder(ctx, owner, "a", "")
	require.NoError(t, err)
	b, err := e.CreateFolder(ctx, owner, "b", a.ItemID)
	require.NoError(t, err)

	name := "renamed"
	_, err = e.Apply(ctx, owner, a.ItemID, store.Patch{Name: &name, ParentID: &b.ItemID})
	require.ErrorIs(t, err, ErrCycle)

	// Nothing applied, including the rename.
	got, err := e.Get(ctx, owner, a.ItemID)
	require.NoError(t, err)
	require.Equal(t, "a", got.Name)

	_, err = e.Apply(ctx, owner, a.ItemID, store.Patch{})
	require.ErrorIs(t, err, store.ErrInvalid)
}

func TestApplyCombined(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	docs, err := e.CreateFolder(ctx, owner, "Docs", "")
	require.NoError(t, err)
	file, err := e.CreateFileRecord(ctx, owner, "a.txt", "", "text/plain", 1)
	require.NoError(t, err)

	name := "b.txt"
	starred := true
	it, err := e.Apply(ctx, owner, file.ItemID, store.Patch{Name: &name, ParentID: &docs.ItemID, Starred: &starred})
	require.NoError(t, err)
	require.Equal(t, "b.txt", it.Name)
	require.Equal(t, docs.ItemID, it.ParentID)
	require.True(t, it.Starred)
}

func TestAttachAIMetadata(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	file, err := e.CreateFileRecord(ctx, owner, "photo.jpg", "", "image/jpeg", 1)
	require.NoError(t, err)

	meta := &model.AIMetadata{Labels: []string{"Dog", "Beach"}, Confidence: 0.97}
	require.NoError(t, e.AttachAIMetadata(ctx, owner, file.ItemID, meta))

	got, err := e.Get(ctx, owner, file.ItemID)
	require.NoError(t, err)
	require.NotNil(t, got.AIMetadata)
	require.Equal(t, []string{"Dog", "Beach"}, got.AIMetadata.Labels)

	// A result for an item deleted meanwhile is silently dropped.
	require.NoError(t, e.AttachAIMetadata(ctx, owner, "gone", meta))
}

func TestHardDeleteSubtree(t *testing.T) {
	ctx := context.Background()
	e, items, objects := newEngine(t)

	docs, err := e.CreateFolder(ctx, owner, "Docs", "")
	require.NoError(t, err)
	sub, err := e.CreateFolder(ctx, owner, "Sub", docs.ItemID)
	require.NoError(t, err)
	f1, err := e.CreateFileRecord(ctx, owner, "a.txt", docs.ItemID, "text/plain", 1)
	require.NoError(t, err)
	f2, err := e.CreateFileRecord(ctx, owner, "b.txt", sub.ItemID, "text/plain", 1)
	require.NoError(t, err)
	keep, err := e.CreateFileRecord(ctx, owner, "keep.txt", "", "text/plain", 1)
	require.NoError(t, err)

	objects.Put(f1.ObjectKey, 1, time.Now())
	objects.Put(f2.ObjectKey, 1, time.Now())

	deleted, err := e.HardDelete(ctx, owner, docs.ItemID)
	require.NoError(t, err)
	require.Len(t, deleted, 4)
	// Children strictly before their parents.
	pos := make(map[string]int, len(deleted))
	for i, id := range deleted {
		pos[id] = i
	}
	require.Less(t, pos[f2.ItemID], pos[sub.ItemID])
	require.Less(t, pos[sub.ItemID], pos[docs.ItemID])
	require.Less(t, pos[f1.ItemID], pos[docs.ItemID])

	for _, id := range deleted {
		_, err := items.Get(ctx, owner, id)
		require.ErrorIs(t, err, store.ErrNotFound)
	}
	require.False(t, objects.Has(f1.ObjectKey))
	require.False(t, objects.Has(f2.ObjectKey))

	// Unrelated items survive.
	_, err = items.Get(ctx, owner, keep.ItemID)
	require.NoError(t, err)
}

func TestHardDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	file, err := e.CreateFileRecord(ctx, owner, "a.txt", "", "text/plain", 1)
	require.NoError(t, err)

	deleted, err := e.HardDelete(ctx, owner, file.ItemID)
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	// A retry of the same delete converges with nothing left to do.
	deleted, err = e.HardDelete(ctx, owner, file.ItemID)
	require.NoError(t, err)
	require.Empty(t, deleted)
}

func TestHardDeleteContinuesPastObjectFailure(t *testing.T) {
	ctx := context.Background()
	e, items, objects := newEngine(t)

	file, err := e.CreateFileRecord(ctx, owner, "a.txt", "", "text/plain", 1)
	require.NoError(t, err)
	objects.Put(file.ObjectKey, 1, time.Now())
	objects.FailDelete = errors.New("bucket unavailable")

	// Object release is best effort; the metadata still goes away.
	deleted, err := e.HardDelete(ctx, owner, file.ItemID)
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	_, err = items.Get(ctx, owner, file.ItemID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

// failingStore fails Delete for one item id to exercise partial-run
// reporting.
type failingStore struct {
	store.ItemStore
	failID string
}

func (f *failingStore) Delete(ctx context.Context, ownerID, itemID string) (bool, error) {
	if itemID == f.failID {
		return false, store.ErrTransient
	}
	return f.ItemStore.Delete(ctx, ownerID, itemID)
}

func TestHardDeletePartialFailureThenRetry(t *testing.T) {
	ctx := context.Background()
	items := store.NewMemoryStore()
	objects := objectstore.NewMemoryObjectStore()

	e := New(items, objects, zerolog.Nop())
	docs, err := e.CreateFolder(ctx, owner, "Docs", "")
	require.NoError(t, err)
	file, err := e.CreateFileRecord(ctx, owner, "a.txt", docs.ItemID, "text/plain", 1)
	require.NoError(t, err)

	// The folder delete fails after its child succeeded.
	broken := New(&failingStore{ItemStore: items, failID: docs.ItemID}, objects, zerolog.Nop())
	deleted, err := broken.HardDelete(ctx, owner, docs.ItemID)

	var partial *PartialDeleteError
	require.ErrorAs(t, err, &partial)
	require.ErrorIs(t, err, store.ErrTransient)
	require.Equal(t, []string{file.ItemID}, deleted)
	require.Equal(t, deleted, partial.Deleted)

	// The parent is still there; the child is gone.
	_, err = items.Get(ctx, owner, docs.ItemID)
	require.NoError(t, err)
	_, err = items.Get(ctx, owner, file.ItemID)
	require.ErrorIs(t, err, store.ErrNotFound)

	// Retrying against a healthy store finishes the job.
	deleted, err = e.HardDelete(ctx, owner, docs.ItemID)
	require.NoError(t, err)
	require.Equal(t, []string{docs.ItemID}, deleted)
}
