// Package tree implements the multi-item operations over the item store:
// child listing, move with cycle prevention, soft deletion flags, and
// retriable recursive hard delete.
package tree

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skyvault/backend/internal/model"
	"github.com/skyvault/backend/internal/objectstore"
	"github.com/skyvault/backend/internal/store"
)

// ErrCycle is returned when a move would make a folder its own ancestor.
var ErrCycle = errors.New("move would create a folder cycle")

// PartialDeleteError reports a recursive delete that removed some items and
// then stopped. Retrying the same delete converges: already-removed items
// are no-ops.
type PartialDeleteError struct {
	Deleted []string
	Err     error
}

func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("recursive delete stopped after %d items: %v", len(e.Deleted), e.Err)
}

func (e *PartialDeleteError) Unwrap() error {
	return e.Err
}

// Engine coordinates tree operations. Each store call is individually
// atomic; the engine never holds a lock across store I/O.
type Engine struct {
	store   store.ItemStore
	objects objectstore.ObjectStore
	log     zerolog.Logger
}

// New returns an Engine over the given stores.
func New(s store.ItemStore, objects objectstore.ObjectStore, log zerolog.Logger) *Engine {
	return &Engine{store: s, objects: objects, log: log}
}

// resolveParent verifies that parentID names the root or an existing folder
// of the same owner.
func (e *Engine) resolveParent(ctx context.Context, ownerID, parentID string) error {
	if parentID == model.RootFolderID {
		return nil
	}
	parent, err := e.store.Get(ctx, ownerID, parentID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: parent folder %s", store.ErrNotFound, parentID)
	}
	if err != nil {
		return err
	}
	if !parent.IsFolder() {
		return fmt.Errorf("%w: parent %s is not a folder", store.ErrInvalid, parentID)
	}
	return nil
}

// CreateFolder creates a folder under parentID (root when empty).
func (e *Engine) CreateFolder(ctx context.Context, ownerID, name, parentID string) (*model.Item, error) {
	if parentID == "" {
		parentID = model.RootFolderID
	}
	if err := e.resolveParent(ctx, ownerID, parentID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &model.Item{
		ItemID:    uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		Kind:      model.KindFolder,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.Create(ctx, item); err != nil {
		return nil, err
	}

	e.log.Info().Str("owner", ownerID).Str("item", item.ItemID).Str("name", name).Msg("folder created")
	return item, nil
}

// CreateFileRecord creates the metadata record for a file. The object key
// is derived from owner and item id; uploading the bytes against that key
// is the caller's business.
func (e *Engine) CreateFileRecord(ctx context.Context, ownerID, name, parentID, mimeType string, sizeBytes int64) (*model.Item, error) {
	if parentID == "" {
		parentID = model.RootFolderID
	}
	if mimeType == "" {
		return nil, fmt.Errorf("%w: mimeType is required", store.ErrInvalid)
	}
	if sizeBytes < 0 {
		return nil, fmt.Errorf("%w: sizeBytes cannot be negative", store.ErrInvalid)
	}
	if err := e.resolveParent(ctx, ownerID, parentID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	itemID := uuid.NewString()
	item := &model.Item{
		ItemID:    itemID,
		OwnerID:   ownerID,
		Name:      name,
		Kind:      model.KindFile,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
		MIMEType:  mimeType,
		SizeBytes: sizeBytes,
		ObjectKey: fmt.Sprintf("%s/%s", ownerID, itemID),
	}
	if err := e.store.Create(ctx, item); err != nil {
		return nil, err
	}

	e.log.Info().Str("owner", ownerID).Str("item", itemID).Str("name", name).Int64("size", sizeBytes).Msg("file record created")
	return item, nil
}

// Get returns a single item.
func (e *Engine) Get(ctx context.Context, ownerID, itemID string) (*model.Item, error) {
	return e.store.Get(ctx, ownerID, itemID)
}

// Items returns every item for the owner, for view projection.
func (e *Engine) Items(ctx context.Context, ownerID string) ([]model.Item, error) {
	return e.store.ListAll(ctx, ownerID)
}

// ListChildren lists the direct children of parentID: folders first, then
// locale-aware by name, ties broken by item id.
func (e *Engine) ListChildren(ctx context.Context, ownerID, parentID string) ([]model.Item, error) {
	if parentID == "" {
		parentID = model.RootFolderID
	}
	items, err := e.store.ListChildren(ctx, ownerID, parentID)
	if err != nil {
		return nil, err
	}
	model.SortSiblings(items)
	return items, nil
}

// Move reparents an item. The new parent must be an existing folder of the
// same owner and must not be the item itself or one of its descendants.
func (e *Engine) Move(ctx context.Context, ownerID, itemID, newParentID string) (*model.Item, error) {
	if newParentID == "" {
		return nil, fmt.Errorf("%w: newParentId is required", store.ErrInvalid)
	}
	if newParentID == itemID {
		return nil, ErrCycle
	}

	item, err := e.store.Get(ctx, ownerID, itemID)
	if err != nil {
		return nil, err
	}

	if newParentID != model.RootFolderID {
		parent, err := e.store.Get(ctx, ownerID, newParentID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: parent folder %s", store.ErrNotFound, newParentID)
		}
		if err != nil {
			return nil, err
		}
		if !parent.IsFolder() {
			return nil, fmt.Errorf("%w: parent %s is not a folder", store.ErrInvalid, newParentID)
		}
		if item.IsFolder() {
			if err := e.ensureNotDescendant(ctx, ownerID, itemID, parent); err != nil {
				return nil, err
			}
		}
	}

	updated, err := e.store.Update(ctx, ownerID, itemID, store.Patch{ParentID: &newParentID})
	if err != nil {
		return nil, err
	}
	e.log.Info().Str("owner", ownerID).Str("item", itemID).Str("parent", newParentID).Msg("item moved")
	return updated, nil
}

// ensureNotDescendant walks the ancestor chain from candidate up to root
// and rejects the move if itemID appears on the way.
func (e *Engine) ensureNotDescendant(ctx context.Context, ownerID, itemID string, candidate *model.Item) error {
	cur := candidate
	for {
		if cur.ItemID == itemID {
			return ErrCycle
		}
		if cur.ParentID == model.RootFolderID || cur.ParentID == "" {
			return nil
		}
		next, err := e.store.Get(ctx, ownerID, cur.ParentID)
		if errors.Is(err, store.ErrNotFound) {
			// Orphaned branch: the chain ends here, so no cycle through it.
			return nil
		}
		if err != nil {
			return err
		}
		cur = next
	}
}

// Rename changes an item's name; the index projection follows in the same
// store write.
func (e *Engine) Rename(ctx context.Context, ownerID, itemID, name string) (*model.Item, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", store.ErrInvalid)
	}
	return e.store.Update(ctx, ownerID, itemID, store.Patch{Name: &name})
}

// SetStarred flips the starred flag.
func (e *Engine) SetStarred(ctx context.Context, ownerID, itemID string, starred bool) (*model.Item, error) {
	return e.store.Update(ctx, ownerID, itemID, store.Patch{Starred: &starred})
}

// SetDeleted trashes or restores an item. Children are not cascaded: trash
// visibility is computed per item.
func (e *Engine) SetDeleted(ctx context.Context, ownerID, itemID string, deleted bool) (*model.Item, error) {
	return e.store.Update(ctx, ownerID, itemID, store.Patch{Deleted: &deleted})
}

// SetSecret flips the secret-partition flag. This is a visibility flag
// only; any real access control lives outside this service.
func (e *Engine) SetSecret(ctx context.Context, ownerID, itemID string, isSecret bool) (*model.Item, error) {
	return e.store.Update(ctx, ownerID, itemID, store.Patch{IsSecret: &isSecret})
}

// Apply performs a combined partial update (rename, move, star, trash,
// secret) with the same validation as the individual operations.
func (e *Engine) Apply(ctx context.Context, ownerID, itemID string, p store.Patch) (*model.Item, error) {
	if p.Empty() {
		return nil, fmt.Errorf("%w: no fields to update", store.ErrInvalid)
	}
	if p.ParentID != nil {
		// Route through Move first so the cycle check always runs.
		if _, err := e.Move(ctx, ownerID, itemID, *p.ParentID); err != nil {
			return nil, err
		}
		p.ParentID = nil
		if p.Empty() {
			return e.store.Get(ctx, ownerID, itemID)
		}
	}
	return e.store.Update(ctx, ownerID, itemID, p)
}

// AttachAIMetadata stores the content-analysis result on an item. Per the
// collaborator contract this is a no-op when the item no longer exists.
func (e *Engine) AttachAIMetadata(ctx context.Context, ownerID, itemID string, meta *model.AIMetadata) error {
	_, err := e.store.Update(ctx, ownerID, itemID, store.Patch{AIMetadata: meta})
	if errors.Is(err, store.ErrNotFound) {
		e.log.Debug().Str("owner", ownerID).Str("item", itemID).Msg("ai metadata for missing item dropped")
		return nil
	}
	return err
}

// HardDelete permanently removes an item and, for folders, its whole
// subtree. Deletion is depth-first post-order over an explicit worklist so
// a parent is only removed after all of its children, and retrying after a
// partial run converges (missing items delete as no-ops).
//
// The backing object of each file is released best-effort; a failed release
// is logged and does not stop the metadata removal.
func (e *Engine) HardDelete(ctx context.Context, ownerID, itemID string) ([]string, error) {
	// Phase 1: expand the subtree, parents before children.
	pending := []string{itemID}
	var expansion []model.Item
	for len(pending) > 0 {
		id := pending[0]
		pending = pending[1:]

		item, err := e.store.Get(ctx, ownerID, id)
		if errors.Is(err, store.ErrNotFound) {
			continue // already gone, e.g. an earlier partial run
		}
		if err != nil {
			return nil, &PartialDeleteError{Err: err}
		}
		expansion = append(expansion, *item)

		if item.IsFolder() {
			children, err := e.store.ListChildren(ctx, ownerID, id)
			if err != nil {
				return nil, &PartialDeleteError{Err: err}
			}
			for _, child := range children {
				pending = append(pending, child.ItemID)
			}
		}
	}

	// Phase 2: delete in reverse expansion order, children before parents.
	var deleted []string
	for i := len(expansion) - 1; i >= 0; i-- {
		item := expansion[i]

		if item.Kind == model.KindFile && item.ObjectKey != "" {
			if err := e.objects.Delete(ctx, item.ObjectKey); err != nil {
				e.log.Warn().Str("owner", ownerID).Str("item", item.ItemID).
					Str("objectKey", item.ObjectKey).Err(err).Msg("object release failed")
			}
		}

		if _, err := e.store.Delete(ctx, ownerID, item.ItemID); err != nil {
			return deleted, &PartialDeleteError{Deleted: deleted, Err: err}
		}
		deleted = append(deleted, item.ItemID)
	}

	e.log.Info().Str("owner", ownerID).Str("item", itemID).Int("removed", len(deleted)).Msg("hard delete finished")
	return deleted, nil
}
