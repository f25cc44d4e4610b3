// Package store persists tree items and keeps the child index projection in
// lockstep with each item's own parentId. Every method is a single-item
// atomic operation; cross-item consistency is the tree engine's job.
package store

import (
	"context"
	"errors"

	"github.com/skyvault/backend/internal/model"
)

var (
	// ErrNotFound is returned when the item (or its parent) does not exist.
	ErrNotFound = errors.New("item not found")

	// ErrConflict is returned when creating an item whose id already exists.
	ErrConflict = errors.New("item already exists")

	// ErrInvalid is returned for missing or malformed fields.
	ErrInvalid = errors.New("invalid item")

	// ErrTransient marks backing-store failures that are safe to retry.
	ErrTransient = errors.New("transient store failure")
)

// Patch describes a partial update. Nil fields are left untouched.
// UpdatedAt is always bumped; DeletedAt follows Deleted.
type Patch struct {
	Name       *string
	ParentID   *string
	Starred    *bool
	Deleted    *bool
	IsSecret   *bool
	AIMetadata *model.AIMetadata
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.ParentID == nil && p.Starred == nil &&
		p.Deleted == nil && p.IsSecret == nil && p.AIMetadata == nil
}

// ItemStore is the repository contract over the backing key-value store.
type ItemStore interface {
	// Get fetches a single item. Returns ErrNotFound if absent.
	Get(ctx context.Context, ownerID, itemID string) (*model.Item, error)

	// Create persists a new item. Returns ErrConflict if the id exists and
	// ErrInvalid if required fields are missing. The caller is responsible
	// for parent validation.
	Create(ctx context.Context, item *model.Item) error

	// Update applies a partial update, bumps UpdatedAt, and rewrites the
	// child index keys when name or parent change. Returns the stored item.
	Update(ctx context.Context, ownerID, itemID string, p Patch) (*model.Item, error)

	// Delete removes the item and its index entry. Deleting a missing item
	// is not an error; the bool reports whether a record was removed.
	Delete(ctx context.Context, ownerID, itemID string) (bool, error)

	// ListChildren returns the items whose parent is parentID, in index
	// order (grouped by kind, then by name). Presentation order is the
	// caller's job.
	ListChildren(ctx context.Context, ownerID, parentID string) ([]model.Item, error)

	// ListAll returns every item belonging to the owner.
	ListAll(ctx context.Context, ownerID string) ([]model.Item, error)
}
