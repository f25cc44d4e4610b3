package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/skyvault/backend/internal/model"
)

// MemoryStore implements ItemStore with in-process maps. It mirrors the
// DynamoDB layout, including the child index kept in the same critical
// section as the item record, and is used by tests and dev mode.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]map[string]*model.Item // ownerID -> itemID
	children map[string]map[string]bool        // child index pk -> itemID set
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    make(map[string]map[string]*model.Item),
		children: make(map[string]map[string]bool),
	}
}

func (s *MemoryStore) indexAdd(it *model.Item) {
	pk := model.ChildIndexPK(it.OwnerID, it.ParentID)
	if s.children[pk] == nil {
		s.children[pk] = make(map[string]bool)
	}
	s.children[pk][it.ItemID] = true
}

func (s *MemoryStore) indexRemove(it *model.Item) {
	pk := model.ChildIndexPK(it.OwnerID, it.ParentID)
	delete(s.children[pk], it.ItemID)
	if len(s.children[pk]) == 0 {
		delete(s.children, pk)
	}
}

func (s *MemoryStore) Get(ctx context.Context, ownerID, itemID string) (*model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[ownerID][itemID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (s *MemoryStore) Create(ctx context.Context, item *model.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.OwnerID][item.ItemID]; ok {
		return fmt.Errorf("%w: %s", ErrConflict, item.ItemID)
	}

	cp := *item
	cp.SetKeys()
	if s.items[cp.OwnerID] == nil {
		s.items[cp.OwnerID] = make(map[string]*model.Item)
	}
	s.items[cp.OwnerID][cp.ItemID] = &cp
	s.indexAdd(&cp)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, ownerID, itemID string, p Patch) (*model.Item, error) {
	if p.Empty() {
		return nil, fmt.Errorf("%w: empty patch", ErrInvalid)
	}
	if p.Name != nil && *p.Name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[ownerID][itemID]
	if !ok {
		return nil, ErrNotFound
	}

	// Re-slot the index entry and rewrite the record under the same lock,
	// matching the single-write atomicity of the DynamoDB layout.
	s.indexRemove(it)

	if p.Name != nil {
		it.Name = *p.Name
	}
	if p.ParentID != nil {
		it.ParentID = *p.ParentID
	}
	if p.Starred != nil {
		it.Starred = *p.Starred
	}
	if p.Deleted != nil {
		it.Deleted = *p.Deleted
		if *p.Deleted {
			now := time.Now().UTC()
			it.DeletedAt = &now
		} else {
			it.DeletedAt = nil
		}
	}
	if p.IsSecret != nil {
		it.IsSecret = *p.IsSecret
	}
	if p.AIMetadata != nil {
		meta := *p.AIMetadata
		it.AIMetadata = &meta
	}
	it.UpdatedAt = time.Now().UTC()
	it.SetKeys()
	s.indexAdd(it)

	cp := *it
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ownerID, itemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[ownerID][itemID]
	if !ok {
		return false, nil
	}
	s.indexRemove(it)
	delete(s.items[ownerID], itemID)
	return true, nil
}

func (s *MemoryStore) ListChildren(ctx context.Context, ownerID, parentID string) ([]model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []model.Item
	for itemID := range s.children[model.ChildIndexPK(ownerID, parentID)] {
		if it, ok := s.items[ownerID][itemID]; ok {
			items = append(items, *it)
		}
	}

	// Index order, like a GSI1 query.
	sort.Slice(items, func(i, j int) bool {
		if items[i].GSI1SK != items[j].GSI1SK {
			return items[i].GSI1SK < items[j].GSI1SK
		}
		return items[i].ItemID < items[j].ItemID
	})
	return items, nil
}

func (s *MemoryStore) ListAll(ctx context.Context, ownerID string) ([]model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []model.Item
	for _, it := range s.items[ownerID] {
		items = append(items, *it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	return items, nil
}
