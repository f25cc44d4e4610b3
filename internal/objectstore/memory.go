package objectstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryObjectStore implements ObjectStore in memory for tests and dev mode.
type MemoryObjectStore struct {
	mu      sync.Mutex
	objects map[string]ObjectInfo

	// FailDelete, when set, is returned from Delete to simulate a store
	// that refuses object release.
	FailDelete error
}

// NewMemoryObjectStore returns an empty in-memory object store.
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string]ObjectInfo)}
}

// Put records an object so listings and deletes can see it.
func (s *MemoryObjectStore) Put(key string, size int64, lastModified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = ObjectInfo{Key: key, Size: size, LastModified: lastModified, StorageClass: "STANDARD"}
}

// Has reports whether an object with the key is present.
func (s *MemoryObjectStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *MemoryObjectStore) PresignUpload(ctx context.Context, key, mimeType string, expires time.Duration) (string, error) {
	return fmt.Sprintf("memory://upload/%s?expires=%d", key, int(expires.Seconds())), nil
}

func (s *MemoryObjectStore) PresignDownload(ctx context.Context, key, filename string, expires time.Duration) (string, error) {
	return fmt.Sprintf("memory://download/%s?expires=%d", key, int(expires.Seconds())), nil
}

func (s *MemoryObjectStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete != nil {
		return s.FailDelete
	}
	delete(s.objects, key)
	return nil
}

func (s *MemoryObjectStore) List(ctx context.Context, fn func(ObjectInfo) error) error {
	s.mu.Lock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	infos := make([]ObjectInfo, 0, len(keys))
	for _, k := range keys {
		infos = append(infos, s.objects[k])
	}
	s.mu.Unlock()

	for _, info := range infos {
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}
