// Package objectstore abstracts the binary object store. The metadata
// service never streams content itself; it hands out time-boxed URLs and
// records only the object key.
package objectstore

import (
	"context"
	"time"
)

// ObjectInfo describes one stored object, as reported by a listing.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	StorageClass string    `json:"storageClass,omitempty"`
}

// ObjectStore is the contract with the external object store.
type ObjectStore interface {
	// PresignUpload returns a time-boxed URL for uploading an object.
	PresignUpload(ctx context.Context, key, mimeType string, expires time.Duration) (string, error)

	// PresignDownload returns a time-boxed URL for fetching an object.
	// A non-empty filename sets the attachment disposition.
	PresignDownload(ctx context.Context, key, filename string, expires time.Duration) (string, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List walks every object, invoking fn per object. Listing stops at the
	// first error from fn or the store.
	List(ctx context.Context, fn func(ObjectInfo) error) error
}
