// File path: internal/filestore/store.go
package filestore

import (
	"context"
	"errors"
)

// ErrNotFound reports a reference with no stored bytes behind it.
var ErrNotFound = errors.New("filestore: reference not found")

// Store is the byte storage collaborators hand references into. Copybook
// and data buffers travel by reference so large inputs are never passed by
// value between pipeline stages.
type Store interface {
	// Get resolves a reference to its bytes, returning ErrNotFound when the
	// reference is unknown.
	Get(ctx context.Context, ref string) ([]byte, error)
	// Put stores bytes and returns the new opaque reference.
	Put(ctx context.Context, data []byte) (string, error)
	// Stat reports the stored size in bytes without fetching the payload.
	Stat(ctx context.Context, ref string) (int64, error)
	// Delete removes the bytes behind a reference. Deleting an unknown
	// reference is not an error.
	Delete(ctx context.Context, ref string) error
}
