// Package noop provides a blob store that discards everything. It is the
// default when no artifact storage is configured.
package noop

import "context"

// BlobStore drops all writes and returns an empty URI.
type BlobStore struct{}

// New constructs a BlobStore.
func New() *BlobStore { return &BlobStore{} }

// PutObject discards the data.
func (*BlobStore) PutObject(_ context.Context, _ string, _ string, _ []byte) (string, error) {
	return "", nil
}
