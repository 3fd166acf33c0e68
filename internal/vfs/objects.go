package vfs

import (
	"context"
	"io"
)

// Object identifies stored content.
type Object struct {
	Hash string // unpadded base64url SHA-256 of the content
	Size int64
}

// ObjectStore is a content-addressed blob store.
// All operations stream through io.Reader so large files never sit in memory.
type ObjectStore interface {
	// Put consumes r and stores its content under its hash. Storing the same
	// content twice keeps a single object. Nothing is left behind on failure.
	Put(ctx context.Context, r io.Reader) (Object, error)

	// Open returns a reader over the object with the given hash.
	Open(ctx context.Context, hash string) (io.ReadCloser, error)

	// Stat returns the stored object's size.
	Stat(ctx context.Context, hash string) (Object, error)

	// ValidateSetup verifies that the store is accessible and properly configured.
	ValidateSetup() error
}
