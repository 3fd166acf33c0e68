package objects

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"ecorpus-go/internal/errs"
	"ecorpus-go/internal/vfs"
)

// MemoryStore is an in-memory implementation of the ObjectStore interface.
// It keeps all content in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	objects map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(ctx context.Context, r io.Reader) (vfs.Object, error) {
	data, err := io.ReadAll(ctxReader{ctx: ctx, r: r})
	if err != nil {
		return vfs.Object{}, fmt.Errorf("failed to read content: %w", err)
	}

	h := sha256.New()
	h.Write(data)
	obj := vfs.Object{Hash: encodeHash(h), Size: int64(len(data))}

	m.mu.Lock()
	_, exists := m.objects[obj.Hash]
	if !exists {
		m.objects[obj.Hash] = data
	}
	m.mu.Unlock()

	observePut(obj, exists)
	return obj, nil
}

func (m *MemoryStore) Open(ctx context.Context, hash string) (io.ReadCloser, error) {
	if err := ValidateHash(hash); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[hash]
	if !ok {
		return nil, errs.NotFound("object not found: %s", hash)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryStore) Stat(ctx context.Context, hash string) (vfs.Object, error) {
	if err := ValidateHash(hash); err != nil {
		return vfs.Object{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[hash]
	if !ok {
		return vfs.Object{}, errs.NotFound("object not found: %s", hash)
	}
	return vfs.Object{Hash: hash, Size: int64(len(data))}, nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryStore implements vfs.ObjectStore interface
var _ vfs.ObjectStore = (*MemoryStore)(nil)
