package objects

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"ecorpus-go/internal/errs"
	"ecorpus-go/internal/vfs"
)

// FileSystemStore is a filesystem-based implementation of the ObjectStore interface.
// It stores objects as files in a directory structure:
//
//	<root>/
//	  uploads/
//	    <uuid>     (uploads in progress)
//	  objects/
//	    <hash>     (content files, named by hash)
type FileSystemStore struct {
	root       string
	uploadsDir string
	objectsDir string
	logger     vfs.Logger
}

// NewFileSystemStore creates a new filesystem store rooted at the given path.
func NewFileSystemStore(root string, logger vfs.Logger) (*FileSystemStore, error) {
	if logger == nil {
		logger = vfs.NewNopLogger()
	}
	uploadsDir := filepath.Join(root, "uploads")
	objectsDir := filepath.Join(root, "objects")

	if err := os.MkdirAll(uploadsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	if err := os.MkdirAll(objectsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create objects directory: %w", err)
	}

	return &FileSystemStore{
		root:       root,
		uploadsDir: uploadsDir,
		objectsDir: objectsDir,
		logger:     logger,
	}, nil
}

// Put stores the content of r. The upload is linked into place, which
// fails instead of replacing an object that already exists: the existing
// object wins and the upload is dropped.
func (s *FileSystemStore) Put(ctx context.Context, r io.Reader) (vfs.Object, error) {
	tmpPath, obj, err := spool(ctx, s.uploadsDir, r)
	if err != nil {
		return vfs.Object{}, err
	}
	defer os.Remove(tmpPath)

	deduplicated := false
	if err := os.Link(tmpPath, s.objectPath(obj.Hash)); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return vfs.Object{}, fmt.Errorf("failed to store object %s: %w", obj.Hash, err)
		}
		deduplicated = true
		s.logger.Debug("object already stored", "hash", obj.Hash, "size", obj.Size)
	}

	observePut(obj, deduplicated)
	return obj, nil
}

// Open returns a reader over the stored object.
func (s *FileSystemStore) Open(ctx context.Context, hash string) (io.ReadCloser, error) {
	if err := ValidateHash(hash); err != nil {
		return nil, err
	}
	f, err := os.Open(s.objectPath(hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.NotFound("object not found: %s", hash)
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

func (s *FileSystemStore) Stat(ctx context.Context, hash string) (vfs.Object, error) {
	if err := ValidateHash(hash); err != nil {
		return vfs.Object{}, err
	}
	info, err := os.Stat(s.objectPath(hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return vfs.Object{}, errs.NotFound("object not found: %s", hash)
		}
		return vfs.Object{}, fmt.Errorf("failed to stat object: %w", err)
	}
	return vfs.Object{Hash: hash, Size: info.Size()}, nil
}

// ValidateSetup verifies that the store directories are accessible.
func (s *FileSystemStore) ValidateSetup() error {
	for _, dir := range []string{s.root, s.uploadsDir, s.objectsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("object store directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("object store path is not a directory: %s", dir)
		}
	}
	return nil
}

func (s *FileSystemStore) objectPath(hash string) string {
	return filepath.Join(s.objectsDir, hash)
}

// Compile-time check that FileSystemStore implements vfs.ObjectStore interface
var _ vfs.ObjectStore = (*FileSystemStore)(nil)
