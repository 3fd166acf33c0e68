// Package objects implements content-addressed stores for scene files.
//
// Objects are named by the unpadded base64url encoding of the SHA-256 of
// their content. Uploads are streamed to a spool file while hashing, so the
// name is only known once the content has been fully received.
package objects

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"ecorpus-go/internal/errs"
	"ecorpus-go/internal/vfs"
)

// HashLength is the length of a valid object hash.
const HashLength = 43

// ValidateHash rejects anything that is not an unpadded base64url SHA-256.
// Hashes are checked before being used in a path or key.
func ValidateHash(h string) error {
	if len(h) != HashLength {
		return errs.BadRequest("invalid object hash %q", h)
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		switch {
		case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9', c == '-', c == '_':
		default:
			return errs.BadRequest("invalid object hash %q", h)
		}
	}
	return nil
}

func encodeHash(h hash.Hash) string {
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// ctxReader fails reads once ctx is done, so an abandoned upload stops
// between chunks.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// spool copies r into a new file of dir while hashing it. The file is
// synced and closed on success and removed on failure.
func spool(ctx context.Context, dir string, r io.Reader) (string, vfs.Object, error) {
	path := filepath.Join(dir, uuid.NewString())
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", vfs.Object{}, fmt.Errorf("failed to create upload file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			f.Close()
			os.Remove(path)
		}
	}()

	h := sha256.New()
	written, err := io.Copy(io.MultiWriter(f, h), ctxReader{ctx: ctx, r: r})
	if err != nil {
		return "", vfs.Object{}, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", vfs.Object{}, fmt.Errorf("failed to sync upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", vfs.Object{}, fmt.Errorf("failed to close upload: %w", err)
	}

	success = true
	return path, vfs.Object{Hash: encodeHash(h), Size: written}, nil
}
