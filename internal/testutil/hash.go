package testutil

import (
	"crypto/sha256"
	"encoding/base64"
)

// Hash returns the SHA-256 of data as unpadded base64url, the format used
// to address stored objects.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return base64.RawURLEncoding.EncodeToString(h[:])
}
