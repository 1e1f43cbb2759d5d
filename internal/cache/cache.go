package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
)

// KeyLength is the length of a physical key: a lowercase hex SHA-1 digest.
const KeyLength = 2 * sha1.Size

// Cache stores, retrieves and deletes byte blobs by logical key.
type Cache interface {
	// Set stores value under key, replacing any previous value. Failures are not reported.
	Set(ctx context.Context, key string, value []byte)

	// Get returns a buffered reader over the value stored under key. The caller must
	// close it. ok is false if the entry is absent or cannot be opened.
	Get(ctx context.Context, key string) (rc io.ReadCloser, ok bool)

	// Delete removes the entry stored under key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string)
}

// Key returns the physical key for a logical key: the lowercase hex SHA-1 digest of its bytes.
// The result is safe to use as a filename as-is.
func Key(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// isKey reports whether name has the shape of a physical key.
func isKey(name string) bool {
	if len(name) != KeyLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Null is a Cache that stores nothing.
type Null struct{}

// Compile-time check to ensure Null implements Cache
var _ Cache = Null{}

// Set discards value.
func (Null) Set(context.Context, string, []byte) {}

// Get always reports a miss.
func (Null) Get(context.Context, string) (io.ReadCloser, bool) { return nil, false }

// Delete does nothing.
func (Null) Delete(context.Context, string) {}
