// Defines the Blob type, the Store contract and key helpers.

package blobstore

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// KeyPrefix marks a string as a reference to stored image data.
const KeyPrefix = "img:"

// fileNameSep replaces ':' in file names derived from keys.
const fileNameSep = "__"

// ErrInvalidKey is returned when a key is empty or cannot be stored.
var ErrInvalidKey = errors.New("invalid blob key")

// Blob is binary data with its MIME type.
//
// Type may be empty when the producer did not know it.
type Blob struct {
	Type string
	Data []byte
}

// Clone returns a copy that does not share the data buffer.
func (b Blob) Clone() Blob {
	return Blob{Type: b.Type, Data: append([]byte(nil), b.Data...)}
}

// Store maps opaque keys to binary data.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores b under key, overwriting any previous value, and returns key.
	Put(ctx context.Context, key string, b Blob) (string, error)
	// Get returns the blob stored under key. found is false when the key is
	// absent; err is reserved for I/O failures.
	Get(ctx context.Context, key string) (b Blob, found bool, err error)
	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
	// Keys returns all keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// ClearPrefix removes every key starting with prefix.
	ClearPrefix(ctx context.Context, prefix string) error
	// Close releases the underlying resources.
	Close() error
}

// NewKey returns a new stored-image key.
func NewKey() string {
	return KeyPrefix + uuid.NewString()
}

// IsKey reports whether s is a stored-image key.
func IsKey(s string) bool {
	return strings.HasPrefix(s, KeyPrefix)
}

// FileName returns a file name safe for archives and file systems.
//
// "img:1234" becomes "img__1234".
func FileName(key string) string {
	return strings.ReplaceAll(key, ":", fileNameSep)
}

// KeyFromFileName reverses [FileName].
func KeyFromFileName(name string) string {
	return strings.ReplaceAll(name, fileNameSep, ":")
}

func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
