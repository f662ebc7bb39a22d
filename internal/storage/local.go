// Implements LocalStorage in memory and on disk.

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrQuotaExceeded is returned when a write would exceed the storage quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrInvalidKey is returned for keys that cannot be stored.
	ErrInvalidKey = errors.New("invalid storage key")
)

// LocalStorage is a synchronous string key/value store.
type LocalStorage interface {
	// GetItem returns the value for key. A missing key returns false and no
	// error.
	GetItem(key string) (string, bool, error)
	// SetItem stores value under key, replacing any previous value.
	SetItem(key, value string) error
	// RemoveItem deletes key. A missing key is not an error.
	RemoveItem(key string) error
}

// MemoryStorage is a LocalStorage held in memory, with an optional quota.
type MemoryStorage struct {
	mu    sync.Mutex
	items map[string]string
	quota int
	used  int
}

// NewMemoryStorage returns an empty MemoryStorage. quota is the maximum total
// size of keys and values in bytes; 0 means unlimited.
func NewMemoryStorage(quota int) *MemoryStorage {
	return &MemoryStorage{items: map[string]string{}, quota: quota}
}

// GetItem implements LocalStorage.
func (m *MemoryStorage) GetItem(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	return v, ok, nil
}

// SetItem implements LocalStorage.
func (m *MemoryStorage) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := m.used + len(value)
	if old, ok := m.items[key]; ok {
		used -= len(old)
	} else {
		used += len(key)
	}
	if m.quota > 0 && used > m.quota {
		return fmt.Errorf("failed to store %q (%d bytes): %w", key, len(value), ErrQuotaExceeded)
	}
	m.items[key] = value
	m.used = used
	return nil
}

// RemoveItem implements LocalStorage.
func (m *MemoryStorage) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.items[key]; ok {
		m.used -= len(key) + len(old)
		delete(m.items, key)
	}
	return nil
}

// FileStorage is a LocalStorage keeping each key in <dir>/<key>.json.
type FileStorage struct {
	dir string
	mu  sync.RWMutex
}

// OpenFileStorage returns a FileStorage rooted at dir, creating it if needed.
func OpenFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

// Dir returns the root directory.
func (f *FileStorage) Dir() string {
	return f.dir
}

// Path returns the file holding key.
func (f *FileStorage) Path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}

// GetItem implements LocalStorage.
func (f *FileStorage) GetItem(key string) (string, bool, error) {
	p, err := f.Path(key)
	if err != nil {
		return "", false, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, err := os.ReadFile(p) //nolint:gosec // G304: path derived from a validated key
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return string(b), true, nil
}

// SetItem implements LocalStorage.
//
// The value is written to a temporary file then renamed over the previous
// one, so readers never see a partial document.
func (f *FileStorage) SetItem(key, value string) error {
	p, err := f.Path(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		return errors.Join(fmt.Errorf("failed to write %q: %w", key, err), tmp.Close(), os.Remove(tmpPath))
	}
	if err := tmp.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(tmpPath))
	}
	if err := os.Rename(tmpPath, p); err != nil {
		return errors.Join(fmt.Errorf("failed to rename %q into place: %w", key, err), os.Remove(tmpPath))
	}
	return nil
}

// RemoveItem implements LocalStorage.
func (f *FileStorage) RemoveItem(key string) error {
	p, err := f.Path(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}
	return nil
}
