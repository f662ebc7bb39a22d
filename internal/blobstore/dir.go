// Implements Store as one file per key in a directory.

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

const tmpDirName = ".tmp"

// Dir is a Store keeping each blob in its own file.
//
// File names are derived with [FileName]. The MIME type is not persisted; it
// is sniffed from the content on read.
type Dir struct {
	dir string
	mu  sync.RWMutex
}

// OpenDir returns a Store rooted at dir, creating it if needed.
//
// Leftover temporary files from an interrupted write are removed.
func OpenDir(dir string) (*Dir, error) {
	if err := os.MkdirAll(filepath.Join(dir, tmpDirName), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	d := &Dir{dir: dir}
	if err := d.cleanupTmpDir(); err != nil {
		return nil, err
	}
	return d, nil
}

// Put implements Store.
func (d *Dir) Put(ctx context.Context, key string, b Blob) (string, error) {
	p, err := d.pathForKey(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, err := os.CreateTemp(filepath.Join(d.dir, tmpDirName), "*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := f.Name()
	if _, err := f.Write(b.Data); err != nil {
		return "", errors.Join(fmt.Errorf("failed to write blob: %w", err), f.Close(), os.Remove(tmpPath))
	}
	if err := f.Close(); err != nil {
		return "", errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(tmpPath))
	}
	if err := os.Rename(tmpPath, p); err != nil {
		return "", errors.Join(fmt.Errorf("failed to rename blob to final location: %w", err), os.Remove(tmpPath))
	}
	return key, nil
}

// Get implements Store.
func (d *Dir) Get(ctx context.Context, key string) (Blob, bool, error) {
	p, err := d.pathForKey(key)
	if err != nil {
		// A key that cannot be stored is never present.
		return Blob{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return Blob{}, false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, err := os.ReadFile(p) //nolint:gosec // G304: path derived from a validated key
	if err != nil {
		if os.IsNotExist(err) {
			return Blob{}, false, nil
		}
		return Blob{}, false, fmt.Errorf("failed to read blob: %w", err)
	}
	return Blob{Type: mimetype.Detect(data).String(), Data: data}, true, nil
}

// Delete implements Store.
func (d *Dir) Delete(ctx context.Context, key string) error {
	p, err := d.pathForKey(key)
	if err != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Keys implements Store.
func (d *Dir) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.keysLocked(prefix)
}

// ClearPrefix implements Store.
func (d *Dir) ClearPrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	keys, err := d.keysLocked(prefix)
	if err != nil {
		return err
	}
	var errs []error
	for _, k := range keys {
		if err := os.Remove(filepath.Join(d.dir, FileName(k))); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to delete blob %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Close implements Store.
func (d *Dir) Close() error {
	return nil
}

func (d *Dir) keysLocked(prefix string) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read blob directory: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if k := KeyFromFileName(name); strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// pathForKey maps a key to its file, rejecting keys that would escape the
// directory or not survive the file name round trip.
func (d *Dir) pathForKey(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") || strings.Contains(key, fileNameSep) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(d.dir, FileName(key)), nil
}

// cleanupTmpDir removes all .tmp files left by interrupted writes.
func (d *Dir) cleanupTmpDir() error {
	dir := filepath.Join(d.dir, tmpDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read tmp directory: %w", err)
	}
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".tmp") {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				errs = append(errs, fmt.Errorf("failed to remove temp file %s: %w", entry.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
