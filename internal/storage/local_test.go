package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorage(t *testing.T) {
	backends := []struct {
		name string
		new  func(t *testing.T) LocalStorage
	}{
		{"Memory", func(t *testing.T) LocalStorage { return NewMemoryStorage(0) }},
		{"File", func(t *testing.T) LocalStorage {
			f, err := OpenFileStorage(t.TempDir())
			if err != nil {
				t.Fatalf("OpenFileStorage() error = %v", err)
			}
			return f
		}},
	}
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ls := b.new(t)
			if _, ok, err := ls.GetItem("k"); ok || err != nil {
				t.Fatalf("GetItem(missing) = %v, %v", ok, err)
			}
			if err := ls.SetItem("k", "one"); err != nil {
				t.Fatalf("SetItem() error = %v", err)
			}
			if err := ls.SetItem("k", "two"); err != nil {
				t.Fatalf("SetItem() error = %v", err)
			}
			if v, ok, err := ls.GetItem("k"); !ok || err != nil || v != "two" {
				t.Fatalf("GetItem() = %q, %v, %v", v, ok, err)
			}
			if err := ls.RemoveItem("k"); err != nil {
				t.Fatalf("RemoveItem() error = %v", err)
			}
			if err := ls.RemoveItem("k"); err != nil {
				t.Fatalf("RemoveItem(missing) error = %v", err)
			}
			if _, ok, _ := ls.GetItem("k"); ok {
				t.Error("GetItem() found removed key")
			}
		})
	}
}

func TestMemoryStorageQuota(t *testing.T) {
	m := NewMemoryStorage(10)
	if err := m.SetItem("k", "123456789"); err != nil {
		t.Fatalf("SetItem() error = %v", err)
	}
	if err := m.SetItem("k", "1234567890"); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("SetItem(over) error = %v, want ErrQuotaExceeded", err)
	}
	if v, _, _ := m.GetItem("k"); v != "123456789" {
		t.Errorf("failed write changed value to %q", v)
	}
	if err := m.RemoveItem("k"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetItem("j", "123456789"); err != nil {
		t.Errorf("quota not released on remove: %v", err)
	}
}

func TestFileStorage(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenFileStorage(dir)
	if err != nil {
		t.Fatalf("OpenFileStorage() error = %v", err)
	}
	for _, k := range []string{"", ".hidden", "a/b", `a\b`} {
		if err := f.SetItem(k, "x"); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("SetItem(%q) error = %v, want ErrInvalidKey", k, err)
		}
	}
	if err := f.SetItem("doc", `{"a":1}`); err != nil {
		t.Fatalf("SetItem() error = %v", err)
	}
	p, err := f.Path("doc")
	if err != nil {
		t.Fatal(err)
	}
	if p != filepath.Join(dir, "doc.json") {
		t.Errorf("Path() = %q", p)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "doc.json" {
		t.Errorf("directory holds %v, want only doc.json", entries)
	}
}
