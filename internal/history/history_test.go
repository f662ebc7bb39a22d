package history

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRepo(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	r, err := Open(dir, "gyeol", "gyeol@localhost")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if log, err := r.Log(ctx, "doc.json", 10); err != nil || len(log) != 0 {
		t.Fatalf("Log(empty) = %v, %v", log, err)
	}

	write := func(s string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, "doc.json"), []byte(s), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	// Untracked neighbors must not trigger commits.
	if err := os.WriteFile(filepath.Join(dir, "blobs.sqlite"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	write(`{"v":1}`)
	h1, err := r.Commit(ctx, "first", "doc.json")
	if err != nil || h1 == "" {
		t.Fatalf("Commit() = %q, %v", h1, err)
	}
	if h, err := r.Commit(ctx, "noop", "doc.json"); err != nil || h != "" {
		t.Errorf("Commit(unchanged) = %q, %v", h, err)
	}
	write(`{"v":2}`)
	h2, err := r.Commit(ctx, "second\n\nbody", "doc.json")
	if err != nil || h2 == "" {
		t.Fatalf("Commit() = %q, %v", h2, err)
	}

	log, err := r.Log(ctx, "doc.json", 0)
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if len(log) != 2 || log[0].Hash != h2 || log[0].Message != "second" || log[1].Hash != h1 || log[0].Author != "gyeol" {
		t.Errorf("Log() = %+v", log)
	}
	if log, _ := r.Log(ctx, "doc.json", 1); len(log) != 1 {
		t.Errorf("Log(n=1) returned %d", len(log))
	}

	for hash, want := range map[string]string{h1: `{"v":1}`, h2: `{"v":2}`, "HEAD": `{"v":2}`} {
		b, err := r.FileAt(ctx, hash, "doc.json")
		if err != nil || string(b) != want {
			t.Errorf("FileAt(%s) = %q, %v, want %q", hash, b, err, want)
		}
	}
	if _, err := r.FileAt(ctx, "0123456789012345678901234567890123456789", "doc.json"); !errors.Is(err, ErrUnknownRevision) {
		t.Errorf("FileAt(unknown) error = %v", err)
	}
	if _, err := r.FileAt(ctx, h1, "missing.json"); err == nil {
		t.Error("FileAt(missing file) succeeded")
	}

	// Reopen keeps history.
	r2, err := Open(dir, "other", "other@localhost")
	if err != nil {
		t.Fatal(err)
	}
	if log, _ := r2.Log(ctx, "", 0); len(log) != 2 {
		t.Errorf("reopened Log() = %d commits", len(log))
	}
}
