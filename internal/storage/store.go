package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maruel/gyeol/internal/portfolio"
)

// DefaultKey is the LocalStorage key holding the document.
const DefaultKey = "geurim-gyeol-portfolio"

// ErrNotPersisted wraps a storage write failure from Save. The document was
// still applied in memory and subscribers were notified; only durability is
// lost.
var ErrNotPersisted = errors.New("document applied in memory but not persisted")

// Store owns the current document and writes it through to LocalStorage.
//
// Concurrent Saves are last-write-wins.
type Store struct {
	ls  LocalStorage
	key string

	mu     sync.Mutex
	doc    *portfolio.Document
	loaded bool
	subs   map[int]func(context.Context, *portfolio.Document)
	nextID int
}

// New returns a Store persisting under key in ls. Load must be called before
// Current returns stored data.
func New(ls LocalStorage, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{ls: ls, key: key, doc: portfolio.Default(), subs: map[int]func(context.Context, *portfolio.Document){}}
}

// Key returns the LocalStorage key.
func (s *Store) Key() string {
	return s.key
}

// Load reads the stored document.
//
// A missing, unreadable or corrupt value yields the default document. The
// returned bool is always true: after Load the store is loaded.
func (s *Store) Load(ctx context.Context) (*portfolio.Document, bool) {
	doc := s.read(ctx)
	s.mu.Lock()
	s.doc = doc
	s.loaded = true
	s.mu.Unlock()
	return doc.Clone(), true
}

func (s *Store) read(ctx context.Context) *portfolio.Document {
	raw, ok, err := s.ls.GetItem(s.key)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read document; using defaults", "key", s.key, "err", err)
		return portfolio.Default()
	}
	if !ok {
		slog.DebugContext(ctx, "No stored document; using defaults", "key", s.key)
		return portfolio.Default()
	}
	doc, err := portfolio.Decode([]byte(raw))
	if err != nil {
		slog.WarnContext(ctx, "Stored document is corrupt; using defaults", "key", s.key, "err", err)
		return portfolio.Default()
	}
	return doc
}

// Save writes doc and makes it the current document.
//
// The current document is replaced even when the write fails; the error is
// logged and returned wrapped in ErrNotPersisted so callers can tell that the
// edit took effect but will not survive a reload. Subscribers are notified in
// both cases.
func (s *Store) Save(ctx context.Context, doc *portfolio.Document) error {
	doc = doc.Clone()
	b, err := doc.Marshal()
	s.mu.Lock()
	if err == nil {
		if err = s.ls.SetItem(s.key, string(b)); err != nil {
			err = fmt.Errorf("%w: %w", ErrNotPersisted, err)
		}
	}
	s.doc = doc
	s.loaded = true
	subs := make([]func(context.Context, *portfolio.Document), 0, len(s.subs))
	for i := range s.nextID {
		if fn, ok := s.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()
	if err != nil {
		slog.WarnContext(ctx, "Document kept in memory only", "key", s.key, "err", err)
	}
	for _, fn := range subs {
		fn(ctx, doc.Clone())
	}
	return err
}

// Current returns a copy of the current document.
func (s *Store) Current() *portfolio.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Loaded reports whether Load or Save has run.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Subscribe registers fn to be called after every Save, in registration
// order, with a copy of the new document. The returned function unregisters
// it.
func (s *Store) Subscribe(fn func(context.Context, *portfolio.Document)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
