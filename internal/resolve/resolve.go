package resolve

import (
	"context"
	"log/slog"
	"sync"

	"github.com/maruel/gyeol/internal/blobstore"
)

// Resolved is the display form of an image reference.
type Resolved struct {
	// URL is empty when there is nothing to display.
	URL string

	urls *ObjectURLs
}

// Release revokes the object URL created for r, if any. It is safe to call
// more than once.
func (r Resolved) Release() {
	if r.urls != nil {
		r.urls.Revoke(r.URL)
	}
}

// Resolve returns the display URL of ref.
//
// An empty reference resolves to empty. A stored blob reference is fetched
// from blobs and registered in urls; a missing or unreadable blob resolves to
// empty. Anything else is returned unchanged. The only error is the context's.
func Resolve(ctx context.Context, blobs blobstore.Store, urls *ObjectURLs, ref string) (Resolved, error) {
	if ref == "" {
		return Resolved{}, nil
	}
	if !blobstore.IsKey(ref) {
		return Resolved{URL: ref}, nil
	}
	b, ok, err := blobs.Get(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return Resolved{}, ctx.Err()
		}
		slog.WarnContext(ctx, "Failed to load image", "key", ref, "err", err)
		return Resolved{}, nil
	}
	if !ok {
		return Resolved{}, nil
	}
	return Resolved{URL: urls.Create(b), urls: urls}, nil
}

// Subscription tracks the resolution of one changing image reference.
//
// Each Set starts a new epoch. A resolution completing after a later Set or
// after Close is discarded and its object URL revoked, so a stale result is
// never observed.
type Subscription struct {
	blobs    blobstore.Store
	urls     *ObjectURLs
	onChange func(url string)

	mu     sync.Mutex
	epoch  uint64
	ref    string
	cur    Resolved
	closed bool
}

// NewSubscription returns an idle subscription. onChange, if not nil, is
// called with the new URL whenever a resolution is applied.
func NewSubscription(blobs blobstore.Store, urls *ObjectURLs, onChange func(url string)) *Subscription {
	return &Subscription{blobs: blobs, urls: urls, onChange: onChange}
}

// Set changes the tracked reference and resolves it. It blocks until the
// resolution completes; callers wanting it in the background run it in a
// goroutine.
func (s *Subscription) Set(ctx context.Context, ref string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.epoch++
	epoch := s.epoch
	s.ref = ref
	prev := s.cur
	s.cur = Resolved{}
	s.mu.Unlock()
	prev.Release()

	r, err := Resolve(ctx, s.blobs, s.urls, ref)
	if err != nil {
		return
	}
	s.mu.Lock()
	if s.closed || epoch != s.epoch {
		s.mu.Unlock()
		r.Release()
		return
	}
	s.cur = r
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange(r.URL)
	}
}

// Value returns the URL of the last applied resolution.
func (s *Subscription) Value() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.URL
}

// Ref returns the tracked reference.
func (s *Subscription) Ref() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ref
}

// Close revokes the current object URL and discards in-flight resolutions.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.epoch++
	prev := s.cur
	s.cur = Resolved{}
	s.mu.Unlock()
	prev.Release()
}
