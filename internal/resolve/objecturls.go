package resolve

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/maruel/gyeol/internal/blobstore"
)

// URLScheme prefixes every object URL.
const URLScheme = "blob:"

// ObjectURLs holds blobs reachable by transient URLs until revoked.
type ObjectURLs struct {
	mu   sync.Mutex
	urls map[string]blobstore.Blob
}

// NewObjectURLs returns an empty registry.
func NewObjectURLs() *ObjectURLs {
	return &ObjectURLs{urls: map[string]blobstore.Blob{}}
}

// Create registers a copy of b and returns a new URL for it.
func (o *ObjectURLs) Create(b blobstore.Blob) string {
	u := URLScheme + uuid.NewString()
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls[u] = b.Clone()
	return u
}

// Revoke forgets u. Unknown URLs are ignored.
func (o *ObjectURLs) Revoke(u string) {
	if !strings.HasPrefix(u, URLScheme) {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.urls, u)
}

// Lookup returns the blob behind u.
func (o *ObjectURLs) Lookup(u string) (blobstore.Blob, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.urls[u]
	if !ok {
		return blobstore.Blob{}, false
	}
	return b.Clone(), true
}

// Len returns the number of live URLs.
func (o *ObjectURLs) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.urls)
}
