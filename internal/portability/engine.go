package portability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/maruel/gyeol/internal/blobstore"
	"github.com/maruel/gyeol/internal/storage"
)

const (
	// ArchiveName is the default file name of an archive export.
	ArchiveName = "geurim-gyeol-portfolio.zip"
	// EmbeddedName is the default file name of an embedded JSON export.
	EmbeddedName = "geurim-gyeol-portfolio-embedded.json"
)

var (
	// ErrUnsupportedFormat is returned when importing a file that is neither
	// .zip nor .json.
	ErrUnsupportedFormat = errors.New("unsupported import format")
	// ErrMissingDocument is returned when an archive has no data.json.
	ErrMissingDocument = errors.New("archive has no data.json")
)

// Format is an interchange file format.
type Format string

// Supported formats.
const (
	FormatArchive  Format = "zip"
	FormatEmbedded Format = "json"
)

// FileName returns the default export file name for f.
func (f Format) FileName() string {
	if f == FormatEmbedded {
		return EmbeddedName
	}
	return ArchiveName
}

// Validate returns an error for unknown formats.
func (f Format) Validate() error {
	switch f {
	case FormatArchive, FormatEmbedded:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
	}
}

// Stats counts the images handled by an export or import.
type Stats struct {
	// Images is the number of images written.
	Images int
	// Missing is the number of referenced keys with no stored blob.
	Missing int
	// Failed is the number of blobs that could not be read.
	Failed int
}

// Engine moves the document and its images between the stores and files.
type Engine struct {
	blobs blobstore.Store
	store *storage.Store
}

// New returns an Engine over blobs and store.
func New(blobs blobstore.Store, store *storage.Store) *Engine {
	return &Engine{blobs: blobs, store: store}
}

// Export writes the current document in format f to w.
func (e *Engine) Export(ctx context.Context, f Format, w io.Writer) (Stats, error) {
	switch f {
	case FormatArchive:
		return e.ExportArchive(ctx, w)
	case FormatEmbedded:
		return e.ExportEmbedded(ctx, w)
	default:
		return Stats{}, f.Validate()
	}
}

// Import reads a file, choosing the format by the extension of name.
func (e *Engine) Import(ctx context.Context, name string, r io.Reader) (Stats, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".zip":
		data, err := io.ReadAll(r)
		if err != nil {
			return Stats{}, fmt.Errorf("failed to read %s: %w", name, err)
		}
		return e.ImportArchive(ctx, bytes.NewReader(data), int64(len(data)))
	case ".json":
		return e.ImportJSON(ctx, r)
	default:
		return Stats{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// fetch reads key for an export. Missing and unreadable blobs are counted and
// skipped; only a canceled context is an error.
func (e *Engine) fetch(ctx context.Context, key string, st *Stats) (blobstore.Blob, bool, error) {
	b, ok, err := e.blobs.Get(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return blobstore.Blob{}, false, ctx.Err()
		}
		slog.WarnContext(ctx, "Skipping unreadable image", "key", key, "err", err)
		st.Failed++
		return blobstore.Blob{}, false, nil
	}
	if !ok {
		slog.DebugContext(ctx, "Skipping missing image", "key", key)
		st.Missing++
		return blobstore.Blob{}, false, nil
	}
	return b, true, nil
}

// commit writes the blobs then the document. It is the only step of an import
// that mutates state.
func (e *Engine) commit(ctx context.Context, blobs []pendingBlob, save func() error) error {
	for _, p := range blobs {
		if _, err := e.blobs.Put(ctx, p.key, p.blob); err != nil {
			return fmt.Errorf("failed to store image %s: %w", p.key, err)
		}
	}
	return save()
}

type pendingBlob struct {
	key  string
	blob blobstore.Blob
}
