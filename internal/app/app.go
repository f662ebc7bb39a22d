// Package app wires the stores, the portability engine and the revision
// history of one data directory into a Portfolio.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/maruel/gyeol/internal/blobstore"
	"github.com/maruel/gyeol/internal/config"
	"github.com/maruel/gyeol/internal/history"
	"github.com/maruel/gyeol/internal/imageref"
	"github.com/maruel/gyeol/internal/portability"
	"github.com/maruel/gyeol/internal/portfolio"
	"github.com/maruel/gyeol/internal/resolve"
	"github.com/maruel/gyeol/internal/storage"
)

// ErrHistoryDisabled is returned by History and Restore when revision history
// is off.
var ErrHistoryDisabled = errors.New("history is disabled")

// Portfolio is the document of a data directory with its images.
type Portfolio struct {
	cfg    *config.Config
	files  *storage.FileStorage
	blobs  blobstore.Store
	store  *storage.Store
	engine *portability.Engine
	urls   *resolve.ObjectURLs
	hist   *history.Repo
	unsub  func()
}

// Open loads the portfolio stored in cfg.DataDir.
func Open(ctx context.Context, cfg *config.Config) (*Portfolio, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	files, err := storage.OpenFileStorage(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	blobs, err := openBlobs(cfg)
	if err != nil {
		return nil, err
	}
	p := &Portfolio{
		cfg:   cfg,
		files: files,
		blobs: blobs,
		store: storage.New(files, cfg.StorageKey),
		urls:  resolve.NewObjectURLs(),
	}
	p.engine = portability.New(blobs, p.store)
	if cfg.History {
		if p.hist, err = history.Open(cfg.DataDir, cfg.HistoryAuthorName, cfg.HistoryAuthorEmail); err != nil {
			return nil, errors.Join(err, blobs.Close())
		}
		p.unsub = p.store.Subscribe(p.commit)
	}
	p.store.Load(ctx)
	return p, nil
}

func openBlobs(cfg *config.Config) (blobstore.Store, error) {
	switch cfg.BlobBackend {
	case config.BackendSQLite:
		return blobstore.OpenSQLite(filepath.Join(cfg.DataDir, "blobs.sqlite"))
	case config.BackendDir:
		return blobstore.OpenDir(filepath.Join(cfg.DataDir, "blobs"))
	case config.BackendMemory:
		return blobstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

// Close releases the blob store.
func (p *Portfolio) Close() error {
	if p.unsub != nil {
		p.unsub()
	}
	return p.blobs.Close()
}

// Config returns the configuration in use.
func (p *Portfolio) Config() *config.Config {
	return p.cfg
}

// DocumentPath returns the file holding the stored document.
func (p *Portfolio) DocumentPath() (string, error) {
	return p.files.Path(p.store.Key())
}

// Data returns a copy of the current document.
func (p *Portfolio) Data() *portfolio.Document {
	return p.store.Current()
}

// SetData replaces the document.
func (p *Portfolio) SetData(ctx context.Context, doc *portfolio.Document) error {
	return p.store.Save(withMessage(ctx, "Update portfolio"), doc)
}

// Update applies fn to a copy of the current document and saves it. Nothing
// is saved when fn fails.
func (p *Portfolio) Update(ctx context.Context, msg string, fn func(d *portfolio.Document) error) error {
	doc := p.store.Current()
	if err := fn(doc); err != nil {
		return err
	}
	return p.store.Save(withMessage(ctx, msg), doc)
}

// Export writes the document in format f.
func (p *Portfolio) Export(ctx context.Context, f portability.Format, w io.Writer) (portability.Stats, error) {
	return p.engine.Export(ctx, f, w)
}

// ExportArchive writes the zip export.
func (p *Portfolio) ExportArchive(ctx context.Context, w io.Writer) (portability.Stats, error) {
	return p.engine.ExportArchive(ctx, w)
}

// ExportEmbedded writes the embedded JSON export.
func (p *Portfolio) ExportEmbedded(ctx context.Context, w io.Writer) (portability.Stats, error) {
	return p.engine.ExportEmbedded(ctx, w)
}

// Import replaces the document with the file name read from r. As with Reset,
// storage.ErrNotPersisted reports an import that took effect but was not
// saved.
func (p *Portfolio) Import(ctx context.Context, name string, r io.Reader) (portability.Stats, error) {
	return p.engine.Import(withMessage(ctx, "Import "+filepath.Base(name)), name, r)
}

// Reset deletes every stored image and restores the default document. An
// error wrapping storage.ErrNotPersisted means the reset took effect in memory
// but the default document is not on disk.
func (p *Portfolio) Reset(ctx context.Context) error {
	if err := p.blobs.ClearPrefix(ctx, blobstore.KeyPrefix); err != nil {
		return fmt.Errorf("failed to clear images: %w", err)
	}
	return p.store.Save(withMessage(ctx, "Reset portfolio"), portfolio.Default())
}

// SaveImage stores data under a new key and returns the key. An empty mime is
// sniffed from data.
func (p *Portfolio) SaveImage(ctx context.Context, data []byte, mime string) (string, error) {
	if mime == "" {
		mime = mimetype.Detect(data).String()
	}
	return p.blobs.Put(ctx, blobstore.NewKey(), blobstore.Blob{Type: mime, Data: data})
}

// SetImageInput returns the reference to store for a typed image value: a
// data URI is moved to the blob store and replaced by its new key, anything
// else is kept as typed.
func (p *Portfolio) SetImageInput(ctx context.Context, value string) (string, error) {
	value = strings.TrimSpace(value)
	if imageref.Classify(value) != imageref.DataURI {
		return value, nil
	}
	b, err := imageref.DecodeDataURI(value)
	if err != nil {
		return "", err
	}
	return p.SaveImage(ctx, b.Data, b.Type)
}

// ClearImage deletes the blob behind ref when it is a stored image. The
// caller then sets the field to "".
func (p *Portfolio) ClearImage(ctx context.Context, ref string) error {
	if !blobstore.IsKey(ref) {
		return nil
	}
	return p.blobs.Delete(ctx, ref)
}

// Image returns the stored blob behind ref.
func (p *Portfolio) Image(ctx context.Context, ref string) (blobstore.Blob, bool, error) {
	if !blobstore.IsKey(ref) {
		return blobstore.Blob{}, false, nil
	}
	return p.blobs.Get(ctx, ref)
}

// Resolve returns the display URL of ref. Release it when done.
func (p *Portfolio) Resolve(ctx context.Context, ref string) (resolve.Resolved, error) {
	return resolve.Resolve(ctx, p.blobs, p.urls, ref)
}

// Subscribe returns a subscription tracking one image field.
func (p *Portfolio) Subscribe(onChange func(url string)) *resolve.Subscription {
	return resolve.NewSubscription(p.blobs, p.urls, onChange)
}

// ObjectURLs returns the registry backing Resolve.
func (p *Portfolio) ObjectURLs() *resolve.ObjectURLs {
	return p.urls
}

// ImageKeys returns every stored image key.
func (p *Portfolio) ImageKeys(ctx context.Context) ([]string, error) {
	return p.blobs.Keys(ctx, blobstore.KeyPrefix)
}

// History returns up to n revisions of the document, newest first.
func (p *Portfolio) History(ctx context.Context, n int) ([]history.Commit, error) {
	if p.hist == nil {
		return nil, ErrHistoryDisabled
	}
	return p.hist.Log(ctx, p.documentFile(), n)
}

// Restore replaces the document with its revision at hash. Images are not
// part of the history; references to deleted images stay dangling.
func (p *Portfolio) Restore(ctx context.Context, hash string) error {
	if p.hist == nil {
		return ErrHistoryDisabled
	}
	b, err := p.hist.FileAt(ctx, hash, p.documentFile())
	if err != nil {
		return err
	}
	doc, err := portfolio.Decode(b)
	if err != nil {
		return fmt.Errorf("failed to parse revision %s: %w", hash, err)
	}
	return p.store.Save(withMessage(ctx, "Restore "+shortHash(hash)), doc)
}

// documentFile is the document path relative to the data directory, as
// tracked by git.
func (p *Portfolio) documentFile() string {
	return p.store.Key() + ".json"
}

func (p *Portfolio) commit(ctx context.Context, _ *portfolio.Document) {
	h, err := p.hist.Commit(ctx, messageFrom(ctx), p.documentFile())
	if err != nil {
		slog.WarnContext(ctx, "Failed to record revision", "err", err)
		return
	}
	if h != "" {
		slog.DebugContext(ctx, "Recorded revision", "hash", shortHash(h))
	}
}

type messageKey struct{}

func withMessage(ctx context.Context, msg string) context.Context {
	return context.WithValue(ctx, messageKey{}, msg)
}

func messageFrom(ctx context.Context) string {
	if msg, ok := ctx.Value(messageKey{}).(string); ok && msg != "" {
		return msg
	}
	return "Update portfolio"
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

// Reload re-reads the stored document, picking up changes made by another
// process.
func (p *Portfolio) Reload(ctx context.Context) *portfolio.Document {
	doc, _ := p.store.Load(ctx)
	return doc
}
