// Archive export and import.

package portability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zip"
	"github.com/maruel/gyeol/internal/blobstore"
	"github.com/maruel/gyeol/internal/jsonwalk"
	"github.com/maruel/gyeol/internal/portfolio"
)

const (
	documentEntry = "data.json"
	imagesDir     = "images/"
	// maxEntrySize bounds the uncompressed size of one archive entry.
	maxEntrySize = 256 << 20
)

var errEntryTooLarge = errors.New("archive entry too large")

// ExportArchive writes the current document and every stored image it
// references as a zip archive.
//
// Images that are missing or unreadable are skipped and counted in Stats.
func (e *Engine) ExportArchive(ctx context.Context, w io.Writer) (Stats, error) {
	var st Stats
	doc := e.store.Current()
	data, err := doc.MarshalIndent()
	if err != nil {
		return st, err
	}
	v, err := doc.ToValue()
	if err != nil {
		return st, err
	}
	keys := jsonwalk.Collect(v, blobstore.IsKey)

	now := time.Now()
	zw := zip.NewWriter(w)
	if err := writeEntry(zw, documentEntry, data, now); err != nil {
		return st, errors.Join(err, zw.Close())
	}
	for _, key := range keys {
		b, ok, err := e.fetch(ctx, key, &st)
		if err != nil {
			return st, errors.Join(err, zw.Close())
		}
		if !ok {
			continue
		}
		if err := writeEntry(zw, imagesDir+blobstore.FileName(key), b.Data, now); err != nil {
			return st, errors.Join(err, zw.Close())
		}
		st.Images++
	}
	if err := zw.Close(); err != nil {
		return st, fmt.Errorf("failed to finish archive: %w", err)
	}
	return st, nil
}

func writeEntry(zw *zip.Writer, name string, data []byte, mod time.Time) error {
	f, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: mod})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// ImportArchive replaces the document and adds the images from a zip archive.
//
// data.json is required. Files under images/ whose name maps back to a stored
// image key are written to the blob store under that key; other entries are
// ignored. Nothing is written unless the whole archive reads and parses.
func (e *Engine) ImportArchive(ctx context.Context, r io.ReaderAt, size int64) (Stats, error) {
	var st Stats
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return st, fmt.Errorf("failed to open archive: %w", err)
	}
	var docFile *zip.File
	var images []*zip.File
	for _, f := range zr.File {
		switch {
		case f.Name == documentEntry:
			docFile = f
		case strings.HasPrefix(f.Name, imagesDir) && !f.FileInfo().IsDir():
			images = append(images, f)
		}
	}
	if docFile == nil {
		return st, ErrMissingDocument
	}
	data, err := readEntry(docFile)
	if err != nil {
		return st, err
	}
	doc, err := portfolio.Decode(data)
	if err != nil {
		return st, fmt.Errorf("failed to parse %s: %w", documentEntry, err)
	}

	var pending []pendingBlob
	for _, f := range images {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		name := strings.TrimPrefix(f.Name, imagesDir)
		key := blobstore.KeyFromFileName(name)
		if strings.Contains(name, "/") || !blobstore.IsKey(key) {
			continue
		}
		b, err := readEntry(f)
		if err != nil {
			return st, err
		}
		pending = append(pending, pendingBlob{key: key, blob: blobstore.Blob{Type: mimetype.Detect(b).String(), Data: b}})
	}

	err = e.commit(ctx, pending, func() error { return e.store.Save(ctx, doc) })
	st.Images = len(pending)
	return st, err
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxEntrySize {
		return nil, fmt.Errorf("%w: %s", errEntryTooLarge, f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err2 := rc.Close(); err == nil {
		err = err2
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	if len(data) > maxEntrySize {
		return nil, fmt.Errorf("%w: %s", errEntryTooLarge, f.Name)
	}
	return data, nil
}
