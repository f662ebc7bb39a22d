// Embedded JSON export and import.

package portability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/maruel/gyeol/internal/blobstore"
	"github.com/maruel/gyeol/internal/imageref"
	"github.com/maruel/gyeol/internal/jsonwalk"
	"github.com/maruel/gyeol/internal/portfolio"
)

// ExportEmbedded writes the current document with every stored image
// reference replaced by a base64 data URI. References whose blob is missing or
// unreadable become "".
func (e *Engine) ExportEmbedded(ctx context.Context, w io.Writer) (Stats, error) {
	var st Stats
	v, err := e.store.Current().ToValue()
	if err != nil {
		return st, err
	}
	inlined := map[string]string{}
	out, err := jsonwalk.Transform(ctx, v, blobstore.IsKey, func(ctx context.Context, key string) (string, error) {
		if uri, ok := inlined[key]; ok {
			return uri, nil
		}
		b, ok, err := e.fetch(ctx, key, &st)
		if err != nil || !ok {
			return "", err
		}
		uri := imageref.EncodeDataURI(b)
		inlined[key] = uri
		st.Images++
		return uri, nil
	})
	if err != nil {
		return st, err
	}
	data, err := portfolio.EncodeValue(out)
	if err != nil {
		return st, err
	}
	if _, err := w.Write(data); err != nil {
		return st, fmt.Errorf("failed to write export: %w", err)
	}
	return st, nil
}

// ImportJSON replaces the document with a JSON file, moving every inline data
// URI into the blob store under a new key.
//
// Both embedded exports and older files carrying data URIs directly are
// accepted. Identical data URIs share one key.
func (e *Engine) ImportJSON(ctx context.Context, r io.Reader) (Stats, error) {
	var st Stats
	var raw any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return st, fmt.Errorf("failed to parse JSON: %w", err)
	}
	// Normalize first so only known fields contribute blobs.
	doc, err := portfolio.FromValue(raw)
	if err != nil {
		return st, err
	}
	v, err := doc.ToValue()
	if err != nil {
		return st, err
	}
	keys := map[string]string{}
	var pending []pendingBlob
	for _, uri := range jsonwalk.Collect(v, imageref.IsDataURI) {
		b, err := imageref.DecodeDataURI(uri)
		if err != nil {
			return st, err
		}
		key := blobstore.NewKey()
		keys[uri] = key
		pending = append(pending, pendingBlob{key: key, blob: b})
	}
	out, err := jsonwalk.Transform(ctx, v, imageref.IsDataURI, func(_ context.Context, uri string) (string, error) {
		return keys[uri], nil
	})
	if err != nil {
		return st, err
	}
	if doc, err = portfolio.FromValue(out); err != nil {
		return st, err
	}
	err = e.commit(ctx, pending, func() error { return e.store.Save(ctx, doc) })
	st.Images = len(pending)
	return st, err
}
