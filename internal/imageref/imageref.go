// Package imageref classifies image reference strings and converts between
// data URIs and blobs.
//
// An image reference is one of: empty (no image), a stored-blob key
// ("img:..."), a data URI, or a literal URL used as-is.
package imageref

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/maruel/gyeol/internal/blobstore"
)

// DefaultMIME is used when a data URI does not declare a type.
const DefaultMIME = "application/octet-stream"

// ErrInvalidDataURI is returned when a string is not a decodable data URI.
var ErrInvalidDataURI = errors.New("invalid data URI")

// Kind is the form of an image reference.
type Kind int

const (
	// Empty means no image.
	Empty Kind = iota
	// Stored is a key into the blob store.
	Stored
	// DataURI is an inline "data:" URI.
	DataURI
	// URL is an http(s) URL.
	URL
	// Literal is any other non-empty string, displayed as-is.
	Literal
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Stored:
		return "stored"
	case DataURI:
		return "data"
	case URL:
		return "url"
	case Literal:
		return "literal"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Classify returns the form of ref.
func Classify(ref string) Kind {
	switch {
	case ref == "":
		return Empty
	case blobstore.IsKey(ref):
		return Stored
	case IsDataURI(ref):
		return DataURI
	case hasPrefixFold(ref, "http://"), hasPrefixFold(ref, "https://"):
		return URL
	default:
		return Literal
	}
}

// IsDataURI reports whether s is a "data:" URI.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// DecodeDataURI decodes a "data:<mime>[;params][;base64],<body>" string.
//
// The header and body are split at the first comma. A missing MIME type
// defaults to [DefaultMIME]. Bodies without ";base64" are percent-decoded.
func DecodeDataURI(s string) (blobstore.Blob, error) {
	if !IsDataURI(s) {
		return blobstore.Blob{}, ErrInvalidDataURI
	}
	head, body, ok := strings.Cut(s, ",")
	if !ok {
		return blobstore.Blob{}, fmt.Errorf("%w: missing comma", ErrInvalidDataURI)
	}
	params := strings.Split(strings.TrimPrefix(head, "data:"), ";")
	mime := strings.TrimSpace(params[0])
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if mime == "" {
		mime = DefaultMIME
	}
	if !isBase64 {
		data, err := url.PathUnescape(body)
		if err != nil {
			return blobstore.Blob{}, fmt.Errorf("%w: %w", ErrInvalidDataURI, err)
		}
		return blobstore.Blob{Type: mime, Data: []byte(data)}, nil
	}
	data, err := decodeBase64(body)
	if err != nil {
		return blobstore.Blob{}, fmt.Errorf("%w: %w", ErrInvalidDataURI, err)
	}
	return blobstore.Blob{Type: mime, Data: data}, nil
}

// EncodeDataURI returns b as "data:<mime>;base64,<payload>".
//
// An empty type is sniffed from the content.
func EncodeDataURI(b blobstore.Blob) string {
	mime := b.Type
	if mime == "" {
		mime = mimetype.Detect(b.Data).String()
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}

// decodeBase64 accepts padded and unpadded payloads and ignores whitespace.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
