// Converts documents to and from JSON.

package portfolio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject is returned when the JSON root is not an object.
var ErrNotObject = errors.New("document must be a JSON object")

// Decode parses and normalizes a serialized document.
func Decode(data []byte) (*Document, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return FromValue(raw)
}

// FromValue normalizes a raw decoded JSON value and converts it to a
// Document.
func FromValue(raw any) (*Document, error) {
	if _, ok := raw.(map[string]any); !ok {
		return nil, ErrNotObject
	}
	b, err := json.Marshal(Normalize(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to encode normalized document: %w", err)
	}
	d := &Document{}
	if err := json.Unmarshal(b, d); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	d.fillEmpty()
	return d, nil
}

// ToValue returns the document as a generic JSON tree of maps, slices and
// scalars.
func (d *Document) ToValue() (any, error) {
	b, err := d.Marshal()
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return v, nil
}

// Marshal returns the compact JSON form used for storage.
func (d *Document) Marshal() ([]byte, error) {
	return encode(d, "")
}

// MarshalIndent returns the JSON form used for exported files, indented by
// two spaces.
func (d *Document) MarshalIndent() ([]byte, error) {
	return encode(d, "  ")
}

// EncodeValue serializes any JSON value the way MarshalIndent does.
func EncodeValue(v any) ([]byte, error) {
	return encode(v, "  ")
}

func encode(v any, indent string) ([]byte, error) {
	if d, ok := v.(*Document); ok {
		c := d.Clone()
		c.fillEmpty()
		v = c
	}
	var buf bytes.Buffer
	e := json.NewEncoder(&buf)
	e.SetEscapeHTML(false)
	e.SetIndent("", indent)
	if err := e.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
