// Package jsonwalk rewrites strings anywhere in a decoded JSON tree.
//
// A decoded tree is what encoding/json produces when unmarshaling into an
// any: map[string]any, []any, string, float64, bool and nil. The same
// traversal serves both collecting and replacing matching strings.
package jsonwalk

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// Match selects strings to visit.
type Match func(s string) bool

// Func returns the replacement for a matched string.
type Func func(ctx context.Context, s string) (string, error)

// Transform returns a deep copy of v where every string s with match(s)
// true is replaced by fn(ctx, s).
//
// Object keys are visited in sorted order so the sequence of fn calls is
// deterministic. The first error aborts the walk.
func Transform(ctx context.Context, v any, match Match, fn Func) (any, error) {
	switch t := v.(type) {
	case string:
		if !match(t) {
			return t, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn(ctx, t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			r, err := Transform(ctx, item, match, fn)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for _, k := range slices.Sorted(maps.Keys(t)) {
			r, err := Transform(ctx, t[k], match, fn)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// Collect returns every distinct matching string in v, in visit order.
func Collect(v any, match Match) []string {
	var out []string
	seen := make(map[string]bool)
	// The callback never fails and the context is never canceled.
	_, _ = Transform(context.Background(), v, match, func(_ context.Context, s string) (string, error) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
		return s, nil
	})
	return out
}
