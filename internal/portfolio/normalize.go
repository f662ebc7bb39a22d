// Upgrades raw decoded JSON to the current document shape.

package portfolio

import (
	"maps"
	"strconv"
)

// Default returns the document used when nothing is stored yet.
func Default() *Document {
	d := &Document{
		Profile: Profile{
			SocialLinks: []SocialLink{
				{Platform: "X", URL: "https://twitter.com"},
				{Platform: "Pixiv", URL: "https://artstation.com"},
				{Platform: "Instagram", URL: "https://instagram.com"},
			},
		},
		Settings: Settings{EditMode: true},
	}
	d.fillEmpty()
	return d
}

// shape lists the known fields of a JSON object.
type shape struct {
	strings  []string
	bools    []string
	strLists []string
	objects  map[string]*shape
	lists    map[string]*shape
	// fix runs on the copied object before the fields are coerced.
	fix func(m map[string]any)
}

var (
	categoryShape = &shape{strings: []string{"main"}, strLists: []string{"subs"}}
	subjectShape  = &shape{
		strings:  []string{"id", "name", "profileImage", "mainImage", "mainImageDesc", "description"},
		strLists: []string{"subCategories", "tags"},
		lists: map[string]*shape{
			"subImages": {strings: []string{"image", "description"}},
		},
		fix: upgradeSubCategory,
	}
	worldShape = &shape{
		strings:  []string{"id", "name", "description", "iconImage", "mainImage", "backgroundImage"},
		strLists: []string{"relatedCharacters", "relatedCreatures"},
		lists: map[string]*shape{
			"creatures":       {strings: []string{"id", "name", "image", "description"}},
			"worldCharacters": {strings: []string{"id", "characterId"}},
			"worldCreatures":  {strings: []string{"id", "creatureId"}},
		},
	}
	documentShape = &shape{
		objects: map[string]*shape{
			"profile": {
				strings: []string{"name", "bio", "profileImage"},
				lists: map[string]*shape{
					"socialLinks": {strings: []string{"platform", "url", "icon"}},
				},
			},
			"settings": {
				strings: []string{"heroBackgroundImage"},
				bools:   []string{"editMode"},
				lists: map[string]*shape{
					"characterCategories": categoryShape,
					"creatureCategories":  categoryShape,
				},
			},
		},
		lists: map[string]*shape{
			"worlds":     worldShape,
			"characters": subjectShape,
			"creatures":  subjectShape,
		},
	}
)

// Normalize returns a copy of a raw decoded document (as produced by
// encoding/json into an any) upgraded to the current shape.
//
// A singular "subCategory" becomes a one-element "subCategories" list, absent
// or mistyped lists become empty, absent strings become "". Numbers found
// where a string is expected are formatted. Unknown fields are kept. The input
// is never modified. A value that is not a JSON object becomes an empty
// document skeleton.
func Normalize(raw any) map[string]any {
	return normalizeObject(raw, documentShape)
}

func normalizeObject(v any, s *shape) map[string]any {
	in, _ := v.(map[string]any)
	out := maps.Clone(in)
	if out == nil {
		out = map[string]any{}
	}
	if s.fix != nil {
		s.fix(out)
	}
	for _, k := range s.strings {
		out[k] = coerceString(out[k])
	}
	for _, k := range s.bools {
		b, _ := out[k].(bool)
		out[k] = b
	}
	for _, k := range s.strLists {
		l, _ := out[k].([]any)
		n := make([]any, 0, len(l))
		for _, e := range l {
			n = append(n, coerceString(e))
		}
		out[k] = n
	}
	for k, sub := range s.objects {
		out[k] = normalizeObject(out[k], sub)
	}
	for k, sub := range s.lists {
		l, _ := out[k].([]any)
		n := make([]any, 0, len(l))
		for _, e := range l {
			n = append(n, normalizeObject(e, sub))
		}
		out[k] = n
	}
	return out
}

// upgradeSubCategory converts the legacy single sub-category field.
func upgradeSubCategory(m map[string]any) {
	legacy, ok := m["subCategory"]
	if !ok {
		return
	}
	delete(m, "subCategory")
	if _, ok := m["subCategories"].([]any); ok {
		return
	}
	if s := coerceString(legacy); s != "" {
		m["subCategories"] = []any{s}
	}
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
