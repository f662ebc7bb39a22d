// Editing operations on a Document. They mutate the receiver; callers work on
// a Clone and save the result.

package portfolio

import (
	"errors"
	"slices"
	"strings"
)

var (
	// ErrNameRequired is returned when a world is created without a name.
	ErrNameRequired = errors.New("name is required")
	// ErrNotFound is returned when an id does not match any entry.
	ErrNotFound = errors.New("not found")
	// ErrLastWorld is returned when deleting the only remaining world.
	ErrLastWorld = errors.New("cannot delete the last world")
)

// All matches every category in FilterSubjects.
const All = ""

// AddWorld appends a new world and returns its id.
func (d *Document) AddWorld(w World) (string, error) {
	w.Name = strings.TrimSpace(w.Name)
	if w.Name == "" {
		return "", ErrNameRequired
	}
	w.ID = NewID()
	w = w.Clone()
	w.WorldCharacters = nonNil(w.WorldCharacters)
	w.WorldCreatures = nonNil(w.WorldCreatures)
	w.Creatures = nonNil(w.Creatures)
	w.RelatedCharacters = nonNil(w.RelatedCharacters)
	w.RelatedCreatures = nonNil(w.RelatedCreatures)
	d.Worlds = append(d.Worlds, w)
	return w.ID, nil
}

// World returns the world with the given id. The pointer aliases d.Worlds.
func (d *Document) World(id string) *World {
	for i := range d.Worlds {
		if d.Worlds[i].ID == id {
			return &d.Worlds[i]
		}
	}
	return nil
}

// UpdateWorld applies fn to the world with the given id. The id is kept.
func (d *Document) UpdateWorld(id string, fn func(w *World)) error {
	w := d.World(id)
	if w == nil {
		return ErrNotFound
	}
	fn(w)
	w.ID = id
	return nil
}

// DeleteWorld removes a world. The last world cannot be deleted.
func (d *Document) DeleteWorld(id string) error {
	i := slices.IndexFunc(d.Worlds, func(w World) bool { return w.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	if len(d.Worlds) <= 1 {
		return ErrLastWorld
	}
	d.Worlds = slices.Delete(d.Worlds, i, i+1)
	return nil
}

// AddWorldCharacter places an existing character in a world and returns the
// new reference id.
func (d *Document) AddWorldCharacter(worldID, characterID string) (string, error) {
	w := d.World(worldID)
	if w == nil || d.Character(characterID) == nil {
		return "", ErrNotFound
	}
	ref := WorldCharacterRef{ID: NewID(), CharacterID: characterID}
	w.WorldCharacters = append(w.WorldCharacters, ref)
	return ref.ID, nil
}

// AddWorldCreature places an existing creature in a world and returns the new
// reference id.
func (d *Document) AddWorldCreature(worldID, creatureID string) (string, error) {
	w := d.World(worldID)
	if w == nil || d.Creature(creatureID) == nil {
		return "", ErrNotFound
	}
	ref := WorldCreatureRef{ID: NewID(), CreatureID: creatureID}
	w.WorldCreatures = append(w.WorldCreatures, ref)
	return ref.ID, nil
}

// RemoveWorldCharacter removes a character reference by its reference id.
func (d *Document) RemoveWorldCharacter(worldID, refID string) error {
	w := d.World(worldID)
	if w == nil {
		return ErrNotFound
	}
	n := len(w.WorldCharacters)
	w.WorldCharacters = slices.DeleteFunc(w.WorldCharacters, func(r WorldCharacterRef) bool { return r.ID == refID })
	if len(w.WorldCharacters) == n {
		return ErrNotFound
	}
	return nil
}

// RemoveWorldCreature removes a creature reference by its reference id.
func (d *Document) RemoveWorldCreature(worldID, refID string) error {
	w := d.World(worldID)
	if w == nil {
		return ErrNotFound
	}
	n := len(w.WorldCreatures)
	w.WorldCreatures = slices.DeleteFunc(w.WorldCreatures, func(r WorldCreatureRef) bool { return r.ID == refID })
	if len(w.WorldCreatures) == n {
		return ErrNotFound
	}
	return nil
}

// WorldCharacters returns the characters referenced by a world, in reference
// order. Dangling references are skipped.
func (d *Document) WorldCharacters(w *World) []Subject {
	var out []Subject
	for _, r := range w.WorldCharacters {
		if c := d.Character(r.CharacterID); c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// WorldCreatures returns the creatures referenced by a world, in reference
// order. Dangling references are skipped.
func (d *Document) WorldCreatures(w *World) []Subject {
	var out []Subject
	for _, r := range w.WorldCreatures {
		if c := d.Creature(r.CreatureID); c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// Character returns the character with the given id. The pointer aliases
// d.Characters.
func (d *Document) Character(id string) *Subject {
	return findSubject(d.Characters, id)
}

// Creature returns the creature with the given id. The pointer aliases
// d.Creatures.
func (d *Document) Creature(id string) *Subject {
	return findSubject(d.Creatures, id)
}

// UpsertCharacter replaces the character with the same id, or appends it with
// a new id when s.ID is empty or unknown. It returns the stored id.
func (d *Document) UpsertCharacter(s Subject) string {
	return upsertSubject(&d.Characters, s)
}

// UpsertCreature is UpsertCharacter for creatures.
func (d *Document) UpsertCreature(s Subject) string {
	return upsertSubject(&d.Creatures, s)
}

// DeleteCharacter removes a character. World references to it are left
// dangling.
func (d *Document) DeleteCharacter(id string) error {
	return deleteSubject(&d.Characters, id)
}

// DeleteCreature removes a creature. World references to it are left
// dangling.
func (d *Document) DeleteCreature(id string) error {
	return deleteSubject(&d.Creatures, id)
}

// ToggleSubCategory adds sub to the subject's sub-categories, or removes
// every occurrence of it when already present.
func (s *Subject) ToggleSubCategory(sub string) {
	if slices.Contains(s.SubCategories, sub) {
		s.SubCategories = slices.DeleteFunc(s.SubCategories, func(v string) bool { return v == sub })
		return
	}
	s.SubCategories = append(s.SubCategories, sub)
}

// SubCategories returns every sub-category across categories, deduplicated, in
// first-seen order.
func SubCategories(categories []Category) []string {
	var out []string
	for _, c := range categories {
		for _, s := range c.Subs {
			if !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out
}

// FilterSubjects returns the subjects matching a main category and a
// sub-category. All matches everything. A subject matches a main category
// when it carries any of that category's sub-categories.
func FilterSubjects(subjects []Subject, categories []Category, main, sub string) []Subject {
	var subs []string
	if main != All {
		i := slices.IndexFunc(categories, func(c Category) bool { return c.Main == main })
		if i >= 0 {
			subs = categories[i].Subs
		}
	}
	var out []Subject
	for _, s := range subjects {
		if main != All && !slices.ContainsFunc(s.SubCategories, func(v string) bool { return slices.Contains(subs, v) }) {
			continue
		}
		if sub != All && !slices.Contains(s.SubCategories, sub) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SetProfile stores p after cleaning its social links: whitespace is trimmed,
// URLs without a scheme get https://, and links missing a platform or a URL
// are dropped.
func (d *Document) SetProfile(p Profile) {
	p = p.Clone()
	links := make([]SocialLink, 0, len(p.SocialLinks))
	for _, l := range p.SocialLinks {
		l.Platform = strings.TrimSpace(l.Platform)
		l.URL = NormalizeURL(l.URL)
		if l.Platform == "" || l.URL == "" {
			continue
		}
		links = append(links, l)
	}
	p.SocialLinks = links
	d.Profile = p
}

// NormalizeURL trims u and prefixes https:// when it has no http or https
// scheme. Blank input returns "".
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	l := strings.ToLower(u)
	if strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") {
		return u
	}
	return "https://" + u
}

func findSubject(list []Subject, id string) *Subject {
	if id == "" {
		return nil
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i]
		}
	}
	return nil
}

func upsertSubject(list *[]Subject, s Subject) string {
	s = s.Clone()
	s.fillEmpty()
	if c := findSubject(*list, s.ID); c != nil {
		*c = s
		return s.ID
	}
	s.ID = NewID()
	*list = append(*list, s)
	return s.ID
}

func deleteSubject(list *[]Subject, id string) error {
	n := len(*list)
	*list = slices.DeleteFunc(*list, func(s Subject) bool { return s.ID == id })
	if len(*list) == n {
		return ErrNotFound
	}
	return nil
}
