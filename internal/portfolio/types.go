// Defines the document types and their deep copy.

package portfolio

import "github.com/maruel/ksid"

// Document is the whole persisted portfolio.
type Document struct {
	Profile    Profile   `json:"profile" jsonschema:"description=Artist profile"`
	Worlds     []World   `json:"worlds" jsonschema:"description=Worlds in display order"`
	Characters []Subject `json:"characters" jsonschema:"description=Characters in display order"`
	Creatures  []Subject `json:"creatures" jsonschema:"description=Creatures in display order"`
	Settings   Settings  `json:"settings"`
}

// Profile describes the portfolio owner.
type Profile struct {
	Name         string       `json:"name"`
	Bio          string       `json:"bio"`
	ProfileImage string       `json:"profileImage" jsonschema:"description=Image reference"`
	SocialLinks  []SocialLink `json:"socialLinks"`
}

// SocialLink is a link shown on the profile.
type SocialLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
	Icon     string `json:"icon,omitempty"`
}

// World is a setting grouping characters and creatures.
type World struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	IconImage       string `json:"iconImage"`
	MainImage       string `json:"mainImage"`
	BackgroundImage string `json:"backgroundImage"`

	// Legacy fields kept so older files round-trip. Nothing reads them.
	Creatures         []WorldCreature `json:"creatures"`
	RelatedCharacters []string        `json:"relatedCharacters"`
	RelatedCreatures  []string        `json:"relatedCreatures"`

	WorldCharacters []WorldCharacterRef `json:"worldCharacters"`
	WorldCreatures  []WorldCreatureRef  `json:"worldCreatures"`
}

// WorldCharacterRef places a character in a world. CharacterID may dangle.
type WorldCharacterRef struct {
	ID          string `json:"id"`
	CharacterID string `json:"characterId"`
}

// WorldCreatureRef places a creature in a world. CreatureID may dangle.
type WorldCreatureRef struct {
	ID         string `json:"id"`
	CreatureID string `json:"creatureId"`
}

// WorldCreature is the legacy inline creature of a world.
type WorldCreature struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Image       string `json:"image"`
	Description string `json:"description"`
}

// Subject is a character or a creature.
type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// SubCategories holds sub-category tags. They match Settings categories by
	// convention only.
	SubCategories []string   `json:"subCategories"`
	ProfileImage  string     `json:"profileImage"`
	MainImage     string     `json:"mainImage"`
	MainImageDesc string     `json:"mainImageDesc"`
	SubImages     []SubImage `json:"subImages"`
	Tags          []string   `json:"tags"`
	Description   string     `json:"description"`
}

// SubImage is a secondary image of a subject.
type SubImage struct {
	Image       string `json:"image"`
	Description string `json:"description"`
}

// Settings holds site-wide settings.
type Settings struct {
	HeroBackgroundImage string     `json:"heroBackgroundImage"`
	CharacterCategories []Category `json:"characterCategories"`
	CreatureCategories  []Category `json:"creatureCategories"`
	EditMode            bool       `json:"editMode"`
}

// Category is a main category with its ordered sub-categories.
type Category struct {
	Main string   `json:"main"`
	Subs []string `json:"subs"`
}

// NewID returns a new identifier for worlds, subjects and references.
//
// Identifiers are time-sortable and never handed out twice by a process.
func NewID() string {
	return ksid.NewID().String()
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	out := &Document{
		Profile:  d.Profile.Clone(),
		Worlds:   make([]World, len(d.Worlds)),
		Settings: d.Settings.Clone(),
	}
	for i := range d.Worlds {
		out.Worlds[i] = d.Worlds[i].Clone()
	}
	out.Characters = cloneSubjects(d.Characters)
	out.Creatures = cloneSubjects(d.Creatures)
	return out
}

// Clone returns a deep copy.
func (p *Profile) Clone() Profile {
	out := *p
	out.SocialLinks = cloneSlice(p.SocialLinks)
	return out
}

// Clone returns a deep copy.
func (w *World) Clone() World {
	out := *w
	out.Creatures = cloneSlice(w.Creatures)
	out.RelatedCharacters = cloneSlice(w.RelatedCharacters)
	out.RelatedCreatures = cloneSlice(w.RelatedCreatures)
	out.WorldCharacters = cloneSlice(w.WorldCharacters)
	out.WorldCreatures = cloneSlice(w.WorldCreatures)
	return out
}

// Clone returns a deep copy.
func (s *Subject) Clone() Subject {
	out := *s
	out.SubCategories = cloneSlice(s.SubCategories)
	out.SubImages = cloneSlice(s.SubImages)
	out.Tags = cloneSlice(s.Tags)
	return out
}

// Clone returns a deep copy.
func (s *Settings) Clone() Settings {
	out := *s
	out.CharacterCategories = cloneCategories(s.CharacterCategories)
	out.CreatureCategories = cloneCategories(s.CreatureCategories)
	return out
}

// ImageRefs returns every non-empty image reference in the document.
func (d *Document) ImageRefs() []string {
	var refs []string
	add := func(s ...string) {
		for _, r := range s {
			if r != "" {
				refs = append(refs, r)
			}
		}
	}
	add(d.Profile.ProfileImage, d.Settings.HeroBackgroundImage)
	for i := range d.Worlds {
		w := &d.Worlds[i]
		add(w.IconImage, w.MainImage, w.BackgroundImage)
		for _, c := range w.Creatures {
			add(c.Image)
		}
	}
	for _, list := range [][]Subject{d.Characters, d.Creatures} {
		for i := range list {
			add(list[i].ProfileImage, list[i].MainImage)
			for _, si := range list[i].SubImages {
				add(si.Image)
			}
		}
	}
	return refs
}

// fillEmpty replaces nil slices with empty ones so the JSON form always
// carries arrays.
func (d *Document) fillEmpty() {
	d.Profile.SocialLinks = nonNil(d.Profile.SocialLinks)
	d.Worlds = nonNil(d.Worlds)
	for i := range d.Worlds {
		w := &d.Worlds[i]
		w.Creatures = nonNil(w.Creatures)
		w.RelatedCharacters = nonNil(w.RelatedCharacters)
		w.RelatedCreatures = nonNil(w.RelatedCreatures)
		w.WorldCharacters = nonNil(w.WorldCharacters)
		w.WorldCreatures = nonNil(w.WorldCreatures)
	}
	d.Characters = nonNil(d.Characters)
	d.Creatures = nonNil(d.Creatures)
	for _, list := range [][]Subject{d.Characters, d.Creatures} {
		for i := range list {
			list[i].fillEmpty()
		}
	}
	d.Settings.CharacterCategories = nonNil(d.Settings.CharacterCategories)
	d.Settings.CreatureCategories = nonNil(d.Settings.CreatureCategories)
	for _, list := range [][]Category{d.Settings.CharacterCategories, d.Settings.CreatureCategories} {
		for i := range list {
			list[i].Subs = nonNil(list[i].Subs)
		}
	}
}

func (s *Subject) fillEmpty() {
	s.SubCategories = nonNil(s.SubCategories)
	s.SubImages = nonNil(s.SubImages)
	s.Tags = nonNil(s.Tags)
}

func cloneSubjects(in []Subject) []Subject {
	if in == nil {
		return nil
	}
	out := make([]Subject, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func cloneCategories(in []Category) []Category {
	if in == nil {
		return nil
	}
	out := make([]Category, len(in))
	for i, c := range in {
		out[i] = Category{Main: c.Main, Subs: cloneSlice(c.Subs)}
	}
	return out
}

// cloneSlice copies s, keeping nil as nil.
func cloneSlice[S ~[]E, E any](s S) S {
	if s == nil {
		return nil
	}
	return append(make(S, 0, len(s)), s...)
}

func nonNil[S ~[]E, E any](s S) S {
	if s == nil {
		return S{}
	}
	return s
}
