package portfolio

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON Schema describing a serialized Document.
func Schema() ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	s := r.Reflect(&Document{})
	s.Title = "Portfolio"
	s.Description = "Portfolio document: profile, worlds, characters, creatures and settings."
	return json.MarshalIndent(s, "", "  ")
}
