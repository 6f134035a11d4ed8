package directive

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Block is the shape of the JSON object a model appends to its reply
type Block struct {
	NotepadModifications []Directive `json:"notepad_modifications,omitempty" jsonschema:"description=Ordered edits applied to the shared notepad"`
	DiscussionComplete   bool        `json:"discussion_complete,omitempty" jsonschema:"description=Set when the discussion has reached its conclusion"`
}

// Schema describes Block for inclusion in system prompts
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	schema := r.Reflect(&Block{})
	schema.Title = "Notepad directive block"
	schema.Description = "JSON object placed in a fenced ```json block at the very end of a reply."
	schema.Required = nil
	return schema
}

// SchemaJSON renders Schema as indented JSON
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}
