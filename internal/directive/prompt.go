package directive

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"
)

//go:embed instructions.tmpl
var instructionsTemplate string

var instructions = template.Must(template.New("instructions").Parse(instructionsTemplate))

type instructionsData struct {
	Notepad string
	Schema  string
	Kinds   []Kind
}

// Instructions renders the system prompt section that tells a model how to emit the directive block, including the
// current notepad content
func Instructions(notepad string) (string, error) {
	schema, err := SchemaJSON()
	if err != nil {
		return "", err
	}
	data := instructionsData{
		Notepad: notepad,
		Schema:  string(schema),
		Kinds:   Kinds(),
	}

	var buf bytes.Buffer
	if err := instructions.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute instructions template: %w", err)
	}
	return buf.String(), nil
}
