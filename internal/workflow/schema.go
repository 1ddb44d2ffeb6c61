package workflow

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/aosanya/agentorch/internal/orcherr"
)

// documentSchema constrains the shape of a posted workflow definition
// before it is unmarshaled into a Workflow and run through Validate.
// gojsonschema catches malformed documents (wrong types, missing
// required fields) with a readable error list; Validate then checks the
// domain invariants (acyclic, unique ids, resolvable dependencies) that
// a JSON Schema cannot express.
const documentSchema = `{
	"type": "object",
	"required": ["id", "name", "steps"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"variables": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "type"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"type": {"type": "string"},
					"required": {"type": "boolean"}
				}
			}
		},
		"steps": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["id", "name", "type"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string", "minLength": 1},
					"type": {"type": "string"},
					"dependsOn": {"type": "array", "items": {"type": "string"}}
				}
			}
		}
	}
}`

var schema *gojsonschema.Schema

func init() {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	if err != nil {
		panic(fmt.Sprintf("workflow: invalid embedded document schema: %v", err))
	}
	schema = s
}

// ValidateDocument checks that data is a well-formed workflow document
// before it is ever deserialized into a Workflow. It returns an
// orcherr.ValidationFailed listing every schema violation found, not just
// the first.
func ValidateDocument(data []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return orcherr.New(orcherr.ValidationFailed, fmt.Errorf("schema validation error: %w", err))
	}
	if result.Valid() {
		return nil
	}

	msg := "workflow document does not match schema:"
	for _, desc := range result.Errors() {
		msg += fmt.Sprintf("\n  - %s", desc)
	}
	return orcherr.New(orcherr.ValidationFailed, fmt.Errorf(msg))
}
