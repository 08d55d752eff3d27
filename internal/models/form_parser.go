package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const formSchemaURL = "mem://schemas/form.json"

// formSchema describes the subset of the host form definition this service relies on
const formSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["ID", "fields", "processors"],
  "properties": {
    "ID": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "fields": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["ID", "slug"],
        "properties": {
          "ID": {"type": "string", "minLength": 1},
          "slug": {"type": "string", "minLength": 1},
          "type": {"type": "string"},
          "config": {"type": "object"}
        }
      }
    },
    "processors": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["ID", "type", "config"],
        "properties": {
          "ID": {"type": "string", "minLength": 1},
          "type": {"type": "string", "minLength": 1},
          "config": {
            "type": "object",
            "properties": {
              "contact_link": {"type": ["string", "integer"]},
              "enabled_entities": {"type": ["object", "array"]},
              "transforms": {
                "type": "object",
                "additionalProperties": {
                  "type": "object",
                  "additionalProperties": {"type": "string"}
                }
              }
            }
          }
        }
      }
    }
  }
}`

// Violation is a single schema violation found in a form definition
type Violation struct {
	Location string `json:"location"`
	Message  string `json:"message"`
}

// FormParser validates and decodes form definitions
type FormParser struct {
	schema *jsonschema.Schema
}

// NewFormParser creates a new form parser with the form schema compiled
func NewFormParser() (*FormParser, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(formSchemaURL, strings.NewReader(formSchema)); err != nil {
		return nil, fmt.Errorf("failed to add form schema: %v", err)
	}
	compiled, err := compiler.Compile(formSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile form schema: %v", err)
	}
	return &FormParser{schema: compiled}, nil
}

// Validate checks a raw form definition against the schema and returns
// every violation found. A nil slice means the definition is valid.
func (p *FormParser) Validate(data []byte) ([]Violation, error) {
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %v", err)
	}
	err := p.schema.Validate(doc)
	if err == nil {
		return nil, nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return nil, err
	}
	var violations []Violation
	for _, e := range verr.BasicOutput().Errors {
		if e.Error == "" || strings.HasPrefix(e.Error, "doesn't validate with") {
			continue
		}
		violations = append(violations, Violation{Location: e.InstanceLocation, Message: e.Error})
	}
	if len(violations) == 0 {
		violations = append(violations, Violation{Location: verr.InstanceLocation, Message: verr.Message})
	}
	return violations, nil
}

// ParseForm validates and decodes a form definition
func (p *FormParser) ParseForm(data []byte) (*Form, error) {
	violations, err := p.Validate(data)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		return nil, &SchemaError{Violations: violations}
	}

	var form Form
	if err := json.Unmarshal(data, &form); err != nil {
		return nil, fmt.Errorf("failed to unmarshal form: %v", err)
	}
	if form.Fields == nil {
		form.Fields = make(map[string]*Field)
	}
	for id, field := range form.Fields {
		if field.ID == "" {
			field.ID = id
		}
	}
	return &form, nil
}

// SchemaError is returned when a form definition does not match the schema
type SchemaError struct {
	Violations []Violation
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Location, v.Message))
	}
	return "invalid form definition: " + strings.Join(parts, "; ")
}
