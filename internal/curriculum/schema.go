package curriculum

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const catalogSchema = `{
  "type": "object",
  "required": ["topics"],
  "properties": {
    "topics": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id": {"type": "integer", "minimum": 1},
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "color": {"type": "string"},
          "position": {
            "type": "object",
            "properties": {
              "x": {"type": "integer"},
              "y": {"type": "integer"}
            }
          }
        }
      }
    }
  }
}`

const bankSchema = `{
  "type": "object",
  "required": ["quizzes"],
  "properties": {
    "aliases": {
      "type": "object",
      "additionalProperties": {"type": "string", "minLength": 1}
    },
    "quizzes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["key", "questions"],
        "properties": {
          "key": {"type": "string", "minLength": 1},
          "questions": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["prompt", "options"],
              "properties": {
                "prompt": {"type": "string", "minLength": 1},
                "options": {
                  "type": "array",
                  "minItems": 2,
                  "maxItems": 4,
                  "items": {
                    "type": "object",
                    "required": ["text"],
                    "properties": {
                      "text": {"type": "string", "minLength": 1},
                      "correct": {"type": "boolean"}
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

var (
	catalogValidator = mustSchema(catalogSchema)
	bankValidator    = mustSchema(bankSchema)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("curriculum: invalid embedded schema: %v", err))
	}
	return s
}

// validateYAML decodes raw YAML into generic values and checks it against
// schema before it is decoded into typed structs.
func validateYAML(schema *gojsonschema.Schema, name string, data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	if doc == nil {
		return fmt.Errorf("%s is empty", name)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validating %s: %w", name, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%s does not match schema: %s", name, strings.Join(msgs, "; "))
	}
	return nil
}
