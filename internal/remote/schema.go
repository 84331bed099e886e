package remote

import (
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// catalogSchema gates decode of CDN catalog payloads. Kept permissive on
// unknown fields so the CDN can ship new attributes without breaking old
// clients, but strict on the shapes the resolution engine depends on.
const catalogSchema = `{
  "type": "object",
  "properties": {
    "configs": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "string"},
          "kind": {"type": "string"},
          "startedAt": {"type": "string"},
          "endedAt": {"type": "string"},
          "priority": {"type": "integer"},
          "seed": {"type": "integer"},
          "frequency": {
            "type": "object",
            "properties": {
              "period": {"type": "integer"},
              "unit": {"type": "string"}
            }
          },
          "eventFrequencyConditions": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "eventName": {"type": "string"},
                "lookbackPeriod": {"type": "integer"},
                "threshold": {"type": "integer"},
                "operator": {"type": "string"}
              }
            }
          },
          "distribution": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "property": {"type": "string"},
                "operator": {"type": "string"},
                "value": {"type": "string"},
                "asType": {"type": "string"}
              }
            }
          },
          "baseline": {"$ref": "#/$defs/variant"},
          "variants": {
            "type": "array",
            "items": {"$ref": "#/$defs/variant"}
          }
        }
      }
    }
  },
  "$defs": {
    "variant": {
      "type": "object",
      "properties": {
        "id": {"type": "string"},
        "weight": {"type": "integer"},
        "configs": {
          "type": "array",
          "items": {
            "type": "object",
            "properties": {
              "key": {"type": "string"},
              "value": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

type schemaRegistry struct {
	once    sync.Once
	initErr error
	catalog *jsonschema.Schema
}

var schemas schemaRegistry

func initSchemas() error {
	schemas.once.Do(func() {
		compiled, err := jsonschema.CompileString("catalog", catalogSchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		schemas.catalog = compiled
	})
	return schemas.initErr
}

// validateCatalog checks a raw catalog payload against the compiled schema.
func validateCatalog(raw []byte) error {
	if err := initSchemas(); err != nil {
		return err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return schemas.catalog.Validate(payload)
}
