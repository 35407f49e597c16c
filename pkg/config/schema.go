package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// sourcesSchemaJSON validates the shape of the sources YAML (spec.md §6)
// once it has been round-tripped through encoding/json, rejecting a
// syntactically valid YAML document whose shape doesn't match the documented
// contract (e.g. a missing id/url/type, or an unrecognized source type).
const sourcesSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["sources"],
  "properties": {
    "sources": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "url", "type"],
        "properties": {
          "id":     {"type": "string", "minLength": 1},
          "url":    {"type": "string", "minLength": 1},
          "type":   {"enum": ["eli_sparql", "rss", "html", "press_api"]},
          "freq":   {"type": "string"},
          "active": {"type": "boolean"}
        }
      }
    }
  }
}`

var (
	sourcesSchemaOnce sync.Once
	sourcesSchema     *jsonschema.Schema
	sourcesSchemaErr  error
)

func compiledSourcesSchema() (*jsonschema.Schema, error) {
	sourcesSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		const url = "mem://config/sources.schema.json"
		if err := c.AddResource(url, bytes.NewReader([]byte(sourcesSchemaJSON))); err != nil {
			sourcesSchemaErr = fmt.Errorf("config: load sources schema: %w", err)
			return
		}
		sourcesSchema, sourcesSchemaErr = c.Compile(url)
	})
	return sourcesSchema, sourcesSchemaErr
}

// validateSourcesShape re-marshals v (already yaml.Unmarshal'd into typed Go
// values) through encoding/json and validates it against sourcesSchemaJSON.
func validateSourcesShape(v any) error {
	schema, err := compiledSourcesSchema()
	if err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("config: marshal for schema validation: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("config: decode for schema validation: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return fmt.Errorf("config: sources shape invalid: %w", err)
	}
	return nil
}
