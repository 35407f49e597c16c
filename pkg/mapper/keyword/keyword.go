// Package keyword implements the keyword-phrase document mapper (spec.md
// §4.7): a YAML phrase→section_code map loaded from an environment-var or
// default path, falling back to a built-in map when the file is missing or
// malformed.
package keyword

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// EnvVar is the environment variable carrying the keyword map's YAML path.
const EnvVar = "ANNEX4_KEYWORDS"

// DefaultPath is used when EnvVar is unset.
const DefaultPath = "/etc/annex4parser/keywords.yaml"

// MatchConfidence is the score contributed by any single keyword hit.
const MatchConfidence = 0.8

// defaultMap is used when no keyword file can be loaded.
var defaultMap = map[string]string{
	"risk management system":       "Article9",
	"data governance":              "Article10",
	"technical documentation":      "Article11",
	"record-keeping":               "Article12",
	"transparency":                 "Article13",
	"human oversight":              "Article14",
	"accuracy":                     "Article15",
	"robustness":                   "Article15",
	"cybersecurity":                "Article15",
	"conformity assessment":        "Article43",
	"quality management system":    "Article17",
	"post-market monitoring":       "Article72",
	"serious incident":             "Article73",
	"technical documentation annex": "AnnexIV",
	"conformity assessment procedure": "AnnexVI",
}

// Mapper matches phrases in a document against canonical section codes.
type Mapper struct {
	mapping map[string]string // lower-cased phrase -> section_code
}

// Load reads a YAML phrase->section_code map from path. A file whose values
// are nested mappings or sequences fails to decode; scalar values such as
// numbers decode as their text; an empty or null value is rejected by schema
// validation. Every rejection is returned as an error (spec.md §6: "a
// malformed file falls back to the built-in default").
func Load(path string) (*Mapper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if err := validateShape(raw); err != nil {
		return nil, err
	}

	mapping := make(map[string]string, len(raw))
	for phrase, code := range raw {
		mapping[strings.ToLower(phrase)] = code
	}
	return &Mapper{mapping: mapping}, nil
}

const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": {"type": "string", "minLength": 1}
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		const url = "mem://mapper/keyword/schema.json"
		if err := c.AddResource(url, bytes.NewReader([]byte(schemaJSON))); err != nil {
			schemaErr = fmt.Errorf("keyword: load schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(url)
	})
	return schema, schemaErr
}

// validateShape checks raw against schemaJSON, rejecting any key whose
// value is an empty string.
func validateShape(raw map[string]string) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("keyword: marshal for schema validation: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("keyword: decode for schema validation: %w", err)
	}
	return s.Validate(generic)
}

// LoadDefault loads the keyword map from EnvVar if set, else DefaultPath;
// falls back to the built-in default map when the file is missing or
// malformed (spec.md §4.7).
func LoadDefault() *Mapper {
	path := os.Getenv(EnvVar)
	if path == "" {
		path = DefaultPath
	}

	if m, err := Load(path); err == nil {
		return m
	}

	mapping := make(map[string]string, len(defaultMap))
	for phrase, code := range defaultMap {
		mapping[strings.ToLower(phrase)] = code
	}
	return &Mapper{mapping: mapping}
}

// Match scans text for whole-word, case-insensitive occurrences of the
// mapper's phrases and returns {section_code: score}, collapsing multiple
// hits on the same section to their max.
func (m *Mapper) Match(text string) map[string]float64 {
	scores := make(map[string]float64)
	lower := strings.ToLower(text)

	for phrase, code := range m.mapping {
		pattern := `\b` + regexp.QuoteMeta(phrase) + `\b`
		if regexp.MustCompile(pattern).MatchString(lower) {
			if scores[code] < MatchConfidence {
				scores[code] = MatchConfidence
			}
		}
	}

	return scores
}
