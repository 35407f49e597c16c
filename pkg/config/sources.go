package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/annex4parser/annex4parser/pkg/models"
)

// sourcesFile is the top-level shape of the sources YAML (spec.md §6): a
// list of poll targets keyed by id.
type sourcesFile struct {
	Sources []models.Source `yaml:"sources" json:"sources"`
}

// LoadSources reads the sources YAML at path and returns its entries,
// mirroring the teacher's LoadProfile/LoadAllProfiles (os.ReadFile +
// yaml.Unmarshal + wrapped error), repurposed for Source rows instead of
// RegionalProfile rows.
func LoadSources(path string) ([]models.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load sources %q: %w", path, err)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse sources %q: %w", path, err)
	}

	if err := validateSourcesShape(f); err != nil {
		return nil, fmt.Errorf("config: %q: %w", path, err)
	}

	for i := range f.Sources {
		if f.Sources[i].Freq == "" {
			f.Sources[i].Freq = defaultFreq(f.Sources[i].Type)
		}
	}

	return f.Sources, nil
}

// defaultFreq returns the scheduler's default poll cadence per source type
// (spec.md §4.10: ELI every 6h, RSS every 1h, HTML every 24h).
func defaultFreq(t models.SourceType) string {
	switch t {
	case models.SourceTypeELISPARQL:
		return "6h"
	case models.SourceTypeRSS:
		return "1h"
	default:
		return "24h"
	}
}
