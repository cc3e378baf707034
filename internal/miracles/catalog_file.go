package miracles

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogFile is the on-disk shape of a catalog extension.
//
//	miracles:
//	  - id: rain_of_plenty
//	    cost: 60
//	    target_type: territory
//	    duration: 4
//	    effect:
//	      food_multiplier: 2.0
type CatalogFile struct {
	// Replace drops the default entries instead of extending them.
	Replace  bool      `yaml:"replace"`
	Miracles []Miracle `yaml:"miracles"`
}

// LoadCatalogFile reads a YAML extension and merges it over the defaults.
func LoadCatalogFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes a YAML extension and merges it over the defaults.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var f CatalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("miracle catalog: %w", err)
	}
	var entries []Miracle
	if !f.Replace {
		entries = DefaultMiracles()
	}
	entries = append(entries, f.Miracles...)
	c, err := NewCatalog(entries...)
	if err != nil {
		return nil, fmt.Errorf("miracle catalog: %w", err)
	}
	return c, nil
}
