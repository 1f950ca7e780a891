package migrations

import (
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and parses a --migrations-config YAML document, then
// validates it into a Registry via Load.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, err
	}
	return Load(fc)
}
