package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfigFile overlays configuration from a YAML file onto the values
// already loaded from the environment. File values win for any field the
// file sets.
func LoadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &CFG); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	CFG.ConfigFile = path
	return nil
}
