package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// loadYAML merges a YAML file into cfg. A missing file is not an error;
// running purely on env vars is the common deployment.
func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
