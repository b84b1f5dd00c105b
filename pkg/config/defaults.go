package config

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed default.yml
var defaultConfigYAML string

// loadDefaultConfig loads the embedded default configuration.
//
// Returns:
//   - *GlobalConfig: the default configuration; an empty one if the
//     embedded YAML does not parse
func loadDefaultConfig() *GlobalConfig {
	var cfg GlobalConfig
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &cfg); err == nil {
		return &cfg
	}
	return &GlobalConfig{}
}

// Default returns a fresh copy of the built-in configuration.
func Default() *GlobalConfig {
	cfg := loadDefaultConfig()
	cfg.SetRootConfig(true)
	return cfg
}

// GetDefaultConfig returns the embedded default configuration YAML.
//
// Returns:
//   - string: the default configuration as YAML
func GetDefaultConfig() string {
	return defaultConfigYAML
}
