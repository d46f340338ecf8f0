package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// ManifestPath is the CSV manifest of (unitID, sourcePath) rows.
	ManifestPath string
	// RunConfigPath is the HCL run-configuration file.
	RunConfigPath string

	LogFormat string
	LogLevel  string

	// Workers overrides the configured concurrency when positive.
	Workers int
}

// NewConfig validates the required fields and returns the config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ManifestPath == "" {
		return nil, errors.New("ManifestPath is a required configuration field and cannot be empty")
	}
	if cfg.RunConfigPath == "" {
		return nil, errors.New("RunConfigPath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
