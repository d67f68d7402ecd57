// Package config loads service configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// FileEnv names the variable pointing at an optional YAML config file.
const FileEnv = "CONFIG_FILE"

// Logging is embedded by every service config.
type Logging struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Debug bool   `yaml:"debug" env:"DEBUG" env-default:"false"`
}

// Storage holds the Azure Storage connection used by optional backends.
type Storage struct {
	ConnectionString string `yaml:"connection_string" env:"STORAGE_CONNECTION_STRING"`
	EventsQueue      string `yaml:"events_queue" env:"EVENTS_QUEUE"`
}

// QueueEnabled reports whether the Azure queue backend is configured.
func (s Storage) QueueEnabled() bool {
	return s.ConnectionString != "" && s.EventsQueue != ""
}

// Load fills cfg from the file named by CONFIG_FILE (when present) and then
// from the environment, which always wins.
func Load(cfg any) error {
	path := os.Getenv(FileEnv)
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return fmt.Errorf("config file %s: %w", path, err)
			}
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s: %w", path, err)
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}
