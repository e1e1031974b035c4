package config

import (
	"os"
	"path/filepath"
)

// ConfigPathEnv overrides the config file location.
const ConfigPathEnv = "PLANCOORD_CONFIG"

// GetConfigPath returns the configuration file path: $PLANCOORD_CONFIG if
// set, otherwise ~/.plancoord/config.
func GetConfigPath() (string, error) {
	if configPath := os.Getenv(ConfigPathEnv); configPath != "" {
		return configPath, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".plancoord", "config"), nil
}

// EnsureConfigDir ensures that the configuration directory exists.
func EnsureConfigDir() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}
