package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - FSWATCHER_CONFIG_PATH: config file location (default: $XDG_CONFIG_HOME/fswatcher/config.toml)
//   - FSWATCHER_HOME: base directory for fswatcher data (default: ~/.local/share/fswatcher)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking FSWATCHER_CONFIG_PATH first,
// then XDG_CONFIG_HOME, then ~/.config.
func getConfigPath() (string, error) {
	if path := os.Getenv("FSWATCHER_CONFIG_PATH"); path != "" {
		return path, nil
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "fswatcher", "config.toml"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "fswatcher", "config.toml"), nil
}

// getBaseDir returns the base directory for fswatcher data, checking FSWATCHER_HOME first,
// then falling back to the XDG default ~/.local/share/fswatcher.
func getBaseDir() (string, error) {
	if path := os.Getenv("FSWATCHER_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "fswatcher"), nil
}
