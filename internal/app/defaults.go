package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - VBT_CONFIG_PATH: settings file location (default: ~/.config/vbt.toml)
//   - VBT_HOME: base directory for vbt data (default: ~/.local/share/vbt)
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
		"status_path": filepath.Join(baseDir, "status"),
	}, nil
}

// getConfigPath returns the settings file path, checking VBT_CONFIG_PATH env
// var first, then falling back to the default ~/.config/vbt.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("VBT_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "vbt.toml"), nil
}

// getBaseDir returns the base directory for vbt data, checking VBT_HOME env
// var first, then falling back to the XDG default ~/.local/share/vbt.
func getBaseDir() (string, error) {
	if path := os.Getenv("VBT_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "vbt"), nil
}
