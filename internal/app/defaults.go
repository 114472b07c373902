package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables overriding the default locations.
const (
	EnvConfigPath = "ALMASEO_CONFIG_PATH"
	EnvHome       = "ALMASEO_HOME"
)

// Paths holds the default file locations for a single-machine install.
type Paths struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// DefaultPaths returns application default paths, checking environment variables first:
//   - ALMASEO_CONFIG_PATH: config file location (default: ~/.config/almaseo.toml)
//   - ALMASEO_HOME: base directory for the database, archive, keys and logs
//     (default: ~/.local/share/almaseo)
func DefaultPaths() (Paths, error) {
	configPath, err := envOrHome(EnvConfigPath, ".config", "almaseo.toml")
	if err != nil {
		return Paths{}, err
	}
	baseDir, err := envOrHome(EnvHome, ".local", "share", "almaseo")
	if err != nil {
		return Paths{}, err
	}
	return Paths{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// envOrHome returns the value of env, or the path under the user's home
// directory when env is unset.
func envOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
