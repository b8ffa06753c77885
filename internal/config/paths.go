package config

import (
	"os"
	"path/filepath"
)

const appDirName = ".canopy"

// DataDir returns the base data directory for Canopy.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, appDirName), nil
}

// ConfigPath returns the path to the TOML settings file.
func ConfigPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "config.toml"), nil
}

// LogPath returns the path of the UI log file. The TUI owns the
// terminal, so log output goes to a file instead of stderr.
func LogPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "canopy.log"), nil
}

// HintDBPath returns the path to the local hint database (last-active
// session, dismissed error signatures).
func HintDBPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "hints.db"), nil
}
