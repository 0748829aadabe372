package cmd

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDataDir is the default data directory to use for the databases and
// other persistence requirements.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		// As we cannot guess a stable location, return empty and handle later
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Kestrel")
	case "windows":
		return filepath.Join(home, "AppData", "Local", "Kestrel")
	default:
		return filepath.Join(home, ".kestrel")
	}
}
