package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DefaultHomeDir returns the default home directory, ~/.interlines, or a
// temporary directory if the user home cannot be determined.
func DefaultHomeDir() string {
	userHome, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".interlines")
	}
	return filepath.Join(userHome, ".interlines")
}

// DefaultConfigPath returns the default config file path for a given home directory.
func DefaultConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// LoadDotenv layers .env files into the process environment before config
// interpolation. Later files never override variables already set; missing
// files are ignored.
func LoadDotenv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env", filepath.Join(DefaultHomeDir(), ".env")}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = godotenv.Load(path)
	}
}
