package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// appDirName is the per-platform application data directory name.
const appDirName = "WabiMail"

// Config holds the storage subsystem configuration.
type Config struct {
	// StorageDir is the directory holding the key file, the database,
	// and the token files.
	StorageDir string

	// CacheRetentionDays is how long cached mail is kept, measured
	// from cache-insertion time.
	CacheRetentionDays int

	// SearchResultLimit caps search results per query.
	SearchResultLimit int

	LogLevel string
}

// LoadConfig loads configuration from environment variables, falling
// back to platform defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		StorageDir:         getEnv("WABIMAIL_STORAGE_DIR", DefaultStorageDir()),
		CacheRetentionDays: getEnvInt("WABIMAIL_CACHE_RETENTION_DAYS", 30),
		SearchResultLimit:  getEnvInt("WABIMAIL_SEARCH_RESULT_LIMIT", 100),
		LogLevel:           getEnv("WABIMAIL_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StorageDir == "" {
		return fmt.Errorf("storage directory is required")
	}
	if c.CacheRetentionDays < 1 {
		return fmt.Errorf("cache retention must be at least 1 day")
	}
	if c.SearchResultLimit < 1 || c.SearchResultLimit > 1000 {
		return fmt.Errorf("search result limit must be between 1 and 1000")
	}
	return nil
}

// DefaultStorageDir returns the platform-appropriate application data
// directory:
//
//	Windows: %APPDATA%\WabiMail
//	macOS:   ~/Library/Application Support/WabiMail
//	Linux:   $XDG_DATA_HOME/WabiMail or ~/.local/share/WabiMail
func DefaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appDirName)
		}
		return filepath.Join(home, appDirName)
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appDirName)
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, appDirName)
		}
		return filepath.Join(home, ".local", "share", appDirName)
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a
// default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
