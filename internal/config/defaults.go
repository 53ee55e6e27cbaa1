package config

import (
	"os"
	"path/filepath"
	"time"
)

// MaxWidth matches the sidebar's upper width bound.
const MaxWidth = 1000

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		StorePath:    filepath.Join(userDir(os.UserConfigDir), "options.db"),
		LogFile:      filepath.Join(userDir(os.UserCacheDir), "codetree.log"),
		LogLevel:     "info",
		MinWidth:     200,
		DefaultWidth: 280,
		Timeout:      30 * time.Second,
		RateLimit:    5,
		Theme:        "auto",
		Mouse:        true,
		Sites:        map[string]string{},
		API:          map[string]string{},
	}
}
