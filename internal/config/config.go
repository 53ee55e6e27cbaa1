// Package config loads codetree's own settings: where things live on disk and
// how the host talks to the sites. User preferences shown in the options view
// live in the option store instead.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"codetree/internal/site"
)

// EnvPrefix prefixes environment overrides, e.g. CODETREE_LOG_LEVEL.
const EnvPrefix = "CODETREE_"

// Config is the top-level configuration, corresponding to config.yaml.
type Config struct {
	StorePath    string            `yaml:"store_path" koanf:"store_path"`
	LogFile      string            `yaml:"log_file" koanf:"log_file"`
	LogLevel     string            `yaml:"log_level" koanf:"log_level"`
	MinWidth     int               `yaml:"min_width" koanf:"min_width"`
	DefaultWidth int               `yaml:"default_width" koanf:"default_width"`
	Timeout      time.Duration     `yaml:"timeout" koanf:"timeout"`
	RateLimit    float64           `yaml:"rate_limit" koanf:"rate_limit"`
	Remote       string            `yaml:"remote" koanf:"remote"`
	Theme        string            `yaml:"theme" koanf:"theme"`
	Mouse        bool              `yaml:"mouse" koanf:"mouse"`
	Sites        map[string]string `yaml:"sites" koanf:"sites"` // host → site kind
	API          map[string]string `yaml:"api" koanf:"api"`     // site kind → API base URL
}

// DefaultPath is ~/.config/codetree/config.yaml or the platform equivalent.
func DefaultPath() string {
	return filepath.Join(userDir(os.UserConfigDir), "config.yaml")
}

func userDir(base func() (string, error)) string {
	dir, err := base()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "codetree")
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (CODETREE_*). A missing file is not an error.
func Load(path string) (*Config, error) {
	// Hosts in sites contain dots, so keys are split on "/" instead.
	k := koanf.New("/")
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, "/", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path, creating its directory.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

var validThemes = map[string]bool{
	"auto": true, "ascii": true, "dark": true, "dracula": true,
	"light": true, "notty": true, "pink": true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("store_path is required")
	}
	if _, ok := validLevels[c.LogLevel]; !ok {
		return fmt.Errorf("invalid log_level %q: must be one of debug, info, warn, error", c.LogLevel)
	}
	if c.MinWidth <= 0 || c.MinWidth > MaxWidth {
		return fmt.Errorf("min_width must be between 1 and %d", MaxWidth)
	}
	if c.DefaultWidth < c.MinWidth || c.DefaultWidth > MaxWidth {
		return fmt.Errorf("default_width must be between min_width and %d", MaxWidth)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must be non-negative")
	}
	if !validThemes[c.Theme] {
		return fmt.Errorf("invalid theme %q", c.Theme)
	}
	for host, kind := range c.Sites {
		if _, err := site.ParseKind(kind); err != nil {
			return fmt.Errorf("sites.%s: %w", host, err)
		}
	}
	for kind, base := range c.API {
		if _, err := site.ParseKind(kind); err != nil {
			return fmt.Errorf("api.%s: %w", kind, err)
		}
		u, err := url.Parse(base)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("api.%s: invalid base url %q", kind, base)
		}
	}
	return nil
}

// Level returns the slog level for LogLevel.
func (c *Config) Level() slog.Level { return validLevels[c.LogLevel] }

// SiteOverrides maps configured hosts onto site kinds for detection.
func (c *Config) SiteOverrides() map[string]site.Kind {
	out := make(map[string]site.Kind, len(c.Sites))
	for host, kind := range c.Sites {
		if k, err := site.ParseKind(kind); err == nil {
			out[strings.ToLower(host)] = k
		}
	}
	return out
}

// APIBase returns the configured API root for kind, "" for the default.
func (c *Config) APIBase(kind site.Kind) string {
	for k, base := range c.API {
		if strings.EqualFold(k, string(kind)) {
			return strings.TrimRight(base, "/")
		}
	}
	return ""
}
