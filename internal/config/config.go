// Package config loads the actes client settings from defaults, an optional
// YAML file and ACTES_* environment variables, in that order.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/csheth/actes/internal/viewer"
)

const (
	// FileName is the default config file looked up in the working directory.
	FileName  = ".actes.yml"
	envPrefix = "ACTES_"
)

// Config is the top-level configuration, corresponding to .actes.yml.
type Config struct {
	APIBaseURL  string       `yaml:"api_base_url" koanf:"api_base_url"`
	DownloadDir string       `yaml:"download_dir" koanf:"download_dir"`
	CacheDir    string       `yaml:"cache_dir" koanf:"cache_dir"`
	SessionFile string       `yaml:"session_file" koanf:"session_file"`
	LogFile     string       `yaml:"log_file" koanf:"log_file"`
	LogLevel    string       `yaml:"log_level" koanf:"log_level"`
	Watch       bool         `yaml:"watch" koanf:"watch"`
	Viewer      ViewerConfig `yaml:"viewer" koanf:"viewer"`
}

// ViewerConfig holds the document viewer settings.
type ViewerConfig struct {
	// Height is the surface height in rows; 0 uses the terminal height.
	Height       int     `yaml:"height" koanf:"height"`
	InitialScale float64 `yaml:"initial_scale" koanf:"initial_scale"`
	FitMode      string  `yaml:"fit_mode" koanf:"fit_mode"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	stateDir := defaultStateDir()
	return &Config{
		APIBaseURL:  "http://localhost:8000",
		DownloadDir: ".",
		SessionFile: filepath.Join(stateDir, "session.json"),
		LogFile:     filepath.Join(stateDir, "actes.log"),
		LogLevel:    "info",
		Watch:       true,
		Viewer: ViewerConfig{
			InitialScale: 1.25,
			FitMode:      "page",
		},
	}
}

func defaultStateDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "actes")
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (ACTES_*). A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	// ACTES_API_BASE_URL -> api_base_url, ACTES_VIEWER_FIT_MODE -> viewer.fit_mode.
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if rest, ok := strings.CutPrefix(key, "viewer_"); ok {
		return "viewer." + rest
	}
	return key
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("api_base_url is required")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api_base_url %q: must be an absolute URL", c.APIBaseURL)
	}
	if c.LogLevel != "" && !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q: must be one of debug, info, warn, error", c.LogLevel)
	}
	if c.Viewer.Height < 0 {
		return fmt.Errorf("viewer.height must be non-negative")
	}
	if c.Viewer.InitialScale <= 0 {
		return fmt.Errorf("viewer.initial_scale must be positive")
	}
	if c.Viewer.InitialScale < viewer.MinScale || c.Viewer.InitialScale > viewer.MaxScale {
		return fmt.Errorf("viewer.initial_scale %.2f outside [%.2f, %.2f]", c.Viewer.InitialScale, viewer.MinScale, viewer.MaxScale)
	}
	if _, ok := viewer.ParseFitMode(c.Viewer.FitMode); !ok {
		return fmt.Errorf("invalid viewer.fit_mode %q: must be one of page, none", c.Viewer.FitMode)
	}
	return nil
}

// FitMode returns the parsed viewer fit mode.
func (c *Config) FitMode() viewer.FitMode {
	mode, _ := viewer.ParseFitMode(c.Viewer.FitMode)
	return mode
}
