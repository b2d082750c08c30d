package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/csheth/actes/internal/viewer"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.APIBaseURL != "http://localhost:8000" {
		t.Errorf("expected default api_base_url, got %q", cfg.APIBaseURL)
	}
	if cfg.Viewer.InitialScale != 1.25 {
		t.Errorf("expected default initial_scale 1.25, got %v", cfg.Viewer.InitialScale)
	}
	if cfg.FitMode() != viewer.FitPage {
		t.Errorf("expected fit mode page, got %v", cfg.FitMode())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", ".actes.yml")

	original := DefaultConfig()
	original.APIBaseURL = "https://actes.mairie.example/api"
	original.DownloadDir = filepath.Join(dir, "downloads")
	original.Viewer.FitMode = "none"
	original.Viewer.InitialScale = 1.5
	original.Viewer.Height = 40

	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.APIBaseURL != original.APIBaseURL {
		t.Errorf("api_base_url: got %q, want %q", loaded.APIBaseURL, original.APIBaseURL)
	}
	if loaded.DownloadDir != original.DownloadDir {
		t.Errorf("download_dir: got %q, want %q", loaded.DownloadDir, original.DownloadDir)
	}
	if loaded.FitMode() != viewer.FitNone {
		t.Errorf("fit_mode: got %v, want none", loaded.FitMode())
	}
	if loaded.Viewer.InitialScale != 1.5 || loaded.Viewer.Height != 40 {
		t.Errorf("viewer: got %+v", loaded.Viewer)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level, got %q", cfg.LogLevel)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".actes.yml")
	if err := os.WriteFile(path, []byte("api_base_url: http://file.example\nviewer:\n  fit_mode: page\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ACTES_API_BASE_URL", "http://env.example")
	t.Setenv("ACTES_VIEWER_FIT_MODE", "none")
	t.Setenv("ACTES_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIBaseURL != "http://env.example" {
		t.Errorf("env should override file, got %q", cfg.APIBaseURL)
	}
	if cfg.Viewer.FitMode != "none" {
		t.Errorf("nested env override failed, got %q", cfg.Viewer.FitMode)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level override failed, got %q", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty base url", mutate: func(c *Config) { c.APIBaseURL = " " }, wantErr: "api_base_url is required"},
		{name: "relative base url", mutate: func(c *Config) { c.APIBaseURL = "/api" }, wantErr: "absolute URL"},
		{name: "zero scale", mutate: func(c *Config) { c.Viewer.InitialScale = 0 }, wantErr: "must be positive"},
		{name: "huge scale", mutate: func(c *Config) { c.Viewer.InitialScale = 9 }, wantErr: "outside"},
		{name: "fit mode", mutate: func(c *Config) { c.Viewer.FitMode = "width" }, wantErr: "fit_mode"},
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: "log_level"},
		{name: "height", mutate: func(c *Config) { c.Viewer.Height = -1 }, wantErr: "viewer.height"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
