package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.LogLevel() != DefaultLogLevel {
		t.Errorf("LogLevel() = %q, want %q", cfg.LogLevel(), DefaultLogLevel)
	}
	if cfg.TextModel() != DefaultTextModel {
		t.Errorf("TextModel() = %q, want %q", cfg.TextModel(), DefaultTextModel)
	}
	if cfg.ImageModel() != DefaultImageModel {
		t.Errorf("ImageModel() = %q, want %q", cfg.ImageModel(), DefaultImageModel)
	}
	if cfg.VideoModel() != DefaultVideoModel {
		t.Errorf("VideoModel() = %q, want %q", cfg.VideoModel(), DefaultVideoModel)
	}
	if cfg.RenderPollInterval() != DefaultRenderPollSeconds*time.Second {
		t.Errorf("RenderPollInterval() = %v, want %v", cfg.RenderPollInterval(), DefaultRenderPollSeconds*time.Second)
	}
	if cfg.Headless() {
		t.Error("Headless() = true, want false by default")
	}
}

func TestNewPortOverride(t *testing.T) {
	t.Setenv(EnvPort, "9999")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.Port() != 9999 {
		t.Errorf("Port() = %d, want 9999", cfg.Port())
	}
}

func TestNewInvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port string
	}{
		{"not a number", "abc"},
		{"zero", "0"},
		{"negative", "-1"},
		{"too large", "70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvPort, tt.port)
			if _, err := New(); err == nil {
				t.Errorf("New() with port %q: expected error, got nil", tt.port)
			}
		})
	}
}

func TestNewInvalidPollInterval(t *testing.T) {
	t.Setenv(EnvRenderPollSec, "0")
	if _, err := New(); err == nil {
		t.Error("New() with zero poll interval: expected error, got nil")
	}
}

func TestNewModelOverrides(t *testing.T) {
	t.Setenv(EnvTextModel, "gemini-custom-text")
	t.Setenv(EnvImageModel, "gemini-custom-image")
	t.Setenv(EnvVideoModel, "veo-custom")
	t.Setenv(EnvGeminiAPIKey, "test-key-1234")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.TextModel() != "gemini-custom-text" {
		t.Errorf("TextModel() = %q, want %q", cfg.TextModel(), "gemini-custom-text")
	}
	if cfg.ImageModel() != "gemini-custom-image" {
		t.Errorf("ImageModel() = %q, want %q", cfg.ImageModel(), "gemini-custom-image")
	}
	if cfg.VideoModel() != "veo-custom" {
		t.Errorf("VideoModel() = %q, want %q", cfg.VideoModel(), "veo-custom")
	}
	if cfg.GeminiAPIKey() != "test-key-1234" {
		t.Errorf("GeminiAPIKey() = %q, want %q", cfg.GeminiAPIKey(), "test-key-1234")
	}
}

func TestDerivedPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)

	cfg, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.DBPath() != filepath.Join(dir, DBFilename) {
		t.Errorf("DBPath() = %q, want %q", cfg.DBPath(), filepath.Join(dir, DBFilename))
	}
	if cfg.ArtifactsDir() != filepath.Join(dir, "artifacts") {
		t.Errorf("ArtifactsDir() = %q, want %q", cfg.ArtifactsDir(), filepath.Join(dir, "artifacts"))
	}
}

func TestNewHeadless(t *testing.T) {
	t.Setenv(EnvHeadless, "true")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !cfg.Headless() {
		t.Error("Headless() = false, want true")
	}
}
