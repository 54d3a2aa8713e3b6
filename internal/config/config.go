// Package config provides configuration management for the Reelboard Agent.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort     = 8790
	DefaultLogLevel = "info"
	DefaultDataDir  = ".reelboard"

	// Environment variable names
	EnvPort     = "REELBOARD_PORT"
	EnvLogLevel = "REELBOARD_LOG_LEVEL"
	EnvDataDir  = "REELBOARD_DATA_DIR"
	EnvHeadless = "REELBOARD_HEADLESS"

	// Generation environment variable names
	EnvGeminiAPIKey     = "GEMINI_API_KEY"
	EnvTextModel        = "REELBOARD_TEXT_MODEL"
	EnvImageModel       = "REELBOARD_IMAGE_MODEL"
	EnvVideoModel       = "REELBOARD_VIDEO_MODEL"
	EnvRenderPollSec    = "REELBOARD_RENDER_POLL_SECONDS"
	EnvProgressPhrases  = "REELBOARD_PROGRESS_PHRASES"

	// Database filename
	DBFilename = "reelboard.db"

	// Generation defaults. The text model plans storyboards and writes
	// prompts; the image model produces frames and model sheets; the video
	// model is the long-running render backend.
	DefaultTextModel  = "gemini-2.5-flash"
	DefaultImageModel = "gemini-2.5-flash-image-preview"
	DefaultVideoModel = "veo-2.0-generate-001"

	// DefaultRenderPollSeconds is the cadence for polling a pending render
	// job. Render jobs routinely take minutes; polling faster buys nothing.
	DefaultRenderPollSeconds = 10
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	ArtifactsDir() string
	Headless() bool
	GeminiAPIKey() string
	TextModel() string
	ImageModel() string
	VideoModel() string
	RenderPollInterval() time.Duration
	ProgressPhrasesPath() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	headless bool

	geminiAPIKey    string
	textModel       string
	imageModel      string
	videoModel      string
	renderPollSec   int
	progressPhrases string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:          DefaultPort,
		logLevel:      DefaultLogLevel,
		dataDir:       defaultDataDir(),
		textModel:     DefaultTextModel,
		imageModel:    DefaultImageModel,
		videoModel:    DefaultVideoModel,
		renderPollSec: DefaultRenderPollSeconds,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	cfg.geminiAPIKey = os.Getenv(EnvGeminiAPIKey)

	if m := os.Getenv(EnvTextModel); m != "" {
		cfg.textModel = m
	}
	if m := os.Getenv(EnvImageModel); m != "" {
		cfg.imageModel = m
	}
	if m := os.Getenv(EnvVideoModel); m != "" {
		cfg.videoModel = m
	}

	if p := os.Getenv(EnvRenderPollSec); p != "" {
		sec, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvRenderPollSec, err)
		}
		if sec < 1 {
			return nil, fmt.Errorf("invalid %s: must be at least 1 second", EnvRenderPollSec)
		}
		cfg.renderPollSec = sec
	}

	cfg.progressPhrases = os.Getenv(EnvProgressPhrases)

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ArtifactsDir returns the directory for rendered video artifacts
func (c *EnvConfig) ArtifactsDir() string {
	return filepath.Join(c.dataDir, "artifacts")
}

// Headless reports whether the system tray should be skipped
func (c *EnvConfig) Headless() bool {
	return c.headless
}

// GeminiAPIKey returns the Gemini API key; empty means the generation
// gateway runs in stub mode.
func (c *EnvConfig) GeminiAPIKey() string {
	return c.geminiAPIKey
}

func (c *EnvConfig) TextModel() string {
	return c.textModel
}

func (c *EnvConfig) ImageModel() string {
	return c.imageModel
}

func (c *EnvConfig) VideoModel() string {
	return c.videoModel
}

func (c *EnvConfig) RenderPollInterval() time.Duration {
	return time.Duration(c.renderPollSec) * time.Second
}

// ProgressPhrasesPath returns the optional YAML file holding the rotating
// render progress phrases; empty selects the built-in list.
func (c *EnvConfig) ProgressPhrasesPath() string {
	return c.progressPhrases
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
