package storyboard

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reelboard/reelboard-agent/internal/gateway"
	"github.com/reelboard/reelboard-agent/internal/logging"
)

// defaultProgressPhrases is the built-in rotation shown while a render
// job is pending. Purely cosmetic; the backend reports no real progress.
var defaultProgressPhrases = []string{
	"Casting models...",
	"Setting up the scene...",
	"Director is shouting 'Action!'...",
	"Rendering photons...",
	"Compositing layers...",
}

// ProgressPhrases cycles through a fixed phrase list.
type ProgressPhrases struct {
	phrases []string
}

func NewProgressPhrases(phrases []string) *ProgressPhrases {
	if len(phrases) == 0 {
		phrases = defaultProgressPhrases
	}
	return &ProgressPhrases{phrases: phrases}
}

// At returns the phrase for the nth poll tick.
func (p *ProgressPhrases) At(tick int) string {
	return p.phrases[tick%len(p.phrases)]
}

// LoadProgressPhrases reads a phrase list from a YAML file. An empty
// path selects the built-in list.
func LoadProgressPhrases(path string) (*ProgressPhrases, error) {
	if path == "" {
		return NewProgressPhrases(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read progress phrases: %w", err)
	}

	var doc struct {
		Phrases []string `yaml:"phrases"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse progress phrases: %w", err)
	}
	if len(doc.Phrases) == 0 {
		return nil, fmt.Errorf("progress phrases file %s lists no phrases", path)
	}
	return NewProgressPhrases(doc.Phrases), nil
}

// RenderCoordinator drives video rendering. Each request runs in its
// own goroutine keyed by scene id; different scenes render concurrently,
// one render per scene at a time. Renders outlive the HTTP request that
// started them, so they run on the coordinator's base context rather
// than a request context; cancelling the base context abandons every
// pending job at its next poll tick.
type RenderCoordinator struct {
	baseCtx      context.Context
	gateway      gateway.Gateway
	store        *Store
	phrases      *ProgressPhrases
	artifactsDir string
	pollInterval time.Duration
	logger       *slog.Logger

	wg sync.WaitGroup
}

func NewRenderCoordinator(ctx context.Context, gw gateway.Gateway, store *Store, phrases *ProgressPhrases, artifactsDir string, pollInterval time.Duration, logger *slog.Logger) *RenderCoordinator {
	if ctx == nil {
		ctx = context.Background()
	}
	if phrases == nil {
		phrases = NewProgressPhrases(nil)
	}
	return &RenderCoordinator{
		baseCtx:      ctx,
		gateway:      gw,
		store:        store,
		phrases:      phrases,
		artifactsDir: artifactsDir,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// RequestRender validates the scene and starts its render goroutine.
// Rejections (missing prompt or frame, render already pending) leave the
// scene untouched.
func (c *RenderCoordinator) RequestRender(sceneID string) error {
	prompt, startFrame, err := c.store.TryBeginRender(sceneID)
	if err != nil {
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.render(c.baseCtx, sceneID, prompt, startFrame)
	}()
	return nil
}

// Wait blocks until all in-flight renders finish. Shutdown cancels the
// base context first, which bounds the wait by one poll interval.
func (c *RenderCoordinator) Wait() {
	c.wg.Wait()
}

func (c *RenderCoordinator) render(ctx context.Context, sceneID, prompt string, startFrame gateway.ImageBlob) {
	logger := c.logger
	if logger != nil {
		logger = logging.WithSceneID(logger, sceneID)
	}

	job, err := c.gateway.SubmitVideo(ctx, prompt, &startFrame)
	if err != nil {
		c.fail(sceneID, err)
		return
	}
	if logger != nil {
		logger.Info("render submitted", "job_id", job.ID)
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	tick := 0
	for {
		c.store.SetVideoProgress(sceneID, c.phrases.At(tick))
		tick++

		select {
		case <-ctx.Done():
			c.fail(sceneID, ctx.Err())
			return
		case <-ticker.C:
		}

		status, err := c.gateway.PollVideo(ctx, job)
		if err != nil {
			c.fail(sceneID, err)
			return
		}
		if !status.Done {
			continue
		}
		if status.Err != nil {
			c.fail(sceneID, status.Err)
			return
		}

		c.finish(ctx, sceneID, status.ResultURI, logger)
		return
	}
}

func (c *RenderCoordinator) finish(ctx context.Context, sceneID, resultURI string, logger *slog.Logger) {
	c.store.SetVideoProgress(sceneID, "Fetching video...")

	data, err := c.gateway.FetchVideo(ctx, resultURI)
	if err != nil {
		c.fail(sceneID, err)
		return
	}

	if err := os.MkdirAll(filepath.Join(c.artifactsDir, "videos"), 0755); err != nil {
		c.fail(sceneID, err)
		return
	}
	path := filepath.Join(c.artifactsDir, "videos", sceneID+".mp4")
	if err := os.WriteFile(path, data, 0644); err != nil {
		c.fail(sceneID, err)
		return
	}

	if !c.store.CompleteVideo(sceneID, path) {
		// The scene left pending while we were downloading; keep the file
		// on disk but record nothing.
		if logger != nil {
			logger.Warn("render result dropped, scene no longer pending")
		}
		return
	}
	if logger != nil {
		logger.Info("render completed", "path", path, "bytes", len(data))
	}
}

func (c *RenderCoordinator) fail(sceneID string, err error) {
	rerr := &RenderError{SceneID: sceneID, Err: err}
	c.store.FailVideo(sceneID, rerr)
	if c.logger != nil {
		c.logger.Error("render failed", "scene_id", sceneID, "error", err)
	}
}
