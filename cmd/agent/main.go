package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/reelboard/reelboard-agent/internal/api"
	"github.com/reelboard/reelboard-agent/internal/catalog"
	"github.com/reelboard/reelboard-agent/internal/config"
	"github.com/reelboard/reelboard-agent/internal/db"
	"github.com/reelboard/reelboard-agent/internal/gateway"
	"github.com/reelboard/reelboard-agent/internal/logging"
	"github.com/reelboard/reelboard-agent/internal/playback"
	"github.com/reelboard/reelboard-agent/internal/storyboard"
	"github.com/reelboard/reelboard-agent/internal/ui"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	// Optional; the agent runs on plain environment variables too.
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.ArtifactsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create artifacts dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting reelboard agent", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logging.WithComponent(logger, "db"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())

	deviceID, err := ensureDeviceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                  REELBOARD AGENT v0.1.0                   ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	var gw gateway.Gateway
	if cfg.GeminiAPIKey() != "" {
		genaiClient, err := gateway.NewGenAIClient(context.Background(),
			cfg.GeminiAPIKey(), cfg.TextModel(), cfg.ImageModel(), cfg.VideoModel(), logging.WithComponent(logger, "gateway"))
		if err != nil {
			return fmt.Errorf("failed to initialize generation backend: %w", err)
		}
		gw = genaiClient
		logger.Info("generation backend ready",
			"text_model", cfg.TextModel(),
			"image_model", cfg.ImageModel(),
			"video_model", cfg.VideoModel(),
		)
	} else {
		gw = gateway.NewStubClient(logging.WithComponent(logger, "gateway"))
		logger.Warn("GEMINI_API_KEY not set, generation endpoints will fail until configured")
	}

	catalogSvc := catalog.NewService(repo, gw, logging.WithComponent(logger, "catalog"))
	playbackSvc := playback.NewServer(logging.WithComponent(logger, "playback"))

	phrases, err := storyboard.LoadProgressPhrases(cfg.ProgressPhrasesPath())
	if err != nil {
		return fmt.Errorf("failed to load progress phrases: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := storyboard.NewStore()
	storyboardLogger := logging.WithComponent(logger, "storyboard")
	planner := storyboard.NewPlanner(gw, storyboardLogger)
	materializer := storyboard.NewMaterializer(gw, store, storyboardLogger)
	runner := storyboard.NewRunner(planner, materializer, store, &catalogSnapshots{svc: catalogSvc}, storyboardLogger)
	go runner.Start(ctx)

	render := storyboard.NewRenderCoordinator(ctx, gw, store, phrases, cfg.ArtifactsDir(), cfg.RenderPollInterval(), logging.WithComponent(logger, "render"))

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		CatalogService: catalogSvc,
		Repository:     repo,
		Store:          store,
		Planner:        planner,
		Runner:         runner,
		Render:         render,
		Playback:       playbackSvc,
		Logger:         logging.WithComponent(logger, "api"),
		StartTime:      startTime,
		DeviceID:       deviceID,
		GatewayKind:    gw.Kind(),
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Store:  store,
			Runner: runner,
			Logger: logging.WithComponent(logger, "ui"),
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	// cancel() above aborts pending renders, so this wait is bounded by
	// one poll interval.
	render.Wait()

	logger.Info("shutdown complete")
	return nil
}

// catalogSnapshots adapts the asset catalog to the planning pipeline's
// snapshot view.
type catalogSnapshots struct {
	svc catalog.CatalogService
}

func (c *catalogSnapshots) Snapshot(ctx context.Context) (storyboard.Snapshot, error) {
	models, err := c.svc.ListModels(ctx)
	if err != nil {
		return storyboard.Snapshot{}, fmt.Errorf("failed to snapshot models: %w", err)
	}
	products, err := c.svc.ListProducts(ctx)
	if err != nil {
		return storyboard.Snapshot{}, fmt.Errorf("failed to snapshot products: %w", err)
	}

	snap := storyboard.Snapshot{
		Models:   make([]storyboard.ModelAsset, 0, len(models)),
		Products: make([]storyboard.ProductAsset, 0, len(products)),
	}
	for _, m := range models {
		// A model with neither references nor a sheet cannot anchor image
		// generation, so planning must not see it.
		if !m.UsableForGeneration() {
			continue
		}
		snap.Models = append(snap.Models, storyboard.ModelAsset{
			Name:            m.Name,
			Description:     m.Description,
			ReferenceImages: m.ReferenceImages,
			Sheet:           m.Sheet,
		})
	}
	for _, p := range products {
		snap.Products = append(snap.Products, storyboard.ProductAsset{
			Name:  p.Name,
			Image: p.Image,
		})
	}
	return snap, nil
}

func ensureDeviceID(repo catalog.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "device_id")
	if err == nil && existing != "" {
		return existing, nil
	}

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", err
	}
	deviceID := hex.EncodeToString(idBytes)

	if err := repo.SetConfig(ctx, "device_id", deviceID); err != nil {
		return "", err
	}

	return deviceID, nil
}

func ensureAuthToken(repo catalog.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}
