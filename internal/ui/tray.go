// Package ui is the system tray surface: a glanceable storyboard status
// and a pause switch for the generation pipeline.
package ui

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/reelboard/reelboard-agent/internal/storyboard"
)

type Tray struct {
	store  *storyboard.Store
	runner *storyboard.Runner
	logger *slog.Logger

	statusItem *systray.MenuItem
	scenesItem *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu sync.Mutex

	onQuit func()
}

type TrayConfig struct {
	Store  *storyboard.Store
	Runner *storyboard.Runner
	Logger *slog.Logger
	OnQuit func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		store:  cfg.Store,
		runner: cfg.Runner,
		logger: cfg.Logger,
		onQuit: cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetTitle("Reelboard")
	systray.SetTooltip("Reelboard Agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current agent status")
	t.statusItem.Disable()

	t.scenesItem = systray.AddMenuItem("Scenes: 0", "Storyboard progress")
	t.scenesItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause", "Pause scene generation")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Reelboard Agent")

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	go t.watchStore()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

// watchStore keeps the scenes line current. The subscription lives for
// the lifetime of the tray.
func (t *Tray) watchStore() {
	events, cancel := t.store.Subscribe()
	defer cancel()

	t.refreshScenes()
	for range events {
		t.refreshScenes()
	}
}

func (t *Tray) refreshScenes() {
	total, materialized, _, rendered := t.store.Counts()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.scenesItem == nil {
		return
	}
	t.scenesItem.SetTitle(fmt.Sprintf("Scenes: %d/%d ready, %d rendered", materialized, total, rendered))
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause")
		t.statusItem.SetTitle("Status: Idle")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume")
		t.statusItem.SetTitle("Status: Paused")
	}
}

func (t *Tray) UpdateStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner != nil && t.runner.IsPaused() {
		return
	}
	t.statusItem.SetTitle("Status: " + status)
}

func (t *Tray) Quit() {
	systray.Quit()
}
