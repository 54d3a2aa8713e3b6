package storyboard

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/reelboard/reelboard-agent/internal/gateway"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

// runnerGateway answers planning, engine recommendation, suggestions and
// image calls well enough to drive the full pipeline.
func runnerGateway(scenes []rawScene) *fakeGateway {
	planJSON, _ := json.Marshal(scenes)
	return &fakeGateway{
		structuredFn: func(prompt, system string, schema *genai.Schema) ([]byte, error) {
			switch {
			case strings.Contains(prompt, "video generation consultant"):
				return []byte(`{"model":"veo","reasoning":"fits"}`), nil
			case strings.Contains(prompt, "generate creative suggestions"):
				return suggestionsJSON(), nil
			default:
				return planJSON, nil
			}
		},
	}
}

func startRunner(t *testing.T, fake *fakeGateway, snap Snapshot) (*Runner, *Store) {
	t.Helper()
	store := NewStore()
	planner := NewPlanner(fake, nil)
	mat := NewMaterializer(fake, store, nil)
	runner := NewRunner(planner, mat, store, &fakeSnapshots{snap: snap}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go runner.Start(ctx)
	waitFor(t, time.Second, runner.IsRunning)
	return runner, store
}

func TestRunner_IdeaPlanMaterializesAllScenes(t *testing.T) {
	fake := runnerGateway(planScenes([]float64{5, 5, 5}, nil))
	runner, store := startRunner(t, fake, Snapshot{})

	if err := runner.SubmitIdea("energy drink spot", 15, PacingStandard); err != nil {
		t.Fatalf("SubmitIdea() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		_, materialized, _, _ := store.Counts()
		return materialized == 3
	})

	for i, sc := range store.List() {
		if !sc.Materialized() {
			t.Errorf("scene %d not materialized", i)
		}
		if sc.IsLoading {
			t.Errorf("scene %d still loading", i)
		}
	}
	if runner.LastError() != "" {
		t.Errorf("LastError() = %q, want empty", runner.LastError())
	}
}

func TestRunner_ContinuesAfterSceneFailure(t *testing.T) {
	fake := runnerGateway(planScenes([]float64{5, 5, 5}, nil))

	var mu sync.Mutex
	imageCalls := 0
	fake.imageFn = func(prompt string, images []gateway.ImageBlob) (gateway.ImageBlob, error) {
		mu.Lock()
		defer mu.Unlock()
		imageCalls++
		// Scene 2's start frame is call 3 (two calls per successful scene).
		if imageCalls == 3 {
			return gateway.ImageBlob{}, errors.New("refused")
		}
		return testBlob("frame"), nil
	}

	runner, store := startRunner(t, fake, Snapshot{})
	if err := runner.SubmitIdea("idea", 15, PacingStandard); err != nil {
		t.Fatalf("SubmitIdea() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		scenes := store.List()
		if len(scenes) != 3 {
			return false
		}
		for _, sc := range scenes {
			if sc.IsLoading {
				return false
			}
		}
		return true
	})

	scenes := store.List()
	if !scenes[0].Materialized() {
		t.Error("scene 1 should be materialized")
	}
	if scenes[1].Materialized() || scenes[1].LastError == "" {
		t.Error("scene 2 should carry a failure")
	}
	if !scenes[2].Materialized() {
		t.Error("scene 3 should be materialized despite scene 2 failing")
	}
}

func TestRunner_BusyRejectsSecondPlan(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	fake := runnerGateway(planScenes([]float64{5, 5, 5}, nil))
	inner := fake.structuredFn
	fake.structuredFn = func(prompt, system string, schema *genai.Schema) ([]byte, error) {
		once.Do(func() { close(started) })
		<-release
		return inner(prompt, system, schema)
	}

	runner, _ := startRunner(t, fake, Snapshot{})
	if err := runner.SubmitIdea("first", 15, PacingStandard); err != nil {
		t.Fatalf("SubmitIdea() error = %v", err)
	}
	<-started

	var verr *ValidationError
	if err := runner.SubmitIdea("second", 15, PacingStandard); !errors.As(err, &verr) {
		t.Errorf("second SubmitIdea() error = %v, want ValidationError while busy", err)
	}
	close(release)
}

func TestRunner_PauseHoldsBetweenScenes(t *testing.T) {
	fake := runnerGateway(planScenes([]float64{5, 5, 5}, nil))
	runner, store := startRunner(t, fake, Snapshot{})

	runner.Pause()
	if !runner.IsPaused() {
		t.Fatal("IsPaused() = false after Pause()")
	}

	if err := runner.SubmitIdea("idea", 15, PacingStandard); err != nil {
		t.Fatalf("SubmitIdea() error = %v", err)
	}

	// Planning still happens; materialization does not start.
	waitFor(t, 2*time.Second, func() bool {
		total, _, _, _ := store.Counts()
		return total == 3
	})
	time.Sleep(250 * time.Millisecond)
	if _, materialized, _, _ := store.Counts(); materialized != 0 {
		t.Errorf("materialized = %d while paused, want 0", materialized)
	}

	runner.Resume()
	waitFor(t, 2*time.Second, func() bool {
		_, materialized, _, _ := store.Counts()
		return materialized == 3
	})
}

func TestRunner_ReworkResetsAndRematerializes(t *testing.T) {
	fake := runnerGateway(planScenes([]float64{5, 5, 5}, nil))
	runner, store := startRunner(t, fake, Snapshot{})

	if err := runner.SubmitIdea("idea", 15, PacingStandard); err != nil {
		t.Fatalf("SubmitIdea() error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		_, materialized, _, _ := store.Counts()
		return materialized == 3
	})

	scene := store.List()[1]
	runner.Pause() // hold re-materialization so the reset is observable

	if err := runner.SubmitRework(scene.ID, "a storm rolls in"); err != nil {
		t.Fatalf("SubmitRework() error = %v", err)
	}

	// The reset is synchronous: visible before any regeneration runs.
	got := store.Get(scene.ID)
	if got.Description != "a storm rolls in" {
		t.Errorf("Description = %q, want the new description", got.Description)
	}
	if !got.IsLoading || got.StartFrame != nil || got.FinalVideoPrompt != "" {
		t.Error("rework must clear artifacts and set loading before returning")
	}

	runner.Resume()
	waitFor(t, 2*time.Second, func() bool {
		sc := store.Get(scene.ID)
		return sc != nil && sc.Materialized()
	})

	if err := runner.SubmitRework("missing-scene", "x"); err == nil {
		t.Error("rework of unknown scene should fail")
	}
}

func TestRunner_PlanningFailureRecorded(t *testing.T) {
	fake := &fakeGateway{
		structuredFn: func(prompt, system string, schema *genai.Schema) ([]byte, error) {
			return nil, errors.New("backend down")
		},
	}
	runner, store := startRunner(t, fake, Snapshot{})

	if err := runner.SubmitIdea("idea", 15, PacingStandard); err != nil {
		t.Fatalf("SubmitIdea() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return runner.LastError() != ""
	})

	if total, _, _, _ := store.Counts(); total != 0 {
		t.Errorf("failed planning left %d scenes in the store, want 0", total)
	}
	if !strings.Contains(runner.LastError(), "planning failed") {
		t.Errorf("LastError() = %q, want a planning failure", runner.LastError())
	}
}
