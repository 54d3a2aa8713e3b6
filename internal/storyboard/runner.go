package storyboard

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// planRequest is one unit of background work: either a full plan (idea
// or analysis driven) or a single-scene rework.
type planRequest struct {
	idea          string
	totalDuration int
	pacing        Pacing

	analysis []SceneAnalysis

	reworkSceneID  string
	reworkEpoch    int64
	reworkRevision int
}

// Runner drives planning and materialization in the background. One
// plan runs at a time; scenes materialize sequentially in storyboard
// order. Pause holds the runner between scenes, never mid-scene.
type Runner struct {
	planner      *Planner
	materializer *Materializer
	store        *Store
	snapshots    SnapshotSource
	logger       *slog.Logger

	requests chan planRequest
	running  atomic.Bool
	paused   atomic.Bool
	planning atomic.Bool

	mu        sync.Mutex
	lastError string
	snapshot  Snapshot
}

func NewRunner(planner *Planner, materializer *Materializer, store *Store, snapshots SnapshotSource, logger *slog.Logger) *Runner {
	return &Runner{
		planner:      planner,
		materializer: materializer,
		store:        store,
		snapshots:    snapshots,
		logger:       logger,
		requests:     make(chan planRequest, 8),
	}
}

// Start runs the request loop until ctx is cancelled. Call in a
// goroutine.
func (r *Runner) Start(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	defer r.running.Store(false)

	if r.logger != nil {
		r.logger.Info("storyboard runner started")
	}

	for {
		select {
		case <-ctx.Done():
			if r.logger != nil {
				r.logger.Info("storyboard runner stopped")
			}
			return
		case req := <-r.requests:
			r.handle(ctx, req)
		}
	}
}

func (r *Runner) IsRunning() bool { return r.running.Load() }

// IsBusy reports whether a plan is currently being produced or
// materialized.
func (r *Runner) IsBusy() bool { return r.planning.Load() }

// Pause holds materialization after the current scene finishes.
func (r *Runner) Pause() {
	r.paused.Store(true)
	if r.logger != nil {
		r.logger.Info("storyboard runner paused")
	}
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	if r.logger != nil {
		r.logger.Info("storyboard runner resumed")
	}
}

func (r *Runner) IsPaused() bool { return r.paused.Load() }

// LastError returns the most recent plan-level failure, if any.
func (r *Runner) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError
}

func (r *Runner) setLastError(msg string) {
	r.mu.Lock()
	r.lastError = msg
	r.mu.Unlock()
}

// SubmitIdea queues an idea-driven plan. Returns a ValidationError when
// a plan is already in progress.
func (r *Runner) SubmitIdea(idea string, totalDuration int, pacing Pacing) error {
	return r.submit(planRequest{idea: idea, totalDuration: totalDuration, pacing: pacing})
}

// SubmitAnalysis queues an analysis-driven plan.
func (r *Runner) SubmitAnalysis(analysis []SceneAnalysis) error {
	if len(analysis) == 0 {
		return &ValidationError{Reason: "analysis has no scenes"}
	}
	return r.submit(planRequest{analysis: analysis})
}

// ErrBusy rejects a plan submission while another plan is in progress.
var ErrBusy = &ValidationError{Reason: "a storyboard is already being generated"}

func (r *Runner) submit(req planRequest) error {
	if r.planning.Load() {
		return ErrBusy
	}
	select {
	case r.requests <- req:
		return nil
	default:
		return &ValidationError{Reason: "runner queue is full"}
	}
}

// SubmitRework resets a scene synchronously and queues its
// re-materialization. The caller observes the cleared scene as soon as
// this returns.
func (r *Runner) SubmitRework(sceneID, newDescription string) error {
	if newDescription == "" {
		return &ValidationError{Reason: "description is required"}
	}

	epoch, revision, err := r.store.BeginRework(sceneID, newDescription)
	if err != nil {
		return err
	}

	select {
	case r.requests <- planRequest{reworkSceneID: sceneID, reworkEpoch: epoch, reworkRevision: revision}:
		return nil
	default:
		return &ValidationError{Reason: "runner queue is full"}
	}
}

func (r *Runner) handle(ctx context.Context, req planRequest) {
	if req.reworkSceneID != "" {
		r.handleRework(ctx, req)
		return
	}

	r.planning.Store(true)
	defer r.planning.Store(false)
	r.setLastError("")

	snap, err := r.snapshots.Snapshot(ctx)
	if err != nil {
		r.setLastError(err.Error())
		if r.logger != nil {
			r.logger.Error("catalog snapshot failed", "error", err)
		}
		return
	}

	var specs []SceneSpec
	if req.idea != "" {
		specs, err = r.planner.PlanFromIdea(ctx, req.idea, req.totalDuration, req.pacing, snap)
	} else {
		specs, err = r.planner.PlanFromAnalysis(ctx, req.analysis, snap)
	}
	if err != nil {
		r.setLastError(err.Error())
		if r.logger != nil {
			r.logger.Error("planning failed", "error", err)
		}
		return
	}

	epoch := r.store.ReplaceAll(specs)

	// All scenes of this plan materialize against the snapshot taken at
	// planning time, even if the catalog changes meanwhile.
	r.mu.Lock()
	r.snapshot = snap
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Info("storyboard planned", "plan_epoch", epoch, "scenes", len(specs))
	}

	for _, scene := range r.store.List() {
		if !r.waitWhilePaused(ctx) {
			return
		}
		if r.store.Epoch() != epoch {
			// A newer plan replaced this one mid-batch.
			return
		}
		if err := r.materializer.Materialize(ctx, scene, snap); err != nil {
			// The failure is recorded on the scene; later scenes still run.
			continue
		}
	}
}

func (r *Runner) handleRework(ctx context.Context, req planRequest) {
	if !r.waitWhilePaused(ctx) {
		return
	}

	scene := r.store.Get(req.reworkSceneID)
	if scene == nil || scene.Epoch != req.reworkEpoch || scene.Revision != req.reworkRevision {
		// Superseded by a newer plan or a newer rework.
		return
	}

	r.mu.Lock()
	snap := r.snapshot
	r.mu.Unlock()

	if err := r.materializer.Materialize(ctx, scene, snap); err != nil && r.logger != nil {
		r.logger.Error("scene rework failed", "scene_id", req.reworkSceneID, "error", err)
	}
}

// waitWhilePaused blocks between scenes while the runner is paused.
// Returns false if ctx was cancelled.
func (r *Runner) waitWhilePaused(ctx context.Context) bool {
	for r.paused.Load() {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return ctx.Err() == nil
}
