// Package storyboard owns the session-scoped storyboard domain: the
// scene types, the in-memory store, the planner, the materializer and
// the render coordinator. A storyboard lives only as long as the agent
// process; the durable catalog lives in the catalog package.
package storyboard

import (
	"context"
	"math"

	"github.com/reelboard/reelboard-agent/internal/gateway"
)

// EngineID identifies a downstream video generation engine a scene is
// recommended for.
type EngineID string

const (
	// EngineSeedance is best for multi-shot narrative sequences with high
	// character and style consistency.
	EngineSeedance EngineID = "seedance"
	// EngineHailuo excels at complex physics, dynamic motion and action.
	EngineHailuo EngineID = "hailuo"
	// EngineVeo generates video with synchronized audio.
	EngineVeo EngineID = "veo"
	// EngineKling is strong at consistency across multiple reference images.
	EngineKling EngineID = "kling"
)

func (e EngineID) Valid() bool {
	switch e {
	case EngineSeedance, EngineHailuo, EngineVeo, EngineKling:
		return true
	}
	return false
}

// Pacing controls the scene cardinality of an idea-driven plan.
type Pacing string

const (
	// PacingStandard yields 3 to 5 emotionally resonant scenes.
	PacingStandard Pacing = "standard"
	// PacingFast yields many 1-2 second scenes for a quick-cut feel.
	PacingFast Pacing = "fast"
)

func (p Pacing) Valid() bool {
	return p == PacingStandard || p == PacingFast
}

const (
	// MinSceneDuration and MaxSceneDuration bound a single scene in seconds.
	MinSceneDuration = 1
	MaxSceneDuration = 10

	// MinTotalDuration is the shortest plannable commercial.
	MinTotalDuration = 3
)

// ClampDuration rounds a duration to the nearest whole second and clamps
// it into [MinSceneDuration, MaxSceneDuration].
func ClampDuration(d float64) int {
	n := int(math.Round(d))
	if n < MinSceneDuration {
		return MinSceneDuration
	}
	if n > MaxSceneDuration {
		return MaxSceneDuration
	}
	return n
}

// SceneSpec is the planner's output for a single scene.
type SceneSpec struct {
	Description     string   `json:"sceneDescription"`
	Narrative       string   `json:"narrative"`
	Duration        int      `json:"duration"`
	ModelsInScene   []string `json:"modelsInScene"`
	ProductsInScene []string `json:"productsInScene"`
	Transition      string   `json:"transitionToNextScene"`
	Engine          EngineID `json:"recommendedEngine"`
	EngineReasoning string   `json:"engineReasoning"`
}

// SceneAnalysis is one scene of a reference video breakdown. It shares
// the storyboard schema; duration stays fractional until planning.
type SceneAnalysis struct {
	Description     string   `json:"sceneDescription"`
	Narrative       string   `json:"narrative"`
	Duration        float64  `json:"duration"`
	ModelsInScene   []string `json:"modelsInScene"`
	ProductsInScene []string `json:"productsInScene"`
	Transition      string   `json:"transitionToNextScene"`
}

// Suggestions are the per-scene creative treatment fields.
type Suggestions struct {
	Transition string `json:"transition"`
	VFX        string `json:"vfx"`
	Camera     string `json:"camera"`
	Narrative  string `json:"narrative"`
}

// VideoStatus is the render lifecycle of a scene.
type VideoStatus string

const (
	VideoIdle    VideoStatus = "idle"
	VideoPending VideoStatus = "pending"
	VideoDone    VideoStatus = "done"
	VideoError   VideoStatus = "error"
)

// Scene is a storyboard scene with its materialized artifacts and render
// state. Epoch ties the scene to the plan that created it; Revision
// increments on each description rework so superseded materializations
// can be detected.
type Scene struct {
	ID       string `json:"id"`
	Epoch    int64  `json:"epoch"`
	Revision int    `json:"revision"`

	SceneSpec

	IsLoading bool   `json:"isLoading"`
	LastError string `json:"lastError,omitempty"`

	StartFrame       *gateway.ImageBlob `json:"-"`
	EndFrame         *gateway.ImageBlob `json:"-"`
	Suggestions      *Suggestions       `json:"suggestions,omitempty"`
	FinalVideoPrompt string             `json:"finalVideoPrompt,omitempty"`

	VideoStatus   VideoStatus `json:"videoStatus"`
	VideoProgress string      `json:"videoProgress,omitempty"`
	VideoPath     string      `json:"-"`
}

// Materialized reports whether the scene carries a full set of
// generation artifacts.
func (s *Scene) Materialized() bool {
	return s.StartFrame != nil && s.EndFrame != nil &&
		s.Suggestions != nil && s.FinalVideoPrompt != ""
}

// RenderReady reports whether the scene qualifies for a render request.
func (s *Scene) RenderReady() bool {
	return s.FinalVideoPrompt != "" && s.StartFrame != nil
}

// clone returns a deep copy so store readers never share mutable state
// with the store.
func (s *Scene) clone() *Scene {
	c := *s
	c.ModelsInScene = append([]string(nil), s.ModelsInScene...)
	c.ProductsInScene = append([]string(nil), s.ProductsInScene...)
	if s.StartFrame != nil {
		f := *s.StartFrame
		f.Data = append([]byte(nil), s.StartFrame.Data...)
		c.StartFrame = &f
	}
	if s.EndFrame != nil {
		f := *s.EndFrame
		f.Data = append([]byte(nil), s.EndFrame.Data...)
		c.EndFrame = &f
	}
	if s.Suggestions != nil {
		sg := *s.Suggestions
		c.Suggestions = &sg
	}
	return &c
}

// ModelAsset is the catalog view the storyboard pipeline works with.
type ModelAsset struct {
	Name            string
	Description     string
	ReferenceImages []gateway.ImageBlob
	Sheet           *gateway.ImageBlob
}

// ProductAsset is the product view handed to planning and
// materialization.
type ProductAsset struct {
	Name  string
	Image gateway.ImageBlob
}

// Snapshot is an immutable catalog view taken at planning time. All
// scenes of one plan materialize against the same snapshot.
type Snapshot struct {
	Models   []ModelAsset
	Products []ProductAsset
}

// SnapshotSource produces catalog snapshots; implemented by an adapter
// over the catalog service.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}
