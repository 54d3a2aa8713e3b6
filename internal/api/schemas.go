package api

import (
	"fmt"
	"time"

	"github.com/reelboard/reelboard-agent/internal/catalog"
	"github.com/reelboard/reelboard-agent/internal/gateway"
	"github.com/reelboard/reelboard-agent/internal/storyboard"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State          string `json:"state"`
	LastError      string `json:"last_error,omitempty"`
	Epoch          int64  `json:"epoch"`
	ScenesTotal    int    `json:"scenes_total"`
	Materialized   int    `json:"scenes_materialized"`
	RendersRunning int    `json:"renders_running"`
	Rendered       int    `json:"scenes_rendered"`
	ModelsCount    int    `json:"models_count"`
	ProductsCount  int    `json:"products_count"`
	Gateway        string `json:"gateway"`
}

type ModelRequest struct {
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	ReferenceImages []string `json:"reference_images"`
}

type ModelResponse struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	ReferenceImages []string `json:"reference_images"`
	Sheet           string   `json:"sheet,omitempty"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

type ModelsResponse struct {
	Models []ModelResponse `json:"models"`
}

type SheetRequest struct {
	Style string `json:"style"`
}

type ProductRequest struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

type ProductResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	CreatedAt string `json:"created_at"`
}

type ProductsResponse struct {
	Products []ProductResponse `json:"products"`
}

type StoryboardRequest struct {
	Idea           string `json:"idea"`
	TotalDurationS int    `json:"total_duration_s"`
	Pacing         string `json:"pacing,omitempty"`
}

type AcceptedResponse struct {
	State string `json:"state"`
}

type AnalyzeRequest struct {
	VideoURL string `json:"video_url"`
}

// AnalyzeResponse carries the per-scene analysis in the same shape the
// reconstruct endpoint accepts, so clients can round-trip it untouched.
type AnalyzeResponse struct {
	Scenes []storyboard.SceneAnalysis `json:"scenes"`
}

type ReconstructRequest struct {
	Scenes []storyboard.SceneAnalysis `json:"scenes"`
}

type SuggestionsResponse struct {
	Transition string `json:"transition"`
	VFX        string `json:"vfx"`
	Camera     string `json:"camera"`
	Narrative  string `json:"narrative"`
}

type SceneResponse struct {
	ID               string               `json:"id"`
	Epoch            int64                `json:"epoch"`
	Revision         int                  `json:"revision"`
	Description      string               `json:"description"`
	Narrative        string               `json:"narrative,omitempty"`
	DurationS        int                  `json:"duration_s"`
	ModelsInScene    []string             `json:"models_in_scene"`
	ProductsInScene  []string             `json:"products_in_scene"`
	Transition       string               `json:"transition_to_next,omitempty"`
	Engine           string               `json:"engine"`
	EngineReasoning  string               `json:"engine_reasoning,omitempty"`
	IsLoading        bool                 `json:"is_loading"`
	LastError        string               `json:"last_error,omitempty"`
	StartFrame       string               `json:"start_frame,omitempty"`
	EndFrame         string               `json:"end_frame,omitempty"`
	Suggestions      *SuggestionsResponse `json:"suggestions,omitempty"`
	FinalVideoPrompt string               `json:"final_video_prompt,omitempty"`
	VideoStatus      string               `json:"video_status"`
	VideoProgress    string               `json:"video_progress,omitempty"`
}

type ScenesResponse struct {
	Epoch  int64           `json:"epoch"`
	Scenes []SceneResponse `json:"scenes"`
}

type ReworkRequest struct {
	Description string `json:"description"`
}

type RenderResponse struct {
	SceneID     string `json:"scene_id"`
	VideoStatus string `json:"video_status"`
}

func ModelToResponse(m *catalog.Model) ModelResponse {
	refs := make([]string, len(m.ReferenceImages))
	for i, img := range m.ReferenceImages {
		refs[i] = img.DataURL()
	}
	resp := ModelResponse{
		ID:              m.ID,
		Name:            m.Name,
		Description:     m.Description,
		ReferenceImages: refs,
		CreatedAt:       m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       m.UpdatedAt.Format(time.RFC3339),
	}
	if m.Sheet != nil && !m.Sheet.IsZero() {
		resp.Sheet = m.Sheet.DataURL()
	}
	return resp
}

func ProductToResponse(p *catalog.Product) ProductResponse {
	return ProductResponse{
		ID:        p.ID,
		Name:      p.Name,
		Image:     p.Image.DataURL(),
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

func SceneToResponse(s *storyboard.Scene) SceneResponse {
	resp := SceneResponse{
		ID:               s.ID,
		Epoch:            s.Epoch,
		Revision:         s.Revision,
		Description:      s.Description,
		Narrative:        s.Narrative,
		DurationS:        s.Duration,
		ModelsInScene:    s.ModelsInScene,
		ProductsInScene:  s.ProductsInScene,
		Transition:       s.Transition,
		Engine:           string(s.Engine),
		EngineReasoning:  s.EngineReasoning,
		IsLoading:        s.IsLoading,
		LastError:        s.LastError,
		FinalVideoPrompt: s.FinalVideoPrompt,
		VideoStatus:      string(s.VideoStatus),
		VideoProgress:    s.VideoProgress,
	}
	if s.StartFrame != nil {
		resp.StartFrame = s.StartFrame.DataURL()
	}
	if s.EndFrame != nil {
		resp.EndFrame = s.EndFrame.DataURL()
	}
	if s.Suggestions != nil {
		resp.Suggestions = &SuggestionsResponse{
			Transition: s.Suggestions.Transition,
			VFX:        s.Suggestions.VFX,
			Camera:     s.Suggestions.Camera,
			Narrative:  s.Suggestions.Narrative,
		}
	}
	return resp
}

// parseImageList decodes data URLs from a request into image blobs,
// reporting which entry failed.
func parseImageList(urls []string) ([]gateway.ImageBlob, error) {
	blobs := make([]gateway.ImageBlob, len(urls))
	for i, u := range urls {
		blob, err := gateway.ParseDataURL(u)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i+1, err)
		}
		blobs[i] = blob
	}
	return blobs, nil
}
