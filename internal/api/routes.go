package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reelboard/reelboard-agent/internal/catalog"
	"github.com/reelboard/reelboard-agent/internal/config"
	"github.com/reelboard/reelboard-agent/internal/export"
	"github.com/reelboard/reelboard-agent/internal/gateway"
	"github.com/reelboard/reelboard-agent/internal/storyboard"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Get("/models", listModelsHandler(cfg))
		r.Post("/models", createModelHandler(cfg))
		r.Put("/models/{id}", updateModelHandler(cfg))
		r.Delete("/models/{id}", deleteModelHandler(cfg))
		r.Post("/models/{id}/sheet", generateSheetHandler(cfg))

		r.Get("/products", listProductsHandler(cfg))
		r.Post("/products", createProductHandler(cfg))
		r.Delete("/products/{id}", deleteProductHandler(cfg))

		r.Post("/storyboard", planStoryboardHandler(cfg))
		r.Post("/storyboard/analyze", analyzeReferenceHandler(cfg))
		r.Post("/storyboard/reconstruct", reconstructHandler(cfg))
		r.Get("/storyboard/export/edl", exportEDLHandler(cfg))

		r.Get("/scenes", listScenesHandler(cfg))
		r.Get("/scenes/{id}", getSceneHandler(cfg))
		r.Put("/scenes/{id}/description", reworkSceneHandler(cfg))
		r.Post("/scenes/{id}/render", renderSceneHandler(cfg))
		r.Get("/scenes/{id}/video", sceneVideoHandler(cfg))

		r.Get("/ws", eventsHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  config.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		total, materialized, rendering, rendered := cfg.Store.Counts()
		models, products, err := cfg.CatalogService.CountAssets(r.Context())
		if err != nil {
			cfg.Logger.Error("failed to count assets", "error", err)
		}

		state := "idle"
		lastError := ""
		if cfg.Runner != nil {
			lastError = cfg.Runner.LastError()
			switch {
			case cfg.Runner.IsPaused():
				state = "paused"
			case cfg.Runner.IsBusy():
				state = "planning"
			case lastError != "":
				state = "error"
			}
		}

		WriteJSON(w, http.StatusOK, StatusResponse{
			State:          state,
			LastError:      lastError,
			Epoch:          cfg.Store.Epoch(),
			ScenesTotal:    total,
			Materialized:   materialized,
			RendersRunning: rendering,
			Rendered:       rendered,
			ModelsCount:    models,
			ProductsCount:  products,
			Gateway:        cfg.GatewayKind,
		})
	}
}

func listModelsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := cfg.CatalogService.ListModels(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list models", "INTERNAL_ERROR")
			return
		}

		resp := ModelsResponse{Models: make([]ModelResponse, len(models))}
		for i, m := range models {
			resp.Models[i] = ModelToResponse(m)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func createModelHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ModelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		refs, err := parseImageList(req.ReferenceImages)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		model, err := cfg.CatalogService.CreateModel(r.Context(), req.Name, req.Description, refs)
		if err != nil {
			writeCatalogError(w, err)
			return
		}

		WriteJSON(w, http.StatusCreated, ModelToResponse(model))
	}
}

func updateModelHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req ModelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		refs, err := parseImageList(req.ReferenceImages)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		model, err := cfg.CatalogService.UpdateModel(r.Context(), id, req.Name, req.Description, refs)
		if err != nil {
			writeCatalogError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, ModelToResponse(model))
	}
}

func deleteModelHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.CatalogService.DeleteModel(r.Context(), id); err != nil {
			writeCatalogError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func generateSheetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req SheetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		model, err := cfg.CatalogService.GenerateModelSheet(r.Context(), id, catalog.SheetStyle(req.Style))
		if err != nil {
			writeCatalogError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, ModelToResponse(model))
	}
}

func listProductsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		products, err := cfg.CatalogService.ListProducts(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list products", "INTERNAL_ERROR")
			return
		}

		resp := ProductsResponse{Products: make([]ProductResponse, len(products))}
		for i, p := range products {
			resp.Products[i] = ProductToResponse(p)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func createProductHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProductRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		var image gateway.ImageBlob
		if req.Image != "" {
			var err error
			image, err = gateway.ParseDataURL(req.Image)
			if err != nil {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
		}

		product, err := cfg.CatalogService.CreateProduct(r.Context(), req.Name, image)
		if err != nil {
			writeCatalogError(w, err)
			return
		}

		WriteJSON(w, http.StatusCreated, ProductToResponse(product))
	}
}

func deleteProductHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.CatalogService.DeleteProduct(r.Context(), id); err != nil {
			writeCatalogError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func planStoryboardHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StoryboardRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.Idea == "" {
			WriteError(w, http.StatusBadRequest, "idea is required", "BAD_REQUEST")
			return
		}
		if req.TotalDurationS < storyboard.MinTotalDuration {
			WriteError(w, http.StatusBadRequest, "total duration must be at least 3 seconds", "BAD_REQUEST")
			return
		}
		pacing := storyboard.Pacing(req.Pacing)
		if req.Pacing == "" {
			pacing = storyboard.PacingStandard
		}
		if !pacing.Valid() {
			WriteError(w, http.StatusBadRequest, "pacing must be standard or fast", "BAD_REQUEST")
			return
		}

		if err := cfg.Runner.SubmitIdea(req.Idea, req.TotalDurationS, pacing); err != nil {
			writeStoryboardError(w, err)
			return
		}

		WriteJSON(w, http.StatusAccepted, AcceptedResponse{State: "planning"})
	}
}

func analyzeReferenceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		scenes, err := cfg.Planner.AnalyzeReference(r.Context(), req.VideoURL)
		if err != nil {
			writeStoryboardError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, AnalyzeResponse{Scenes: scenes})
	}
}

func reconstructHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReconstructRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if len(req.Scenes) == 0 {
			WriteError(w, http.StatusBadRequest, "scenes are required", "BAD_REQUEST")
			return
		}

		if err := cfg.Runner.SubmitAnalysis(req.Scenes); err != nil {
			writeStoryboardError(w, err)
			return
		}

		WriteJSON(w, http.StatusAccepted, AcceptedResponse{State: "planning"})
	}
}

func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		title := export.SanitizeName(r.URL.Query().Get("title"), 80)
		if title == "" {
			title = "Storyboard"
		}

		frameRate := 30.0
		if raw := r.URL.Query().Get("fps"); raw != "" {
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil || parsed <= 0 {
				WriteError(w, http.StatusBadRequest, "fps must be a positive number", "BAD_REQUEST")
				return
			}
			frameRate = parsed
		}

		scenes := cfg.Store.List()
		if len(scenes) == 0 {
			WriteError(w, http.StatusNotFound, "no storyboard to export", "NOT_FOUND")
			return
		}

		clips := export.BuildClips(scenes)
		edl := export.GenerateEDL(clips, title, frameRate)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename=\""+title+".edl\"")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(edl))
	}
}

func listScenesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scenes := cfg.Store.List()
		resp := ScenesResponse{
			Epoch:  cfg.Store.Epoch(),
			Scenes: make([]SceneResponse, len(scenes)),
		}
		for i, s := range scenes {
			resp.Scenes[i] = SceneToResponse(s)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getSceneHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scene := cfg.Store.Get(chi.URLParam(r, "id"))
		if scene == nil {
			WriteError(w, http.StatusNotFound, "scene not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, SceneToResponse(scene))
	}
}

func reworkSceneHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req ReworkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if cfg.Store.Get(id) == nil {
			WriteError(w, http.StatusNotFound, "scene not found", "NOT_FOUND")
			return
		}

		if err := cfg.Runner.SubmitRework(id, req.Description); err != nil {
			writeStoryboardError(w, err)
			return
		}

		// The rework reset is synchronous, so the response already shows
		// the cleared scene.
		scene := cfg.Store.Get(id)
		if scene == nil {
			WriteError(w, http.StatusNotFound, "scene not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusAccepted, SceneToResponse(scene))
	}
}

func renderSceneHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if cfg.Store.Get(id) == nil {
			WriteError(w, http.StatusNotFound, "scene not found", "NOT_FOUND")
			return
		}

		// The render outlives this request; it runs on the coordinator's
		// own context so a disconnecting client cannot cancel it.
		if err := cfg.Render.RequestRender(id); err != nil {
			var verr *storyboard.ValidationError
			if errors.As(err, &verr) {
				WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusAccepted, RenderResponse{
			SceneID:     id,
			VideoStatus: string(storyboard.VideoPending),
		})
	}
}

func sceneVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		scene := cfg.Store.Get(id)
		if scene == nil {
			WriteError(w, http.StatusNotFound, "scene not found", "NOT_FOUND")
			return
		}
		if scene.VideoStatus != storyboard.VideoDone || scene.VideoPath == "" {
			WriteError(w, http.StatusConflict, "scene has no rendered video", "CONFLICT")
			return
		}

		if err := cfg.Playback.ServeFile(w, r, scene.VideoPath); err != nil {
			cfg.Logger.Error("playback error", "error", err, "scene_id", id)
		}
	}
}

// writeCatalogError maps catalog service errors onto HTTP statuses.
// Validation sentinels are client mistakes; anything else is internal.
func writeCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, catalog.ErrNameRequired),
		errors.Is(err, catalog.ErrNoReferences),
		errors.Is(err, catalog.ErrTooManyReferences),
		errors.Is(err, catalog.ErrImageRequired),
		errors.Is(err, catalog.ErrInvalidSheetStyle):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

// writeStoryboardError maps pipeline submission errors. A busy runner is
// a conflict the client can retry; other validation failures are bad
// requests.
func writeStoryboardError(w http.ResponseWriter, err error) {
	if errors.Is(err, storyboard.ErrBusy) {
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
		return
	}
	var verr *storyboard.ValidationError
	if errors.As(err, &verr) {
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
		return
	}
	WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
}
