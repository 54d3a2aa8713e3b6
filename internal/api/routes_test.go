package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/reelboard/reelboard-agent/internal/catalog"
	"github.com/reelboard/reelboard-agent/internal/db"
	"github.com/reelboard/reelboard-agent/internal/gateway"
	"github.com/reelboard/reelboard-agent/internal/playback"
	"github.com/reelboard/reelboard-agent/internal/storyboard"
)

const testToken = "test-token-1234"

type fakeGateway struct{}

func (f *fakeGateway) GenerateStructured(ctx context.Context, prompt, systemInstruction string, schema *genai.Schema) ([]byte, error) {
	return []byte(`[]`), nil
}

func (f *fakeGateway) GenerateText(ctx context.Context, prompt, systemInstruction string) (string, error) {
	return "a consolidated video prompt", nil
}

func (f *fakeGateway) GenerateImage(ctx context.Context, prompt string, images []gateway.ImageBlob) (gateway.ImageBlob, error) {
	return gateway.ImageBlob{Data: []byte("sheet"), MIMEType: "image/png"}, nil
}

func (f *fakeGateway) SubmitVideo(ctx context.Context, prompt string, keyframe *gateway.ImageBlob) (*gateway.VideoJob, error) {
	return &gateway.VideoJob{ID: "job-1"}, nil
}

func (f *fakeGateway) PollVideo(ctx context.Context, job *gateway.VideoJob) (gateway.VideoJobStatus, error) {
	return gateway.VideoJobStatus{Done: true, ResultURI: "https://example.com/out.mp4"}, nil
}

func (f *fakeGateway) FetchVideo(ctx context.Context, uri string) ([]byte, error) {
	return []byte("reel-bytes"), nil
}

func (f *fakeGateway) Kind() string { return "fake" }

type fakeSnapshots struct{}

func (fakeSnapshots) Snapshot(ctx context.Context) (storyboard.Snapshot, error) {
	return storyboard.Snapshot{}, nil
}

type testEnv struct {
	router http.Handler
	store  *storyboard.Store
	render *storyboard.RenderCoordinator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := catalog.NewRepository(database.Conn())
	if err := repo.SetConfig(context.Background(), "auth_token", testToken); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}

	gw := &fakeGateway{}
	store := storyboard.NewStore()
	planner := storyboard.NewPlanner(gw, logger)
	materializer := storyboard.NewMaterializer(gw, store, logger)
	runner := storyboard.NewRunner(planner, materializer, store, fakeSnapshots{}, logger)
	render := storyboard.NewRenderCoordinator(context.Background(), gw, store, nil, t.TempDir(), time.Millisecond, logger)

	cfg := ServerConfig{
		Port:           0,
		CatalogService: catalog.NewService(repo, gw, logger),
		Repository:     repo,
		Store:          store,
		Planner:        planner,
		Runner:         runner,
		Render:         render,
		Playback:       playback.NewServer(nil),
		Logger:         logger,
		StartTime:      time.Now(),
		DeviceID:       "device-1",
		GatewayKind:    "fake",
	}

	return &testEnv{router: NewRouter(cfg), store: store, render: render}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSONBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v (body %q)", err, rec.Body.String())
	}
	return body
}

func testDataURL(tag string) string {
	return gateway.ImageBlob{Data: []byte(tag), MIMEType: "image/png"}.DataURL()
}

// seedScene installs a one-scene storyboard, optionally with a full
// artifact set.
func seedScene(t *testing.T, store *storyboard.Store, materialized bool) *storyboard.Scene {
	t.Helper()

	store.ReplaceAll([]storyboard.SceneSpec{{
		Description: "Opening shot of the product on a marble counter",
		Duration:    4,
		Engine:      storyboard.EngineVeo,
	}})
	scene := store.List()[0]

	if materialized {
		ok := store.CommitMaterialization(scene.Epoch, scene.ID, scene.Revision, storyboard.Artifacts{
			StartFrame:  gateway.ImageBlob{Data: []byte("start"), MIMEType: "image/png"},
			EndFrame:    gateway.ImageBlob{Data: []byte("end"), MIMEType: "image/png"},
			Suggestions: storyboard.Suggestions{Transition: "cut", VFX: "none", Camera: "dolly in", Narrative: "reveal"},
			FinalPrompt: "a consolidated video prompt",
		})
		if !ok {
			t.Fatal("CommitMaterialization() dropped seed artifacts")
		}
	}
	return store.Get(scene.ID)
}

func TestHealthHandler_NoAuth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeJSONBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["device_id"] != "device-1" {
		t.Errorf("device_id = %v, want device-1", body["device_id"])
	}
}

func TestStatusHandler(t *testing.T) {
	env := newTestEnv(t)
	seedScene(t, env.store, true)

	rec := env.do(t, http.MethodGet, "/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rec.Code, http.StatusOK)
	}

	body := decodeJSONBody(t, rec)
	if body["state"] != "idle" {
		t.Errorf("state = %v, want idle", body["state"])
	}
	if body["scenes_total"] != float64(1) || body["scenes_materialized"] != float64(1) {
		t.Errorf("scene counts = %v/%v, want 1/1", body["scenes_total"], body["scenes_materialized"])
	}
	if body["gateway"] != "fake" {
		t.Errorf("gateway = %v, want fake", body["gateway"])
	}
}

func TestCreateModel_RoundTrip(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/models", ModelRequest{
		Name:            "Ava",
		Description:     "mid-20s, athletic",
		ReferenceImages: []string{testDataURL("ref-1"), testDataURL("ref-2")},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status code = %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}

	created := decodeJSONBody(t, rec)
	if created["name"] != "Ava" {
		t.Errorf("name = %v, want Ava", created["name"])
	}

	rec = env.do(t, http.MethodGet, "/models", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status code = %d, want %d", rec.Code, http.StatusOK)
	}
	var list ModelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Models) != 1 {
		t.Fatalf("listed %d models, want 1", len(list.Models))
	}
	if len(list.Models[0].ReferenceImages) != 2 {
		t.Errorf("reference images = %d, want 2", len(list.Models[0].ReferenceImages))
	}
	if list.Models[0].ReferenceImages[0] != testDataURL("ref-1") {
		t.Errorf("reference image did not round-trip: %q", list.Models[0].ReferenceImages[0])
	}
}

func TestCreateModel_InvalidImage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/models", ModelRequest{
		Name:            "Ava",
		ReferenceImages: []string{"not-a-data-url"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if body := decodeJSONBody(t, rec); body["code"] != "BAD_REQUEST" {
		t.Errorf("code = %v, want BAD_REQUEST", body["code"])
	}
}

func TestUpdateModel_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/models/missing", ModelRequest{
		Name:            "Ava",
		ReferenceImages: []string{testDataURL("ref-1")},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status code = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGenerateSheet_InvalidStyle(t *testing.T) {
	env := newTestEnv(t)

	create := env.do(t, http.MethodPost, "/models", ModelRequest{
		Name:            "Ava",
		ReferenceImages: []string{testDataURL("ref-1")},
	})
	id, _ := decodeJSONBody(t, create)["id"].(string)

	rec := env.do(t, http.MethodPost, "/models/"+id+"/sheet", SheetRequest{Style: "sepia"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGenerateSheet(t *testing.T) {
	env := newTestEnv(t)

	create := env.do(t, http.MethodPost, "/models", ModelRequest{
		Name:            "Ava",
		ReferenceImages: []string{testDataURL("ref-1")},
	})
	id, _ := decodeJSONBody(t, create)["id"].(string)

	rec := env.do(t, http.MethodPost, "/models/"+id+"/sheet", SheetRequest{Style: "monochrome"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if body := decodeJSONBody(t, rec); body["sheet"] == nil || body["sheet"] == "" {
		t.Error("response should carry the generated sheet")
	}
}

func TestCreateProduct_MissingImage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/products", ProductRequest{Name: "Serum"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestProducts_CreateListDelete(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/products", ProductRequest{Name: "Serum", Image: testDataURL("serum")})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status code = %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	id, _ := decodeJSONBody(t, rec)["id"].(string)

	rec = env.do(t, http.MethodGet, "/products", nil)
	var list ProductsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Products) != 1 || list.Products[0].Image != testDataURL("serum") {
		t.Fatalf("listed products = %+v, want one with image intact", list.Products)
	}

	if rec = env.do(t, http.MethodDelete, "/products/"+id, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status code = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestPlanStoryboard_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  StoryboardRequest
	}{
		{"missing idea", StoryboardRequest{TotalDurationS: 15}},
		{"too short", StoryboardRequest{Idea: "launch spot", TotalDurationS: 2}},
		{"bad pacing", StoryboardRequest{Idea: "launch spot", TotalDurationS: 15, Pacing: "frantic"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/storyboard", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status code = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestPlanStoryboard_Accepted(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/storyboard", StoryboardRequest{
		Idea:           "a 15 second spot for a citrus soda",
		TotalDurationS: 15,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status code = %d, want %d (body %s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	if body := decodeJSONBody(t, rec); body["state"] != "planning" {
		t.Errorf("state = %v, want planning", body["state"])
	}
}

func TestReconstruct_EmptyScenes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/storyboard/reconstruct", ReconstructRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestScenes_ListAndGet(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/scenes", nil)
	var empty ScenesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &empty); err != nil {
		t.Fatalf("decode empty list: %v", err)
	}
	if empty.Epoch != 0 || len(empty.Scenes) != 0 {
		t.Fatalf("empty storyboard = %+v, want epoch 0 and no scenes", empty)
	}

	scene := seedScene(t, env.store, true)

	rec = env.do(t, http.MethodGet, "/scenes/"+scene.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
	var got SceneResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode scene: %v", err)
	}
	if got.ID != scene.ID || got.VideoStatus != "idle" {
		t.Errorf("scene = %+v, want seeded idle scene", got)
	}
	if got.StartFrame == "" || got.Suggestions == nil {
		t.Error("materialized scene response should carry artifacts")
	}

	if rec = env.do(t, http.MethodGet, "/scenes/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing scene status code = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestReworkScene(t *testing.T) {
	env := newTestEnv(t)
	scene := seedScene(t, env.store, true)

	rec := env.do(t, http.MethodPut, "/scenes/"+scene.ID+"/description", ReworkRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty description status code = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = env.do(t, http.MethodPut, "/scenes/missing/description", ReworkRequest{Description: "new"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing scene status code = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = env.do(t, http.MethodPut, "/scenes/"+scene.ID+"/description", ReworkRequest{Description: "A slow pan across the bottle"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status code = %d, want %d (body %s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	var got SceneResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode scene: %v", err)
	}
	if got.Description != "A slow pan across the bottle" {
		t.Errorf("description = %q, want reworked text", got.Description)
	}
	if !got.IsLoading || got.StartFrame != "" || got.FinalVideoPrompt != "" {
		t.Errorf("reworked scene = %+v, want cleared artifacts and loading flag", got)
	}
	if got.Revision != scene.Revision+1 {
		t.Errorf("revision = %d, want %d", got.Revision, scene.Revision+1)
	}
}

func TestRenderScene(t *testing.T) {
	env := newTestEnv(t)
	scene := seedScene(t, env.store, true)

	rec := env.do(t, http.MethodPost, "/scenes/missing/render", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing scene status code = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = env.do(t, http.MethodPost, "/scenes/"+scene.ID+"/render", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status code = %d, want %d (body %s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	env.render.Wait()

	got := env.store.Get(scene.ID)
	if got.VideoStatus != storyboard.VideoDone {
		t.Fatalf("VideoStatus = %q, want done (progress %q)", got.VideoStatus, got.VideoProgress)
	}

	rec = env.do(t, http.MethodGet, "/scenes/"+scene.ID+"/video", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("video status code = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "reel-bytes" {
		t.Errorf("video body = %q, want rendered bytes", rec.Body.String())
	}
}

func TestRenderScene_NotReady(t *testing.T) {
	env := newTestEnv(t)
	scene := seedScene(t, env.store, false)

	rec := env.do(t, http.MethodPost, "/scenes/"+scene.ID+"/render", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status code = %d, want %d", rec.Code, http.StatusConflict)
	}
	if body := decodeJSONBody(t, rec); body["code"] != "CONFLICT" {
		t.Errorf("code = %v, want CONFLICT", body["code"])
	}
}

func TestSceneVideo_NotRendered(t *testing.T) {
	env := newTestEnv(t)
	scene := seedScene(t, env.store, true)

	rec := env.do(t, http.MethodGet, "/scenes/"+scene.ID+"/video", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status code = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestExportEDL(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/storyboard/export/edl", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("empty storyboard status code = %d, want %d", rec.Code, http.StatusNotFound)
	}

	seedScene(t, env.store, true)

	rec = env.do(t, http.MethodGet, "/storyboard/export/edl?title=Launch+Spot", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	body := rec.Body.String()
	if !bytes.Contains([]byte(body), []byte("TITLE: Launch Spot")) {
		t.Errorf("EDL missing title: %q", body)
	}
	if !bytes.Contains([]byte(body), []byte("Scene 01")) {
		t.Errorf("EDL missing clip name: %q", body)
	}

	rec = env.do(t, http.MethodGet, "/storyboard/export/edl?fps=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad fps status code = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
