package storyboard

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/reelboard/reelboard-agent/internal/gateway"
)

func suggestionsJSON() []byte {
	return []byte(`{"transition":"Whip Pan","vfx":"Film Grain","camera":"Dolly In","narrative":"she turns to camera"}`)
}

func snapshotWithAssets() Snapshot {
	return Snapshot{
		Models: []ModelAsset{{
			Name:            "Ava",
			ReferenceImages: []gateway.ImageBlob{testBlob("ava-ref-1"), testBlob("ava-ref-2")},
			Sheet:           &gateway.ImageBlob{Data: []byte("ava-sheet"), MIMEType: "image/png"},
		}},
		Products: []ProductAsset{{Name: "Serum", Image: testBlob("serum")}},
	}
}

func materializerFixture(fake *fakeGateway) (*Materializer, *Store, *Scene) {
	store := NewStore()
	store.ReplaceAll([]SceneSpec{{
		Description:     "Ava holds the serum",
		Narrative:       "she lifts the bottle",
		Duration:        3,
		ModelsInScene:   []string{"Ava"},
		ProductsInScene: []string{"Serum"},
		Engine:          EngineKling,
	}})
	scene := store.List()[0]
	return NewMaterializer(fake, store, nil), store, scene
}

func TestMaterialize_CommitsAllArtifacts(t *testing.T) {
	fake := &fakeGateway{
		structuredFn: func(prompt, system string, schema *genai.Schema) ([]byte, error) {
			return suggestionsJSON(), nil
		},
	}
	m, store, scene := materializerFixture(fake)

	if err := m.Materialize(context.Background(), scene, snapshotWithAssets()); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	got := store.Get(scene.ID)
	if !got.Materialized() {
		t.Fatal("scene should be fully materialized")
	}
	if got.IsLoading {
		t.Error("IsLoading should clear after materialization")
	}
	if got.Suggestions.Transition != "Whip Pan" {
		t.Errorf("Suggestions.Transition = %q, want Whip Pan", got.Suggestions.Transition)
	}
	if got.FinalVideoPrompt == "" {
		t.Error("FinalVideoPrompt should be set")
	}

	// The final prompt call carries all four suggestion fields.
	if len(fake.textPrompts) != 1 {
		t.Fatalf("GenerateText called %d times, want 1", len(fake.textPrompts))
	}
	for _, field := range []string{"Whip Pan", "Film Grain", "Dolly In", "she turns to camera"} {
		if !strings.Contains(fake.textPrompts[0], field) {
			t.Errorf("final prompt input missing suggestion field %q", field)
		}
	}
}

func TestMaterialize_StartFrameInputs(t *testing.T) {
	fake := &fakeGateway{
		structuredFn: func(prompt, system string, schema *genai.Schema) ([]byte, error) {
			return suggestionsJSON(), nil
		},
	}
	m, _, scene := materializerFixture(fake)

	if err := m.Materialize(context.Background(), scene, snapshotWithAssets()); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	// Call 0 is the start frame, call 1 the end frame.
	if len(fake.imageInputs) != 2 {
		t.Fatalf("GenerateImage called %d times, want 2", len(fake.imageInputs))
	}

	start := fake.imageInputs[0]
	canvas := gateway.BlankCanvasPNG()
	if len(start) != 5 {
		t.Fatalf("start frame got %d images, want canvas + 2 refs + sheet + product = 5", len(start))
	}
	if string(start[0].Data) != string(canvas.Data) {
		t.Error("first start-frame image must be the blank canvas")
	}
	// Raw references precede the sheet, the sheet precedes the product.
	if string(start[1].Data) != "ava-ref-1" || string(start[2].Data) != "ava-ref-2" {
		t.Error("model reference images must come right after the canvas")
	}
	if string(start[3].Data) != "ava-sheet" {
		t.Error("model sheet must follow the raw references")
	}
	if string(start[4].Data) != "serum" {
		t.Error("product image must come last")
	}

	// Both consistency paragraphs appear, raw refs outranking sheets.
	prompt := fake.imagePrompts[0]
	if !strings.Contains(prompt, "Prioritize these original images") {
		t.Error("start prompt should state raw-reference priority")
	}
	if !strings.Contains(prompt, "product images") {
		t.Error("start prompt should state product consistency")
	}

	// End frame starts from the generated start frame, not the canvas.
	end := fake.imageInputs[1]
	if string(end[0].Data) != "img" {
		t.Error("first end-frame image must be the generated start frame")
	}
}

func TestMaterialize_SheetOnlyDirective(t *testing.T) {
	fake := &fakeGateway{
		structuredFn: func(prompt, system string, schema *genai.Schema) ([]byte, error) {
			return suggestionsJSON(), nil
		},
	}
	m, _, scene := materializerFixture(fake)

	snap := snapshotWithAssets()
	snap.Models[0].ReferenceImages = nil

	if err := m.Materialize(context.Background(), scene, snap); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	prompt := fake.imagePrompts[0]
	if !strings.Contains(prompt, "model sheets to ensure model appearance") {
		t.Error("sheet-only scene should get the sheet consistency directive")
	}
	if strings.Contains(prompt, "Prioritize these original images") {
		t.Error("sheet-only scene must not claim raw references exist")
	}
}

func TestMaterialize_FailureCommitsNothing(t *testing.T) {
	calls := 0
	fake := &fakeGateway{
		structuredFn: func(prompt, system string, schema *genai.Schema) ([]byte, error) {
			return suggestionsJSON(), nil
		},
		imageFn: func(prompt string, images []gateway.ImageBlob) (gateway.ImageBlob, error) {
			calls++
			if calls == 2 {
				// End frame fails after a successful start frame.
				return gateway.ImageBlob{}, errors.New("refused")
			}
			return testBlob("frame"), nil
		},
	}
	m, store, scene := materializerFixture(fake)

	err := m.Materialize(context.Background(), scene, snapshotWithAssets())
	var merr *MaterializationError
	if !errors.As(err, &merr) {
		t.Fatalf("error = %v, want MaterializationError", err)
	}

	got := store.Get(scene.ID)
	if got.StartFrame != nil || got.EndFrame != nil || got.Suggestions != nil || got.FinalVideoPrompt != "" {
		t.Error("failed materialization must not leave partial artifacts")
	}
	if got.IsLoading {
		t.Error("IsLoading should clear on failure")
	}
	if got.LastError == "" {
		t.Error("failure should be recorded on the scene")
	}
	if got.Description != "Ava holds the serum" {
		t.Error("descriptive fields must survive the failure")
	}
}

func TestMaterialize_EndFrameUsesSuggestedNarrative(t *testing.T) {
	fake := &fakeGateway{
		structuredFn: func(prompt, system string, schema *genai.Schema) ([]byte, error) {
			return suggestionsJSON(), nil
		},
	}
	m, _, scene := materializerFixture(fake)

	if err := m.Materialize(context.Background(), scene, snapshotWithAssets()); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	if len(fake.imagePrompts) != 2 {
		t.Fatalf("GenerateImage called %d times, want 2", len(fake.imagePrompts))
	}

	// The end frame describes the suggested connecting action, not the
	// planner's scene narrative.
	end := fake.imagePrompts[1]
	if !strings.Contains(end, "she turns to camera") {
		t.Errorf("end frame prompt should carry the suggested narrative, got %q", end)
	}
	if strings.Contains(end, "she lifts the bottle") {
		t.Errorf("end frame prompt must not use the planner narrative, got %q", end)
	}
}

func TestEndFramePrompt_DramaticChangeThreshold(t *testing.T) {
	short := endFramePrompt("she turns", 4, referenceSet{})
	if strings.Contains(short, "dramatic and substantial") {
		t.Error("4-second scene must not get the dramatic-change directive")
	}

	long := endFramePrompt("she turns", 5, referenceSet{})
	if !strings.Contains(long, "dramatic and substantial") {
		t.Error("5-second scene must get the dramatic-change directive")
	}
	if !strings.Contains(long, "5-second") {
		t.Error("end frame prompt should state the scene duration")
	}
}

func TestMaterialize_SupersededResultDropped(t *testing.T) {
	fake := &fakeGateway{
		structuredFn: func(prompt, system string, schema *genai.Schema) ([]byte, error) {
			return suggestionsJSON(), nil
		},
	}
	m, store, scene := materializerFixture(fake)

	// Rework the scene while "generation" is conceptually in flight.
	if _, _, err := store.BeginRework(scene.ID, "new direction"); err != nil {
		t.Fatalf("BeginRework() error = %v", err)
	}

	if err := m.Materialize(context.Background(), scene, snapshotWithAssets()); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	got := store.Get(scene.ID)
	if got.StartFrame != nil {
		t.Error("superseded materialization must not commit")
	}
	if got.Description != "new direction" {
		t.Error("reworked description must survive")
	}
}
