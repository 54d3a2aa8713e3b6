package storyboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/reelboard/reelboard-agent/internal/gateway"
	"github.com/reelboard/reelboard-agent/internal/logging"
)

// dramaticChangeThreshold is the scene duration, in seconds, at or above
// which the end frame must show a dramatic rather than subtle change.
const dramaticChangeThreshold = 5

// Materializer generates the full artifact set for a single scene and
// commits it atomically to the store.
type Materializer struct {
	gateway gateway.Gateway
	store   *Store
	logger  *slog.Logger
}

func NewMaterializer(gw gateway.Gateway, store *Store, logger *slog.Logger) *Materializer {
	return &Materializer{gateway: gw, store: store, logger: logger}
}

// referenceSet is the ordered reference images for a scene, grouped by
// kind so prompts can state the priority between them.
type referenceSet struct {
	modelRefs []gateway.ImageBlob
	sheets    []gateway.ImageBlob
	products  []gateway.ImageBlob
}

func (r referenceSet) all() []gateway.ImageBlob {
	out := make([]gateway.ImageBlob, 0, len(r.modelRefs)+len(r.sheets)+len(r.products))
	out = append(out, r.modelRefs...)
	out = append(out, r.sheets...)
	out = append(out, r.products...)
	return out
}

// collectReferences gathers reference images for the scene's models and
// products from the snapshot. Raw model photos come first, then sheets,
// then product shots. Names absent from the snapshot are skipped.
func collectReferences(spec SceneSpec, snap Snapshot) referenceSet {
	var refs referenceSet

	byModel := make(map[string]*ModelAsset, len(snap.Models))
	for i := range snap.Models {
		byModel[snap.Models[i].Name] = &snap.Models[i]
	}
	for _, name := range spec.ModelsInScene {
		m, ok := byModel[name]
		if !ok {
			continue
		}
		refs.modelRefs = append(refs.modelRefs, m.ReferenceImages...)
		if m.Sheet != nil && !m.Sheet.IsZero() {
			refs.sheets = append(refs.sheets, *m.Sheet)
		}
	}

	byProduct := make(map[string]*ProductAsset, len(snap.Products))
	for i := range snap.Products {
		byProduct[snap.Products[i].Name] = &snap.Products[i]
	}
	for _, name := range spec.ProductsInScene {
		p, ok := byProduct[name]
		if !ok {
			continue
		}
		if !p.Image.IsZero() {
			refs.products = append(refs.products, p.Image)
		}
	}
	return refs
}

// consistencyDirectives appends the reference-priority paragraphs. Raw
// model photos outrank sheets; sheets alone get a weaker directive.
func consistencyDirectives(prompt string, refs referenceSet) string {
	if len(refs.modelRefs) > 0 {
		prompt += "\n\nCRITICAL: You are provided with original reference images for the models. Prioritize these original images above all else to ensure perfect character consistency. The model sheets are for secondary reference on poses and angles but the core likeness MUST come from the original photos."
	} else if len(refs.sheets) > 0 {
		prompt += "\n\nCRITICAL: Use the provided model sheets to ensure model appearance is consistent."
	}
	if len(refs.products) > 0 {
		prompt += "\n\nCRITICAL: Use the provided product images to ensure product appearance is perfectly consistent."
	}
	return prompt
}

// startFramePrompt builds the start-frame instruction for a scene
// description and its reference set.
func startFramePrompt(description string, refs referenceSet) string {
	prompt := fmt.Sprintf(`You are an AI cinematographer. A blank white 16:9 canvas is provided. Your task is to generate a single, photorealistic, cinematic, full-screen frame ON THIS CANVAS based on the following description. The result must look like a real, high-quality photograph from a commercial, not an animation or drawing.
Description: %q.`, description)
	return consistencyDirectives(prompt, refs)
}

// endFramePrompt builds the end-frame instruction. Scenes of
// dramaticChangeThreshold seconds or longer demand a substantial visual
// transformation.
func endFramePrompt(narrative string, duration int, refs referenceSet) string {
	prompt := fmt.Sprintf(`This is the start frame of a %d-second commercial scene. The key action during the scene is: %q.
Generate the end frame that shows the result of this action.
The end frame MUST be visually distinct from the start frame, showing a clear, significant change in pose, expression, or position. Maintain perfect consistency for character design, products, and background. The style must remain photorealistic and cinematic.`, duration, narrative)

	if duration >= dramaticChangeThreshold {
		prompt += fmt.Sprintf("\n\nCRITICAL: Because this scene is %d seconds long, the transformation from the start frame to the end frame must be dramatic and substantial. Avoid subtle changes. Show a major development in the action.", duration)
	}
	return consistencyDirectives(prompt, refs)
}

func suggestionsSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"transition": {
				Type:        genai.TypeString,
				Description: "A creative video transition name (e.g., 'Whip Pan', 'Glitch Cut', 'Morph').",
			},
			"vfx": {
				Type:        genai.TypeString,
				Description: "A visual effect to apply (e.g., '8mm Film Grain', 'Chromatic Aberration', 'Slow Motion').",
			},
			"camera": {
				Type:        genai.TypeString,
				Description: "A camera movement or angle (e.g., 'Dolly Zoom In', 'Low Angle Shot', 'Crane Shot Up').",
			},
			"narrative": {
				Type:        genai.TypeString,
				Description: "A brief, one-sentence description of a dynamic action that connects the start and end frames, implying noticeable change over the scene's duration.",
			},
		},
		Required: []string{"transition", "vfx", "camera", "narrative"},
	}
}

// Materialize runs the full artifact pipeline for one scene and commits
// the result. The commit is all-or-nothing: any step failure marks the
// scene failed and leaves no partial artifacts behind.
//
// The start frame and the suggestions are independent and run in
// parallel; the end frame needs the start frame and the final prompt
// needs the suggestions, so those two run after the fan-in.
func (m *Materializer) Materialize(ctx context.Context, scene *Scene, snap Snapshot) error {
	logger := m.logger
	if logger != nil {
		logger = logging.WithEpoch(logging.WithSceneID(logger, scene.ID), scene.Epoch)
	}

	refs := collectReferences(scene.SceneSpec, snap)

	var (
		startFrame  gateway.ImageBlob
		suggestions Suggestions
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		images := append([]gateway.ImageBlob{gateway.BlankCanvasPNG()}, refs.all()...)
		frame, err := m.gateway.GenerateImage(gctx, startFramePrompt(scene.Description, refs), images)
		if err != nil {
			return fmt.Errorf("start frame: %w", err)
		}
		startFrame = frame
		return nil
	})
	g.Go(func() error {
		sugg, err := m.generateSuggestions(gctx, scene.Description, scene.Duration)
		if err != nil {
			return fmt.Errorf("suggestions: %w", err)
		}
		suggestions = sugg
		return nil
	})
	if err := g.Wait(); err != nil {
		return m.fail(scene, "frame/suggestions", err)
	}

	// The end frame is conditioned on the suggested narrative, which
	// describes the action connecting the two frames. The planner's scene
	// narrative is broader and feeds the start frame path instead.
	endImages := append([]gateway.ImageBlob{startFrame}, refs.all()...)
	endFrame, err := m.gateway.GenerateImage(ctx, endFramePrompt(suggestions.Narrative, scene.Duration, refs), endImages)
	if err != nil {
		return m.fail(scene, "end frame", err)
	}

	finalPrompt, err := m.generateFinalPrompt(ctx, scene.Description, suggestions, scene.Duration)
	if err != nil {
		return m.fail(scene, "final prompt", err)
	}

	committed := m.store.CommitMaterialization(scene.Epoch, scene.ID, scene.Revision, Artifacts{
		StartFrame:  startFrame,
		EndFrame:    endFrame,
		Suggestions: suggestions,
		FinalPrompt: finalPrompt,
	})
	if !committed {
		if logger != nil {
			logger.Info("materialization superseded, result dropped", "revision", scene.Revision)
		}
		return nil
	}

	if logger != nil {
		logger.Info("scene materialized")
	}
	return nil
}

func (m *Materializer) fail(scene *Scene, step string, err error) error {
	merr := &MaterializationError{SceneID: scene.ID, Step: step, Err: err}
	m.store.FailMaterialization(scene.Epoch, scene.ID, scene.Revision, merr)
	if m.logger != nil {
		logging.WithEpoch(logging.WithSceneID(m.logger, scene.ID), scene.Epoch).
			Error("scene materialization failed", "step", step, "error", err)
	}
	return merr
}

func (m *Materializer) generateSuggestions(ctx context.Context, description string, duration int) (Suggestions, error) {
	prompt := fmt.Sprintf("Based on the commercial scene idea %q, generate creative suggestions for a %d-second cinematic clip. The narrative must describe a clear, dynamic action with a visible outcome.", description, duration)

	raw, err := m.gateway.GenerateStructured(ctx, prompt, "", suggestionsSchema())
	if err != nil {
		return Suggestions{}, err
	}

	var sugg Suggestions
	if err := json.Unmarshal(raw, &sugg); err != nil {
		return Suggestions{}, fmt.Errorf("invalid suggestions JSON: %w", err)
	}
	return sugg, nil
}

// generateFinalPrompt consolidates the description and the four
// suggestion fields into the plain-text prompt handed to the video
// engine.
func (m *Materializer) generateFinalPrompt(ctx context.Context, description string, sugg Suggestions, duration int) (string, error) {
	systemInstruction := fmt.Sprintf("You are an expert prompt engineer for an AI video generator. Combine a scene idea and creative suggestions into a single, cohesive, and detailed video prompt for a %d-second cinematic commercial scene.", duration)

	prompt := fmt.Sprintf(`Scene Idea: %q
Transition: %q
VFX: %q
Camera: %q
Narrative: %q
Combine these into one detailed video prompt.`,
		description, sugg.Transition, sugg.VFX, sugg.Camera, sugg.Narrative)

	text, err := m.gateway.GenerateText(ctx, prompt, systemInstruction)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
