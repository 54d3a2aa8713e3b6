package storyboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/reelboard/reelboard-agent/internal/gateway"
)

// Planner turns an idea or a reference-video analysis into a validated
// list of scene specs. It never touches the store; the runner does.
type Planner struct {
	gateway gateway.Gateway
	logger  *slog.Logger
}

func NewPlanner(gw gateway.Gateway, logger *slog.Logger) *Planner {
	return &Planner{gateway: gw, logger: logger}
}

// storyboardSchema is the response schema shared by idea planning,
// analysis planning and reference analysis.
func storyboardSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"sceneDescription": {
					Type:        genai.TypeString,
					Description: "A detailed, cinematic prompt for an AI image generator to create the first frame of a commercial scene. Describe models, setting, action, mood, lighting, and camera angles.",
				},
				"narrative": {
					Type:        genai.TypeString,
					Description: "A brief, one-sentence description of the dynamic action that occurs during this scene.",
				},
				"duration": {
					Type:        genai.TypeNumber,
					Description: "The estimated duration of this scene in seconds (e.g., 1, 3, 5). The sum of all scene durations MUST strictly equal the total duration specified by the user.",
				},
				"modelsInScene": {
					Type:        genai.TypeArray,
					Items:       &genai.Schema{Type: genai.TypeString},
					Description: "A list of model names present in this scene, based on the provided model list. Can be an empty list.",
				},
				"productsInScene": {
					Type:        genai.TypeArray,
					Items:       &genai.Schema{Type: genai.TypeString},
					Description: "A list of product names present in this scene, based on the provided product list. Can be an empty list.",
				},
				"transitionToNextScene": {
					Type:        genai.TypeString,
					Description: "A creative suggestion for how this scene visually transitions to the next one. For the last scene, this can describe the final fade out.",
				},
			},
			Required: []string{"sceneDescription", "narrative", "duration", "modelsInScene", "productsInScene", "transitionToNextScene"},
		},
	}
}

// rawScene matches the planner schema before durations are normalized.
type rawScene struct {
	Description     string   `json:"sceneDescription"`
	Narrative       string   `json:"narrative"`
	Duration        float64  `json:"duration"`
	ModelsInScene   []string `json:"modelsInScene"`
	ProductsInScene []string `json:"productsInScene"`
	Transition      string   `json:"transitionToNextScene"`
}

func assetLists(snap Snapshot) (modelList, productList string) {
	if len(snap.Models) > 0 {
		var b strings.Builder
		for _, m := range snap.Models {
			desc := m.Description
			if desc == "" {
				desc = "No description"
			}
			fmt.Fprintf(&b, "- %s: %s\n", m.Name, desc)
		}
		modelList = strings.TrimRight(b.String(), "\n")
	} else {
		modelList = "No specific models provided. You may invent them if needed."
	}

	if len(snap.Products) > 0 {
		var b strings.Builder
		for _, p := range snap.Products {
			fmt.Fprintf(&b, "- %s\n", p.Name)
		}
		productList = strings.TrimRight(b.String(), "\n")
	} else {
		productList = "No specific products provided. You may invent a generic product if needed."
	}
	return modelList, productList
}

// PlanFromIdea produces a storyboard for a free-text idea. The returned
// specs are fully validated; any violation yields a PlanningError and no
// partial plan.
func (p *Planner) PlanFromIdea(ctx context.Context, idea string, totalDuration int, pacing Pacing, snap Snapshot) ([]SceneSpec, error) {
	if strings.TrimSpace(idea) == "" {
		return nil, &ValidationError{Reason: "idea is required"}
	}
	if totalDuration < MinTotalDuration {
		return nil, &ValidationError{Reason: fmt.Sprintf("total duration must be at least %d seconds", MinTotalDuration)}
	}
	if !pacing.Valid() {
		return nil, &ValidationError{Reason: "pacing must be standard or fast"}
	}

	modelList, productList := assetLists(snap)

	systemInstruction := fmt.Sprintf(`You are a world-class AI creative director. Your task is to transform a user's idea into a professional, cinematic commercial storyboard.

**Key Directives:**
1. **Strict Duration Adherence:** The sum of all scene durations MUST strictly equal the target of %d seconds. Do not deviate.
2. **Pacing:** The user has selected '%s' pacing.
   - If 'standard': Create 3-5 emotionally resonant scenes.
   - If 'fast': Create many (e.g., up to %d) very short, 1-2 second scenes to create a high-energy, quick-cut feel.
3. **Product as Hero:** The product(s) are the central focus. They must be showcased in a highly appealing, desirable way. At least one scene must be a dedicated, stunning "hero shot" of the product.

**Your Thought Process (Agent Chaining):**
1. **Define Your Persona:** Based on the user's core idea, first, internally define your expert persona. Are you a director for gritty, fast-paced action ads or for elegant, emotional luxury brand films? This persona will guide all your creative choices.
2. **Create a Cohesive Narrative Arc:** Deconstruct the idea into a sequence of scenes that tell a complete, compelling story, strictly adhering to the specified duration and pacing.
3. **Flesh out Each Scene with Cinematic Detail:** For each scene, generate the required JSON object. Your output must be a valid JSON array.

**Detailed Instructions for JSON fields:**
- **sceneDescription**: Write a highly detailed, vivid prompt for an AI image generator. Act as a master cinematographer. Specify camera lenses (e.g., wide-angle, 85mm prime), depth of field, specific lighting setups (e.g., golden hour, three-point lighting), composition (e.g., rule of thirds, leading lines), precise model expressions/actions, and how the product is masterfully integrated. The style must be **photorealistic and cinematic**, suitable for a high-end live-action commercial. DO NOT use anime or cartoon styles.
- **narrative**: Describe the key action that happens *during* the scene in a single, dynamic sentence.
- **duration**: Assign a duration for this scene. Remember, the total must sum to exactly %d seconds. For 'fast' pacing, most durations should be 1 or 2.
- **modelsInScene** & **productsInScene**: List the exact names from the provided lists.
- **transitionToNextScene**: Describe the specific visual or narrative link to the *next* scene (e.g., "Match cut from the spinning car wheel to a spinning watch face," or "J-cut, where the audio from the next scene starts before the video changes."). For the final scene, describe the end card or fade out.

**Available Models:**
%s

**Available Products:**
%s
`, totalDuration, pacing, totalDuration, totalDuration, modelList, productList)

	raw, err := p.gateway.GenerateStructured(ctx, fmt.Sprintf("Core Idea: %q", idea), systemInstruction, storyboardSchema())
	if err != nil {
		return nil, &PlanningError{Reason: "storyboard generation failed", Err: err}
	}

	specs, err := p.parseScenes(ctx, raw)
	if err != nil {
		return nil, err
	}

	if err := validateIdeaPlan(specs, totalDuration, pacing, snap); err != nil {
		return nil, err
	}
	return specs, nil
}

// PlanFromAnalysis rewrites a reference-video breakdown around the real
// catalog. Scene count, order, durations and transitions of the analysis
// are preserved; descriptions change to feature the new assets.
func (p *Planner) PlanFromAnalysis(ctx context.Context, analysis []SceneAnalysis, snap Snapshot) ([]SceneSpec, error) {
	if len(analysis) == 0 {
		return nil, &ValidationError{Reason: "analysis has no scenes"}
	}

	modelList, productList := assetLists(snap)

	systemInstruction := fmt.Sprintf(`You are a creative director reimagining a commercial based on an analysis of another video.
You are given a scene-by-scene breakdown of a reference video.
Your task is to recreate this storyboard but replace the original generic models and products with the new, specific ones provided.
For each scene from the analysis:
1. Rewrite the 'sceneDescription' to feature the new models and products. **CRITICAL: The new products are the heroes. Ensure they are featured prominently and appealingly. If the original analysis lacks a dedicated product 'hero shot', you MUST add one.**
2. Maintain the pacing and structure from the original analysis by keeping the 'duration' and 'transitionToNextScene' ideas.
3. In 'modelsInScene' and 'productsInScene', list the names of the new models and products you've included in the rewritten description, ensuring the names match the provided lists exactly.

Your response must be a valid JSON array.

**Available Models:**
%s

**Available Products:**
%s
`, modelList, productList)

	analysisJSON, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return nil, &PlanningError{Reason: "failed to encode analysis", Err: err}
	}

	prompt := fmt.Sprintf("Here is the reference video analysis. Recreate it with the new models and products.\nAnalysis:\n%s", analysisJSON)

	raw, err := p.gateway.GenerateStructured(ctx, prompt, systemInstruction, storyboardSchema())
	if err != nil {
		return nil, &PlanningError{Reason: "storyboard reconstruction failed", Err: err}
	}

	specs, err := p.parseScenes(ctx, raw)
	if err != nil {
		return nil, err
	}

	if err := validateAnalysisPlan(specs, analysis, snap); err != nil {
		return nil, err
	}

	// Pacing and structure come from the reference video, so the analysis
	// durations and transitions win over whatever the rewrite produced.
	for i := range specs {
		specs[i].Duration = ClampDuration(analysis[i].Duration)
		specs[i].Transition = analysis[i].Transition
	}
	return specs, nil
}

// AnalyzeReference breaks a reference video URL into scenes with generic
// placeholder names.
func (p *Planner) AnalyzeReference(ctx context.Context, videoURL string) ([]SceneAnalysis, error) {
	if strings.TrimSpace(videoURL) == "" {
		return nil, &ValidationError{Reason: "video URL is required"}
	}

	systemInstruction := `You are an expert video analyst with direct access to YouTube. Your task is to watch the video at the provided URL and create a detailed storyboard breakdown.
- **Analyze the video's pacing, narrative, and visual style.** Deconstruct the video into a sequence of key scenes.
- For each scene, provide a detailed description of the visuals, the core narrative action, an estimated duration, and a transition idea. The sum of durations should approximate the video's length.
- For 'modelsInScene' and 'productsInScene', use generic but descriptive names (e.g., ['Main Actor', 'Friend'], ['Hero Product']).
- Respond in valid JSON format using the provided schema.`

	prompt := fmt.Sprintf("Please analyze the video from this URL and generate a storyboard: %s", videoURL)

	raw, err := p.gateway.GenerateStructured(ctx, prompt, systemInstruction, storyboardSchema())
	if err != nil {
		return nil, &PlanningError{Reason: "reference analysis failed", Err: err}
	}

	var analysis []SceneAnalysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return nil, &PlanningError{Reason: "reference analysis returned invalid JSON", Err: err}
	}
	if len(analysis) == 0 {
		return nil, &PlanningError{Reason: "reference analysis returned no scenes"}
	}
	return analysis, nil
}

// parseScenes decodes the schema output, clamps durations and attaches
// an engine recommendation to each scene in order.
func (p *Planner) parseScenes(ctx context.Context, raw []byte) ([]SceneSpec, error) {
	var scenes []rawScene
	if err := json.Unmarshal(raw, &scenes); err != nil {
		return nil, &PlanningError{Reason: "planner returned invalid JSON", Err: err}
	}
	if len(scenes) == 0 {
		return nil, &PlanningError{Reason: "planner returned no scenes"}
	}

	specs := make([]SceneSpec, 0, len(scenes))
	for _, rs := range scenes {
		engine, reasoning, err := p.recommendEngine(ctx, rs.Description, rs.Narrative)
		if err != nil {
			return nil, err
		}
		specs = append(specs, SceneSpec{
			Description:     rs.Description,
			Narrative:       rs.Narrative,
			Duration:        ClampDuration(rs.Duration),
			ModelsInScene:   rs.ModelsInScene,
			ProductsInScene: rs.ProductsInScene,
			Transition:      rs.Transition,
			Engine:          engine,
			EngineReasoning: reasoning,
		})
	}
	return specs, nil
}

// recommendEngine classifies a scene onto one of the four engines. A
// recommendation outside the documented set fails the whole plan.
func (p *Planner) recommendEngine(ctx context.Context, description, narrative string) (EngineID, string, error) {
	prompt := fmt.Sprintf(`
You are an expert AI video generation consultant. Your task is to recommend the best video model for a specific scene based on the models' strengths.

Here are the available models and their specialties:
- **Seedance Pro 1.0**: Best for multi-shot narrative sequences with high character and style consistency.
- **Hailuo 02**: Excels at complex physics, dynamic motion, and action sequences.
- **Veo 3**: Uniquely capable of generating video and synchronized audio. Best for concept films with sound.
- **Kling**: Strong at maintaining consistency when provided with multiple reference images.

**Scene to Analyze:**
- **Visuals & Setting:** %q
- **Key Action/Narrative:** %q

Based on the scene, choose the single most suitable model from the list ['seedance', 'hailuo', 'veo', 'kling'] and provide a brief reasoning.
`, description, narrative)

	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"model":     {Type: genai.TypeString, Description: "One of: 'seedance', 'hailuo', 'veo', 'kling'."},
			"reasoning": {Type: genai.TypeString, Description: "A brief explanation for the choice."},
		},
		Required: []string{"model", "reasoning"},
	}

	raw, err := p.gateway.GenerateStructured(ctx, prompt, "", schema)
	if err != nil {
		return "", "", &PlanningError{Reason: "engine recommendation failed", Err: err}
	}

	var rec struct {
		Model     string `json:"model"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", "", &PlanningError{Reason: "engine recommendation returned invalid JSON", Err: err}
	}

	engine := EngineID(strings.ToLower(strings.TrimSpace(rec.Model)))
	if !engine.Valid() {
		return "", "", &PlanningError{Reason: fmt.Sprintf("engine recommendation %q is not one of seedance, hailuo, veo, kling", rec.Model)}
	}
	return engine, rec.Reasoning, nil
}

func validateIdeaPlan(specs []SceneSpec, totalDuration int, pacing Pacing, snap Snapshot) error {
	sum := 0
	for _, s := range specs {
		sum += s.Duration
	}
	if sum != totalDuration {
		return &PlanningError{Reason: fmt.Sprintf("scene durations sum to %d, want exactly %d", sum, totalDuration)}
	}

	switch pacing {
	case PacingStandard:
		if len(specs) < 3 || len(specs) > 5 {
			return &PlanningError{Reason: fmt.Sprintf("standard pacing requires 3-5 scenes, got %d", len(specs))}
		}
	case PacingFast:
		if len(specs) > totalDuration {
			return &PlanningError{Reason: fmt.Sprintf("fast pacing allows at most %d scenes, got %d", totalDuration, len(specs))}
		}
	}

	if err := validateNameContainment(specs, snap); err != nil {
		return err
	}
	return validateHeroShot(specs, snap)
}

func validateAnalysisPlan(specs []SceneSpec, analysis []SceneAnalysis, snap Snapshot) error {
	if len(specs) != len(analysis) {
		return &PlanningError{Reason: fmt.Sprintf("reconstruction changed the scene count from %d to %d", len(analysis), len(specs))}
	}
	if err := validateNameContainment(specs, snap); err != nil {
		return err
	}
	return validateHeroShot(specs, snap)
}

// validateNameContainment rejects plans that reference assets outside
// the snapshot. It only applies when the catalog is non-empty; with an
// empty catalog the planner is free to invent.
func validateNameContainment(specs []SceneSpec, snap Snapshot) error {
	if len(snap.Models) > 0 {
		known := make(map[string]bool, len(snap.Models))
		for _, m := range snap.Models {
			known[m.Name] = true
		}
		for i, s := range specs {
			for _, name := range s.ModelsInScene {
				if !known[name] {
					return &PlanningError{Reason: fmt.Sprintf("scene %d references unknown model %q", i+1, name)}
				}
			}
		}
	}

	if len(snap.Products) > 0 {
		known := make(map[string]bool, len(snap.Products))
		for _, p := range snap.Products {
			known[p.Name] = true
		}
		for i, s := range specs {
			for _, name := range s.ProductsInScene {
				if !known[name] {
					return &PlanningError{Reason: fmt.Sprintf("scene %d references unknown product %q", i+1, name)}
				}
			}
		}
	}
	return nil
}

// validateHeroShot requires at least one product-bearing scene whenever
// products exist in the catalog.
func validateHeroShot(specs []SceneSpec, snap Snapshot) error {
	if len(snap.Products) == 0 {
		return nil
	}
	for _, s := range specs {
		if len(s.ProductsInScene) > 0 {
			return nil
		}
	}
	return &PlanningError{Reason: "no scene features a product despite products in the catalog"}
}
