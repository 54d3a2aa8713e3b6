package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GenAIClient is the real Gateway backed by the Gemini API.
type GenAIClient struct {
	client     *genai.Client
	apiKey     string
	textModel  string
	imageModel string
	videoModel string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGenAIClient creates a Gemini-backed gateway. The three model ids come
// from config so individual backends can be swapped without a rebuild.
func NewGenAIClient(ctx context.Context, apiKey, textModel, imageModel, videoModel string, logger *slog.Logger) (*GenAIClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GenAIClient{
		client:     client,
		apiKey:     apiKey,
		textModel:  textModel,
		imageModel: imageModel,
		videoModel: videoModel,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		logger: logger,
	}, nil
}

func (c *GenAIClient) GenerateStructured(ctx context.Context, prompt, systemInstruction string, schema *genai.Schema) ([]byte, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	if systemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.textModel, genai.Text(prompt), cfg)
	if err != nil {
		return nil, &GenerationError{Op: "structured generation", Err: err}
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, &GenerationError{Op: "structured generation", Detail: "model returned an empty response"}
	}
	return []byte(text), nil
}

func (c *GenAIClient) GenerateText(ctx context.Context, prompt, systemInstruction string) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if systemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.textModel, genai.Text(prompt), cfg)
	if err != nil {
		return "", &GenerationError{Op: "text generation", Err: err}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &GenerationError{Op: "text generation", Detail: "model returned an empty response"}
	}
	return text, nil
}

func (c *GenAIClient) GenerateImage(ctx context.Context, prompt string, images []ImageBlob) (ImageBlob, error) {
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, c.imageModel, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	})
	if err != nil {
		return ImageBlob{}, &GenerationError{Op: "image generation", Err: err}
	}

	var refusal string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return ImageBlob{Data: part.InlineData.Data, MIMEType: mime}, nil
			}
			if part.Text != "" {
				refusal = part.Text
			}
		}
	}

	if refusal == "" {
		refusal = "model returned no image part"
	}
	return ImageBlob{}, &GenerationError{Op: "image generation", Detail: refusal}
}

func (c *GenAIClient) SubmitVideo(ctx context.Context, prompt string, keyframe *ImageBlob) (*VideoJob, error) {
	var img *genai.Image
	if keyframe != nil && !keyframe.IsZero() {
		img = &genai.Image{
			ImageBytes: keyframe.Data,
			MIMEType:   keyframe.MIMEType,
		}
	}

	op, err := c.client.Models.GenerateVideos(ctx, c.videoModel, prompt, img, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
	})
	if err != nil {
		return nil, &GenerationError{Op: "video submission", Err: err}
	}

	job := &VideoJob{ID: uuid.NewString(), op: op}
	if c.logger != nil {
		c.logger.Info("video job submitted", "job_id", job.ID, "operation", op.Name)
	}
	return job, nil
}

func (c *GenAIClient) PollVideo(ctx context.Context, job *VideoJob) (VideoJobStatus, error) {
	if job == nil || job.op == nil {
		return VideoJobStatus{}, &GenerationError{Op: "video polling", Detail: "invalid job handle"}
	}

	op, err := c.client.Operations.GetVideosOperation(ctx, job.op, nil)
	if err != nil {
		return VideoJobStatus{}, &GenerationError{Op: "video polling", Err: err}
	}
	job.op = op

	if !op.Done {
		return VideoJobStatus{}, nil
	}

	if op.Error != nil {
		return VideoJobStatus{
			Done: true,
			Err:  &GenerationError{Op: "video generation", Detail: fmt.Sprintf("%v", op.Error)},
		}, nil
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 ||
		op.Response.GeneratedVideos[0].Video == nil ||
		op.Response.GeneratedVideos[0].Video.URI == "" {
		return VideoJobStatus{
			Done: true,
			Err:  &GenerationError{Op: "video generation", Detail: "job finished without a video result"},
		}, nil
	}

	return VideoJobStatus{Done: true, ResultURI: op.Response.GeneratedVideos[0].Video.URI}, nil
}

// FetchVideo downloads the result from the file service. The download URL
// requires the API key as a query parameter.
func (c *GenAIClient) FetchVideo(ctx context.Context, resultURI string) ([]byte, error) {
	url := resultURI
	if strings.Contains(url, "?") {
		url += "&key=" + c.apiKey
	} else {
		url += "?key=" + c.apiKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &GenerationError{Op: "video download", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &GenerationError{Op: "video download", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &GenerationError{Op: "video download", Detail: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GenerationError{Op: "video download", Err: err}
	}
	if len(data) == 0 {
		return nil, &GenerationError{Op: "video download", Detail: "empty video payload"}
	}
	return data, nil
}

func (c *GenAIClient) Kind() string {
	return "genai"
}
