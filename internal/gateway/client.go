// Package gateway wraps the generative backend behind a narrow interface.
// All model calls in the agent go through a Gateway; the rest of the code
// never imports the backend SDK for anything but schema types.
package gateway

import (
	"context"
	"log/slog"

	"google.golang.org/genai"
)

// Gateway is the single boundary to the generative backend.
type Gateway interface {
	// GenerateStructured runs a text prompt with a JSON response schema and
	// returns the raw JSON bytes.
	GenerateStructured(ctx context.Context, prompt, systemInstruction string, schema *genai.Schema) ([]byte, error)

	// GenerateText runs a plain text prompt and returns the response text.
	GenerateText(ctx context.Context, prompt, systemInstruction string) (string, error)

	// GenerateImage runs a multimodal prompt (text plus reference images)
	// and returns the first image part of the response.
	GenerateImage(ctx context.Context, prompt string, images []ImageBlob) (ImageBlob, error)

	// SubmitVideo starts a long-running video generation job from a prompt
	// and an optional keyframe image.
	SubmitVideo(ctx context.Context, prompt string, keyframe *ImageBlob) (*VideoJob, error)

	// PollVideo fetches the current state of a video job.
	PollVideo(ctx context.Context, job *VideoJob) (VideoJobStatus, error)

	// FetchVideo downloads the finished video bytes from a result URI.
	FetchVideo(ctx context.Context, resultURI string) ([]byte, error)

	// Kind identifies the implementation ("genai" or "stub") for /status.
	Kind() string
}

// VideoJob is an opaque handle for a submitted video generation job.
type VideoJob struct {
	ID string

	op *genai.GenerateVideosOperation
}

// VideoJobStatus is a poll result.
type VideoJobStatus struct {
	Done      bool
	Err       error
	ResultURI string
}

// StubClient is the Gateway used when no API key is configured. Every call
// fails with a GenerationError explaining how to enable generation.
type StubClient struct {
	logger *slog.Logger
}

func NewStubClient(logger *slog.Logger) *StubClient {
	return &StubClient{logger: logger}
}

func (c *StubClient) notConfigured(op string) *GenerationError {
	if c.logger != nil {
		c.logger.Warn("generation requested without API key", "op", op)
	}
	return &GenerationError{Op: op, Detail: "generation backend not configured (set GEMINI_API_KEY)"}
}

func (c *StubClient) GenerateStructured(ctx context.Context, prompt, systemInstruction string, schema *genai.Schema) ([]byte, error) {
	return nil, c.notConfigured("structured generation")
}

func (c *StubClient) GenerateText(ctx context.Context, prompt, systemInstruction string) (string, error) {
	return "", c.notConfigured("text generation")
}

func (c *StubClient) GenerateImage(ctx context.Context, prompt string, images []ImageBlob) (ImageBlob, error) {
	return ImageBlob{}, c.notConfigured("image generation")
}

func (c *StubClient) SubmitVideo(ctx context.Context, prompt string, keyframe *ImageBlob) (*VideoJob, error) {
	return nil, c.notConfigured("video submission")
}

func (c *StubClient) PollVideo(ctx context.Context, job *VideoJob) (VideoJobStatus, error) {
	return VideoJobStatus{}, c.notConfigured("video polling")
}

func (c *StubClient) FetchVideo(ctx context.Context, resultURI string) ([]byte, error) {
	return nil, c.notConfigured("video download")
}

func (c *StubClient) Kind() string {
	return "stub"
}
