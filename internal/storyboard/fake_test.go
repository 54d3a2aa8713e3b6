package storyboard

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/genai"

	"github.com/reelboard/reelboard-agent/internal/gateway"
)

// fakeGateway routes each Gateway method to an overridable function so
// tests can script backend behavior per call.
type fakeGateway struct {
	mu sync.Mutex

	structuredFn func(prompt, system string, schema *genai.Schema) ([]byte, error)
	textFn       func(prompt, system string) (string, error)
	imageFn      func(prompt string, images []gateway.ImageBlob) (gateway.ImageBlob, error)
	submitFn     func(prompt string, keyframe *gateway.ImageBlob) (*gateway.VideoJob, error)
	pollFn       func(job *gateway.VideoJob) (gateway.VideoJobStatus, error)
	fetchFn      func(uri string) ([]byte, error)

	imagePrompts []string
	imageInputs  [][]gateway.ImageBlob
	textPrompts  []string
}

func (f *fakeGateway) GenerateStructured(ctx context.Context, prompt, system string, schema *genai.Schema) ([]byte, error) {
	if f.structuredFn == nil {
		return nil, errors.New("structuredFn not set")
	}
	return f.structuredFn(prompt, system, schema)
}

func (f *fakeGateway) GenerateText(ctx context.Context, prompt, system string) (string, error) {
	f.mu.Lock()
	f.textPrompts = append(f.textPrompts, prompt)
	f.mu.Unlock()
	if f.textFn == nil {
		return "a consolidated video prompt", nil
	}
	return f.textFn(prompt, system)
}

func (f *fakeGateway) GenerateImage(ctx context.Context, prompt string, images []gateway.ImageBlob) (gateway.ImageBlob, error) {
	f.mu.Lock()
	f.imagePrompts = append(f.imagePrompts, prompt)
	f.imageInputs = append(f.imageInputs, images)
	f.mu.Unlock()
	if f.imageFn == nil {
		return gateway.ImageBlob{Data: []byte("img"), MIMEType: "image/png"}, nil
	}
	return f.imageFn(prompt, images)
}

func (f *fakeGateway) SubmitVideo(ctx context.Context, prompt string, keyframe *gateway.ImageBlob) (*gateway.VideoJob, error) {
	if f.submitFn == nil {
		return &gateway.VideoJob{ID: "job-1"}, nil
	}
	return f.submitFn(prompt, keyframe)
}

func (f *fakeGateway) PollVideo(ctx context.Context, job *gateway.VideoJob) (gateway.VideoJobStatus, error) {
	if f.pollFn == nil {
		return gateway.VideoJobStatus{Done: true, ResultURI: "https://example.com/video"}, nil
	}
	return f.pollFn(job)
}

func (f *fakeGateway) FetchVideo(ctx context.Context, uri string) ([]byte, error) {
	if f.fetchFn == nil {
		return []byte("video-bytes"), nil
	}
	return f.fetchFn(uri)
}

func (f *fakeGateway) Kind() string { return "fake" }

// fakeSnapshots hands out a fixed snapshot.
type fakeSnapshots struct {
	snap Snapshot
	err  error
}

func (f *fakeSnapshots) Snapshot(ctx context.Context) (Snapshot, error) {
	return f.snap, f.err
}

func testBlob(tag string) gateway.ImageBlob {
	return gateway.ImageBlob{Data: []byte(tag), MIMEType: "image/png"}
}
