package service

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ines/audigest/internal/apperr"
)

// Transcriber turns an audio file into text through a speech-to-text API.
// The model is a black box: failures surface as ErrTranscription and are
// never retried automatically, a second multi-minute transcription run
// costs too much to trigger blindly.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// TranscriberOptions holds configuration for the transcription service.
type TranscriberOptions struct {
	BaseURL string
	Model   string
	APIKey  string
}

// WhisperTranscriber implements Transcriber against an OpenAI-compatible
// audio transcription endpoint.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

// NewWhisperTranscriber creates a transcriber backed by the configured
// endpoint.
func NewWhisperTranscriber(opts *TranscriberOptions) *WhisperTranscriber {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &WhisperTranscriber{
		client: openai.NewClientWithConfig(cfg),
		model:  opts.Model,
	}
}

// HealthCheck reports whether the transcription endpoint is reachable
// without submitting any audio.
func (t *WhisperTranscriber) HealthCheck(ctx context.Context) error {
	_, err := t.client.ListModels(ctx)
	return err
}

// Transcribe converts the audio file at audioPath to text.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - audioPath: local path to the audio file.
// Returns:
//   - string: transcript text.
//   - error: ErrTranscription when the model fails or returns nothing.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: audioPath,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrTranscription, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("%w: model returned an empty transcript", apperr.ErrTranscription)
	}
	return text, nil
}
