package tts

import (
	"context"
	"fmt"
	"os"

	"github.com/book-expert/logger"
)

const filePermissions = 0o600

// HTTPEngine synthesizes speech through a model sidecar and writes the
// returned audio to the requested output path.
type HTTPEngine struct {
	client *HTTPClient
	log    *logger.Logger
}

// NewHTTPEngine creates an engine backed by client.
func NewHTTPEngine(client *HTTPClient, log *logger.Logger) (*HTTPEngine, error) {
	if client == nil || client.baseURL == "" {
		return nil, ErrServiceURLEmpty
	}

	return &HTTPEngine{client: client, log: log}, nil
}

// Synthesize implements core.Synthesizer.
func (e *HTTPEngine) Synthesize(ctx context.Context, voicePrompt, text, outputPath string) error {
	audioData, err := e.client.GenerateSpeech(ctx, Request{
		Text:           text,
		SpeakerRefPath: voicePrompt,
	})
	if err != nil {
		return fmt.Errorf("failed to generate speech: %w", err)
	}

	err = os.WriteFile(outputPath, audioData, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}

	e.log.Info("Generated audio: %s (%d bytes)", outputPath, len(audioData))

	return nil
}

// HealthCheck implements core.HealthChecker.
func (e *HTTPEngine) HealthCheck(ctx context.Context) error {
	return e.client.HealthCheck(ctx)
}
