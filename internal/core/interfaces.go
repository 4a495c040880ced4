// Package core defines the core business types and interfaces for the TTS publisher.
package core

import (
	"context"
	"io"
)

// ContentTypeWAV is the content type of every published artifact.
const ContentTypeWAV = "audio/wav"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}

// Synthesizer is the external text-to-speech engine. It conditions the voice on
// the reference audio at voicePrompt and writes a WAV file to outputPath.
// Implementations block until inference completes.
type Synthesizer interface {
	Synthesize(ctx context.Context, voicePrompt, text, outputPath string) error
}

// HealthChecker is implemented by engines that can report their readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SynthesisRequest is a validated request for a single piece of audio.
type SynthesisRequest struct {
	Text        string
	VoicePrompt string
}

// PublishedAudio is the durable result of a successful publish.
type PublishedAudio struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// BatchItem is the outcome of one entry of a batch request. Exactly one of
// URL or Error is set; Text echoes the input entry.
type BatchItem struct {
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
	Text     any    `json:"text"`
}

// Failed reports whether the item carries an error.
func (b BatchItem) Failed() bool {
	return b.Error != ""
}
