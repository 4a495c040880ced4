package tts

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/book-expert/logger"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Stub output format: 16 kHz mono PCM16, 10 ms of silence per text byte.
const (
	StubSampleRate     = 16000
	StubBitDepth       = 16
	stubSamplesPerByte = StubSampleRate / 100
	wavFormatPCM       = 1
)

// StubEngine implements core.Synthesizer with deterministic silent audio. It is
// intended for development and CI where no model is available.
type StubEngine struct {
	log *logger.Logger
}

// NewStubEngine returns a stub engine.
func NewStubEngine(log *logger.Logger) *StubEngine {
	return &StubEngine{log: log}
}

// Synthesize writes a silent WAV file proportional to the text length.
func (s *StubEngine) Synthesize(ctx context.Context, voicePrompt, text, outputPath string) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	if text == "" {
		return ErrTextEmpty
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create stub output '%s': %w", outputPath, err)
	}

	samples := len(text) * stubSamplesPerByte

	writeErr := WriteSilence(file, samples)
	closeErr := file.Close()

	if writeErr != nil {
		return writeErr
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close stub output '%s': %w", outputPath, closeErr)
	}

	s.log.Info("Stub synthesis: %d bytes of text, voice '%s', %d samples", len(text), voicePrompt, samples)

	return nil
}

// WriteSilence encodes samples of mono PCM16 silence as a WAV stream.
func WriteSilence(w io.WriteSeeker, samples int) error {
	encoder := wav.NewEncoder(w, StubSampleRate, StubBitDepth, 1, wavFormatPCM)
	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: StubSampleRate},
		Data:           make([]int, samples),
		SourceBitDepth: StubBitDepth,
	}

	err := encoder.Write(buffer)
	if err != nil {
		return fmt.Errorf("failed to encode silence: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return fmt.Errorf("failed to finalize wav: %w", err)
	}

	return nil
}
