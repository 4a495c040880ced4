package server_test

import (
	"context"
	"io"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-publisher/internal/config"
	"github.com/book-expert/tts-publisher/internal/core"
	"github.com/book-expert/tts-publisher/internal/pipeline"
	"github.com/book-expert/tts-publisher/internal/publisher"
	"github.com/book-expert/tts-publisher/internal/tts"
)

type discardStore struct{}

func (discardStore) Download(context.Context, string) ([]byte, error) {
	return nil, nil
}

func (discardStore) Upload(_ context.Context, _ string, body io.Reader, _ int64, _ string) error {
	_, err := io.Copy(io.Discard, body)

	return err
}

// newStubPipeline wires the real pipeline to the stub engine and a store
// that discards uploads.
func newStubPipeline(t *testing.T, log *logger.Logger, tempDir, voice string) *pipeline.Service {
	t.Helper()

	storage := config.StorageConfig{
		Backend:         config.BackendS3,
		Endpoint:        "https://account.r2.cloudflarestorage.com",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "alice-tts-audio",
		PublicURLBase:   "https://cdn.example.com",
		Region:          config.DefaultRegion,
	}

	pub := publisher.New(storage, func(config.StorageConfig) (core.ObjectStore, error) {
		return discardStore{}, nil
	}, log)

	return pipeline.NewService(
		pipeline.Config{TempDir: tempDir, DefaultVoicePrompt: voice},
		tts.NewExclusive(tts.NewStubEngine(log)),
		pub,
		nil,
		log,
	)
}
