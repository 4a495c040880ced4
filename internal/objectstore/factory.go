package objectstore

import (
	"errors"
	"fmt"

	"github.com/book-expert/tts-publisher/internal/config"
	"github.com/book-expert/tts-publisher/internal/core"
	"github.com/nats-io/nats.go"
)

// ErrNoJetStream indicates that the NATS backend was selected without a
// JetStream connection.
var ErrNoJetStream = errors.New("nats storage backend requires a JetStream connection")

// Factory builds the configured object store.
type Factory struct {
	JetStream nats.JetStreamContext
}

// Build returns the store for cfg.Backend.
func (f Factory) Build(cfg config.StorageConfig) (core.ObjectStore, error) {
	switch cfg.Backend {
	case config.BackendS3:
		return NewS3Store(S3Config{
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
		})
	case config.BackendNATS:
		if f.JetStream == nil {
			return nil, ErrNoJetStream
		}

		return NewNatsObjectStore(f.JetStream, cfg.Bucket)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
	}
}
