// Package publisher uploads synthesized artifacts to object storage and
// returns their public URLs.
package publisher

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-publisher/internal/artifact"
	"github.com/book-expert/tts-publisher/internal/config"
	"github.com/book-expert/tts-publisher/internal/core"
)

// StoreFactory builds the object store for a complete storage configuration.
type StoreFactory func(cfg config.StorageConfig) (core.ObjectStore, error)

// Publisher publishes artifacts. The storage configuration is checked on
// every call rather than at startup, so a service without credentials can
// still boot and answer health checks.
type Publisher struct {
	cfg     config.StorageConfig
	factory StoreFactory
	log     *logger.Logger

	mu    sync.Mutex
	store core.ObjectStore
}

// New creates a Publisher.
func New(cfg config.StorageConfig, factory StoreFactory, log *logger.Logger) *Publisher {
	return &Publisher{
		cfg:     cfg,
		factory: factory,
		log:     log,
		mu:      sync.Mutex{},
		store:   nil,
	}
}

// ObjectKey returns the storage key for a published file name.
func ObjectKey(filename string) string {
	return config.DefaultAudioPrefix + "/" + filename
}

// PublicURL joins the public base URL and an object key. The key is not
// escaped; keys are derived from UUIDs.
func PublicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

// CheckConfig reports whether the storage settings are complete.
func (p *Publisher) CheckConfig(context.Context) error {
	err := p.cfg.Validate()
	if err != nil {
		return core.NewError(core.KindConfiguration, "publish",
			fmt.Errorf("%w (missing: %s)", err, strings.Join(p.cfg.Missing(), ", ")))
	}

	return nil
}

// Publish uploads the artifact under audio/{uuid}.wav with a single PUT.
// The artifact itself is left in place; its owner releases it.
func (p *Publisher) Publish(ctx context.Context, art *artifact.Artifact) (core.PublishedAudio, error) {
	var published core.PublishedAudio

	err := p.cfg.Validate()
	if err != nil {
		return published, core.NewError(core.KindConfiguration, "publish", err)
	}

	store, err := p.objectStore()
	if err != nil {
		return published, core.NewError(core.KindConfiguration, "publish", err)
	}

	file, size, err := art.Open()
	if err != nil {
		return published, core.NewError(core.KindPublish, "publish", err)
	}
	defer file.Close()

	filename := art.Filename()
	key := ObjectKey(filename)

	p.log.Info("Uploading %s (%d bytes) to bucket %s", key, size, p.cfg.Bucket)

	err = store.Upload(ctx, key, file, size, core.ContentTypeWAV)
	if err != nil {
		return published, core.NewError(core.KindPublish, "upload", err)
	}

	published = core.PublishedAudio{
		URL:      PublicURL(p.cfg.PublicURLBase, key),
		Filename: filename,
	}

	p.log.Info("Upload successful. Public URL: %s", published.URL)

	return published, nil
}

// objectStore builds the store on first use and reuses it afterwards.
func (p *Publisher) objectStore() (core.ObjectStore, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.store != nil {
		return p.store, nil
	}

	store, err := p.factory(p.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}

	p.store = store

	return store, nil
}
