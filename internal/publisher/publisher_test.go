// Package publisher_test tests artifact publishing.
package publisher_test

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-publisher/internal/artifact"
	"github.com/book-expert/tts-publisher/internal/config"
	"github.com/book-expert/tts-publisher/internal/core"
	"github.com/book-expert/tts-publisher/internal/publisher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockUpload = errors.New("mock upload error")

// mockObjectStore is a mock implementation of the ObjectStore interface.
type mockObjectStore struct {
	uploadShouldFail bool
	uploadedKey      string
	uploadedType     string
	uploadedSize     int64
	uploadedData     []byte
	uploads          int
}

func (m *mockObjectStore) Download(_ context.Context, _ string) ([]byte, error) {
	return m.uploadedData, nil
}

func (m *mockObjectStore) Upload(_ context.Context, key string, body io.Reader, size int64, contentType string) error {
	m.uploads++

	if m.uploadShouldFail {
		return errMockUpload
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	m.uploadedKey = key
	m.uploadedType = contentType
	m.uploadedSize = size
	m.uploadedData = data

	return nil
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func completeStorage() config.StorageConfig {
	return config.StorageConfig{
		Backend:         config.BackendS3,
		Endpoint:        "https://account.r2.cloudflarestorage.com",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "alice-tts-audio",
		PublicURLBase:   "https://cdn.example.com/",
		Region:          config.DefaultRegion,
	}
}

func newArtifact(t *testing.T, content string) *artifact.Artifact {
	t.Helper()

	art, err := artifact.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(art.Path, []byte(content), 0o600))

	return art
}

func TestPublicURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://cdn.example.com/audio/abc.wav",
		publisher.PublicURL("https://cdn.example.com/", publisher.ObjectKey("abc.wav")))
	assert.Equal(t, "https://cdn.example.com/audio/abc.wav",
		publisher.PublicURL("https://cdn.example.com", "audio/abc.wav"))
	assert.Equal(t, "/audio/abc.wav", publisher.PublicURL("", "audio/abc.wav"))
}

func TestPublish_Success(t *testing.T) {
	t.Parallel()

	store := &mockObjectStore{}
	factoryCalls := 0
	factory := func(config.StorageConfig) (core.ObjectStore, error) {
		factoryCalls++

		return store, nil
	}

	pub := publisher.New(completeStorage(), factory, newTestLogger(t))

	for range 2 {
		art := newArtifact(t, "RIFF-audio")

		published, err := pub.Publish(context.Background(), art)
		require.NoError(t, err)

		assert.Equal(t, art.ID.String()+".wav", published.Filename)
		assert.Equal(t, "https://cdn.example.com/audio/"+published.Filename, published.URL)
		assert.Equal(t, "audio/"+published.Filename, store.uploadedKey)
		assert.Equal(t, "audio/wav", store.uploadedType)
		assert.Equal(t, int64(len("RIFF-audio")), store.uploadedSize)
		assert.Equal(t, []byte("RIFF-audio"), store.uploadedData)

		_, err = os.Stat(art.Path)
		require.NoError(t, err, "the artifact owner releases the file, not the publisher")
	}

	assert.Equal(t, 1, factoryCalls, "the store is built once and reused")
	assert.Equal(t, 2, store.uploads)
}

func TestPublish_MissingConfiguration(t *testing.T) {
	t.Parallel()

	mutations := map[string]func(*config.StorageConfig){
		"endpoint": func(c *config.StorageConfig) { c.Endpoint = "" },
		"key":      func(c *config.StorageConfig) { c.AccessKeyID = "" },
		"secret":   func(c *config.StorageConfig) { c.SecretAccessKey = "" },
		"bucket":   func(c *config.StorageConfig) { c.Bucket = "" },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := completeStorage()
			mutate(&cfg)

			store := &mockObjectStore{}
			pub := publisher.New(cfg, func(config.StorageConfig) (core.ObjectStore, error) {
				return store, nil
			}, newTestLogger(t))

			_, err := pub.Publish(context.Background(), newArtifact(t, "x"))
			require.Error(t, err)

			assert.Equal(t, core.KindConfiguration, core.KindOf(err))
			require.ErrorIs(t, err, config.ErrStorageNotConfigured)
			assert.Equal(t, 0, store.uploads)

			checkErr := pub.CheckConfig(context.Background())
			require.ErrorIs(t, checkErr, config.ErrStorageNotConfigured)
		})
	}
}

func TestPublish_UploadFailure(t *testing.T) {
	t.Parallel()

	store := &mockObjectStore{uploadShouldFail: true}
	pub := publisher.New(completeStorage(), func(config.StorageConfig) (core.ObjectStore, error) {
		return store, nil
	}, newTestLogger(t))

	_, err := pub.Publish(context.Background(), newArtifact(t, "x"))
	require.ErrorIs(t, err, errMockUpload)
	assert.Equal(t, core.KindPublish, core.KindOf(err))
	assert.Equal(t, 1, store.uploads)
}

func TestPublish_FactoryFailure(t *testing.T) {
	t.Parallel()

	errFactory := errors.New("bad endpoint")
	pub := publisher.New(completeStorage(), func(config.StorageConfig) (core.ObjectStore, error) {
		return nil, errFactory
	}, newTestLogger(t))

	_, err := pub.Publish(context.Background(), newArtifact(t, "x"))
	require.ErrorIs(t, err, errFactory)
	assert.Equal(t, core.KindConfiguration, core.KindOf(err))
}
