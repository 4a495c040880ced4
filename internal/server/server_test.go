package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-publisher/internal/config"
	"github.com/book-expert/tts-publisher/internal/core"
	"github.com/book-expert/tts-publisher/internal/pipeline"
	"github.com/book-expert/tts-publisher/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePipeline answers with a fixed result or error and counts calls.
type fakePipeline struct {
	published core.PublishedAudio
	err       error
	panicWith any
	calls     int
	batches   []pipeline.BatchRequest
}

func (f *fakePipeline) DefaultVoicePrompt() string {
	return "default.wav"
}

func (f *fakePipeline) Synthesize(_ context.Context, _ core.SynthesisRequest) (core.PublishedAudio, error) {
	f.calls++

	if f.panicWith != nil {
		panic(f.panicWith)
	}

	return f.published, f.err
}

func (f *fakePipeline) SynthesizeBatch(_ context.Context, batch pipeline.BatchRequest) []core.BatchItem {
	f.batches = append(f.batches, batch)

	results := make([]core.BatchItem, 0, len(batch.Items))
	for _, raw := range batch.Items {
		results = append(results, core.BatchItem{URL: "", Filename: "", Error: "Empty text", Text: string(raw)})
	}

	return results
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func newHandler(t *testing.T, pipe server.Pipeline, checkers ...server.Checker) http.Handler {
	t.Helper()

	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})

	srv := server.New(
		server.Config{Addr: "127.0.0.1:0", AllowedOrigins: nil},
		pipe,
		checkers,
		nil,
		metricsHandler,
		newTestLogger(t),
	)

	return srv.Handler()
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}

	return rec, decoded
}

func TestHealth(t *testing.T) {
	t.Parallel()

	handler := newHandler(t, &fakePipeline{})

	rec, body := doRequest(t, handler, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "ok", "message": "TTS service is running"}, body)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSynthesize_Success(t *testing.T) {
	t.Parallel()

	pipe := &fakePipeline{
		published: core.PublishedAudio{
			URL:      "https://cdn.example.com/audio/0b8e7c2a-7f5e-4b4e-9a53-2f0f2b1a6c11.wav",
			Filename: "0b8e7c2a-7f5e-4b4e-9a53-2f0f2b1a6c11.wav",
		},
	}
	handler := newHandler(t, pipe)

	rec, body := doRequest(t, handler, http.MethodPost, "/tts", `{"text": "Hello world"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pipe.published.URL, body["url"])
	assert.Equal(t, pipe.published.Filename, body["filename"])
}

func TestSynthesize_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   map[string]any
	}{
		{
			name:       "validation",
			err:        core.Validationf("Voice prompt file not found: %s", "x.wav"),
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"error": "Voice prompt file not found: x.wav"},
		},
		{
			name:       "configuration",
			err:        core.NewError(core.KindConfiguration, "publish", config.ErrStorageNotConfigured),
			wantStatus: http.StatusInternalServerError,
			wantBody:   map[string]any{"error": config.ErrStorageNotConfigured.Error()},
		},
		{
			name:       "synthesis",
			err:        core.NewError(core.KindSynthesis, "synthesize", errors.New("CUDA out of memory")),
			wantStatus: http.StatusInternalServerError,
			wantBody:   map[string]any{"error": "Internal server error", "details": "CUDA out of memory"},
		},
		{
			name:       "publish",
			err:        core.NewError(core.KindPublish, "upload", errors.New("403 Forbidden")),
			wantStatus: http.StatusInternalServerError,
			wantBody:   map[string]any{"error": "Internal server error", "details": "403 Forbidden"},
		},
		{
			name:       "unclassified",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   map[string]any{"error": "Internal server error", "details": "boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := newHandler(t, &fakePipeline{err: tt.err})

			rec, body := doRequest(t, handler, http.MethodPost, "/tts", `{"text": "Hello"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestSynthesize_InvalidRequestsNeverReachPipeline(t *testing.T) {
	t.Parallel()

	bodies := map[string]string{
		`{"text": ""}`:    "Text cannot be empty",
		`{"text": "   "}`: "Text cannot be empty",
		`{}`:              "Missing 'text' field in request body",
		`not json`:        "Request body must be a JSON object",
	}

	for body, want := range bodies {
		pipe := &fakePipeline{}
		handler := newHandler(t, pipe)

		rec, decoded := doRequest(t, handler, http.MethodPost, "/tts", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, want, decoded["error"], body)
		assert.Zero(t, pipe.calls, body)
	}
}

func TestSynthesize_PanicIsInternalError(t *testing.T) {
	t.Parallel()

	handler := newHandler(t, &fakePipeline{panicWith: "nil map"})

	rec, body := doRequest(t, handler, http.MethodPost, "/tts", `{"text": "Hello"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", body["error"])
	assert.Contains(t, body["details"], "nil map")
}

func TestSynthesize_BodyTooLarge(t *testing.T) {
	t.Parallel()

	pipe := &fakePipeline{}
	handler := newHandler(t, pipe)

	huge := fmt.Sprintf(`{"text": %q}`, strings.Repeat("a", 9<<20))

	rec, body := doRequest(t, handler, http.MethodPost, "/tts", huge)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, server.ErrBodyTooLarge.Error(), body["error"])
	assert.Zero(t, pipe.calls)
}

func TestBatch(t *testing.T) {
	t.Parallel()

	pipe := &fakePipeline{}
	handler := newHandler(t, pipe)

	rec, body := doRequest(t, handler, http.MethodPost, "/tts/batch", `{"texts": ["", "", ""]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	results, ok := body["results"].([]any)
	require.True(t, ok)
	assert.Len(t, results, 3)

	require.Len(t, pipe.batches, 1)
	assert.Equal(t, "default.wav", pipe.batches[0].VoicePrompt)
}

func TestBatch_EnvelopeErrors(t *testing.T) {
	t.Parallel()

	bodies := map[string]string{
		`{}`:            "Missing 'texts' field in request body",
		`{"texts": []}`: "'texts' must be a non-empty array",
		`{"texts": 1}`:  "'texts' must be a non-empty array",
	}

	for body, want := range bodies {
		pipe := &fakePipeline{}
		handler := newHandler(t, pipe)

		rec, decoded := doRequest(t, handler, http.MethodPost, "/tts/batch", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, want, decoded["error"], body)
		assert.Empty(t, pipe.batches, body)
	}
}

func TestReady(t *testing.T) {
	t.Parallel()

	ok := server.Checker{Name: "engine", Check: func(context.Context) error { return nil }}
	failing := server.Checker{Name: "storage", Check: func(context.Context) error {
		return config.ErrStorageNotConfigured
	}}

	rec, body := doRequest(t, newHandler(t, &fakePipeline{}, ok), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = doRequest(t, newHandler(t, &fakePipeline{}, ok, failing), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "fail", body["status"])

	checks, isMap := body["checks"].(map[string]any)
	require.True(t, isMap)
	assert.Equal(t, "ok", checks["engine"])
	assert.Equal(t, "fail: "+config.ErrStorageNotConfigured.Error(), checks["storage"])
}

func TestMetricsAndCORS(t *testing.T) {
	t.Parallel()

	handler := newHandler(t, &fakePipeline{})

	rec, _ := doRequest(t, handler, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics\n", rec.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/tts", nil)
	req.Header.Set("Origin", "https://reader.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	preflight := httptest.NewRecorder()
	handler.ServeHTTP(preflight, req)

	assert.Equal(t, "*", preflight.Header().Get("Access-Control-Allow-Origin"))
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	rec, _ := doRequest(t, newHandler(t, &fakePipeline{}), http.MethodGet, "/tts", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEndToEnd_StubEngine(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)
	tempDir := t.TempDir()

	voice := filepath.Join(t.TempDir(), "voice_01.wav")
	require.NoError(t, os.WriteFile(voice, []byte("RIFF"), 0o600))

	pipe := newStubPipeline(t, log, tempDir, voice)
	handler := newHandler(t, pipe)

	rec, body := doRequest(t, handler, http.MethodPost, "/tts", `{"text": "Hello world"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Regexp(t, `^https://cdn\.example\.com/audio/[0-9a-f-]{36}\.wav$`, body["url"])

	rec, body = doRequest(t, handler, http.MethodPost, "/tts", `{"text": "Hi", "voice_prompt": "/does/not/exist.wav"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Voice prompt file not found: /does/not/exist.wav", body["error"])

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
