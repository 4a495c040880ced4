package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeService answers like the TTS publisher: texts equal to "fail"
// become per-item errors, and an empty single text is rejected.
func newFakeService(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","message":"TTS service is running"}`))
	})
	mux.HandleFunc("POST /tts", func(w http.ResponseWriter, r *http.Request) {
		var body synthesizeBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Text cannot be empty"}`))

			return
		}

		_, _ = w.Write([]byte(`{"url":"https://cdn.example.com/audio/a.wav","filename":"a.wav"}`))
	})
	mux.HandleFunc("POST /tts/batch", func(w http.ResponseWriter, r *http.Request) {
		var body batchBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		results := make([]map[string]string, 0, len(body.Texts))
		for _, text := range body.Texts {
			if text == "fail" {
				results = append(results, map[string]string{"error": "CUDA out of memory", "text": text})

				continue
			}

			results = append(results, map[string]string{"url": "https://cdn.example.com/audio/" + text + ".wav", "text": text})
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func writeChunks(t *testing.T, texts ...string) string {
	t.Helper()

	data, err := json.Marshal(texts)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "chunks.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	flags, err := parseFlags([]string{"--text", "Hello, world!", "--voice", "v.wav", "--timeout", "2m"})
	require.NoError(t, err)

	assert.Equal(t, "Hello, world!", flags.text)
	assert.Equal(t, "v.wav", flags.voice)
	assert.Equal(t, defaultServerURL, flags.server)
	assert.Equal(t, "2m0s", flags.timeout.String())

	_, err = parseFlags([]string{"--nope"})
	require.Error(t, err)
}

func TestArgumentValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flags   appFlags
		wantErr error
	}{
		{name: "no input", flags: appFlags{}, wantErr: ErrEitherTextOrChunks},
		{name: "both inputs", flags: appFlags{text: "a", chunks: "b.json"}, wantErr: ErrCannotSpecifyBoth},
		{name: "text only", flags: appFlags{text: "a"}, wantErr: nil},
		{name: "chunks only", flags: appFlags{chunks: "b.json"}, wantErr: nil},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := validateFlags(testCase.flags)
			if testCase.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestRun_SingleText(t *testing.T) {
	t.Parallel()

	server := newFakeService(t)

	var stdout bytes.Buffer

	err := run([]string{"--server", server.URL, "--text", "Hello"}, &stdout)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/audio/a.wav\n", stdout.String())
}

func TestRun_Health(t *testing.T) {
	t.Parallel()

	server := newFakeService(t)

	var stdout bytes.Buffer

	require.NoError(t, run([]string{"--server", server.URL, "--health"}, &stdout))
	assert.Equal(t, msgServiceHealthy+"\n", stdout.String())
}

func TestRun_Chunks(t *testing.T) {
	t.Parallel()

	server := newFakeService(t)

	var stdout bytes.Buffer

	err := run([]string{"--server", server.URL, "--chunks", writeChunks(t, "one", "fail", "two")}, &stdout)
	require.ErrorIs(t, err, ErrBatchFailures)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.Equal(t, []string{
		"0\thttps://cdn.example.com/audio/one.wav",
		"1\terror\tCUDA out of memory",
		"2\thttps://cdn.example.com/audio/two.wav",
	}, lines)
}

func TestAPIClient_ErrorBody(t *testing.T) {
	t.Parallel()

	server := newFakeService(t)
	client := newAPIClient(server.URL+"/", http.DefaultClient)

	_, err := client.synthesize(t.Context(), "", "")
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "400: Text cannot be empty")
}
