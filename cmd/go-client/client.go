package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/book-expert/tts-publisher/internal/core"
)

// ErrUnexpectedStatus indicates a non-200 response from the service.
var ErrUnexpectedStatus = errors.New("unexpected status")

// apiClient talks to the TTS publisher HTTP API.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

type synthesizeBody struct {
	Text        string `json:"text"`
	VoicePrompt string `json:"voice_prompt,omitempty"`
}

type batchBody struct {
	Texts       []string `json:"texts"`
	VoicePrompt string   `json:"voice_prompt,omitempty"`
}

type batchResult struct {
	Results []core.BatchItem `json:"results"`
}

func newAPIClient(baseURL string, httpClient *http.Client) *apiClient {
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *apiClient) health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *apiClient) synthesize(ctx context.Context, text, voice string) (core.PublishedAudio, error) {
	var published core.PublishedAudio

	err := c.do(ctx, http.MethodPost, "/tts", synthesizeBody{Text: text, VoicePrompt: voice}, &published)

	return published, err
}

func (c *apiClient) batch(ctx context.Context, texts []string, voice string) ([]core.BatchItem, error) {
	var result batchResult

	err := c.do(ctx, http.MethodPost, "/tts/batch", batchBody{Texts: texts, VoicePrompt: voice}, &result)

	return result.Results, err
}

// do sends body as JSON and decodes a 200 response into out.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	if out == nil {
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}

func statusError(resp *http.Response) error {
	var body errorBody

	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	if decodeErr != nil || body.Error == "" {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if body.Details != "" {
		return fmt.Errorf("%w: %d: %s (%s)", ErrUnexpectedStatus, resp.StatusCode, body.Error, body.Details)
	}

	return fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, body.Error)
}
