package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/book-expert/tts-publisher/internal/core"
)

// Validation messages returned to clients.
const (
	msgBodyNotObject   = "Request body must be a JSON object"
	msgMissingText     = "Missing 'text' field in request body"
	msgTextNotString   = "'text' must be a string"
	msgTextEmpty       = "Text cannot be empty"
	msgMissingTexts    = "Missing 'texts' field in request body"
	msgTextsNotArray   = "'texts' must be a non-empty array"
	msgVoiceNotString  = "'voice_prompt' must be a string"
	msgFmtVoiceMissing = "Voice prompt file not found: %s"
)

// Per-item batch errors.
const (
	msgItemEmpty     = "Empty text"
	msgItemNotString = "text must be a string"
)

// BatchRequest is a decoded batch request. Items keep their raw JSON form so
// that each one can be validated, and echoed, on its own.
type BatchRequest struct {
	Items       []json.RawMessage
	VoicePrompt string
}

// DecodeSingle validates the body of a single synthesis request. It has no
// side effects; the voice prompt is checked separately by CheckVoicePrompt.
func DecodeSingle(body []byte, defaultVoice string) (core.SynthesisRequest, error) {
	var req core.SynthesisRequest

	fields, err := decodeObject(body)
	if err != nil {
		return req, err
	}

	rawText, ok := fields["text"]
	if !ok {
		return req, core.Validationf(msgMissingText)
	}

	var text string

	err = json.Unmarshal(rawText, &text)
	if err != nil || isNull(rawText) {
		return req, core.Validationf(msgTextNotString)
	}

	if strings.TrimSpace(text) == "" {
		return req, core.Validationf(msgTextEmpty)
	}

	voice, err := decodeVoicePrompt(fields, defaultVoice)
	if err != nil {
		return req, err
	}

	return core.SynthesisRequest{Text: text, VoicePrompt: voice}, nil
}

// DecodeBatch validates the envelope of a batch request. Empty or non-string
// entries are not rejected here; they become per-item errors.
func DecodeBatch(body []byte, defaultVoice string) (BatchRequest, error) {
	var req BatchRequest

	fields, err := decodeObject(body)
	if err != nil {
		return req, err
	}

	rawTexts, ok := fields["texts"]
	if !ok {
		return req, core.Validationf(msgMissingTexts)
	}

	var items []json.RawMessage

	err = json.Unmarshal(rawTexts, &items)
	if err != nil || len(items) == 0 {
		return req, core.Validationf(msgTextsNotArray)
	}

	voice, err := decodeVoicePrompt(fields, defaultVoice)
	if err != nil {
		return req, err
	}

	return BatchRequest{Items: items, VoicePrompt: voice}, nil
}

// CheckVoicePrompt fails with a validation error when path does not exist.
func CheckVoicePrompt(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return core.Validationf(msgFmtVoiceMissing, path)
	}

	return core.NewError(core.KindValidation, "validate", fmt.Errorf("voice prompt %s: %w", path, err))
}

// itemText returns the text of a batch entry and the value to echo back.
// A non-string entry yields ok == false.
func itemText(raw json.RawMessage) (text string, echo any, ok bool) {
	var value any

	err := json.Unmarshal(raw, &value)
	if err != nil {
		return "", string(raw), false
	}

	text, ok = value.(string)

	return text, value, ok
}

func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, core.Validationf(msgBodyNotObject)
	}

	err := json.Unmarshal(trimmed, &fields)
	if err != nil {
		return nil, core.Validationf(msgBodyNotObject)
	}

	return fields, nil
}

// decodeVoicePrompt returns the requested voice prompt, or defaultVoice when
// it is absent, null or blank.
func decodeVoicePrompt(fields map[string]json.RawMessage, defaultVoice string) (string, error) {
	raw, ok := fields["voice_prompt"]
	if !ok || isNull(raw) {
		return defaultVoice, nil
	}

	var voice string

	err := json.Unmarshal(raw, &voice)
	if err != nil {
		return "", core.Validationf(msgVoiceNotString)
	}

	if strings.TrimSpace(voice) == "" {
		return defaultVoice, nil
	}

	return voice, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
