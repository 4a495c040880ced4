package tts

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/book-expert/logger"
)

// ErrBinaryPathEmpty indicates that no inference binary is configured.
var ErrBinaryPathEmpty = errors.New("inference binary path cannot be empty")

// maxOutputInError bounds how much engine output is echoed in an error.
const maxOutputInError = 2048

// CommandConfig configures the inference binary.
type CommandConfig struct {
	BinaryPath string
	ConfigPath string
	ModelDir   string
}

// CommandEngine implements core.Synthesizer by running an inference binary
// once per request. The model is loaded by the binary; the process blocks
// until the output file is written.
type CommandEngine struct {
	config CommandConfig
	log    *logger.Logger
}

// NewCommandEngine resolves the binary on PATH and returns the engine.
func NewCommandEngine(cfg CommandConfig, log *logger.Logger) (*CommandEngine, error) {
	if cfg.BinaryPath == "" {
		return nil, ErrBinaryPathEmpty
	}

	resolved, err := exec.LookPath(cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve inference binary '%s': %w", cfg.BinaryPath, err)
	}

	cfg.BinaryPath = resolved

	return &CommandEngine{config: cfg, log: log}, nil
}

// Args returns the command line for one synthesis. The text is passed after
// "--" so that it is never parsed as a flag.
func (e *CommandEngine) Args(voicePrompt, text, outputPath string) []string {
	return []string{
		"--config", e.config.ConfigPath,
		"--model_dir", e.config.ModelDir,
		"--voice", voicePrompt,
		"--output_path", outputPath,
		"--",
		text,
	}
}

// Synthesize implements core.Synthesizer.
func (e *CommandEngine) Synthesize(ctx context.Context, voicePrompt, text, outputPath string) error {
	// #nosec G204 -- the binary is fixed at startup; text is a single argv entry.
	cmd := exec.CommandContext(ctx, e.config.BinaryPath, e.Args(voicePrompt, text, outputPath)...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("inference binary execution failed: %w - output: %s", err, truncate(output))
	}

	e.log.Info("Generated audio: %s", outputPath)

	return nil
}

func truncate(output []byte) string {
	text := strings.TrimSpace(string(output))
	if len(text) > maxOutputInError {
		return text[len(text)-maxOutputInError:]
	}

	return text
}
