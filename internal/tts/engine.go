// Package tts provides the text-to-speech engines behind the publisher.
//
// The model is an external collaborator. Three engines reach it:
//
//   - CommandEngine runs an inference binary per request.
//   - HTTPEngine calls a model sidecar over HTTP.
//   - StubEngine writes silent audio for development and CI.
//
// New builds the engine selected in the configuration once per process and,
// unless concurrent inference is enabled, wraps it in an Exclusive boundary.
package tts

import (
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-publisher/internal/config"
	"github.com/book-expert/tts-publisher/internal/core"
)

// New creates the configured engine.
func New(cfg config.TTSServiceConfig, log *logger.Logger) (core.Synthesizer, error) {
	engine, err := newEngine(cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.ConcurrentInference {
		log.Warn("Concurrent inference enabled; the %s engine must be reentrant.", cfg.Engine)

		return engine, nil
	}

	return NewExclusive(engine), nil
}

func newEngine(cfg config.TTSServiceConfig, log *logger.Logger) (core.Synthesizer, error) {
	switch cfg.Engine {
	case config.EngineCommand:
		modelConfig, err := LoadModelConfig(cfg.ConfigPath)
		if err != nil {
			return nil, err
		}

		log.Info("Model config %s loaded (version=%q, sections=%v).",
			modelConfig.Path, modelConfig.Version, modelConfig.Sections)

		return NewCommandEngine(CommandConfig{
			BinaryPath: cfg.BinaryPath,
			ConfigPath: cfg.ConfigPath,
			ModelDir:   cfg.ModelDir,
		}, log)
	case config.EngineHTTP:
		return NewHTTPEngine(NewHTTPClient(cfg.ServiceURL, nil), log)
	case config.EngineStub:
		log.Warn("Using the stub engine; generated audio is silence.")

		return NewStubEngine(log), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownEngine, cfg.Engine)
	}
}
