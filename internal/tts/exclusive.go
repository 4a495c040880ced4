package tts

import (
	"context"

	"github.com/book-expert/tts-publisher/internal/core"
)

// Exclusive serializes calls into a shared engine. The model behind an
// engine is loaded once per process and is not assumed to be reentrant, so
// concurrent requests queue here instead of entering the model together.
// Waiting callers give up when their context is done.
type Exclusive struct {
	engine core.Synthesizer
	slot   chan struct{}
}

// NewExclusive wraps engine in a single-entry boundary.
func NewExclusive(engine core.Synthesizer) *Exclusive {
	return &Exclusive{engine: engine, slot: make(chan struct{}, 1)}
}

// Synthesize implements core.Synthesizer.
func (e *Exclusive) Synthesize(ctx context.Context, voicePrompt, text, outputPath string) error {
	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	defer func() { <-e.slot }()

	return e.engine.Synthesize(ctx, voicePrompt, text, outputPath)
}

// HealthCheck forwards to the wrapped engine when it supports health checks.
func (e *Exclusive) HealthCheck(ctx context.Context) error {
	checker, ok := e.engine.(core.HealthChecker)
	if !ok {
		return nil
	}

	return checker.HealthCheck(ctx)
}

// Unwrap returns the wrapped engine.
func (e *Exclusive) Unwrap() core.Synthesizer {
	return e.engine
}
