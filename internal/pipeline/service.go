// Package pipeline runs one piece of text through synthesis and publishing.
//
// Every run owns a uniquely named temporary artifact. The artifact is removed
// when the run ends, whatever the outcome.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-publisher/internal/artifact"
	"github.com/book-expert/tts-publisher/internal/core"
	"github.com/book-expert/tts-publisher/internal/observe"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// Run modes reported in metrics.
const (
	ModeSingle = "single"
	ModeBatch  = "batch"
	ModeJob    = "job"
)

// State is a step of a pipeline run.
type State string

// Pipeline states, in order. Failed may follow any state before Published.
const (
	StateReceived     State = "received"
	StateValidated    State = "validated"
	StateSynthesizing State = "synthesizing"
	StateUploading    State = "uploading"
	StatePublished    State = "published"
	StateFailed       State = "failed"
)

// ErrPanic is returned when a run panics.
var ErrPanic = errors.New("pipeline run panicked")

// Publisher uploads a finished artifact.
type Publisher interface {
	Publish(ctx context.Context, art *artifact.Artifact) (core.PublishedAudio, error)
}

// Config holds the settings of a Service.
type Config struct {
	// TempDir is where artifacts are reserved. Empty means os.TempDir.
	TempDir string

	// DefaultVoicePrompt is used when a request names no voice prompt.
	DefaultVoicePrompt string
}

// Service composes the engine and the publisher.
type Service struct {
	cfg       Config
	engine    core.Synthesizer
	publisher Publisher
	metrics   *observe.Metrics
	log       *logger.Logger
}

// NewService creates a Service. metrics may be nil.
func NewService(
	cfg Config,
	engine core.Synthesizer,
	pub Publisher,
	metrics *observe.Metrics,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		engine:    engine,
		publisher: pub,
		metrics:   metrics,
		log:       log,
	}
}

// DefaultVoicePrompt returns the configured default voice prompt.
func (s *Service) DefaultVoicePrompt() string {
	return s.cfg.DefaultVoicePrompt
}

// Synthesize handles a single request. The voice prompt must exist.
func (s *Service) Synthesize(ctx context.Context, req core.SynthesisRequest) (core.PublishedAudio, error) {
	return s.synthesize(ctx, req, ModeSingle)
}

// SynthesizeJob handles a request that arrived from the job queue. It
// behaves like Synthesize and is reported under its own mode.
func (s *Service) SynthesizeJob(ctx context.Context, req core.SynthesisRequest) (core.PublishedAudio, error) {
	return s.synthesize(ctx, req, ModeJob)
}

func (s *Service) synthesize(ctx context.Context, req core.SynthesisRequest, mode string) (core.PublishedAudio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return core.PublishedAudio{}, core.Validationf(msgTextEmpty)
	}

	if req.VoicePrompt == "" {
		req.VoicePrompt = s.cfg.DefaultVoicePrompt
	}

	err := CheckVoicePrompt(req.VoicePrompt)
	if err != nil {
		return core.PublishedAudio{}, err
	}

	return s.run(ctx, req, mode)
}

// SynthesizeBatch runs each entry in order and returns one item per entry.
// A failed entry does not stop the batch. The voice prompt is not checked
// up front; a missing file surfaces as a per-item engine error.
func (s *Service) SynthesizeBatch(ctx context.Context, batch BatchRequest) []core.BatchItem {
	voice := batch.VoicePrompt
	if voice == "" {
		voice = s.cfg.DefaultVoicePrompt
	}

	results := make([]core.BatchItem, 0, len(batch.Items))

	for index, raw := range batch.Items {
		results = append(results, s.batchItem(ctx, index, raw, voice))
	}

	return results
}

func (s *Service) batchItem(ctx context.Context, index int, raw json.RawMessage, voice string) core.BatchItem {
	text, echo, ok := itemText(raw)
	if !ok {
		s.recordOutcome(ctx, ModeBatch, core.KindValidation.String())

		return core.BatchItem{URL: "", Filename: "", Error: msgItemNotString, Text: echo}
	}

	if strings.TrimSpace(text) == "" {
		s.recordOutcome(ctx, ModeBatch, core.KindValidation.String())

		return core.BatchItem{URL: "", Filename: "", Error: msgItemEmpty, Text: text}
	}

	published, err := s.run(ctx, core.SynthesisRequest{Text: text, VoicePrompt: voice}, ModeBatch)
	if err != nil {
		s.log.Warn("[%s] batch item %d failed: %v", observe.RequestID(ctx), index, err)

		return core.BatchItem{URL: "", Filename: "", Error: err.Error(), Text: text}
	}

	return core.BatchItem{URL: published.URL, Filename: published.Filename, Error: "", Text: text}
}

// run executes one validated request. Panics are recovered into
// KindUnhandled so that one bad run cannot take down a batch.
func (s *Service) run(ctx context.Context, req core.SynthesisRequest, mode string) (published core.PublishedAudio, err error) {
	requestID := observe.RequestID(ctx)

	ctx, span := observe.StartSpan(ctx, "pipeline.run")
	span.SetAttributes(
		attribute.String("pipeline.mode", mode),
		attribute.Int("text.length", len(req.Text)),
	)

	s.addInFlight(ctx, 1)

	defer func() {
		if recovered := recover(); recovered != nil {
			err = core.NewError(core.KindUnhandled, "run", fmt.Errorf("%w: %v", ErrPanic, recovered))
		}

		outcome := string(StatePublished)
		if err != nil {
			outcome = core.KindOf(err).String()

			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.transition(ctx, requestID, StateFailed, err.Error())
		}

		s.recordOutcome(ctx, mode, outcome)
		s.addInFlight(ctx, -1)
		span.End()
	}()

	s.transition(ctx, requestID, StateReceived, "")
	s.transition(ctx, requestID, StateValidated, fmt.Sprintf("%d chars", len(req.Text)))

	art, err := artifact.New(s.cfg.TempDir)
	if err != nil {
		return published, core.NewError(core.KindUnhandled, "reserve", err)
	}

	defer func() {
		releaseErr := art.Release()
		if releaseErr != nil {
			s.log.Warn("[%s] failed to remove %s: %v", requestID, art.Path, releaseErr)
		}
	}()

	span.SetAttributes(attribute.String("artifact.id", art.ID.String()))
	s.transition(ctx, requestID, StateSynthesizing, art.Filename())

	err = s.synthesizeArtifact(ctx, req, art)
	if err != nil {
		return published, err
	}

	s.transition(ctx, requestID, StateUploading, art.Filename())

	start := time.Now()
	published, err = s.publisher.Publish(ctx, art)

	if s.metrics != nil {
		s.metrics.UploadDuration.Record(ctx, time.Since(start).Seconds())
	}

	if err != nil {
		return core.PublishedAudio{}, err
	}

	s.transition(ctx, requestID, StatePublished, published.URL)

	return published, nil
}

func (s *Service) synthesizeArtifact(ctx context.Context, req core.SynthesisRequest, art *artifact.Artifact) error {
	start := time.Now()
	err := s.engine.Synthesize(ctx, req.VoicePrompt, req.Text, art.Path)

	if s.metrics != nil {
		s.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	}

	if err != nil {
		return core.NewError(core.KindSynthesis, "synthesize", err)
	}

	info, err := art.Inspect()
	if err != nil {
		return core.NewError(core.KindSynthesis, "inspect", err)
	}

	s.log.Info("[%s] synthesized %s: %d bytes, %d Hz, %d ch, %s",
		observe.RequestID(ctx), art.Filename(), info.Size, info.SampleRate, info.Channels, info.Duration)

	return nil
}

func (s *Service) transition(ctx context.Context, requestID string, state State, detail string) {
	observe.AddEvent(ctx, "pipeline."+string(state))

	if state == StateFailed {
		s.log.Error("[%s] state=%s %s", requestID, state, detail)

		return
	}

	s.log.Info("[%s] state=%s %s", requestID, state, detail)
}

func (s *Service) recordOutcome(ctx context.Context, mode, outcome string) {
	if s.metrics == nil {
		return
	}

	s.metrics.Outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("mode", mode),
	))
}

func (s *Service) addInFlight(ctx context.Context, delta int64) {
	if s.metrics == nil {
		return
	}

	s.metrics.InFlight.Add(ctx, delta)
}
