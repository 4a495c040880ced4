// Package worker provides a NATS worker that turns text jobs into published audio.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-publisher/internal/core"
	"github.com/book-expert/tts-publisher/internal/observe"
	"github.com/book-expert/tts-publisher/internal/publisher"
	"github.com/nats-io/nats.go"
)

// handleMessageTimeout bounds one job. Long pages can take minutes to
// synthesize on CPU.
const handleMessageTimeout = 10 * time.Minute

// HeaderError carries the failure message on an error reply.
const HeaderError = "Tts-Error"

// defaultVoiceName selects the configured voice prompt.
const defaultVoiceName = "default"

var (
	// ErrTextKeyEmpty indicates that a job names no text object.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrSubjectEmpty indicates that the worker has no subject to listen on.
	ErrSubjectEmpty = errors.New("job subject cannot be empty")
)

// JobPipeline runs a single synthesis job.
type JobPipeline interface {
	SynthesizeJob(ctx context.Context, req core.SynthesisRequest) (core.PublishedAudio, error)
}

// NatsWorker listens for text jobs on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	texts          core.ObjectStore
	pipeline       JobPipeline
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. Job texts are read
// from texts.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	texts core.ObjectStore,
	pipeline JobPipeline,
	log *logger.Logger,
) (*NatsWorker, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		texts:          texts,
		pipeline:       pipeline,
		log:            log,
	}, nil
}

// Run starts the worker and blocks until ctx is cancelled. Jobs in progress
// finish before Run returns.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.System("Listening for TTS jobs on subject: %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse event: %v", err)
		w.replyError(msg, err)

		return
	}

	ctx = observe.WithRequestID(ctx, event.Header.EventID)

	audioKey, processErr := w.processJob(ctx, event)
	if processErr != nil {
		w.log.Error("Failed to process TTS job for workflow %s page %d: %v",
			event.Header.WorkflowID, event.PageNumber, processErr)
		w.replyError(msg, processErr)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processJob downloads the job text, runs the pipeline and returns the
// published object key.
func (w *NatsWorker) processJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	if event.TextKey == "" {
		return "", core.NewError(core.KindValidation, "job", ErrTextKeyEmpty)
	}

	textData, err := w.texts.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	published, err := w.pipeline.SynthesizeJob(ctx, core.SynthesisRequest{
		Text:        string(textData),
		VoicePrompt: voicePrompt(event.Voice),
	})
	if err != nil {
		return "", fmt.Errorf("failed to synthesize text '%s': %w", event.TextKey, err)
	}

	return publisher.ObjectKey(published.Filename), nil
}

// voicePrompt maps a job's voice to a voice prompt path. An empty voice or
// "default" selects the configured prompt.
func voicePrompt(voice string) string {
	voice = strings.TrimSpace(voice)
	if voice == "" || voice == defaultVoiceName {
		return ""
	}

	return voice
}

// publishReplyEvent marshals and responds with the AudioChunkCreatedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

// replyError answers a request with an empty body and the failure in
// HeaderError, so requesters do not wait for their timeout.
func (w *NatsWorker) replyError(msg *nats.Msg, cause error) {
	if msg.Reply == "" {
		return
	}

	reply := nats.NewMsg(msg.Reply)
	reply.Header.Set(HeaderError, cause.Error())

	err := msg.RespondMsg(reply)
	if err != nil {
		w.log.Warn("Failed to publish error reply: %v", err)
	}
}

func parseEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}
