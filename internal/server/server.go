// Package server exposes the synthesis pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-publisher/internal/core"
	"github.com/book-expert/tts-publisher/internal/observe"
	"github.com/book-expert/tts-publisher/internal/pipeline"
	"github.com/rs/cors"
)

const (
	// maxBodyBytes bounds request bodies. Batch bodies carry whole chapters.
	maxBodyBytes = 8 << 20

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

var (
	// ErrPanic is reported when a handler panics.
	ErrPanic = errors.New("handler panicked")
	// ErrBodyTooLarge is returned when a request body exceeds maxBodyBytes.
	ErrBodyTooLarge = errors.New("request body too large")
)

// Pipeline is the synthesis pipeline the handlers drive.
type Pipeline interface {
	DefaultVoicePrompt() string
	Synthesize(ctx context.Context, req core.SynthesisRequest) (core.PublishedAudio, error)
	SynthesizeBatch(ctx context.Context, batch pipeline.BatchRequest) []core.BatchItem
}

// Config holds the settings of a Server.
type Config struct {
	// Addr is the listen address.
	Addr string

	// AllowedOrigins lists the CORS origins. Empty allows every origin.
	AllowedOrigins []string
}

// Server is the HTTP API.
type Server struct {
	cfg      Config
	pipeline Pipeline
	checkers []Checker
	metrics  *observe.Metrics
	promHTTP http.Handler
	log      *logger.Logger
}

// New creates a Server. promHTTP serves /metrics and may be nil, in which
// case the route is not registered.
func New(
	cfg Config,
	pipe Pipeline,
	checkers []Checker,
	metrics *observe.Metrics,
	promHTTP http.Handler,
	log *logger.Logger,
) *Server {
	return &Server{
		cfg:      cfg,
		pipeline: pipe,
		checkers: append([]Checker(nil), checkers...),
		metrics:  metrics,
		promHTTP: promHTTP,
		log:      log,
	}
}

// Handler returns the routed handler with CORS, recovery and request
// instrumentation applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("POST /tts", s.handleSynthesize)
	mux.HandleFunc("POST /tts/batch", s.handleBatch)

	if s.promHTTP != nil {
		mux.Handle("GET /metrics", s.promHTTP)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", observe.HeaderRequestID},
		ExposedHeaders: []string{observe.HeaderRequestID},
	})

	return observe.Middleware(s.metrics, s.log)(corsHandler.Handler(s.recoverer(mux)))
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)

	go func() {
		s.log.System("HTTP server listening on %s", s.cfg.Addr)

		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to serve on %s: %w", s.cfg.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	s.log.System("Shutting down HTTP server")

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	return nil
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)

		return
	}

	req, err := pipeline.DecodeSingle(body, s.pipeline.DefaultVoicePrompt())
	if err != nil {
		writeError(w, err)

		return
	}

	published, err := s.pipeline.Synthesize(r.Context(), req)
	if err != nil {
		s.log.Error("[%s] TTS request failed: %v", observe.RequestID(r.Context()), err)
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, published)
}

type batchResponse struct {
	Results []core.BatchItem `json:"results"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)

		return
	}

	batch, err := pipeline.DecodeBatch(body, s.pipeline.DefaultVoicePrompt())
	if err != nil {
		writeError(w, err)

		return
	}

	results := s.pipeline.SynthesizeBatch(r.Context(), batch)

	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

// recoverer turns a handler panic into a KindUnhandled response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			s.log.Error("[%s] panic serving %s: %v", observe.RequestID(r.Context()), r.URL.Path, recovered)
			writeError(w, core.NewError(core.KindUnhandled, "serve", fmt.Errorf("%w: %v", ErrPanic, recovered)))
		}()

		next.ServeHTTP(w, r)
	})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, core.NewError(core.KindValidation, "read", ErrBodyTooLarge)
		}

		return nil, core.NewError(core.KindUnhandled, "read", fmt.Errorf("failed to read request body: %w", err))
	}

	return body, nil
}
