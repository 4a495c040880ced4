// main package for the tts-service
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-publisher/internal/config"
	"github.com/book-expert/tts-publisher/internal/core"
	"github.com/book-expert/tts-publisher/internal/objectstore"
	"github.com/book-expert/tts-publisher/internal/observe"
	"github.com/book-expert/tts-publisher/internal/pipeline"
	"github.com/book-expert/tts-publisher/internal/publisher"
	"github.com/book-expert/tts-publisher/internal/server"
	"github.com/book-expert/tts-publisher/internal/tts"
	"github.com/book-expert/tts-publisher/internal/worker"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName       = "tts-publisher"
	defaultLogDir     = "logs"
	notSet            = "[NOT SET]"
	startupCheckLimit = 10 * time.Second
	telemetryFlush    = 5 * time.Second
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func setupLogger(logPath, filename string) (*logger.Logger, error) {
	log, err := logger.New(logPath, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "tts-service-bootstrap.log")
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}
	defer bootstrapLog.Close()

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration from the environment, .env and the optional TOML file
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration
	logDir := cfg.Paths.BaseLogsDir
	if logDir == "" {
		logDir = defaultLogDir
	}

	finalLog, err := setupLogger(logDir, "tts-service.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return err
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	logSummary(finalLog, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

// serve wires the components and runs the HTTP server and, when NATS is
// configured, the job worker until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	provider, err := observe.InitProvider(observe.ProviderConfig{ServiceName: serviceName, ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlush)
		defer cancel()

		shutdownErr := provider.Shutdown(flushCtx)
		if shutdownErr != nil {
			log.Warn("Failed to shut down telemetry: %v", shutdownErr)
		}
	}()

	engine, err := tts.New(cfg.TTS, log)
	if err != nil {
		return fmt.Errorf("failed to create tts engine: %w", err)
	}

	checkEngine(ctx, engine, log)

	var natsConnection *nats.Conn

	var jetstreamContext nats.JetStreamContext

	if cfg.NATS.URL != "" {
		natsConnection, jetstreamContext, err = connectNATS(cfg.NATS.URL, log)
		if err != nil {
			return err
		}
		defer natsConnection.Drain()
	}

	factory := objectstore.Factory{JetStream: jetstreamContext}
	pub := publisher.New(cfg.Storage, factory.Build, log)

	service := pipeline.NewService(
		pipeline.Config{TempDir: cfg.TTS.TempDir, DefaultVoicePrompt: cfg.TTS.VoicePrompt},
		engine,
		pub,
		provider.Metrics,
		log,
	)

	srv := server.New(
		server.Config{Addr: cfg.Server.Addr(), AllowedOrigins: cfg.Server.CORSAllowedOrigins},
		service,
		readinessChecks(engine, pub, natsConnection),
		provider.Metrics,
		provider.Handler,
		log,
	)

	var jobWorker *worker.NatsWorker

	if natsConnection != nil {
		jobWorker, err = newWorker(cfg.NATS, natsConnection, jetstreamContext, service, log)
		if err != nil {
			return err
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return srv.Run(groupCtx)
	})

	if jobWorker != nil {
		group.Go(func() error {
			return jobWorker.Run(groupCtx)
		})
	}

	log.System("TTS-Service successfully initialized.")

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.System("TTS-Service stopped.")

	return nil
}

func connectNATS(url string, log *logger.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	natsConnection, err := nats.Connect(url, nats.Name(serviceName))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	log.Info("Connected to NATS at %s.", natsConnection.ConnectedUrlRedacted())

	return natsConnection, jetstreamContext, nil
}

func newWorker(
	cfg config.NATSConfig,
	natsConnection *nats.Conn,
	jetstreamContext nats.JetStreamContext,
	service *pipeline.Service,
	log *logger.Logger,
) (*worker.NatsWorker, error) {
	texts, err := objectstore.NewNatsObjectStore(jetstreamContext, cfg.TextBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open text bucket %s: %w", cfg.TextBucket, err)
	}

	return worker.NewNatsWorker(natsConnection, cfg.JobSubject, texts, service, log)
}

// checkEngine probes engines that support health checks. A failing engine
// is reported but does not stop the service; /readyz reflects it.
func checkEngine(ctx context.Context, engine core.Synthesizer, log *logger.Logger) {
	checker, ok := engine.(core.HealthChecker)
	if !ok {
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, startupCheckLimit)
	defer cancel()

	err := checker.HealthCheck(checkCtx)
	if err != nil {
		log.Warn("TTS engine is not healthy yet: %v", err)

		return
	}

	log.Info("TTS engine is healthy.")
}

func readinessChecks(engine core.Synthesizer, pub *publisher.Publisher, natsConnection *nats.Conn) []server.Checker {
	checks := []server.Checker{{Name: "storage", Check: pub.CheckConfig}}

	if checker, ok := engine.(core.HealthChecker); ok {
		checks = append(checks, server.Checker{Name: "engine", Check: checker.HealthCheck})
	}

	if natsConnection != nil {
		checks = append(checks, server.Checker{Name: "nats", Check: func(context.Context) error {
			if !natsConnection.IsConnected() {
				return fmt.Errorf("nats connection status: %s", natsConnection.Status())
			}

			return nil
		}})
	}

	return checks
}

// logSummary reports the effective configuration with secrets masked.
func logSummary(log *logger.Logger, cfg *config.Config) {
	log.System("Starting TTS service on port %d", cfg.Server.Port)
	log.System("  TTS engine: %s (concurrent inference: %t)", cfg.TTS.Engine, cfg.TTS.ConcurrentInference)
	log.System("  Model config: %s", cfg.TTS.ConfigPath)
	log.System("  Model dir: %s", cfg.TTS.ModelDir)
	log.System("  Default voice prompt: %s", cfg.TTS.VoicePrompt)
	log.System("  Storage backend: %s", cfg.Storage.Backend)
	log.System("  R2 endpoint: %s", orNotSet(cfg.Storage.Endpoint))
	log.System("  R2 bucket: %s", orNotSet(cfg.Storage.Bucket))
	log.System("  R2 access key: %s", masked(cfg.Storage.AccessKeyID))
	log.System("  R2 secret key: %s", masked(cfg.Storage.SecretAccessKey))
	log.System("  R2 public URL base: %s", orNotSet(cfg.Storage.PublicURLBase))
	log.System("  NATS: %s", orNotSet(cfg.NATS.URL))

	_, err := os.Stat(cfg.TTS.VoicePrompt)
	if err != nil {
		log.Warn("Default voice prompt %s is not readable: %v", cfg.TTS.VoicePrompt, err)
	}

	missing := cfg.Storage.Missing()
	if len(missing) > 0 {
		log.Warn("Storage is not configured (missing: %v); publishing will fail until it is.", missing)
	}
}

func orNotSet(value string) string {
	if value == "" {
		return notSet
	}

	return value
}

func masked(value string) string {
	if value == "" {
		return notSet
	}

	return "[SET]"
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
