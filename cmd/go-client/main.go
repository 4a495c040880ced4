// Command go-client calls the TTS publisher HTTP API and prints the
// published URLs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/book-expert/logger"
)

// Flag descriptions and messages.
const (
	flagServerDesc  = "Base URL of the TTS service"
	flagChunksDesc  = "JSON file containing an array of texts to publish as one batch"
	flagVoiceDesc   = "Voice prompt path on the server (defaults to the server's voice)"
	flagTimeoutDesc = "Request timeout; 0 waits indefinitely"
	flagVerboseDesc = "Enable verbose logging"
	flagHealthDesc  = "Check TTS service health and exit"
	flagTextDesc    = "Text to convert to speech"
)

// Flag names.
const (
	flagServer  = "server"
	flagText    = "text"
	flagChunks  = "chunks"
	flagVoice   = "voice"
	flagTimeout = "timeout"
	flagVerbose = "verbose"
	flagHealth  = "health"
)

// Error and log messages.
const (
	errFailedToInitLogger    = "Failed to initialize logger: %v"
	errHealthCheckFailed     = "Health check failed: %v"
	errServiceNotHealthy     = "TTS service is not healthy: %v\n"
	msgServiceHealthy        = "TTS service is healthy"
	errFailedToProcessText   = "Failed to process text: %v"
	errFailedToProcessChunks = "Failed to process chunks: %v"
)

// Log messages.
const (
	logClientInitialized = "TTS client initialized (server: %s)"
	logProcessingText    = "Processing single text (%d chars)"
	logPublished         = "Published: %s"
	logProcessingChunks  = "Processing chunks from: %s"
	logBatchSummary      = "Batch finished: %d published, %d failed"
)

// File names and defaults.
const (
	logFileNameDefault = "tts-client.log"
	logFileNameVerbose = "tts-client-verbose.log"
	defaultServerURL   = "http://localhost:5001"
)

var (
	// ErrEitherTextOrChunks indicates that no input was given.
	ErrEitherTextOrChunks = errors.New("either --text or --chunks must be provided")
	// ErrCannotSpecifyBoth indicates that both inputs were given.
	ErrCannotSpecifyBoth = errors.New("cannot specify both --text and --chunks")
	// ErrBatchFailures indicates that at least one batch item failed.
	ErrBatchFailures = errors.New("some batch items failed")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	server  string
	text    string
	chunks  string
	voice   string
	timeout time.Duration
	verbose bool
	health  bool
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the main application entry point, returning an error on failure.
func run(args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	logFileName := logFileNameDefault
	if flags.verbose {
		logFileName = logFileNameVerbose
	}

	clientLog, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf(errFailedToInitLogger, err)
	}
	defer clientLog.Close()

	client := newAPIClient(flags.server, &http.Client{Timeout: flags.timeout})

	clientLog.Info(logClientInitialized, flags.server)

	ctx := context.Background()

	if flags.health {
		return handleHealthCheck(ctx, client, clientLog, stdout)
	}

	return handleExecution(ctx, client, clientLog, flags, stdout)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("go-client", flag.ContinueOnError)
	flagSet.StringVar(&flags.server, flagServer, defaultServerURL, flagServerDesc)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.chunks, flagChunks, "", flagChunksDesc)
	flagSet.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flagSet.DurationVar(&flags.timeout, flagTimeout, 0, flagTimeoutDesc)
	flagSet.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return flags, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

// validateFlags checks for required and conflicting inputs.
func validateFlags(flags appFlags) error {
	if flags.text == "" && flags.chunks == "" {
		return ErrEitherTextOrChunks
	}

	if flags.text != "" && flags.chunks != "" {
		return ErrCannotSpecifyBoth
	}

	return nil
}

// handleHealthCheck performs a service health check and prints the result.
func handleHealthCheck(ctx context.Context, client *apiClient, clientLog *logger.Logger, stdout io.Writer) error {
	err := client.health(ctx)
	if err != nil {
		clientLog.Error(errHealthCheckFailed, err)
		fmt.Fprintf(stdout, errServiceNotHealthy, err)

		return err
	}

	fmt.Fprintln(stdout, msgServiceHealthy)

	return nil
}

// handleExecution validates flags and dispatches to the correct processing function.
func handleExecution(
	ctx context.Context,
	client *apiClient,
	clientLog *logger.Logger,
	flags appFlags,
	stdout io.Writer,
) error {
	err := validateFlags(flags)
	if err != nil {
		clientLog.Error("%v", err)

		return err
	}

	if flags.text != "" {
		return processSingleText(ctx, client, clientLog, flags, stdout)
	}

	return processChunks(ctx, client, clientLog, flags, stdout)
}

// processSingleText publishes one text and prints its URL.
func processSingleText(
	ctx context.Context,
	client *apiClient,
	clientLog *logger.Logger,
	flags appFlags,
	stdout io.Writer,
) error {
	clientLog.Info(logProcessingText, len(flags.text))

	published, err := client.synthesize(ctx, flags.text, flags.voice)
	if err != nil {
		clientLog.Error(errFailedToProcessText, err)

		return fmt.Errorf(errFailedToProcessText, err)
	}

	clientLog.Info(logPublished, published.URL)
	fmt.Fprintln(stdout, published.URL)

	return nil
}

// processChunks publishes a JSON array of texts as one batch. Each line of
// output is either a URL or an error for the matching entry.
func processChunks(
	ctx context.Context,
	client *apiClient,
	clientLog *logger.Logger,
	flags appFlags,
	stdout io.Writer,
) error {
	clientLog.Info(logProcessingChunks, flags.chunks)

	texts, err := readChunks(flags.chunks)
	if err != nil {
		clientLog.Error(errFailedToProcessChunks, err)

		return fmt.Errorf(errFailedToProcessChunks, err)
	}

	results, err := client.batch(ctx, texts, flags.voice)
	if err != nil {
		clientLog.Error(errFailedToProcessChunks, err)

		return fmt.Errorf(errFailedToProcessChunks, err)
	}

	failed := 0

	for index, item := range results {
		if item.Error != "" {
			failed++

			fmt.Fprintf(stdout, "%d\terror\t%s\n", index, item.Error)

			continue
		}

		fmt.Fprintf(stdout, "%d\t%s\n", index, item.URL)
	}

	clientLog.Info(logBatchSummary, len(results)-failed, failed)

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrBatchFailures, failed, len(results))
	}

	return nil
}

// readChunks loads a JSON array of texts.
func readChunks(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks file '%s': %w", path, err)
	}

	var texts []string

	err = json.Unmarshal(data, &texts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chunks file '%s': %w", path, err)
	}

	return texts, nil
}
