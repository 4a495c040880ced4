package tts_test

import (
	"io"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-publisher/internal/tts"
	"github.com/orcaman/writerseeker"
	"github.com/stretchr/testify/require"
)

// newTestLogger creates a logger writing into the test's temp directory.
func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

// silentWAV returns an in-memory WAV file holding samples of silence.
func silentWAV(t *testing.T, samples int) []byte {
	t.Helper()

	buffer := &writerseeker.WriterSeeker{}
	require.NoError(t, tts.WriteSilence(buffer, samples))

	data, err := io.ReadAll(buffer.Reader())
	require.NoError(t, err)

	return data
}
