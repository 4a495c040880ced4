// Package artifact manages the temporary audio files produced by synthesis.
//
// An Artifact is owned by exactly one request. It is reserved before the
// engine runs and released when the request finishes, whatever the outcome:
//
//	art, err := artifact.New(dir)
//	if err != nil { ... }
//	defer art.Release()
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

const (
	// Extension is the file extension of every artifact.
	Extension = ".wav"

	filePermissions = 0o600
)

var (
	// ErrEmptyArtifact indicates that the engine produced no audio.
	ErrEmptyArtifact = errors.New("synthesized audio file is empty")
	// ErrInvalidWAV indicates that the engine output is not a WAV file.
	ErrInvalidWAV = errors.New("synthesized audio is not a valid WAV file")
)

// Artifact is a uniquely named temporary audio file.
type Artifact struct {
	ID   uuid.UUID
	Path string
}

// Info describes a synthesized WAV file.
type Info struct {
	Size       int64
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// New reserves a new artifact in dir, or in the OS temp directory when dir is
// empty. The file is created empty so that concurrent requests can never
// share a path.
func New(dir string) (*Artifact, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	id := uuid.New()
	path := filepath.Join(dir, id.String()+Extension)

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve artifact '%s': %w", path, err)
	}

	err = file.Close()
	if err != nil {
		_ = os.Remove(path)

		return nil, fmt.Errorf("failed to close artifact '%s': %w", path, err)
	}

	return &Artifact{ID: id, Path: path}, nil
}

// Filename is the base name the artifact is published under.
func (a *Artifact) Filename() string {
	return a.ID.String() + Extension
}

// Release deletes the artifact. Deleting an artifact that is already gone is
// not an error, so Release is safe to call more than once.
func (a *Artifact) Release() error {
	err := os.Remove(a.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove artifact '%s': %w", a.Path, err)
	}

	return nil
}

// Open opens the artifact for reading and returns its size.
func (a *Artifact) Open() (*os.File, int64, error) {
	file, err := os.Open(a.Path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open artifact '%s': %w", a.Path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()

		return nil, 0, fmt.Errorf("failed to stat artifact '%s': %w", a.Path, err)
	}

	return file, stat.Size(), nil
}

// Inspect checks that the artifact holds a WAV file and reports its format.
func (a *Artifact) Inspect() (Info, error) {
	var info Info

	file, size, err := a.Open()
	if err != nil {
		return info, err
	}
	defer file.Close()

	if size == 0 {
		return info, ErrEmptyArtifact
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return info, ErrInvalidWAV
	}

	duration, err := decoder.Duration()
	if err != nil {
		return info, fmt.Errorf("failed to read duration of '%s': %w", a.Path, err)
	}

	info = Info{
		Size:       size,
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
		Duration:   duration,
	}

	return info, nil
}
