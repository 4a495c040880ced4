// Package config provides the configuration structure for the tts-publisher.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Storage backends.
const (
	BackendS3   = "s3"
	BackendNATS = "nats"
)

// TTS engines.
const (
	EngineCommand = "command"
	EngineHTTP    = "http"
	EngineStub    = "stub"
)

// Defaults mirror the layout of a model checkout next to the binary.
const (
	DefaultPort          = 5001
	DefaultConfigPath    = "checkpoints/config.yaml"
	DefaultModelDir      = "checkpoints"
	DefaultVoicePrompt   = "examples/voice_01.wav"
	DefaultEngineBinary  = "indextts"
	DefaultRegion        = "auto"
	DefaultJobSubject    = "tts.jobs"
	DefaultTextBucket    = "TTS_TEXT"
	DefaultAudioPrefix   = "audio"
	defaultAllowedOrigin = "*"
)

var (
	// ErrStorageNotConfigured is returned when a publish is attempted without
	// the full set of storage settings.
	ErrStorageNotConfigured = errors.New(
		"R2 credentials not fully configured. Please set environment variables.",
	)
	// ErrUnknownBackend indicates an unsupported STORAGE_BACKEND value.
	ErrUnknownBackend = errors.New("unknown storage backend")
	// ErrUnknownEngine indicates an unsupported TTS_ENGINE value.
	ErrUnknownEngine = errors.New("unknown tts engine")
	// ErrInvalidPort indicates that the listening port is out of range.
	ErrInvalidPort = errors.New("port must be between 1 and 65535")
)

// StorageConfig holds the object storage settings. They are checked lazily,
// on every publish, so the service can boot without them.
type StorageConfig struct {
	Backend         string `toml:"backend"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	Bucket          string `toml:"bucket"`
	PublicURLBase   string `toml:"public_url_base"`
	Region          string `toml:"region"`
}

// TTSServiceConfig holds the settings of the synthesis engine.
type TTSServiceConfig struct {
	Engine              string `toml:"engine"`
	BinaryPath          string `toml:"binary_path"`
	ServiceURL          string `toml:"service_url"`
	ConfigPath          string `toml:"config_path"`
	ModelDir            string `toml:"model_dir"`
	VoicePrompt         string `toml:"voice_prompt"`
	TempDir             string `toml:"temp_dir"`
	ConcurrentInference bool   `toml:"concurrent_inference"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port               int      `toml:"port"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
}

// NATSConfig holds the optional NATS job intake settings. The intake is
// disabled when URL is empty.
type NATSConfig struct {
	URL        string `toml:"url"`
	JobSubject string `toml:"job_subject"`
	TextBucket string `toml:"text_bucket"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig     `toml:"server"`
	TTS     TTSServiceConfig `toml:"tts_service"`
	Storage StorageConfig    `toml:"storage"`
	NATS    NATSConfig       `toml:"nats"`
	Paths   PathsConfig      `toml:"paths"`
}

// Default returns a configuration populated with defaults only.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:               DefaultPort,
			CORSAllowedOrigins: []string{defaultAllowedOrigin},
		},
		TTS: TTSServiceConfig{
			Engine:              EngineCommand,
			BinaryPath:          DefaultEngineBinary,
			ServiceURL:          "",
			ConfigPath:          DefaultConfigPath,
			ModelDir:            DefaultModelDir,
			VoicePrompt:         DefaultVoicePrompt,
			TempDir:             "",
			ConcurrentInference: false,
		},
		Storage: StorageConfig{
			Backend:         BackendS3,
			Endpoint:        "",
			AccessKeyID:     "",
			SecretAccessKey: "",
			Bucket:          "",
			PublicURLBase:   "",
			Region:          DefaultRegion,
		},
		NATS: NATSConfig{
			URL:        "",
			JobSubject: DefaultJobSubject,
			TextBucket: DefaultTextBucket,
		},
		Paths: PathsConfig{
			BaseLogsDir: "",
		},
	}
}

// Validate checks the settings required at startup. Storage settings are
// deliberately excluded; see StorageConfig.Validate.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Server.Port)
	}

	switch c.TTS.Engine {
	case EngineCommand, EngineHTTP, EngineStub:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEngine, c.TTS.Engine)
	}

	switch c.Storage.Backend {
	case BackendS3, BackendNATS:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Storage.Backend)
	}

	return nil
}

type setting struct {
	name  string
	value string
}

// Missing lists the storage settings that are required but unset.
func (s StorageConfig) Missing() []string {
	var missing []string

	required := []setting{
		{name: "endpoint", value: s.Endpoint},
		{name: "bucket", value: s.Bucket},
	}

	// A NATS object store authenticates at the connection, not per request.
	if s.Backend != BackendNATS {
		required = append(required,
			setting{name: "access_key_id", value: s.AccessKeyID},
			setting{name: "secret_access_key", value: s.SecretAccessKey},
		)
	}

	for _, setting := range required {
		if strings.TrimSpace(setting.value) == "" {
			missing = append(missing, setting.name)
		}
	}

	return missing
}

// Validate returns ErrStorageNotConfigured when any required storage setting
// is unset.
func (s StorageConfig) Validate() error {
	if len(s.Missing()) > 0 {
		return ErrStorageNotConfigured
	}

	return nil
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", s.Port)
}
