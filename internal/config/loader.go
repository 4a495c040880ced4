package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Environment variable names.
const (
	EnvEndpoint            = "R2_ENDPOINT"
	EnvAccessKeyID         = "R2_ACCESS_KEY_ID"
	EnvSecretAccessKey     = "R2_SECRET_ACCESS_KEY"
	EnvBucket              = "R2_BUCKET_NAME"
	EnvPublicURLBase       = "R2_PUBLIC_URL_BASE"
	EnvRegion              = "R2_REGION"
	EnvStorageBackend      = "STORAGE_BACKEND"
	EnvModelConfigPath     = "TTS_CONFIG_PATH"
	EnvModelDir            = "TTS_MODEL_DIR"
	EnvVoicePrompt         = "TTS_VOICE_PROMPT"
	EnvEngine              = "TTS_ENGINE"
	EnvEngineBinary        = "TTS_ENGINE_BINARY"
	EnvEngineURL           = "TTS_ENGINE_URL"
	EnvConcurrentInference = "TTS_CONCURRENT_INFERENCE"
	EnvTempDir             = "TTS_TEMP_DIR"
	EnvPort                = "PORT"
	EnvCORSOrigins         = "CORS_ALLOWED_ORIGINS"
	EnvNATSURL             = "NATS_URL"
	EnvNATSJobSubject      = "NATS_JOB_SUBJECT"
	EnvNATSTextBucket      = "NATS_TEXT_BUCKET"
	EnvLogDir              = "LOG_DIR"
	EnvConfigFile          = "TTS_SERVICE_CONFIG"
)

// DefaultDotEnvFile is read when present, like a shell would source it.
const DefaultDotEnvFile = ".env"

// Loader loads configuration from an optional TOML file, an optional .env
// file and the process environment, in increasing order of precedence.
// Tests can override Lookup and DotEnvFiles to stay hermetic.
type Loader struct {
	Lookup      func(string) (string, bool)
	DotEnvFiles []string
}

// Load loads the configuration for the tts-publisher.
func Load(log *logger.Logger) (*Config, error) {
	loader := Loader{
		Lookup:      os.LookupEnv,
		DotEnvFiles: []string{DefaultDotEnvFile},
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if log != nil {
		log.Info("Configuration loaded (engine=%s, storage=%s, port=%d).",
			cfg.TTS.Engine, cfg.Storage.Backend, cfg.Server.Port)
	}

	return cfg, nil
}

// Load resolves and validates the configuration.
func (l Loader) Load() (*Config, error) {
	lookup, err := l.lookupFunc()
	if err != nil {
		return nil, err
	}

	cfg := Default()

	if path, ok := lookupTrimmed(lookup, EnvConfigFile); ok {
		fileErr := applyFile(path, &cfg)
		if fileErr != nil {
			return nil, fileErr
		}
	}

	envErr := applyEnv(lookup, &cfg)
	if envErr != nil {
		return nil, envErr
	}

	if cfg.Storage.Backend == BackendNATS && cfg.Storage.Endpoint == "" {
		cfg.Storage.Endpoint = cfg.NATS.URL
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &cfg, nil
}

// lookupFunc layers the .env files underneath the process environment.
func (l Loader) lookupFunc() (func(string) (string, bool), error) {
	base := l.Lookup
	if base == nil {
		base = os.LookupEnv
	}

	if len(l.DotEnvFiles) == 0 {
		return base, nil
	}

	dotenv := make(map[string]string)

	for _, file := range l.DotEnvFiles {
		values, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return nil, fmt.Errorf("failed to read env file '%s': %w", file, err)
		}

		for key, value := range values {
			if _, seen := dotenv[key]; !seen {
				dotenv[key] = value
			}
		}
	}

	return func(key string) (string, bool) {
		if value, ok := base(key); ok {
			return value, true
		}

		value, ok := dotenv[key]

		return value, ok
	}, nil
}

func applyFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	err = toml.Unmarshal(data, cfg)
	if err != nil {
		return fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}

	return nil
}

func applyEnv(lookup func(string) (string, bool), cfg *Config) error {
	overrideString(lookup, EnvEndpoint, &cfg.Storage.Endpoint)
	overrideString(lookup, EnvAccessKeyID, &cfg.Storage.AccessKeyID)
	overrideString(lookup, EnvSecretAccessKey, &cfg.Storage.SecretAccessKey)
	overrideString(lookup, EnvBucket, &cfg.Storage.Bucket)
	overrideString(lookup, EnvPublicURLBase, &cfg.Storage.PublicURLBase)
	overrideString(lookup, EnvRegion, &cfg.Storage.Region)
	overrideString(lookup, EnvStorageBackend, &cfg.Storage.Backend)
	overrideString(lookup, EnvModelConfigPath, &cfg.TTS.ConfigPath)
	overrideString(lookup, EnvModelDir, &cfg.TTS.ModelDir)
	overrideString(lookup, EnvVoicePrompt, &cfg.TTS.VoicePrompt)
	overrideString(lookup, EnvEngine, &cfg.TTS.Engine)
	overrideString(lookup, EnvEngineBinary, &cfg.TTS.BinaryPath)
	overrideString(lookup, EnvEngineURL, &cfg.TTS.ServiceURL)
	overrideString(lookup, EnvTempDir, &cfg.TTS.TempDir)
	overrideString(lookup, EnvNATSURL, &cfg.NATS.URL)
	overrideString(lookup, EnvNATSJobSubject, &cfg.NATS.JobSubject)
	overrideString(lookup, EnvNATSTextBucket, &cfg.NATS.TextBucket)
	overrideString(lookup, EnvLogDir, &cfg.Paths.BaseLogsDir)

	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
	cfg.TTS.Engine = strings.ToLower(cfg.TTS.Engine)

	if raw, ok := lookupTrimmed(lookup, EnvPort); ok {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("failed to parse %s=%q: %w", EnvPort, raw, err)
		}

		cfg.Server.Port = port
	}

	if raw, ok := lookupTrimmed(lookup, EnvConcurrentInference); ok {
		concurrent, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("failed to parse %s=%q: %w", EnvConcurrentInference, raw, err)
		}

		cfg.TTS.ConcurrentInference = concurrent
	}

	if raw, ok := lookupTrimmed(lookup, EnvCORSOrigins); ok {
		cfg.Server.CORSAllowedOrigins = splitList(raw)
	}

	return nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookupTrimmed(lookup, key); ok {
		*target = value
	}
}

func lookupTrimmed(lookup func(string) (string, bool), key string) (string, bool) {
	value, ok := lookup(key)
	if !ok {
		return "", false
	}

	value = strings.TrimSpace(value)

	return value, value != ""
}

func splitList(raw string) []string {
	var items []string

	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}

	return items
}
