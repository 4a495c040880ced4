package tts

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrModelConfigEmpty indicates a model config without any settings.
var ErrModelConfigEmpty = errors.New("model config is empty")

// ModelConfig is a summary of the model's YAML configuration. Only the
// top-level shape is checked; the settings belong to the model.
type ModelConfig struct {
	Path     string
	Version  string
	Sections []string
}

// LoadModelConfig parses the YAML model config at path.
func LoadModelConfig(path string) (*ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model config '%s': %w", path, err)
	}

	var settings map[string]any

	err = yaml.Unmarshal(data, &settings)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model config '%s': %w", path, err)
	}

	if len(settings) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrModelConfigEmpty, path)
	}

	sections := make([]string, 0, len(settings))
	for key := range settings {
		sections = append(sections, key)
	}

	sort.Strings(sections)

	modelConfig := &ModelConfig{Path: path, Version: "", Sections: sections}
	if version, ok := settings["version"]; ok && version != nil {
		modelConfig.Version = fmt.Sprint(version)
	}

	return modelConfig, nil
}
