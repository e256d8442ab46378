// Package settings loads per-project settings from terrapin.yaml.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/terrapin-dev/terrapin/internal/state"
	"gopkg.in/yaml.v3"
)

// FileName is the project settings file, looked up in the project directory.
const FileName = "terrapin.yaml"

// Settings holds project-level defaults. All fields are optional; a missing
// settings file yields the zero-value defaults.
type Settings struct {
	LogLevel    string               `yaml:"logLevel"`
	Parallelism int                  `yaml:"parallelism"`
	Backend     *state.BackendConfig `yaml:"backend"`
}

// Default returns the settings used when no terrapin.yaml exists.
func Default() *Settings {
	return &Settings{
		LogLevel:    "info",
		Parallelism: 0, // engine default
	}
}

// Load reads terrapin.yaml from the project directory. A missing file is not
// an error.
func Load(projectDir string) (*Settings, error) {
	path := filepath.Join(projectDir, FileName)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	s := Default()
	if err := yaml.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return s, nil
}
