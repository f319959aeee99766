package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Settings persists the configured source locator. An absent entry means
// setup has not been completed.
type Settings struct {
	path string
}

type settingsFile struct {
	SourceLocator string `yaml:"sourceLocator"`
}

// NewSettings stores settings in path.
func NewSettings(path string) *Settings {
	return &Settings{path: path}
}

// Path returns the settings file location.
func (s *Settings) Path() string {
	return s.path
}

// SourceLocator returns the stored locator and whether one is set.
func (s *Settings) SourceLocator() (string, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading settings: %w", err)
	}
	var f settingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", false, fmt.Errorf("parsing settings %s: %w", s.path, err)
	}
	loc := strings.TrimSpace(f.SourceLocator)
	return loc, loc != "", nil
}

// SetSourceLocator atomically replaces the stored locator.
func (s *Settings) SetSourceLocator(locator string) error {
	data, err := yaml.Marshal(settingsFile{SourceLocator: locator})
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// Clear removes the stored locator so the next start runs setup.
func (s *Settings) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clearing settings: %w", err)
	}
	return nil
}
