package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"blank-subtitles/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// YAMLStore persists settings in a single YAML file on disk.
type YAMLStore struct {
	path string
}

// NewYAMLStore creates a YAML-backed settings store.
func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: path}
}

// Path returns the backing file.
func (s *YAMLStore) Path() string {
	return s.path
}

// Load reads settings from disk or returns defaults when missing.
// Fields absent from the file keep their default values.
func (s *YAMLStore) Load() (domain.Settings, error) {
	if s.path == "" {
		return DefaultSettings(), nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}
		return domain.Settings{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultSettings()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return withDefaults(cfg), nil
}

// Save writes settings as YAML and creates parent directories.
func (s *YAMLStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(s.path, data, 0o644)
}

// DefaultPath is where `config init` writes when no path is given.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".blank-subtitles", "config.yaml")
}

// FindConfigFile searches standard locations and returns "" when none exists.
func FindConfigFile() string {
	return findConfigFile(os.Stat)
}

func findConfigFile(stat func(string) (os.FileInfo, error)) string {
	locations := []string{
		"./blanksubs.yaml",
		"./blanksubs.yml",
		DefaultPath(),
	}
	for _, path := range locations {
		if _, err := stat(path); err == nil {
			return path
		}
	}
	return ""
}
