package config

import (
	"os"
	"path/filepath"
	"time"

	"blank-subtitles/internal/domain"
)

const (
	BackendExec = "exec"
	BackendHTTP = "http"
)

// DefaultPollInterval is how often the controller drains the job channel.
const DefaultPollInterval = 100 * time.Millisecond

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		ModelID:      "pyannote/speaker-diarization-3.1",
		Backend:      BackendExec,
		Helper:       "pyannote-diarize",
		Device:       "auto",
		FFmpeg:       "ffmpeg",
		ToolStrategy: "auto",
		OutputDir:    filepath.Join(homeDir, "Documents", "Subtitles"),
		PollInterval: DefaultPollInterval,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// withDefaults fills zero fields of cfg from DefaultSettings.
func withDefaults(cfg domain.Settings) domain.Settings {
	def := DefaultSettings()
	if cfg.ModelID == "" {
		cfg.ModelID = def.ModelID
	}
	if cfg.Backend == "" {
		cfg.Backend = def.Backend
	}
	if cfg.Helper == "" {
		cfg.Helper = def.Helper
	}
	if cfg.Device == "" {
		cfg.Device = def.Device
	}
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = def.FFmpeg
	}
	if cfg.ToolStrategy == "" {
		cfg.ToolStrategy = def.ToolStrategy
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = def.OutputDir
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = def.LogFormat
	}
	return cfg
}
