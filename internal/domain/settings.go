package domain

import "time"

// Settings is the persisted, non-secret configuration shared by the CLI and desktop shell.
type Settings struct {
	ModelID      string        `yaml:"model_id" json:"modelId"`
	Backend      string        `yaml:"backend" json:"backend"`
	Endpoint     string        `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Helper       string        `yaml:"helper" json:"helper"`
	Device       string        `yaml:"device" json:"device"`
	FFmpeg       string        `yaml:"ffmpeg" json:"ffmpeg"`
	ToolStrategy string        `yaml:"tool_strategy" json:"toolStrategy"`
	OutputDir    string        `yaml:"output_dir" json:"outputDir"`
	PollInterval time.Duration `yaml:"poll_interval" json:"pollInterval"`
	LogLevel     string        `yaml:"log_level" json:"logLevel"`
	LogFormat    string        `yaml:"log_format" json:"logFormat"`
}
