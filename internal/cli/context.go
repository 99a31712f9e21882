package cli

import (
	"io"
	"log/slog"

	"github.com/mudler/xlog"

	"blank-subtitles/internal/config"
	"blank-subtitles/internal/domain"
)

// Context carries the global flags shared by every command.
type Context struct {
	Config    string  `env:"BLANKSUBS_CONFIG" type:"path" help:"Config file. Defaults to ./blanksubs.yaml or ~/.blank-subtitles/config.yaml when present"`
	LogLevel  *string `env:"BLANKSUBS_LOG_LEVEL" enum:"error,warn,info,debug" help:"Set the level of logs to output [${enum}]"`
	LogFormat *string `env:"BLANKSUBS_LOG_FORMAT" enum:"text,json" help:"Set the format of logs to output [${enum}]"`

	// LogOutput, when set, receives every log line instead of stdout.
	LogOutput io.Writer `kong:"-"`
}

// UseLogOutput sends logs to w from now on, using the level and format flags until Load runs.
func (c *Context) UseLogOutput(w io.Writer) {
	c.LogOutput = w
	level, format := xlog.LogLevelInfo, xlog.TextFormat
	if c.LogLevel != nil {
		level = *c.LogLevel
	}
	if c.LogFormat != nil {
		format = *c.LogFormat
	}
	c.applyLogging(level, format)
}

func (c *Context) applyLogging(level, format string) {
	if c.LogOutput == nil {
		xlog.SetLogger(xlog.NewLogger(xlog.LogLevel(level), format))
		return
	}
	lvl := xlog.LogLevel(level)
	handler := xlog.NewHandler(format, c.LogOutput, &slog.HandlerOptions{Level: lvl.ToSlogLevel()})
	xlog.SetLogger(xlog.NewLoggerWithHandler(handler, lvl))
}

// ConfigPath returns the explicit config path or the first one found on disk.
func (c *Context) ConfigPath() string {
	if c.Config != "" {
		return c.Config
	}
	return config.FindConfigFile()
}

// Load reads settings and applies the logging configuration.
// Flags take precedence over the config file.
func (c *Context) Load() (domain.Settings, string, error) {
	path := c.ConfigPath()
	settings, err := config.NewYAMLStore(path).Load()
	if err != nil {
		return domain.Settings{}, path, err
	}

	if c.LogLevel != nil {
		settings.LogLevel = *c.LogLevel
	}
	if c.LogFormat != nil {
		settings.LogFormat = *c.LogFormat
	}
	c.applyLogging(settings.LogLevel, settings.LogFormat)
	if path != "" {
		xlog.Debug("config loaded", "path", path)
	}
	return settings, path, nil
}
