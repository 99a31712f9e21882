package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"blank-subtitles/internal/command"
	"blank-subtitles/internal/diarize"
	"blank-subtitles/internal/domain"
	"blank-subtitles/internal/worker"
)

const runtimeCheckTimeout = 5 * time.Second

// Checker validates external tools, the diarization runtime and required filesystem paths.
type Checker struct {
	newResolver func(command.Strategy) command.Resolver
	newBackend  func(domain.Settings, command.Resolver) (diarize.Backend, error)
	executable  func() (string, error)
	stat        func(string) (os.FileInfo, error)
	mkdirAll    func(string, os.FileMode) error
	createTemp  func(string, string) (*os.File, error)
	remove      func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		newResolver: command.NewResolver,
		newBackend:  worker.NewBackend,
		executable:  os.Executable,
		stat:        os.Stat,
		mkdirAll:    os.MkdirAll,
		createTemp:  os.CreateTemp,
		remove:      os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(ctx context.Context, settings domain.Settings) domain.DiagnosticReport {
	strategy, err := command.ParseStrategy(settings.ToolStrategy)
	if err != nil {
		strategy = command.StrategyAuto
	}
	resolver := c.newResolver(strategy)

	items := []domain.DiagnosticItem{
		c.checkTool(resolver, settings.FFmpeg),
		c.checkRuntime(ctx, settings, resolver),
		c.checkWorker(),
		c.checkOutputDir(settings.OutputDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies the media tool can be resolved.
func (c *Checker) checkTool(resolver command.Resolver, name string) domain.DiagnosticItem {
	if strings.TrimSpace(name) == "" {
		name = "ffmpeg"
	}
	item := domain.DiagnosticItem{ID: "tool_ffmpeg", Name: name}

	path, err := resolver.Resolve(name)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Tool not found: %s", name)
		item.Hint = HintInstallFFmpeg
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkRuntime checks the configured diarization backend.
func (c *Checker) checkRuntime(ctx context.Context, settings domain.Settings, resolver command.Resolver) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "diarization_runtime", Name: "Diarization runtime"}

	backend, err := c.newBackend(settings, resolver)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Invalid backend configuration: %v", err)
		item.Hint = "Check the backend and endpoint settings in the config file."
		return item
	}

	checkCtx, cancel := context.WithTimeout(ctx, runtimeCheckTimeout)
	defer cancel()
	if err := backend.Available(checkCtx); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Runtime unavailable (%s backend): %v", settings.Backend, err)
		item.Hint = HintRuntime
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("%s backend ready for %s", settings.Backend, settings.ModelID)
	return item
}

// checkWorker verifies the executable used for worker processes is present.
func (c *Checker) checkWorker() domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "worker", Name: "Worker executable"}

	path, err := c.executable()
	if err == nil {
		_, err = c.stat(path)
	}
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot locate worker executable: %v", err)
		item.Hint = "Reinstall the application; jobs run in a child process of the main executable."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Jobs run as %s worker", path)
	return item
}

// checkOutputDir validates output directory existence and write access.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output directory is empty."
		item.Hint = "Set an output directory where subtitle files can be written."
		return item
	}

	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create output directory: %s", outputDir)
		item.Hint = HintWritable
		return item
	}

	tmpFile, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = HintWritable
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", outputDir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	resolver command.Resolver,
	backend diarize.Backend,
	executable func() (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		newResolver: func(command.Strategy) command.Resolver { return resolver },
		newBackend: func(domain.Settings, command.Resolver) (diarize.Backend, error) {
			if backend == nil {
				return nil, errors.New("no backend")
			}
			return backend, nil
		},
		executable: executable,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
