package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"blank-subtitles/internal/config"
	"blank-subtitles/internal/diagnostics"
	"blank-subtitles/internal/domain"
)

// DiagnoseCMD prints the startup checks.
type DiagnoseCMD struct{}

// Run executes every check and fails when any of them fails.
func (d *DiagnoseCMD) Run(ctx *Context) error {
	settings, _, err := ctx.Load()
	if err != nil {
		return err
	}

	report := diagnostics.NewChecker().Run(context.Background(), settings)
	printReport(os.Stdout, report)
	if report.HasFailures {
		return errors.New("some checks failed")
	}
	return nil
}

func printReport(w io.Writer, report domain.DiagnosticReport) {
	for _, item := range report.Items {
		mark := "ok  "
		if item.Status == domain.DiagnosticStatusFail {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", mark, item.Name, item.Message)
		if item.Hint != "" {
			fmt.Fprintf(w, "       %s\n", item.Hint)
		}
	}
}

// ConfigCMD groups configuration subcommands.
type ConfigCMD struct {
	Init ConfigInitCMD `cmd:"" help:"Write a config file with default values"`
}

// ConfigInitCMD writes the default configuration.
type ConfigInitCMD struct {
	Path  string `arg:"" optional:"" type:"path" help:"Destination. Defaults to ~/.blank-subtitles/config.yaml"`
	Force bool   `short:"f" help:"Overwrite an existing file"`
}

// Run writes defaults to Path.
func (c *ConfigInitCMD) Run(ctx *Context) error {
	path := c.Path
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}

	if err := config.NewYAMLStore(path).Save(config.DefaultSettings()); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Wrote %s\n", path)
	return nil
}
