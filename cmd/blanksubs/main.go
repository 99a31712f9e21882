package main

import (
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/mudler/xlog"

	"blank-subtitles/internal/cli"
)

func main() {
	xlog.SetLogger(xlog.NewLogger(xlog.LogLevel("info"), "text"))

	envFiles := []string{".env", "blanksubs.env"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(homeDir, ".blank-subtitles", "blanksubs.env"))
	}
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			xlog.Debug("env file found, loading environment variables from file", "envFile", envFile)
			if err := godotenv.Load(envFile); err != nil {
				xlog.Error("failed to load environment variables from file", "error", err, "envFile", envFile)
			}
		}
	}

	ctx := kong.Parse(&cli.CLI, cli.Options()...)
	if err := ctx.Run(&cli.CLI.Context); err != nil {
		xlog.Fatal("blanksubs failed", "error", err)
	}
}
