package main

import (
	"embed"
	"io/fs"
	"os"

	"github.com/mudler/xlog"

	"blank-subtitles/internal/bootstrap"
	"blank-subtitles/internal/cli"
)

//go:embed frontend/index.html
var appAssets embed.FS

func main() {
	if cli.IsWorkerInvocation(os.Args[1:]) {
		if err := cli.Execute(os.Args[1:]); err != nil {
			xlog.Fatal("worker failed", "error", err)
		}
		return
	}

	assets, err := fs.Sub(appAssets, "frontend")
	if err != nil {
		xlog.Fatal("load frontend assets", "error", err)
	}

	app, err := bootstrap.NewWithAssets(assets)
	if err != nil {
		xlog.Fatal("bootstrap app", "error", err)
	}

	if err := app.Run(); err != nil {
		xlog.Fatal("run app", "error", err)
	}
}
