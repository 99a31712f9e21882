package main

import (
	"os"

	"github.com/mudler/xlog"

	"blank-subtitles/internal/bootstrap"
	"blank-subtitles/internal/cli"
)

func main() {
	if cli.IsWorkerInvocation(os.Args[1:]) {
		if err := cli.Execute(os.Args[1:]); err != nil {
			xlog.Fatal("worker failed", "error", err)
		}
		return
	}

	app, err := bootstrap.New()
	if err != nil {
		xlog.Fatal("bootstrap app", "error", err)
	}

	if err := app.Run(); err != nil {
		xlog.Fatal("run app", "error", err)
	}
}
