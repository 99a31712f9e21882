package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/mudler/xlog"

	"blank-subtitles/internal/diarize"
	"blank-subtitles/internal/domain"
	"blank-subtitles/internal/jobs"
	"blank-subtitles/internal/worker"
)

// WorkerCMD runs a single job in the current process, writing the job channel to stdout.
type WorkerCMD struct {
	Video     string `required:"" help:"Video to process"`
	Output    string `required:"" help:"Subtitle file to write"`
	TempAudio string `name:"temp-audio" required:"" help:"Where to extract the waveform"`
}

// Run executes the job. The access token is read from the environment.
func (w *WorkerCMD) Run(ctx *Context) error {
	// Cancellation is a hard kill from the parent; a terminal Ctrl-C must not end the job.
	signal.Ignore(os.Interrupt)
	// Stdout carries the job wire.
	ctx.UseLogOutput(os.Stderr)

	sink := jobs.NewWireSink(os.Stdout)
	req := domain.JobRequest{
		AccessToken:   os.Getenv(diarize.TokenEnv),
		VideoPath:     w.Video,
		OutputPath:    w.Output,
		TempAudioPath: w.TempAudio,
	}

	settings, _, err := ctx.Load()
	if err != nil {
		worker.ReportSetupFailure(sink, err)
		return sink.Err()
	}

	wk, err := worker.New(settings)
	if err != nil {
		worker.ReportSetupFailure(sink, err)
		return sink.Err()
	}

	result := wk.Run(context.Background(), req, sink)
	xlog.Debug("worker done", "success", result.Success)
	return sink.Err()
}
