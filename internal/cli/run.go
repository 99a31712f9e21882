package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mudler/xlog"
	"github.com/schollz/progressbar/v3"

	"blank-subtitles/internal/controller"
	"blank-subtitles/internal/diagnostics"
	"blank-subtitles/internal/domain"
	"blank-subtitles/internal/jobs"
)

// interruptWindow is how soon a second Ctrl-C must follow the first to abort a job.
const interruptWindow = 5 * time.Second

// ErrCancelled is returned when the user aborts a running job.
var ErrCancelled = errors.New("job cancelled")

// RunCMD processes one video.
type RunCMD struct {
	Video  string `arg:"" type:"existingfile" help:"Video file to process"`
	Output string `short:"o" type:"path" help:"Subtitle file to write. Defaults to <video dir>/<video name>.srt"`
	Token  string `env:"HF_TOKEN" help:"Model hub access token. May be empty when the model is cached"`
}

// Run launches the job in a worker process and waits for its outcome.
func (r *RunCMD) Run(ctx *Context) error {
	settings, configPath, err := ctx.Load()
	if err != nil {
		return err
	}

	output := r.Output
	if output == "" {
		output = domain.SuggestOutputPath(r.Video)
	}
	req := domain.NewJobRequest(r.Token, r.Video, output)

	bar := progressbar.NewOptions(
		len(domain.AllProgress()),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Starting"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	finished := make(chan domain.JobResult, 1)
	ctrl := controller.New(controller.NewProcessLauncher(configPath), controller.Callbacks{
		OnProgress: func(_ string, p domain.Progress) {
			bar.Describe(p.String())
			if err := bar.Set(int(p) + 1); err != nil {
				xlog.Debug("progress bar", "error", err)
			}
		},
		OnError: func(jobID, message string) {
			xlog.Debug("job error", "job", jobID, "message", message)
		},
		OnFinished: func(_ string, result domain.JobResult) {
			finished <- result
		},
	})

	if _, err := ctrl.Launch(req); err != nil {
		return err
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go ctrl.Watch(watchCtx, settings.PollInterval)

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	var lastInterrupt time.Time
	for {
		select {
		case result := <-finished:
			_ = bar.Finish()
			return report(os.Stdout, os.Stderr, req, result)
		case <-sigs:
			now := time.Now()
			if !lastInterrupt.IsZero() && now.Sub(lastInterrupt) <= interruptWindow {
				_ = bar.Clear()
				fmt.Fprintln(os.Stderr, "Aborting job...")
				stopWatch()
				if err := ctrl.Cancel(); err != nil && !errors.Is(err, jobs.ErrNoRunningJob) {
					return errors.Join(ErrCancelled, err)
				}
				return ErrCancelled
			}
			lastInterrupt = now
			fmt.Fprintf(os.Stderr, "\nA job is running. Press Ctrl-C again within %s to abort it.\n", interruptWindow)
		}
	}
}

// report prints the outcome and a remediation hint for failures.
func report(stdout, stderr io.Writer, req domain.JobRequest, result domain.JobResult) error {
	if result.Success {
		fmt.Fprintf(stdout, "Subtitles written to %s\n", req.OutputPath)
		return nil
	}

	fmt.Fprintln(stderr, result.Message)
	if hint := diagnostics.HintFor(result.Message); hint != "" {
		fmt.Fprintf(stderr, "Hint: %s\n", hint)
	}
	return errors.New("job failed")
}
