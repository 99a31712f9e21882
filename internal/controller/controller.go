package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mudler/xlog"

	"blank-subtitles/internal/domain"
	"blank-subtitles/internal/jobs"
)

// ErrCancelInProgress is returned by Cancel while an earlier Cancel is still waiting for the worker.
var ErrCancelInProgress = errors.New("job cancellation already in progress")

// Execution is a job running in an isolated context.
type Execution interface {
	// Done is closed once the context has exited and all of its messages were forwarded.
	Done() <-chan struct{}
	// ExitCode is valid after Done is closed.
	ExitCode() int
	// Kill terminates the context and blocks until it has exited.
	Kill() error
	// Release frees resources held after exit.
	Release() error
}

// Launcher starts a job in an isolated context that reports on sink.
type Launcher interface {
	Launch(jobID string, req domain.JobRequest, sink jobs.Sink) (Execution, error)
}

// Callbacks are invoked outside the controller lock, in message order.
type Callbacks struct {
	OnProgress func(jobID string, p domain.Progress)
	OnError    func(jobID, message string)
	OnFinished func(jobID string, result domain.JobResult)
	OnAborted  func(jobID string)
}

// activeJob is the controller's bookkeeping for the job in flight.
type activeJob struct {
	id        string
	req       domain.JobRequest
	channel   *jobs.Channel
	exec      Execution
	lastError string
	aborting  bool
}

// Controller runs at most one job at a time and relays its channel to callbacks.
type Controller struct {
	launcher  Launcher
	callbacks Callbacks
	manager   *jobs.Manager
	remove    func(name string) error
	newID     func() string

	mu     sync.Mutex
	active *activeJob
}

// New creates an idle controller.
func New(launcher Launcher, callbacks Callbacks) *Controller {
	return &Controller{
		launcher:  launcher,
		callbacks: callbacks,
		manager:   jobs.NewManager(),
		remove:    os.Remove,
		newID:     uuid.NewString,
	}
}

// IsBusy reports whether a job is in flight.
func (c *Controller) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Current returns a snapshot of the latest job.
func (c *Controller) Current() domain.Job {
	return c.manager.Current()
}

// Launch starts req in a new execution context and returns its job id.
func (c *Controller) Launch(req domain.JobRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return "", jobs.ErrJobAlreadyRunning
	}

	id := c.newID()
	if err := c.manager.Start(id, req); err != nil {
		return "", err
	}

	ch := jobs.NewChannel(jobs.DefaultChannelCapacity)
	exec, err := c.launcher.Launch(id, req, ch)
	if err != nil {
		_ = c.manager.Finish(domain.Failed(err.Error()))
		return "", fmt.Errorf("launch worker: %w", err)
	}

	c.active = &activeJob{id: id, req: req, channel: ch, exec: exec}
	xlog.Info("job launched", "job", id, "video", req.VideoPath, "output", req.OutputPath)
	return id, nil
}

// Poll drains the active job's channel and dispatches what it finds.
// A result ends the job even when error messages arrived alongside it. A context
// that exits without a result ends the job as a failure.
func (c *Controller) Poll() {
	var dispatch []func()

	c.mu.Lock()
	job := c.active
	if job == nil || job.aborting {
		c.mu.Unlock()
		return
	}

	exited := isClosed(job.exec.Done())
	batch := job.channel.Drain()

	for _, p := range batch.Progress {
		if err := c.manager.Advance(p); err != nil {
			xlog.Warn("ignoring progress", "job", job.id, "progress", p, "error", err)
			continue
		}
		p := p
		dispatch = append(dispatch, func() { c.emitProgress(job.id, p) })
	}
	for _, msg := range batch.Errors {
		msg := msg
		job.lastError = msg
		dispatch = append(dispatch, func() { c.emitError(job.id, msg) })
	}

	var result *domain.JobResult
	switch {
	case batch.Result != nil && *batch.Result:
		r := domain.Succeeded()
		result = &r
	case batch.Result != nil:
		msg := job.lastError
		if msg == "" {
			msg = "Job failed"
		}
		r := domain.Failed(msg)
		result = &r
	case exited:
		msg := fmt.Sprintf("Worker exited without reporting a result (exit code %d)", job.exec.ExitCode())
		dispatch = append(dispatch, func() { c.emitError(job.id, msg) })
		r := domain.Failed(msg)
		result = &r
	}

	if result != nil {
		c.finish(job, *result)
		final := *result
		dispatch = append(dispatch, func() { c.emitFinished(job.id, final) })
	}
	c.mu.Unlock()

	for _, fn := range dispatch {
		fn()
	}
}

// finish records the outcome and releases the execution. Caller holds c.mu.
func (c *Controller) finish(job *activeJob, result domain.JobResult) {
	if err := c.manager.Finish(result); err != nil {
		xlog.Warn("finish job", "job", job.id, "error", err)
	}
	if !isClosed(job.exec.Done()) {
		// The result arrived before the worker exited; let it finish on its own.
		go c.release(job)
	} else {
		c.release(job)
	}
	c.active = nil

	if result.Success {
		xlog.Info("job finished", "job", job.id, "output", job.req.OutputPath)
	} else {
		xlog.Error("job failed", "job", job.id, "error", result.Message)
	}
}

func (c *Controller) release(job *activeJob) {
	<-job.exec.Done()
	if err := job.exec.Release(); err != nil {
		xlog.Debug("release worker", "job", job.id, "error", err)
	}
}

// Cancel hard-kills the active job, waits for it to exit and discards its temp audio.
// No result is delivered for a cancelled job. The controller stays busy until the
// worker is gone, but Poll and IsBusy do not block meanwhile.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	job := c.active
	if job == nil {
		c.mu.Unlock()
		return jobs.ErrNoRunningJob
	}
	if job.aborting {
		c.mu.Unlock()
		return ErrCancelInProgress
	}
	job.aborting = true
	c.mu.Unlock()

	killErr := job.exec.Kill()
	<-job.exec.Done()
	if err := c.remove(job.req.TempAudioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		xlog.Warn("remove temp audio", "path", job.req.TempAudioPath, "error", err)
	}
	if err := job.exec.Release(); err != nil {
		xlog.Debug("release worker", "job", job.id, "error", err)
	}

	c.mu.Lock()
	_ = c.manager.Cancel()
	c.active = nil
	c.mu.Unlock()

	xlog.Info("job cancelled", "job", job.id)
	if c.callbacks.OnAborted != nil {
		c.callbacks.OnAborted(job.id)
	}
	if killErr != nil {
		return fmt.Errorf("kill worker: %w", killErr)
	}
	return nil
}

// Watch polls every interval until ctx is done.
func (c *Controller) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Poll()
		}
	}
}

func (c *Controller) emitProgress(jobID string, p domain.Progress) {
	if c.callbacks.OnProgress != nil {
		c.callbacks.OnProgress(jobID, p)
	}
}

func (c *Controller) emitError(jobID, message string) {
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(jobID, message)
	}
}

func (c *Controller) emitFinished(jobID string, result domain.JobResult) {
	if c.callbacks.OnFinished != nil {
		c.callbacks.OnFinished(jobID, result)
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// NewForTests constructs a controller with injected id generation and file removal.
func NewForTests(launcher Launcher, callbacks Callbacks, newID func() string, remove func(string) error) *Controller {
	c := New(launcher, callbacks)
	c.newID = newID
	c.remove = remove
	return c
}
