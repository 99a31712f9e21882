package controller

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hpcloud/tail"
	process "github.com/mudler/go-processmanager"
	"github.com/mudler/xlog"
	psprocess "github.com/shirou/gopsutil/v3/process"

	"blank-subtitles/internal/diarize"
	"blank-subtitles/internal/domain"
	"blank-subtitles/internal/jobs"
)

// WorkerCommand is the hidden subcommand that runs one job in a child process.
const WorkerCommand = "worker"

const (
	aliveCheckInterval = 50 * time.Millisecond
	killTimeout        = 5 * time.Second
)

// ProcessLauncher runs each job in a fresh child process of the current executable.
type ProcessLauncher struct {
	executable func() (string, error)
	environ    func() []string
	configPath string
}

// NewProcessLauncher builds a launcher that forwards configPath to the worker.
func NewProcessLauncher(configPath string) *ProcessLauncher {
	return &ProcessLauncher{
		executable: os.Executable,
		environ:    os.Environ,
		configPath: configPath,
	}
}

// WorkerArgs builds the worker command line. The access token is passed through the environment.
func WorkerArgs(req domain.JobRequest, configPath string) []string {
	args := []string{
		WorkerCommand,
		"--video", req.VideoPath,
		"--output", req.OutputPath,
		"--temp-audio", req.TempAudioPath,
	}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return args
}

// Launch starts the worker and forwards its stdout wire into sink.
func (l *ProcessLauncher) Launch(jobID string, req domain.JobRequest, sink jobs.Sink) (Execution, error) {
	self, err := l.executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}

	proc := process.New(
		process.WithTemporaryStateDir(),
		process.WithName(self),
		process.WithArgs(WorkerArgs(req, l.configPath)...),
		process.WithEnvironment(diarize.TokenEnviron(l.environ(), req.AccessToken)...),
		process.WithKillSignal(int(syscall.SIGKILL)),
		process.WithGracefulTimeout(0),
		process.WithKillProcessGroup(true),
	)
	if err := proc.Run(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	xlog.Debug("worker started", "job", jobID, "pid", proc.PID, "stateDir", proc.StateDir())

	pid, err := strconv.Atoi(proc.PID)
	if err != nil {
		_ = proc.Stop()
		return nil, fmt.Errorf("worker pid %q: %w", proc.PID, err)
	}

	cfg := tail.Config{Follow: true, ReOpen: false, MustExist: false, Logger: tail.DiscardingLogger}
	stdout, err := tail.TailFile(proc.StdoutPath(), cfg)
	if err != nil {
		_ = proc.Stop()
		return nil, fmt.Errorf("follow worker stdout: %w", err)
	}
	stderr, err := tail.TailFile(proc.StderrPath(), cfg)
	if err != nil {
		_ = stdout.Stop()
		_ = proc.Stop()
		return nil, fmt.Errorf("follow worker stderr: %w", err)
	}

	w := &workerProcess{
		jobID:     jobID,
		proc:      proc,
		pid:       int32(pid),
		stdout:    stdout,
		stderr:    stderr,
		forwarded: make(chan struct{}),
		logged:    make(chan struct{}),
		done:      make(chan struct{}),
		exitCode:  -1,
	}
	go w.forward(sink)
	go w.logStderr()
	go w.monitor()
	return w, nil
}

// workerProcess is one running worker child.
type workerProcess struct {
	jobID  string
	proc   *process.Process
	pid    int32
	stdout *tail.Tail
	stderr *tail.Tail

	forwarded chan struct{}
	logged    chan struct{}
	done      chan struct{}

	mu       sync.Mutex
	exitCode int
}

// forward decodes each stdout line into sink.
func (w *workerProcess) forward(sink jobs.Sink) {
	defer close(w.forwarded)
	for line := range w.stdout.Lines {
		if line.Err != nil {
			xlog.Warn("worker stdout", "job", w.jobID, "error", line.Err)
			continue
		}
		if err := jobs.DecodeLine(line.Text, sink); err != nil {
			xlog.Debug("worker stdout", "job", w.jobID, "line", line.Text, "error", err)
		}
	}
}

// logStderr relays the worker's log output.
func (w *workerProcess) logStderr() {
	defer close(w.logged)
	for line := range w.stderr.Lines {
		xlog.Debug("worker", "job", w.jobID, "stderr", line.Text)
	}
}

// monitor waits for exit, lets the tails reach EOF, then closes done.
func (w *workerProcess) monitor() {
	for !w.exited() {
		time.Sleep(aliveCheckInterval)
	}

	_ = w.stdout.StopAtEOF()
	<-w.forwarded
	_ = w.stderr.StopAtEOF()
	<-w.logged

	code := -1
	if raw, err := w.proc.ExitCode(); err == nil {
		if n, convErr := strconv.Atoi(strings.TrimSpace(raw)); convErr == nil {
			code = n
		}
	}
	w.mu.Lock()
	w.exitCode = code
	w.mu.Unlock()

	xlog.Debug("worker exited", "job", w.jobID, "exitCode", code)
	close(w.done)
}

// exited reports whether the worker has terminated.
func (w *workerProcess) exited() bool {
	if raw, err := w.proc.ExitCode(); err == nil && strings.TrimSpace(raw) != "" {
		return true
	}
	return !w.proc.IsAlive()
}

// Done is closed after exit once all output has been forwarded.
func (w *workerProcess) Done() <-chan struct{} {
	return w.done
}

// ExitCode returns the worker's exit status, or -1 when unknown.
func (w *workerProcess) ExitCode() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exitCode
}

// Kill sends SIGKILL to the worker's process group and to every descendant that left
// the group, then waits for exit. There is no grace period.
func (w *workerProcess) Kill() error {
	if isClosed(w.done) {
		return nil
	}
	tree := descendants(w.pid)

	var err error
	if stopErr := w.proc.Stop(); stopErr != nil && !errors.Is(stopErr, syscall.ESRCH) {
		err = stopErr
	}
	for _, child := range tree {
		if alive, _ := child.IsRunning(); alive {
			if killErr := child.Kill(); killErr != nil && !errors.Is(killErr, syscall.ESRCH) {
				err = errors.Join(err, fmt.Errorf("kill pid %d: %w", child.Pid, killErr))
			}
		}
	}

	select {
	case <-w.done:
		if err != nil {
			xlog.Debug("kill worker", "job", w.jobID, "error", err)
		}
		return nil
	case <-time.After(killTimeout):
		return errors.Join(err, fmt.Errorf("worker %d did not exit within %s", w.pid, killTimeout))
	}
}

// Release removes the worker's state directory.
func (w *workerProcess) Release() error {
	_ = w.stdout.Stop()
	_ = w.stderr.Stop()
	w.stdout.Cleanup()
	w.stderr.Cleanup()
	if dir := w.proc.StateDir(); dir != "" {
		return os.RemoveAll(dir)
	}
	return nil
}

// descendants lists every process below pid, nearest first.
func descendants(pid int32) []*psprocess.Process {
	all, err := psprocess.Processes()
	if err != nil {
		return nil
	}

	children := make(map[int32][]*psprocess.Process)
	for _, p := range all {
		ppid, err := p.Ppid()
		if err != nil {
			continue
		}
		children[ppid] = append(children[ppid], p)
	}

	var out []*psprocess.Process
	queue := []int32{pid}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, child := range children[next] {
			out = append(out, child)
			queue = append(queue, child.Pid)
		}
	}
	return out
}
