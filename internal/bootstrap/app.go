package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/mudler/xlog"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"blank-subtitles/internal/config"
	"blank-subtitles/internal/controller"
	"blank-subtitles/internal/diagnostics"
	"blank-subtitles/internal/domain"
	"blank-subtitles/internal/jobs"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Video files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.webm;*.m4v;*.wmv;*.flv",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var subtitleDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "SubRip subtitles",
		Pattern:     "*.srt",
	},
}

// App wires configuration, the job controller, diagnostics and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	controller  *controller.Controller
	installer   *toolInstaller

	mu          sync.Mutex
	events      *jobs.EventBus
	runtimeCtx  context.Context
	stopWatch   context.CancelFunc
	lastOutputs map[string]string
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	configPath := config.FindConfigFile()
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	store := config.NewYAMLStore(configPath)
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	xlog.SetLogger(xlog.NewLogger(xlog.LogLevel(settings.LogLevel), settings.LogFormat))

	checker := diagnostics.NewChecker()
	app := newApp(store, controller.NewProcessLauncher(configPath), checker)
	app.Settings = settings
	app.Diagnostics = checker.Run(context.Background(), settings)
	app.assets = assets
	return app, nil
}

// newApp connects the controller callbacks to the event bus.
func newApp(store config.Store, launcher controller.Launcher, checker *diagnostics.Checker) *App {
	a := &App{
		Store:       store,
		checker:     checker,
		installer:   newToolInstaller(),
		events:      jobs.NewEventBus(1000),
		lastOutputs: map[string]string{},
	}
	a.controller = controller.New(launcher, controller.Callbacks{
		OnProgress: a.onProgress,
		OnError:    a.onError,
		OnFinished: a.onFinished,
		OnAborted:  a.onAborted,
	})
	return a
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:         "Blank Subtitles",
		Width:         960,
		Height:        640,
		AssetServer:   assetOptions,
		OnStartup:     a.Startup,
		OnBeforeClose: a.beforeClose,
		OnShutdown:    a.Shutdown,
		Bind:          []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events and starts polling the controller.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx

	watchCtx, cancel := context.WithCancel(ctx)
	a.stopWatch = cancel
	go a.controller.Watch(watchCtx, a.Settings.PollInterval)
}

// Shutdown stops polling and kills any job still in flight.
func (a *App) Shutdown(context.Context) {
	a.mu.Lock()
	stop := a.stopWatch
	a.stopWatch = nil
	a.runtimeCtx = nil
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
	if err := a.controller.Cancel(); err != nil && !errors.Is(err, jobs.ErrNoRunningJob) && !errors.Is(err, controller.ErrCancelInProgress) {
		xlog.Warn("cancel job on shutdown", "error", err)
	}
}

// beforeClose asks for confirmation while a job runs and aborts it on approval.
func (a *App) beforeClose(ctx context.Context) bool {
	if !a.controller.IsBusy() {
		return false
	}

	answer, err := wailsruntime.MessageDialog(ctx, wailsruntime.MessageDialogOptions{
		Type:          wailsruntime.QuestionDialog,
		Title:         "Job in progress",
		Message:       "Subtitles are still being generated. Abort the job and quit?",
		Buttons:       []string{"Yes", "No"},
		DefaultButton: "No",
		CancelButton:  "No",
	})
	if err != nil || answer != "Yes" {
		return true
	}

	if err := a.controller.Cancel(); err != nil && !errors.Is(err, jobs.ErrNoRunningJob) {
		xlog.Warn("cancel job before close", "error", err)
	}
	return false
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// PickVideoFile opens a native file dialog for the input video and suggests an output path next to it.
func (a *App) PickVideoFile() (domain.JobRequest, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return domain.JobRequest{}, err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select video",
		Filters: videoDialogFilter,
	})
	if err != nil {
		return domain.JobRequest{}, err
	}

	path = strings.TrimSpace(path)
	return domain.JobRequest{
		VideoPath:  path,
		OutputPath: domain.SuggestOutputPath(path),
	}, nil
}

// PickOutputFile opens a native save dialog for the subtitle destination.
func (a *App) PickOutputFile(suggested string) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	opts := wailsruntime.SaveDialogOptions{
		Title:   "Save subtitles as",
		Filters: subtitleDialogFilter,
	}
	if suggested = strings.TrimSpace(suggested); suggested != "" {
		opts.DefaultDirectory = filepath.Dir(suggested)
		opts.DefaultFilename = filepath.Base(suggested)
	} else {
		a.mu.Lock()
		opts.DefaultDirectory = a.Settings.OutputDir
		a.mu.Unlock()
	}

	path, err := wailsruntime.SaveFileDialog(ctx, opts)
	if err != nil {
		return "", err
	}

	path = strings.TrimSpace(path)
	if path != "" && filepath.Ext(path) == "" {
		path += ".srt"
	}
	return path, nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	return a.refreshDiagnosticsFromSettings(settings), nil
}

// StartDiarization launches one job. An empty output path defaults to the video's directory.
func (a *App) StartDiarization(token, videoPath, outputPath string) (domain.Job, error) {
	if strings.TrimSpace(outputPath) == "" {
		outputPath = domain.SuggestOutputPath(videoPath)
	}
	req := domain.NewJobRequest(token, videoPath, outputPath)

	jobID, err := a.controller.Launch(req)
	if err != nil {
		return domain.Job{}, err
	}

	a.mu.Lock()
	a.lastOutputs[jobID] = req.OutputPath
	a.mu.Unlock()

	a.publishStatus(jobID, domain.JobStatusRunning, "Job started")
	return a.controller.Current(), nil
}

// CancelDiarization aborts the running job, if any.
func (a *App) CancelDiarization() error {
	return a.controller.Cancel()
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.controller.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

func (a *App) onProgress(jobID string, p domain.Progress) {
	a.publishEvent(jobs.Event{
		JobID:    jobID,
		Type:     jobs.EventTypeProgress,
		Status:   domain.JobStatusRunning,
		Progress: p.String(),
	})
}

func (a *App) onError(jobID, message string) {
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeError,
		Message: message,
		Hint:    diagnostics.HintFor(message),
	})
}

func (a *App) onFinished(jobID string, result domain.JobResult) {
	output := a.takeOutput(jobID)
	if !result.Success {
		a.publishStatus(jobID, domain.JobStatusFailed, result.Message)
		return
	}

	a.publishStatus(jobID, domain.JobStatusDone, "Job completed")
	a.publishEvent(jobs.Event{
		JobID:      jobID,
		Type:       jobs.EventTypeResult,
		Status:     domain.JobStatusDone,
		Message:    "Subtitles written",
		OutputPath: output,
	})
}

func (a *App) onAborted(jobID string) {
	a.takeOutput(jobID)
	a.publishStatus(jobID, domain.JobStatusCancelled, "Job aborted")
}

// takeOutput returns and forgets the output path recorded for jobID.
func (a *App) takeOutput(jobID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	output := a.lastOutputs[jobID]
	delete(a.lastOutputs, jobID)
	return output
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(jobID string, status domain.JobStatus, message string) {
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", published)
	}
}

// refreshDiagnosticsFromSettings caches settings and reruns the checker against them.
func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	var report domain.DiagnosticReport
	if a.checker != nil {
		report = a.checker.Run(context.Background(), settings)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = report
	}
	return a.Diagnostics
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and restores defaults for cleared fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	defaults := config.DefaultSettings()
	trim := func(value *string, fallback string) {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			*value = fallback
		}
	}

	trim(&settings.ModelID, defaults.ModelID)
	trim(&settings.Backend, defaults.Backend)
	trim(&settings.Helper, defaults.Helper)
	trim(&settings.Device, defaults.Device)
	trim(&settings.FFmpeg, defaults.FFmpeg)
	trim(&settings.ToolStrategy, defaults.ToolStrategy)
	trim(&settings.OutputDir, defaults.OutputDir)
	trim(&settings.LogLevel, defaults.LogLevel)
	trim(&settings.LogFormat, defaults.LogFormat)
	settings.Endpoint = strings.TrimSpace(settings.Endpoint)
	if settings.PollInterval <= 0 {
		settings.PollInterval = defaults.PollInterval
	}
	if settings.PollInterval > time.Second {
		settings.PollInterval = time.Second
	}
	return settings
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
