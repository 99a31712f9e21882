package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/mudler/xlog"

	"blank-subtitles/internal/command"
	"blank-subtitles/internal/config"
	"blank-subtitles/internal/domain"
)

const installCommandTimeout = 45 * time.Minute

// packageManager is one way to install a tool on the host OS.
type packageManager struct {
	name     string
	commands [][]string
}

// toolInstaller installs missing external tools through the host's package managers.
type toolInstaller struct {
	goos     string
	runner   command.Runner
	lookPath func(string) (string, error)
	timeout  time.Duration
}

func newToolInstaller() *toolInstaller {
	return &toolInstaller{
		goos:     goruntime.GOOS,
		runner:   command.NewExecRunner(),
		lookPath: exec.LookPath,
		timeout:  installCommandTimeout,
	}
}

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	settingsChanged := false
	var fixErr error

	switch id {
	case "tool_ffmpeg":
		fixErr = a.installer.installFFmpeg(context.Background(), settings.FFmpeg)
	case "output_dir":
		settings, settingsChanged, fixErr = installOrFixOutputDir(settings)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(settings)
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		return report, fixErr
	}
	return report, nil
}

// installFFmpeg tries each package manager available on the host until one succeeds,
// then confirms the binary resolves.
func (t *toolInstaller) installFFmpeg(ctx context.Context, binary string) error {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}

	managers := ffmpegPackageManagers(t.goos)
	failures := make([]string, 0, len(managers))
	tried := false
	installed := false

	for _, manager := range managers {
		if !t.available(manager.name) {
			continue
		}
		tried = true
		if err := t.runAll(ctx, manager.commands); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", manager.name, err))
			continue
		}
		xlog.Info("ffmpeg installed", "manager", manager.name)
		installed = true
		break
	}

	if !tried {
		return fmt.Errorf("install ffmpeg: no supported package manager found for %s", t.goos)
	}
	if !installed {
		return fmt.Errorf("install ffmpeg: %s", strings.Join(failures, " | "))
	}
	if _, err := t.lookPath(binary); err != nil {
		return fmt.Errorf("verify %s on PATH: %w", binary, err)
	}
	return nil
}

// runAll runs commands in order, stopping at the first failure.
func (t *toolInstaller) runAll(ctx context.Context, commands [][]string) error {
	for _, cmd := range commands {
		if err := t.runElevated(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

// runElevated runs cmd as is, then retries through pkexec or sudo when the manager needs root.
func (t *toolInstaller) runElevated(ctx context.Context, cmd []string) error {
	if len(cmd) == 0 {
		return fmt.Errorf("empty command")
	}

	attempts := make([]string, 0, 3)
	for _, candidate := range elevationCandidates(t.goos, cmd, t.available) {
		err := t.run(ctx, candidate)
		if err == nil {
			return nil
		}
		attempts = append(attempts, err.Error())
	}
	return errors.New(strings.Join(attempts, " | "))
}

func (t *toolInstaller) run(ctx context.Context, cmd []string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	line := strings.Join(cmd, " ")
	xlog.Debug("running install command", "command", line)
	result, err := t.runner.Run(ctx, nil, cmd[0], cmd[1:]...)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", line, t.timeout)
	}

	detail := command.LastLine(result.Stderr)
	if detail == "" {
		detail = command.LastLine(result.Stdout)
	}
	if detail == "" {
		return fmt.Errorf("%s failed: %w", line, err)
	}
	return fmt.Errorf("%s failed: %w (%s)", line, err, detail)
}

func (t *toolInstaller) available(name string) bool {
	_, err := t.lookPath(name)
	return err == nil
}

// ffmpegPackageManagers lists package managers to try, in preference order, for goos.
func ffmpegPackageManagers(goos string) []packageManager {
	switch goos {
	case "windows":
		return []packageManager{
			{name: "winget", commands: [][]string{
				{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"},
			}},
			{name: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{name: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		return []packageManager{
			{name: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	default:
		return []packageManager{
			{name: "apt-get", commands: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "ffmpeg"}}},
			{name: "dnf", commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
			{name: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
			{name: "zypper", commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
			{name: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	}
}

// elevationCandidates returns cmd followed by its pkexec and sudo variants when the manager needs root.
func elevationCandidates(goos string, cmd []string, available func(string) bool) [][]string {
	candidates := [][]string{cmd}
	if goos != "linux" || !requiresElevation(cmd[0]) {
		return candidates
	}
	if available("pkexec") {
		candidates = append(candidates, append([]string{"pkexec"}, cmd...))
	}
	if available("sudo") {
		candidates = append(candidates, append([]string{"sudo", "-n"}, cmd...))
	}
	return candidates
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

func installOrFixOutputDir(settings domain.Settings) (domain.Settings, bool, error) {
	outputDir := strings.TrimSpace(settings.OutputDir)
	changed := false
	if outputDir == "" {
		outputDir = config.DefaultSettings().OutputDir
		settings.OutputDir = outputDir
		changed = true
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	return settings, changed, nil
}

// ensureLocalBinOnPATH prepends ~/.blank-subtitles/bin to PATH so user-installed tools resolve.
func ensureLocalBinOnPATH(homeDir string) error {
	binDir := localBinDir(homeDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(current) {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func localBinDir(homeDir string) string {
	return filepath.Join(homeDir, ".blank-subtitles", "bin")
}
