package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"blank-subtitles/internal/command"
	"blank-subtitles/internal/config"
	"blank-subtitles/internal/domain"
)

// TestInstallOrFixOutputDirCreatesDirectory ensures output dir fix creates missing directories.
func TestInstallOrFixOutputDirCreatesDirectory(t *testing.T) {
	root := t.TempDir()
	outputDir := filepath.Join(root, "nested", "subtitles")

	settings := config.DefaultSettings()
	settings.OutputDir = outputDir
	fixed, changed, err := installOrFixOutputDir(settings)
	if err != nil {
		t.Fatalf("fix output dir: %v", err)
	}
	if changed {
		t.Fatal("expected settings to remain unchanged")
	}
	if fixed.OutputDir != outputDir {
		t.Fatalf("OutputDir = %s, want %s", fixed.OutputDir, outputDir)
	}
	if _, err := os.Stat(outputDir); err != nil {
		t.Fatalf("stat output dir: %v", err)
	}
}

// TestInstallOrFixDiagnosticRejectsUnknownItem checks only fixable items are accepted.
func TestInstallOrFixDiagnosticRejectsUnknownItem(t *testing.T) {
	app := newApp(&fakeStore{settings: config.DefaultSettings()}, &fakeLauncher{}, nil)

	if _, err := app.InstallOrFixDiagnostic("diarization_runtime"); err == nil {
		t.Fatal("expected error for unsupported item")
	}
	if _, err := app.InstallOrFixDiagnostic("  "); err == nil {
		t.Fatal("expected error for empty item id")
	}
}

// TestInstallOrFixDiagnosticOutputDir checks the fix persists a restored default.
func TestInstallOrFixDiagnosticOutputDir(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "subs")
	store := &fakeStore{settings: domain.Settings{OutputDir: outputDir}}
	app := newApp(store, &fakeLauncher{}, nil)

	if _, err := app.InstallOrFixDiagnostic("output_dir"); err != nil {
		t.Fatalf("fix: %v", err)
	}
	if _, err := os.Stat(outputDir); err != nil {
		t.Fatalf("stat output dir: %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("unexpected save: %+v", store.saved)
	}
	if app.Settings.OutputDir != outputDir {
		t.Fatalf("cached output dir = %s", app.Settings.OutputDir)
	}
}

// TestEnsureLocalBinOnPATHPrependsOnce checks the local bin dir is added a single time.
func TestEnsureLocalBinOnPATHPrependsOnce(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PATH", "/usr/bin")

	for i := 0; i < 2; i++ {
		if err := ensureLocalBinOnPATH(home); err != nil {
			t.Fatalf("ensure path: %v", err)
		}
	}

	entries := filepath.SplitList(os.Getenv("PATH"))
	if len(entries) != 2 || entries[0] != localBinDir(home) {
		t.Fatalf("PATH = %v", entries)
	}
	if _, err := os.Stat(localBinDir(home)); err != nil {
		t.Fatalf("stat bin dir: %v", err)
	}
}

// fakeRunner records commands and fails those listed in failing.
type fakeRunner struct {
	calls   []string
	failing map[string]string
}

// Run records the command line and returns the injected failure, if any.
func (r *fakeRunner) Run(_ context.Context, _ []string, name string, args ...string) (command.Result, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, line)
	if stderr, ok := r.failing[line]; ok {
		return command.Result{ExitCode: 1, Stderr: stderr}, errors.New("exit status 1")
	}
	return command.Result{}, nil
}

// lookPathOf resolves exactly the given names.
func lookPathOf(names ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, candidate := range names {
			if candidate == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
}

// TestFFmpegPackageManagers checks each platform has package managers in order.
func TestFFmpegPackageManagers(t *testing.T) {
	cases := map[string]string{
		"windows": "winget",
		"darwin":  "brew",
		"linux":   "apt-get",
	}
	for goos, first := range cases {
		managers := ffmpegPackageManagers(goos)
		if len(managers) == 0 || managers[0].name != first {
			t.Fatalf("%s: managers = %+v", goos, managers)
		}
		for _, manager := range managers {
			last := manager.commands[len(manager.commands)-1]
			if !strings.Contains(strings.ToLower(strings.Join(last, " ")), "ffmpeg") {
				t.Fatalf("%s: %s does not install ffmpeg", goos, manager.name)
			}
		}
	}
}

// TestInstallFFmpegFallsBackThroughElevation checks sudo is tried after a failed plain run.
func TestInstallFFmpegFallsBackThroughElevation(t *testing.T) {
	runner := &fakeRunner{failing: map[string]string{
		"apt-get update": "E: Could not open lock file - open (13: Permission denied)",
	}}
	installer := &toolInstaller{
		goos:     "linux",
		runner:   runner,
		lookPath: lookPathOf("apt-get", "sudo", "ffmpeg"),
		timeout:  time.Minute,
	}

	if err := installer.installFFmpeg(context.Background(), ""); err != nil {
		t.Fatalf("install: %v", err)
	}
	want := []string{"apt-get update", "sudo -n apt-get update", "apt-get install -y ffmpeg"}
	if strings.Join(runner.calls, "; ") != strings.Join(want, "; ") {
		t.Fatalf("calls = %v, want %v", runner.calls, want)
	}
}

// TestInstallFFmpegReportsFailures checks errors name the manager and the tool's last stderr line.
func TestInstallFFmpegReportsFailures(t *testing.T) {
	runner := &fakeRunner{failing: map[string]string{
		"brew install ffmpeg": "Error: No available formula with the name \"ffmpeg\"",
	}}
	installer := &toolInstaller{goos: "darwin", runner: runner, lookPath: lookPathOf("brew"), timeout: time.Minute}

	err := installer.installFFmpeg(context.Background(), "ffmpeg")
	if err == nil || !strings.Contains(err.Error(), "brew: brew install ffmpeg failed") || !strings.Contains(err.Error(), "No available formula") {
		t.Fatalf("error = %v", err)
	}

	none := &toolInstaller{goos: "windows", runner: runner, lookPath: lookPathOf(), timeout: time.Minute}
	if err := none.installFFmpeg(context.Background(), "ffmpeg"); err == nil || !strings.Contains(err.Error(), "no supported package manager") {
		t.Fatalf("error = %v", err)
	}
}

// TestInstallFFmpegVerifiesBinary checks a successful install still requires the binary to resolve.
func TestInstallFFmpegVerifiesBinary(t *testing.T) {
	installer := &toolInstaller{goos: "darwin", runner: &fakeRunner{}, lookPath: lookPathOf("brew"), timeout: time.Minute}

	if err := installer.installFFmpeg(context.Background(), "ffmpeg"); err == nil || !strings.Contains(err.Error(), "verify ffmpeg on PATH") {
		t.Fatalf("error = %v", err)
	}
}

// TestElevationCandidates checks privileged managers get pkexec and sudo fallbacks on linux only.
func TestElevationCandidates(t *testing.T) {
	all := func(string) bool { return true }
	none := func(string) bool { return false }
	apt := []string{"apt-get", "install", "-y", "ffmpeg"}

	got := elevationCandidates("linux", apt, all)
	if len(got) != 3 || got[1][0] != "pkexec" || strings.Join(got[2][:2], " ") != "sudo -n" {
		t.Fatalf("candidates = %v", got)
	}
	if got := elevationCandidates("linux", apt, none); len(got) != 1 {
		t.Fatalf("candidates without helpers = %v", got)
	}
	if got := elevationCandidates("linux", []string{"brew", "install", "ffmpeg"}, all); len(got) != 1 {
		t.Fatalf("brew candidates = %v", got)
	}
	if got := elevationCandidates("darwin", apt, all); len(got) != 1 {
		t.Fatalf("darwin candidates = %v", got)
	}
}
