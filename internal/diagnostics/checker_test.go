package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"blank-subtitles/internal/command"
	"blank-subtitles/internal/config"
	"blank-subtitles/internal/diarize"
	"blank-subtitles/internal/domain"
)

// stubBackend reports a fixed availability.
type stubBackend struct {
	err error
}

func (b stubBackend) Available(context.Context) error { return b.err }

func (b stubBackend) Load(context.Context, string, string) (diarize.Model, error) {
	return nil, errors.New("not used")
}

// missingTool fails every lookup.
type missingTool struct{}

func (missingTool) Resolve(name string) (string, error) {
	return "", command.ErrToolNotFound
}

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	self := filepath.Join(root, "blanksubs")
	if err := os.WriteFile(self, []byte("bin"), 0o755); err != nil {
		t.Fatalf("write executable: %v", err)
	}

	settings := config.DefaultSettings()
	settings.OutputDir = filepath.Join(root, "output")
	checker := NewCheckerForTests(
		command.Fixed("/usr/local/bin/ffmpeg"),
		stubBackend{},
		func() (string, error) { return self, nil },
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(context.Background(), settings)
	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	if len(report.Items) != 4 {
		t.Fatalf("items = %d, want 4", len(report.Items))
	}

	entries, err := os.ReadDir(settings.OutputDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("write check left files behind: %v", entries)
	}
}

// TestCheckerRunMissingToolsAndPaths validates failure reporting.
func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	checker := NewCheckerForTests(
		missingTool{},
		stubBackend{err: errors.New("pyannote-diarize: tool not found")},
		func() (string, error) { return "", errors.New("no executable") },
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	settings := config.DefaultSettings()
	settings.OutputDir = ""
	report := checker.Run(context.Background(), settings)
	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	assertStatusByID(t, report, "tool_ffmpeg", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "diarization_runtime", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "worker", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "output_dir", domain.DiagnosticStatusFail)

	for _, item := range report.Items {
		if item.Hint == "" {
			t.Fatalf("item %s has no hint", item.ID)
		}
	}
}

// TestCheckerRunBadBackendConfig validates configuration errors are reported.
func TestCheckerRunBadBackendConfig(t *testing.T) {
	root := t.TempDir()
	checker := NewCheckerForTests(
		command.Fixed("/usr/bin/ffmpeg"),
		nil,
		os.Executable,
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	settings := config.DefaultSettings()
	settings.OutputDir = root
	report := checker.Run(context.Background(), settings)

	assertStatusByID(t, report, "diarization_runtime", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "output_dir", domain.DiagnosticStatusPass)
}

// TestHintFor checks remediation hints by message prefix.
func TestHintFor(t *testing.T) {
	cases := map[string]string{
		"Pipeline load failed: 401 Client Error":                 HintCredentials,
		"Failed to extract audio with FFmpeg.":                   HintInstallFFmpeg,
		"Diarization runtime unavailable: helper not found":      HintRuntime,
		"Failed to write subtitles: permission denied":           HintWritable,
		"Diarization failed: CUDA out of memory":                 HintInference,
		"Worker exited without reporting a result (exit code 2)": "",
	}
	for msg, want := range cases {
		if got := HintFor(msg); got != want {
			t.Fatalf("HintFor(%q) = %q, want %q", msg, got, want)
		}
	}
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}
