package domain

import (
	"path/filepath"
	"strings"
	"testing"
)

// TestProgressOrderAndNames verifies milestone ordering and wire names.
func TestProgressOrderAndNames(t *testing.T) {
	all := AllProgress()
	if len(all) != 6 {
		t.Fatalf("len = %d, want 6", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i] <= all[i-1] {
			t.Fatalf("progress %s not after %s", all[i], all[i-1])
		}
	}

	for _, p := range all {
		parsed, err := ParseProgress(p.String())
		if err != nil {
			t.Fatalf("ParseProgress(%q): %v", p.String(), err)
		}
		if parsed != p {
			t.Fatalf("parsed = %s, want %s", parsed, p)
		}
	}

	if _, err := ParseProgress("Transcribing"); err == nil {
		t.Fatal("expected unknown progress error")
	}
	if Progress(42).Valid() {
		t.Fatal("Progress(42) should be invalid")
	}
}

// TestNewJobRequestDerivesUniqueTempPath checks per-job temp naming in the output dir.
func TestNewJobRequestDerivesUniqueTempPath(t *testing.T) {
	out := filepath.Join("/data", "talks", "keynote.srt")
	a := NewJobRequest(" hf_token ", "/data/keynote.mp4", out)
	b := NewJobRequest("", "/data/keynote.mp4", out)

	if a.AccessToken != "hf_token" {
		t.Fatalf("token = %q, want trimmed", a.AccessToken)
	}
	if filepath.Dir(a.TempAudioPath) != filepath.Dir(out) {
		t.Fatalf("temp dir = %s, want %s", filepath.Dir(a.TempAudioPath), filepath.Dir(out))
	}
	if !strings.HasPrefix(filepath.Base(a.TempAudioPath), ".keynote.") || filepath.Ext(a.TempAudioPath) != ".wav" {
		t.Fatalf("unexpected temp name %s", a.TempAudioPath)
	}
	if a.TempAudioPath == b.TempAudioPath {
		t.Fatalf("temp paths should differ per job: %s", a.TempAudioPath)
	}
}

// TestSuggestOutputPath mirrors the video location with an .srt extension.
func TestSuggestOutputPath(t *testing.T) {
	got := SuggestOutputPath(filepath.Join("/videos", "interview.final.mkv"))
	want := filepath.Join("/videos", "interview.final.srt")
	if got != want {
		t.Fatalf("SuggestOutputPath = %s, want %s", got, want)
	}
	if SuggestOutputPath("  ") != "" {
		t.Fatal("expected empty suggestion for empty input")
	}
}
