package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"blank-subtitles/internal/diarize"
	"blank-subtitles/internal/domain"
	"blank-subtitles/internal/subtitle"
)

// recordingSink keeps every message in arrival order across streams.
type recordingSink struct {
	log      []string
	progress []domain.Progress
	errors   []string
	results  []bool
}

func (s *recordingSink) Progress(p domain.Progress) {
	s.progress = append(s.progress, p)
	s.log = append(s.log, "progress:"+p.String())
}

func (s *recordingSink) Error(message string) {
	s.errors = append(s.errors, message)
	s.log = append(s.log, "error:"+message)
}

func (s *recordingSink) Result(ok bool) {
	s.results = append(s.results, ok)
	s.log = append(s.log, fmt.Sprintf("result:%t", ok))
}

// stubModel returns fixed turns.
type stubModel struct {
	turns []domain.Segment
}

func (m *stubModel) Diarize(context.Context, string, diarize.Device) ([]domain.Segment, error) {
	return m.turns, nil
}

// fixture wires synthetic stages over a temp directory.
type fixture struct {
	root   string
	req    domain.JobRequest
	stages Stages
}

func newFixture(t *testing.T, turns []domain.Segment) *fixture {
	t.Helper()
	root := t.TempDir()
	video := filepath.Join(root, "talk.mp4")
	if err := os.WriteFile(video, []byte("video"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	req := domain.NewJobRequest("hf_token", video, filepath.Join(root, "out", "talk.srt"))

	f := &fixture{root: root, req: req}
	f.stages = Stages{
		Load: func(context.Context, string) (diarize.Model, error) {
			return &stubModel{turns: turns}, nil
		},
		Extract: func(_ context.Context, _, out string) bool {
			writeWaveform(t, out, 2)
			return true
		},
		Infer: func(ctx context.Context, model diarize.Model, wav string) ([]domain.Segment, error) {
			return model.Diarize(ctx, wav, diarize.DeviceCPU)
		},
		Write: subtitle.NewFileWriter().Write,
	}
	return f
}

// writeWaveform writes a silent mono 16kHz waveform of the given length.
func writeWaveform(t *testing.T, path string, seconds int) {
	t.Helper()
	fd, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer fd.Close()

	enc := wav.NewEncoder(fd, 16000, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           make([]int, 16000*seconds),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
}

func runFixture(f *fixture) (*recordingSink, domain.JobResult) {
	sink := &recordingSink{}
	p := New(f.stages)
	return sink, p.Run(context.Background(), f.req, sink)
}

// TestPipelineEndToEnd checks a 90-second job with unordered turns.
func TestPipelineEndToEnd(t *testing.T) {
	turns := []domain.Segment{
		{Start: 31, End: 90, Speaker: "A"},
		{Start: 30, End: 31, Speaker: "B"},
		{Start: 0, End: 30, Speaker: "A"},
	}
	f := newFixture(t, turns)
	f.stages.Extract = func(_ context.Context, _, out string) bool {
		writeWaveform(t, out, 90)
		return true
	}

	sink, result := runFixture(f)
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}

	content, err := os.ReadFile(f.req.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	want := "1\n00:00:00,000 --> 00:00:30,000\n[A]: \n\n" +
		"2\n00:00:30,000 --> 00:00:31,000\n[B]: \n\n" +
		"3\n00:00:31,000 --> 00:01:30,000\n[A]: \n\n"
	if string(content) != want {
		t.Fatalf("output =\n%q\nwant\n%q", content, want)
	}

	if len(sink.progress) != len(domain.AllProgress()) {
		t.Fatalf("progress = %v", sink.progress)
	}
	if len(sink.errors) != 0 || len(sink.results) != 1 || !sink.results[0] {
		t.Fatalf("errors = %v results = %v", sink.errors, sink.results)
	}
	if sink.log[len(sink.log)-1] != "result:true" {
		t.Fatalf("result must be last, log = %v", sink.log)
	}
	if _, err := os.Stat(f.req.TempAudioPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp audio should be removed, stat err = %v", err)
	}
}

// TestPipelineFailFast forces each stage to fail in turn.
func TestPipelineFailFast(t *testing.T) {
	cases := []struct {
		name   string
		stage  domain.Progress
		prefix string
		breakf func(f *fixture)
	}{
		{"input", domain.ProgressInitializing, PrefixInput, func(f *fixture) {
			f.req.VideoPath = filepath.Join(f.root, "missing.mp4")
		}},
		{"runtime", domain.ProgressPipelineLoading, PrefixModelImport, func(f *fixture) {
			f.stages.Load = func(context.Context, string) (diarize.Model, error) {
				return nil, fmt.Errorf("%w: helper not found", diarize.ErrRuntimeUnavailable)
			}
		}},
		{"load", domain.ProgressPipelineLoading, PrefixPipelineLoad, func(f *fixture) {
			f.stages.Load = func(context.Context, string) (diarize.Model, error) {
				return nil, &diarize.LoadError{ModelID: diarize.DefaultModelID, Err: errors.New("401 gated repo")}
			}
		}},
		{"extract", domain.ProgressAudioExtracting, PrefixAudioExtraction, func(f *fixture) {
			f.stages.Extract = func(context.Context, string, string) bool { return false }
		}},
		{"infer", domain.ProgressDiarizing, PrefixInference, func(f *fixture) {
			f.stages.Infer = func(context.Context, diarize.Model, string) ([]domain.Segment, error) {
				return nil, &diarize.InferError{Device: diarize.DeviceCPU, Err: errors.New("bad audio")}
			}
		}},
		{"write", domain.ProgressSRTOutput, PrefixWrite, func(f *fixture) {
			f.stages.Write = func(string, []domain.Segment) error { return errors.New("disk full") }
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, []domain.Segment{{Start: 0, End: 1, Speaker: "A"}})
			tc.breakf(f)

			sink, result := runFixture(f)
			if result.Success || !strings.HasPrefix(result.Message, tc.prefix) {
				t.Fatalf("result = %+v, want failure prefixed %q", result, tc.prefix)
			}

			want := domain.AllProgress()[:int(tc.stage)+1]
			if len(sink.progress) != len(want) {
				t.Fatalf("progress = %v, want %v", sink.progress, want)
			}
			for i := range want {
				if sink.progress[i] != want[i] {
					t.Fatalf("progress[%d] = %s, want %s", i, sink.progress[i], want[i])
				}
			}
			if len(sink.errors) != 1 || sink.errors[0] != result.Message {
				t.Fatalf("errors = %v", sink.errors)
			}
			if len(sink.results) != 1 || sink.results[0] {
				t.Fatalf("results = %v, want [false]", sink.results)
			}
			n := len(sink.log)
			if sink.log[n-2] != "error:"+result.Message || sink.log[n-1] != "result:false" {
				t.Fatalf("log tail = %v", sink.log[n-2:])
			}
			if _, err := os.Stat(f.req.OutputPath); !errors.Is(err, os.ErrNotExist) && tc.stage != domain.ProgressSRTOutput {
				t.Fatalf("output should not exist, stat err = %v", err)
			}
		})
	}
}

// TestPipelineLoadMessageCarriesDiagnostic checks the load cause is surfaced without wrapping noise.
func TestPipelineLoadMessageCarriesDiagnostic(t *testing.T) {
	f := newFixture(t, nil)
	f.stages.Load = func(context.Context, string) (diarize.Model, error) {
		return nil, &diarize.LoadError{ModelID: diarize.DefaultModelID, Err: errors.New("401 gated repo")}
	}

	_, result := runFixture(f)
	if result.Message != "Pipeline load failed: 401 gated repo" {
		t.Fatalf("message = %q", result.Message)
	}
}

// TestPipelineCleansTempAudioOnLaterFailure checks the waveform is removed when inference fails.
func TestPipelineCleansTempAudioOnLaterFailure(t *testing.T) {
	f := newFixture(t, nil)
	created := false
	f.stages.Extract = func(_ context.Context, _, out string) bool {
		writeWaveform(t, out, 1)
		created = true
		return true
	}
	f.stages.Infer = func(context.Context, diarize.Model, string) ([]domain.Segment, error) {
		if _, err := os.Stat(f.req.TempAudioPath); err != nil {
			t.Fatalf("temp audio should exist during inference: %v", err)
		}
		return nil, errors.New("CUDA error")
	}

	_, result := runFixture(f)
	if result.Success || !created {
		t.Fatalf("result = %+v created = %v", result, created)
	}
	if _, err := os.Stat(f.req.TempAudioPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp audio should be removed, stat err = %v", err)
	}
}

// TestPipelineCleansPartialAudioOnExtractFailure checks a partial waveform is discarded.
func TestPipelineCleansPartialAudioOnExtractFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.stages.Extract = func(_ context.Context, _, out string) bool {
		_ = os.WriteFile(out, []byte("RIFF"), 0o644)
		return false
	}

	_, result := runFixture(f)
	if result.Message != PrefixAudioExtraction {
		t.Fatalf("message = %q", result.Message)
	}
	if _, err := os.Stat(f.req.TempAudioPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("partial audio should be removed, stat err = %v", err)
	}
}

// TestPipelineExtractWithoutOutput checks a zero exit without a file still fails.
func TestPipelineExtractWithoutOutput(t *testing.T) {
	f := newFixture(t, nil)
	f.stages.Extract = func(context.Context, string, string) bool { return true }

	_, result := runFixture(f)
	if result.Success || !strings.HasPrefix(result.Message, PrefixAudioExtraction) {
		t.Fatalf("result = %+v", result)
	}
}

// TestPipelineRecoversPanics checks a panicking stage still yields one failure result.
func TestPipelineRecoversPanics(t *testing.T) {
	f := newFixture(t, nil)
	f.stages.Infer = func(context.Context, diarize.Model, string) ([]domain.Segment, error) {
		panic("index out of range")
	}

	sink, result := runFixture(f)
	if result.Message != "Diarization failed: panic: index out of range" {
		t.Fatalf("message = %q", result.Message)
	}
	if len(sink.results) != 1 || sink.results[0] {
		t.Fatalf("results = %v", sink.results)
	}
}

// TestPipelineZeroTurnsWritesEmptyFile checks a silent video still succeeds.
func TestPipelineZeroTurnsWritesEmptyFile(t *testing.T) {
	f := newFixture(t, nil)

	_, result := runFixture(f)
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	info, err := os.Stat(f.req.OutputPath)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("size = %d, want 0", info.Size())
	}
}

// TestPipelineFinalizeIgnoresRemoveErrors checks cleanup failure never fails the job.
func TestPipelineFinalizeIgnoresRemoveErrors(t *testing.T) {
	f := newFixture(t, []domain.Segment{{Start: 0, End: 1, Speaker: "A"}})
	removeCalls := 0
	p := NewForTests(f.stages, os.Stat, func(string) error {
		removeCalls++
		return os.ErrPermission
	}, os.MkdirAll)

	sink := &recordingSink{}
	result := p.Run(context.Background(), f.req, sink)
	if !result.Success || removeCalls != 1 {
		t.Fatalf("result = %+v removeCalls = %d", result, removeCalls)
	}
	if len(sink.errors) != 0 {
		t.Fatalf("errors = %v", sink.errors)
	}
}
