package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mudler/xlog"

	"blank-subtitles/internal/diarize"
	"blank-subtitles/internal/domain"
	"blank-subtitles/internal/jobs"
	"blank-subtitles/internal/media"
)

// ErrorKind classifies a stage failure.
type ErrorKind string

const (
	KindInput           ErrorKind = "input"
	KindModelImport     ErrorKind = "model_import"
	KindPipelineLoad    ErrorKind = "pipeline_load"
	KindAudioExtraction ErrorKind = "audio_extraction"
	KindInference       ErrorKind = "inference"
	KindWrite           ErrorKind = "write"
)

// Message prefixes the host matches to choose a remediation hint.
const (
	PrefixInput           = "Invalid job request:"
	PrefixModelImport     = "Diarization runtime unavailable:"
	PrefixPipelineLoad    = "Pipeline load failed:"
	PrefixAudioExtraction = "Failed to extract audio with FFmpeg."
	PrefixInference       = "Diarization failed:"
	PrefixWrite           = "Failed to write subtitles:"
)

// StageError is a stage-aware failure whose Message is shown to the user verbatim.
type StageError struct {
	Kind    ErrorKind
	Stage   domain.Progress
	Message string
	Err     error
}

// Error returns the user-facing message.
func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Stages are the operations the pipeline sequences.
type Stages struct {
	Load    func(ctx context.Context, token string) (diarize.Model, error)
	Extract func(ctx context.Context, videoPath, outputPath string) bool
	Infer   func(ctx context.Context, model diarize.Model, wavPath string) ([]domain.Segment, error)
	Write   func(path string, segments []domain.Segment) error
}

// Pipeline runs one job through every stage and reports on a jobs.Sink.
type Pipeline struct {
	stages   Stages
	stat     func(name string) (os.FileInfo, error)
	remove   func(name string) error
	mkdirAll func(path string, perm os.FileMode) error
	inspect  func(path string) (media.WaveformInfo, error)
}

// New constructs the production pipeline with OS dependencies.
func New(stages Stages) *Pipeline {
	return &Pipeline{
		stages:   stages,
		stat:     os.Stat,
		remove:   os.Remove,
		mkdirAll: os.MkdirAll,
		inspect:  media.InspectWaveform,
	}
}

// run holds the mutable state of one job.
type run struct {
	req              domain.JobRequest
	sink             jobs.Sink
	extractAttempted bool
}

// Run executes the job. Progress for a stage is pushed before its work starts; on
// failure the temp audio is removed, then one error and a false result are pushed.
// Exactly one result is pushed on every path.
func (p *Pipeline) Run(ctx context.Context, req domain.JobRequest, sink jobs.Sink) domain.JobResult {
	r := &run{req: req, sink: sink}

	var model diarize.Model
	var segments []domain.Segment

	steps := []struct {
		stage domain.Progress
		do    func() error
	}{
		{domain.ProgressInitializing, func() error { return p.validate(req) }},
		{domain.ProgressPipelineLoading, func() error {
			m, err := p.stages.Load(ctx, req.AccessToken)
			model = m
			return err
		}},
		{domain.ProgressAudioExtracting, func() error {
			r.extractAttempted = true
			return p.extract(ctx, req)
		}},
		{domain.ProgressDiarizing, func() error {
			s, err := p.stages.Infer(ctx, model, req.TempAudioPath)
			segments = s
			if err == nil && len(segments) == 0 {
				xlog.Warn("no speaker turns detected; writing an empty subtitle file", "video", req.VideoPath)
			}
			return err
		}},
		{domain.ProgressSRTOutput, func() error { return p.stages.Write(req.OutputPath, segments) }},
	}

	for _, step := range steps {
		sink.Progress(step.stage)
		if err := guard(step.do); err != nil {
			return p.fail(r, classify(step.stage, err))
		}
	}

	sink.Progress(domain.ProgressFinalizing)
	p.removeTemp(req.TempAudioPath)
	xlog.Info("subtitles written", "output", req.OutputPath, "segments", len(segments))
	sink.Result(true)
	return domain.Succeeded()
}

// validate checks the request and prepares the output directory.
func (p *Pipeline) validate(req domain.JobRequest) error {
	if strings.TrimSpace(req.VideoPath) == "" {
		return errors.New("video path is required")
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return errors.New("output path is required")
	}
	if strings.TrimSpace(req.TempAudioPath) == "" {
		return errors.New("temporary audio path is required")
	}
	info, err := p.stat(req.VideoPath)
	if err != nil {
		return fmt.Errorf("cannot access video %s: %w", req.VideoPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("video path is a directory: %s", req.VideoPath)
	}
	if dir := filepath.Dir(req.OutputPath); dir != "" {
		if err := p.mkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create output directory %s: %w", dir, err)
		}
	}
	return nil
}

// extract runs the audio extractor and checks it left a waveform behind.
func (p *Pipeline) extract(ctx context.Context, req domain.JobRequest) error {
	if !p.stages.Extract(ctx, req.VideoPath, req.TempAudioPath) {
		return &StageError{
			Kind:    KindAudioExtraction,
			Stage:   domain.ProgressAudioExtracting,
			Message: PrefixAudioExtraction,
		}
	}
	if _, err := p.stat(req.TempAudioPath); err != nil {
		return &StageError{
			Kind:    KindAudioExtraction,
			Stage:   domain.ProgressAudioExtracting,
			Message: fmt.Sprintf("%s Output file is missing: %s", PrefixAudioExtraction, req.TempAudioPath),
			Err:     err,
		}
	}
	if p.inspect != nil {
		info, err := p.inspect(req.TempAudioPath)
		switch {
		case err != nil:
			xlog.Warn("cannot inspect extracted audio", "path", req.TempAudioPath, "error", err)
		case !info.Canonical():
			xlog.Warn("extracted audio is not mono 16kHz", "sampleRate", info.SampleRate, "channels", info.Channels)
		default:
			xlog.Debug("extracted audio", "duration", info.Duration, "bitDepth", info.BitDepth)
		}
	}
	return nil
}

// fail cleans up, then reports the error followed by a false result.
func (p *Pipeline) fail(r *run, stageErr *StageError) domain.JobResult {
	if r.extractAttempted {
		p.removeTemp(r.req.TempAudioPath)
	}
	xlog.Error("job failed", "stage", stageErr.Stage, "kind", stageErr.Kind, "error", stageErr.Message)
	r.sink.Error(stageErr.Message)
	r.sink.Result(false)
	return domain.Failed(stageErr.Message)
}

// removeTemp deletes the extracted audio. Failures are swallowed.
func (p *Pipeline) removeTemp(path string) {
	if path == "" {
		return
	}
	if err := p.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		xlog.Debug("temp audio not removed", "path", path, "error", err)
	}
}

// guard runs fn and converts a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}

// classify maps a stage failure onto its kind and user-facing message.
func classify(stage domain.Progress, err error) *StageError {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr
	}

	out := &StageError{Stage: stage, Err: err}
	switch stage {
	case domain.ProgressInitializing:
		out.Kind = KindInput
		out.Message = fmt.Sprintf("%s %v", PrefixInput, err)
	case domain.ProgressPipelineLoading:
		if errors.Is(err, diarize.ErrRuntimeUnavailable) {
			out.Kind = KindModelImport
			cause := strings.TrimPrefix(err.Error(), diarize.ErrRuntimeUnavailable.Error()+": ")
			out.Message = fmt.Sprintf("%s %s", PrefixModelImport, cause)
			break
		}
		out.Kind = KindPipelineLoad
		var loadErr *diarize.LoadError
		if errors.As(err, &loadErr) && loadErr.Err != nil {
			out.Message = fmt.Sprintf("%s %v", PrefixPipelineLoad, loadErr.Err)
		} else {
			out.Message = fmt.Sprintf("%s %v", PrefixPipelineLoad, err)
		}
	case domain.ProgressAudioExtracting:
		out.Kind = KindAudioExtraction
		out.Message = fmt.Sprintf("%s %v", PrefixAudioExtraction, err)
	case domain.ProgressDiarizing:
		out.Kind = KindInference
		var inferErr *diarize.InferError
		if errors.As(err, &inferErr) && inferErr.Err != nil {
			out.Message = fmt.Sprintf("%s %v", PrefixInference, inferErr.Err)
		} else {
			out.Message = fmt.Sprintf("%s %v", PrefixInference, err)
		}
	default:
		out.Kind = KindWrite
		out.Message = fmt.Sprintf("%s %v", PrefixWrite, err)
	}
	return out
}

// NewForTests constructs a pipeline with injectable filesystem dependencies.
func NewForTests(
	stages Stages,
	stat func(name string) (os.FileInfo, error),
	remove func(name string) error,
	mkdirAll func(path string, perm os.FileMode) error,
) *Pipeline {
	return &Pipeline{
		stages:   stages,
		stat:     stat,
		remove:   remove,
		mkdirAll: mkdirAll,
		inspect:  media.InspectWaveform,
	}
}
