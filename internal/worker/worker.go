package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/mudler/xlog"

	"blank-subtitles/internal/command"
	"blank-subtitles/internal/config"
	"blank-subtitles/internal/diarize"
	"blank-subtitles/internal/domain"
	"blank-subtitles/internal/jobs"
	"blank-subtitles/internal/media"
	"blank-subtitles/internal/pipeline"
	"blank-subtitles/internal/subtitle"
)

// Worker is the execution context for jobs. It owns one ModelCache for its lifetime,
// so jobs run by the same Worker share the loaded model.
type Worker struct {
	cache    *diarize.ModelCache
	pipeline *pipeline.Pipeline
}

// New wires the production stages from settings.
func New(settings domain.Settings) (*Worker, error) {
	strategy, err := command.ParseStrategy(settings.ToolStrategy)
	if err != nil {
		return nil, err
	}
	device, err := diarize.ParseDevice(settings.Device)
	if err != nil {
		return nil, err
	}

	resolver := command.NewResolver(strategy)
	backend, err := NewBackend(settings, resolver)
	if err != nil {
		return nil, err
	}

	cache := diarize.NewModelCache(backend, settings.ModelID)
	extractor := media.NewExtractor(settings.FFmpeg, resolver, func(log command.Log) {
		xlog.Debug("ffmpeg finished", "command", log.Command, "args", strings.Join(log.Args, " "), "exitCode", log.ExitCode)
	})
	inferencer := diarize.NewInferencer(diarize.NewSystemDevices(device))
	writer := subtitle.NewFileWriter()

	return &Worker{
		cache: cache,
		pipeline: pipeline.New(pipeline.Stages{
			Load:    cache.EnsureLoaded,
			Extract: extractor.Extract,
			Infer:   inferencer.Infer,
			Write:   writer.Write,
		}),
	}, nil
}

// NewBackend selects the diarization backend named in settings.
func NewBackend(settings domain.Settings, resolver command.Resolver) (diarize.Backend, error) {
	switch strings.ToLower(strings.TrimSpace(settings.Backend)) {
	case "", config.BackendExec:
		return diarize.NewExecBackend(settings.Helper, resolver), nil
	case config.BackendHTTP:
		if strings.TrimSpace(settings.Endpoint) == "" {
			return nil, fmt.Errorf("backend %q requires an endpoint", config.BackendHTTP)
		}
		return diarize.NewHTTPBackend(settings.Endpoint), nil
	default:
		return nil, fmt.Errorf("unknown diarization backend %q", settings.Backend)
	}
}

// Run executes one job and reports on sink.
func (w *Worker) Run(ctx context.Context, req domain.JobRequest, sink jobs.Sink) domain.JobResult {
	xlog.Info("job started", "video", req.VideoPath, "output", req.OutputPath, "model", w.cache.ModelID())
	return w.pipeline.Run(ctx, req, sink)
}

// ReportSetupFailure pushes a failure for a job that could not be wired.
func ReportSetupFailure(sink jobs.Sink, err error) domain.JobResult {
	msg := fmt.Sprintf("%s %v", pipeline.PrefixInput, err)
	sink.Progress(domain.ProgressInitializing)
	sink.Error(msg)
	sink.Result(false)
	return domain.Failed(msg)
}
