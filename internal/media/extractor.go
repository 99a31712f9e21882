package media

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
	"github.com/mudler/xlog"

	"blank-subtitles/internal/command"
)

const (
	// SampleRate is the canonical waveform rate expected by diarization models.
	SampleRate = 16000
	// Channels is the canonical channel count.
	Channels = 1
)

// Extractor demuxes and resamples a video's audio track with ffmpeg.
type Extractor struct {
	tool     string
	resolver command.Resolver
	runner   command.Runner
	onLog    func(command.Log)
}

// NewExtractor builds an extractor resolving tool with the given strategy.
func NewExtractor(tool string, resolver command.Resolver, onLog func(command.Log)) *Extractor {
	if tool == "" {
		tool = "ffmpeg"
	}
	return &Extractor{
		tool:     tool,
		resolver: resolver,
		runner:   command.NewExecRunner(),
		onLog:    onLog,
	}
}

// Extract writes a mono 16kHz waveform of videoPath to outputPath.
// It reports true only when ffmpeg could be launched and exited with status zero.
func (e *Extractor) Extract(ctx context.Context, videoPath, outputPath string) bool {
	bin, err := e.resolver.Resolve(e.tool)
	if err != nil {
		xlog.Error("ffmpeg not resolvable", "tool", e.tool, "error", err)
		return false
	}

	args := BuildFFmpegArgs(videoPath, outputPath)
	result, runErr := e.runner.Run(ctx, nil, bin, args...)
	log := command.NewLog(bin, args, result)
	if e.onLog != nil {
		e.onLog(log)
	}
	if runErr != nil {
		xlog.Error("ffmpeg audio extraction failed", "exitCode", result.ExitCode, "stderr", command.LastLine(result.Stderr), "error", runErr)
		return false
	}
	return true
}

// BuildFFmpegArgs builds the fixed extraction argument set for mono 16k WAV output.
func BuildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", fmt.Sprint(Channels),
		"-ar", fmt.Sprint(SampleRate),
		"-f", "wav",
		outPath,
	}
}

// WaveformInfo describes a decoded WAV header.
type WaveformInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// Canonical reports whether the waveform is mono at SampleRate.
func (w WaveformInfo) Canonical() bool {
	return w.SampleRate == SampleRate && w.Channels == Channels
}

// InspectWaveform reads the WAV header of path.
func InspectWaveform(path string) (WaveformInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WaveformInfo{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return WaveformInfo{}, fmt.Errorf("not a valid wav file: %s", path)
	}
	duration, err := dec.Duration()
	if err != nil {
		return WaveformInfo{}, fmt.Errorf("read wav duration: %w", err)
	}

	return WaveformInfo{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Duration:   duration,
	}, nil
}

// NewExtractorForTests constructs an extractor with an injected runner.
func NewExtractorForTests(tool string, resolver command.Resolver, runner command.Runner, onLog func(command.Log)) *Extractor {
	return &Extractor{
		tool:     tool,
		resolver: resolver,
		runner:   runner,
		onLog:    onLog,
	}
}
