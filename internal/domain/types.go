package domain

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Segment is one diarized speaker turn in seconds.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Progress is a milestone reported by a running job. Values only move forward.
type Progress int

const (
	ProgressInitializing Progress = iota
	ProgressPipelineLoading
	ProgressAudioExtracting
	ProgressDiarizing
	ProgressSRTOutput
	ProgressFinalizing
)

var progressNames = [...]string{
	"Initializing",
	"PipelineLoading",
	"AudioExtracting",
	"Diarizing",
	"SRTOutput",
	"Finalizing",
}

// AllProgress lists every milestone in emission order.
func AllProgress() []Progress {
	return []Progress{
		ProgressInitializing,
		ProgressPipelineLoading,
		ProgressAudioExtracting,
		ProgressDiarizing,
		ProgressSRTOutput,
		ProgressFinalizing,
	}
}

// String returns the wire name of the milestone.
func (p Progress) String() string {
	if p < 0 || int(p) >= len(progressNames) {
		return fmt.Sprintf("Progress(%d)", int(p))
	}
	return progressNames[p]
}

// Valid reports whether p is a known milestone.
func (p Progress) Valid() bool {
	return p >= 0 && int(p) < len(progressNames)
}

// ParseProgress maps a wire name back to its milestone.
func ParseProgress(name string) (Progress, error) {
	for i, candidate := range progressNames {
		if candidate == name {
			return Progress(i), nil
		}
	}
	return 0, fmt.Errorf("unknown progress value %q", name)
}

// JobRequest is the immutable input bundle handed to an execution context.
type JobRequest struct {
	AccessToken   string `json:"-"`
	VideoPath     string `json:"videoPath"`
	OutputPath    string `json:"outputPath"`
	TempAudioPath string `json:"tempAudioPath"`
}

// NewJobRequest builds a request with a per-job temporary audio path next to the output.
func NewJobRequest(token, videoPath, outputPath string) JobRequest {
	videoPath = strings.TrimSpace(videoPath)
	outputPath = strings.TrimSpace(outputPath)
	return JobRequest{
		AccessToken:   strings.TrimSpace(token),
		VideoPath:     videoPath,
		OutputPath:    outputPath,
		TempAudioPath: TempAudioPathFor(outputPath, uuid.NewString()),
	}
}

// TempAudioPathFor names the extracted waveform for one job inside the output directory.
func TempAudioPathFor(outputPath, token string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "audio"
	}
	return filepath.Join(dir, fmt.Sprintf(".%s.%s.wav", stem, token))
}

// SuggestOutputPath returns <video dir>/<video stem>.srt.
func SuggestOutputPath(videoPath string) string {
	videoPath = strings.TrimSpace(videoPath)
	if videoPath == "" {
		return ""
	}
	dir, file := filepath.Split(videoPath)
	stem := strings.TrimSuffix(file, filepath.Ext(file))
	if stem == "" {
		stem = "subtitles"
	}
	return filepath.Join(dir, stem+".srt")
}

// JobResult is the terminal outcome of a job.
type JobResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded() JobResult {
	return JobResult{Success: true}
}

// Failed builds a failed result carrying the error text.
func Failed(message string) JobResult {
	return JobResult{Message: message}
}

// JobStatus tracks a job from the controller's point of view.
type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusRunning   JobStatus = "running"
	JobStatusDone      JobStatus = "done"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job stores the current job identity, lifecycle status and last milestone.
type Job struct {
	ID         string    `json:"id"`
	Status     JobStatus `json:"status"`
	Progress   *Progress `json:"progress,omitempty"`
	VideoPath  string    `json:"videoPath,omitempty"`
	OutputPath string    `json:"outputPath,omitempty"`
}
