package diarize

import (
	"context"
	"errors"
	"fmt"

	"blank-subtitles/internal/domain"
)

// DefaultModelID is the pretrained speaker-diarization pipeline used when none is configured.
const DefaultModelID = "pyannote/speaker-diarization-3.1"

// ErrRuntimeUnavailable marks a missing diarization runtime, as opposed to a failed model load.
var ErrRuntimeUnavailable = errors.New("diarization runtime unavailable")

// Backend loads pretrained diarization models.
type Backend interface {
	// Available reports whether the runtime itself can be reached.
	Available(ctx context.Context) error
	// Load fetches and initializes modelID. An empty token means anonymous or cache-only access.
	Load(ctx context.Context, modelID, token string) (Model, error)
}

// Model runs inference on an extracted waveform.
type Model interface {
	Diarize(ctx context.Context, wavPath string, device Device) ([]domain.Segment, error)
}

// LoadError wraps a model fetch or initialization failure.
type LoadError struct {
	ModelID string
	Err     error
}

// Error formats the failing model and cause.
func (e *LoadError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("load %s: %v", e.ModelID, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *LoadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// InferError wraps a failure raised during inference.
type InferError struct {
	Device Device
	Err    error
}

// Error formats the device and cause.
func (e *InferError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("inference on %s: %v", e.Device, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *InferError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
