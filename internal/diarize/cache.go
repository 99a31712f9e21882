package diarize

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mudler/xlog"

	"blank-subtitles/internal/domain"
)

// ModelCache holds the loaded model for the lifetime of one execution context.
// Failed loads are not cached, so a later call attempts the load again.
type ModelCache struct {
	backend Backend
	modelID string

	mu    sync.Mutex
	model Model
	loads int
}

// NewModelCache creates an empty cache for modelID.
func NewModelCache(backend Backend, modelID string) *ModelCache {
	if modelID == "" {
		modelID = DefaultModelID
	}
	return &ModelCache{backend: backend, modelID: modelID}
}

// ModelID returns the configured model identifier.
func (c *ModelCache) ModelID() string {
	return c.modelID
}

// EnsureLoaded returns the cached model, loading it on first use.
func (c *ModelCache) EnsureLoaded(ctx context.Context, token string) (Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.model != nil {
		return c.model, nil
	}

	if err := c.backend.Available(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	}

	c.loads++
	start := time.Now()
	model, err := c.backend.Load(ctx, c.modelID, token)
	if err != nil {
		return nil, &LoadError{ModelID: c.modelID, Err: err}
	}

	c.model = model
	xlog.Info("diarization model loaded", "model", c.modelID, "elapsed", time.Since(start))
	return model, nil
}

// Loads reports how many load attempts reached the backend.
func (c *ModelCache) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

// Inferencer selects a device per call and runs the model.
type Inferencer struct {
	devices DeviceSelector
}

// NewInferencer builds an inferencer over a device selector.
func NewInferencer(devices DeviceSelector) *Inferencer {
	return &Inferencer{devices: devices}
}

// Infer re-checks device availability and runs inference on wavPath.
func (i *Inferencer) Infer(ctx context.Context, model Model, wavPath string) ([]domain.Segment, error) {
	device := i.devices.Select()
	xlog.Debug("running diarization", "device", device, "audio", wavPath)

	segments, err := model.Diarize(ctx, wavPath, device)
	if err != nil {
		return nil, &InferError{Device: device, Err: err}
	}
	return segments, nil
}
