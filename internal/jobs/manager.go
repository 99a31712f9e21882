package jobs

import (
	"errors"
	"fmt"
	"sync"

	"blank-subtitles/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active job.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrNoRunningJob is returned when cancel is requested for idle state.
var ErrNoRunningJob = errors.New("no running job")

// ErrProgressRegression is returned when a milestone does not move forward.
var ErrProgressRegression = errors.New("progress must strictly increase")

// Manager tracks the single allowed active job, its milestones and its outcome.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Job{
			Status: domain.JobStatusIdle,
		},
	}
}

// Start records a new running job.
func (m *Manager) Start(jobID string, req domain.JobRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status == domain.JobStatusRunning {
		return ErrJobAlreadyRunning
	}

	m.current = domain.Job{
		ID:         jobID,
		Status:     domain.JobStatusRunning,
		VideoPath:  req.VideoPath,
		OutputPath: req.OutputPath,
	}
	return nil
}

// Advance records a milestone for the running job.
func (m *Manager) Advance(p domain.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status != domain.JobStatusRunning {
		return ErrNoRunningJob
	}
	if !p.Valid() {
		return fmt.Errorf("unknown progress value %d", int(p))
	}
	if m.current.Progress != nil && p <= *m.current.Progress {
		return fmt.Errorf("%w: %s after %s", ErrProgressRegression, p, *m.current.Progress)
	}

	next := p
	m.current.Progress = &next
	return nil
}

// Finish moves the running job to done or failed.
func (m *Manager) Finish(result domain.JobResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status != domain.JobStatusRunning {
		return ErrNoRunningJob
	}
	if result.Success {
		m.current.Status = domain.JobStatusDone
	} else {
		m.current.Status = domain.JobStatusFailed
	}
	return nil
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job := m.current
	if job.Progress != nil {
		p := *job.Progress
		job.Progress = &p
	}
	return job
}

// Reset clears job metadata and returns manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Job{Status: domain.JobStatusIdle}
}

// IsRunning reports whether a job is in flight.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Status == domain.JobStatusRunning
}

// Cancel moves an active job to cancelled state.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status != domain.JobStatusRunning {
		return ErrNoRunningJob
	}
	m.current.Status = domain.JobStatusCancelled
	return nil
}
