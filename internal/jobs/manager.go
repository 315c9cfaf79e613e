package jobs

import (
	"errors"
	"fmt"
	"sync"

	"video-insights/internal/domain"
)

// ErrJobAlreadyRunning is returned when submitting while a job is tracked.
var ErrJobAlreadyRunning = errors.New("analysis already in progress")

// Manager tracks the single in-flight job view presented by the UI.
// The reconciler owns terminal-once semantics; the manager only keeps the
// current snapshot consistent and rejects overlapping submissions.
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

// Begin marks the start of a submission before a job id exists.
func (m *Manager) Begin(videoURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isActive(m.current.Status) {
		return ErrJobAlreadyRunning
	}

	m.current = domain.Job{
		Status:   domain.JobStatusSubmitting,
		VideoURL: videoURL,
	}
	return nil
}

// Started records the executor-assigned job id after a successful submit.
func (m *Manager) Started(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status != domain.JobStatusSubmitting {
		return fmt.Errorf("job %s started while manager is %s", jobID, m.current.Status)
	}

	m.current.ID = jobID
	m.current.Status = domain.JobStatusQueued
	return nil
}

// Abort returns the manager to idle after a failed submission.
func (m *Manager) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Job{Status: domain.JobStatusIdle}
}

// Transition validates and applies a status change for the current job.
func (m *Manager) Transition(status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" && status != domain.JobStatusIdle {
		return fmt.Errorf("cannot transition without an active job")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	return nil
}

// SetOutcome force-sets a terminal status and message on the current job.
// Used when an authoritative poll corrects a stream-declared outcome.
func (m *Manager) SetOutcome(status domain.JobStatus, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !status.Terminal() {
		return
	}
	m.current.Status = status
	m.current.Message = message
}

// SetMessage updates the displayed status text for the current job.
func (m *Manager) SetMessage(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Message = message
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsActive reports whether a submission or tracked job is in flight.
func (m *Manager) IsActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isActive(m.current.Status)
}

// isActive checks if a status blocks a new submission.
func isActive(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusSubmitting, domain.JobStatusQueued, domain.JobStatusProcessing:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the allowed job state machine edges.
// queued may be skipped entirely when the executor races past it.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusIdle:
		return to == domain.JobStatusSubmitting
	case domain.JobStatusSubmitting:
		return to == domain.JobStatusQueued || to == domain.JobStatusProcessing ||
			to == domain.JobStatusFailed || to == domain.JobStatusIdle
	case domain.JobStatusQueued:
		return to == domain.JobStatusProcessing || to == domain.JobStatusCompleted ||
			to == domain.JobStatusFailed
	case domain.JobStatusProcessing:
		return to == domain.JobStatusCompleted || to == domain.JobStatusFailed
	case domain.JobStatusCompleted, domain.JobStatusFailed:
		return to == domain.JobStatusSubmitting || to == domain.JobStatusIdle
	default:
		return false
	}
}
