package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tikz-playground/internal/domain"
)

// ErrJobNotFound is returned for unknown or expired job IDs.
var ErrJobNotFound = errors.New("job not found")

// ErrJobExists is returned when registering a duplicate job ID.
var ErrJobExists = errors.New("job already exists")

// ErrJobNotRunning is returned when cancel is requested for a finished job.
var ErrJobNotRunning = errors.New("job is not running")

type entry struct {
	job    domain.Job
	cancel context.CancelFunc
}

// Registry tracks every compilation job and its transitions. Finished jobs
// are retained up to a fixed count, oldest first out.
type Registry struct {
	mu       sync.RWMutex
	jobs     map[string]*entry
	finished []string
	retain   int
}

// NewRegistry creates an empty registry keeping at most retain finished jobs.
func NewRegistry(retain int) *Registry {
	if retain <= 0 {
		retain = 100
	}
	return &Registry{
		jobs:   make(map[string]*entry),
		retain: retain,
	}
}

// Start registers a queued job with its cancel func.
func (r *Registry) Start(jobID string, cancel context.CancelFunc) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[jobID]; ok {
		return domain.Job{}, ErrJobExists
	}
	e := &entry{
		job:    domain.Job{ID: jobID, Status: domain.JobStatusQueued},
		cancel: cancel,
	}
	r.jobs[jobID] = e
	return e.job, nil
}

// Transition validates and applies a state transition for one job.
func (r *Registry) Transition(jobID string, status domain.JobStatus, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if status == e.job.Status {
		return nil
	}
	if !isValidTransition(e.job.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", e.job.Status, status)
	}

	e.job.Status = status
	e.job.Message = message
	if isTerminal(status) {
		e.cancel = nil
		r.retire(jobID)
	}
	return nil
}

// Get returns a snapshot of one job.
func (r *Registry) Get(jobID string) (domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.jobs[jobID]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	return e.job, nil
}

// Running returns snapshots of all jobs still in progress.
func (r *Registry) Running() []domain.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Job, 0, len(r.jobs))
	for _, e := range r.jobs {
		if !isTerminal(e.job.Status) {
			out = append(out, e.job)
		}
	}
	return out
}

// Cancel invokes the job's cancel func and marks it cancelled.
func (r *Registry) Cancel(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if isTerminal(e.job.Status) {
		return ErrJobNotRunning
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.job.Status = domain.JobStatusCancelled
	e.job.Message = "Cancellation requested"
	r.retire(jobID)
	return nil
}

// retire records a finished job and evicts the oldest beyond retention.
// Callers hold r.mu.
func (r *Registry) retire(jobID string) {
	r.finished = append(r.finished, jobID)
	for len(r.finished) > r.retain {
		delete(r.jobs, r.finished[0])
		r.finished = r.finished[1:]
	}
}

// isTerminal reports whether a status ends the job lifecycle.
func isTerminal(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusDone, domain.JobStatusFailed, domain.JobStatusCancelled:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusQueued:
		return to == domain.JobStatusTypesetting || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	case domain.JobStatusTypesetting:
		return to == domain.JobStatusRasterizing || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	case domain.JobStatusRasterizing:
		return to == domain.JobStatusDone || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	default:
		return false
	}
}
