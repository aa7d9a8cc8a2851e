// Package job provides the Job aggregate for asynchronous combine requests,
// the repository port that persists it and the CombineService use case.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/avmerge-api/internal/job/id"
	"github.com/maauso/avmerge-api/internal/storage"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting for a free combine slot.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job is being combined.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job finished and its result is stored.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates a combine stage or the result upload failed.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled by a caller or by shutdown.
	StatusCancelled Status = "CANCELLED"
	// StatusTimedOut indicates the job exceeded its combine deadline.
	StatusTimedOut Status = "TIMED_OUT"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled, StatusTimedOut},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusTimedOut:  {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Result describes the stored output of a completed job.
type Result struct {
	// Location is where the combined clip was stored.
	Location storage.Location
	// VideoDuration and AudioDuration are the probed input durations in seconds.
	VideoDuration float64
	AudioDuration float64
	// RepeatCount is how many times the video input was played.
	RepeatCount int
}

// Job represents one asynchronous combine request.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// TargetDuration is the requested output cap in seconds, zero if unset.
	TargetDuration float64
	// Loop is the caller's loop preference; nil means the default.
	Loop *bool
	// FailedStage names the step that failed, for FAILED jobs.
	FailedStage string
	// Error contains any error message if the job did not complete.
	Error string
	// Result is set once the job has COMPLETED.
	Result Result
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records the result and transitions the job to COMPLETED.
func (j *Job) Complete(res Result) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.Result = res
	return nil
}

// Fail records the failing stage and message and transitions the job to FAILED.
func (j *Job) Fail(stage, errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.FailedStage = stage
	j.Error = errMsg
	return nil
}

// Cancel transitions the job to CANCELLED with an optional reason.
func (j *Job) Cancel(reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCancelled); err != nil {
		return err
	}
	j.Error = reason
	return nil
}

// Timeout transitions the job to TIMED_OUT, recording the stage that was running.
func (j *Job) Timeout(stage string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusTimedOut); err != nil {
		return err
	}
	j.FailedStage = stage
	j.Error = "combine deadline exceeded"
	return nil
}

// ClearLocation forgets where the result was stored, after it has been deleted.
func (j *Job) ClearLocation() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Result.Location = storage.Location{}
	j.UpdatedAt = time.Now()
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(validTransitions[j.Status]) == 0
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var loop *bool
	if j.Loop != nil {
		v := *j.Loop
		loop = &v
	}

	return &Job{
		ID:             j.ID,
		Status:         j.Status,
		TargetDuration: j.TargetDuration,
		Loop:           loop,
		FailedStage:    j.FailedStage,
		Error:          j.Error,
		Result:         j.Result,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}
