package domain

import "fmt"

// Status is the lifecycle state of a job row.
type Status string

// Job status constants
const (
	JobStatusPending   Status = "PENDING"
	JobStatusRunning   Status = "RUNNING"
	JobStatusCompleted Status = "COMPLETED"
	JobStatusFailed    Status = "FAILED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true for COMPLETED and FAILED.
func (s Status) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Transitions are monotonic: PENDING -> RUNNING -> COMPLETED|FAILED.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// ValidateTransition returns an error describing a forbidden transition.
func ValidateTransition(from, to Status) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
