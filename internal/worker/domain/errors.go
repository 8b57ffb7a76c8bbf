package domain

import "errors"

var (
	// ErrJobAlreadyClaimed is returned when attempting to claim a job that's already claimed
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in PENDING status")

	// ErrJobNotRunning is returned when a terminal write finds the row no longer RUNNING
	ErrJobNotRunning = errors.New("job is not in RUNNING status")

	// ErrNotAChild is returned when a signal names a batch header instead of a unit of work
	ErrNotAChild = errors.New("job is a batch parent")

	// ErrInvalidPayload is returned when a job's stored input or an executor response is malformed
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrNoExecutor is returned when no executor is configured for a job type
	ErrNoExecutor = errors.New("no executor configured for job type")
)

// RetryableError wraps transient errors that are worth another attempt
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err carries a RetryableError.
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
