package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TimeProvider supplies the current time so tests can pin it.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider reads the system clock.
type RealTimeProvider struct{}

func (RealTimeProvider) Now() time.Time {
	return time.Now()
}

// FixedTimeProvider always returns the same instant.
type FixedTimeProvider struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{t: t}
}

func (f *FixedTimeProvider) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// SetTime moves the fixed instant.
func (f *FixedTimeProvider) SetTime(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

// NewJobID returns a time-ordered UUIDv7 string.
func NewJobID() string {
	return uuid.Must(uuid.NewV7()).String()
}
