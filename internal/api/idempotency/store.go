// Package idempotency remembers which parent job an Idempotency-Key produced.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cuongbtq/batch-orchestrator/internal/domain"
)

const (
	keyPrefix    = "batch:idempotency:"
	pendingValue = "pending"
	donePrefix   = "done:"

	// MaxKeyLength bounds the header value accepted from callers.
	MaxKeyLength = 128
)

// State is the outcome of a reservation attempt.
type State int

const (
	// StateAcquired means the caller owns the key and must Complete or Release it.
	StateAcquired State = iota
	// StateInFlight means another request holds the key and has not finished.
	StateInFlight
	// StateDone means an earlier request finished and ParentID is its batch.
	StateDone
)

// Reservation describes the current owner of a key.
type Reservation struct {
	State    State
	ParentID string
}

// Store keeps reservations in Redis.
type Store struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewStore creates a Store whose reservations expire after ttl.
func NewStore(client goredis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

// ValidateKey rejects keys that are empty after trimming or too long.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return domain.InvalidField("Idempotency-Key", errors.New("must not be blank"))
	}
	if len(key) > MaxKeyLength {
		return domain.InvalidField("Idempotency-Key", fmt.Errorf("must be at most %d bytes", MaxKeyLength))
	}
	return nil
}

func redisKey(jobType domain.JobType, key string) string {
	return keyPrefix + string(jobType) + ":" + key
}

// Reserve claims key for jobType or reports who already holds it.
func (s *Store) Reserve(ctx context.Context, jobType domain.JobType, key string) (Reservation, error) {
	rk := redisKey(jobType, key)

	ok, err := s.client.SetNX(ctx, rk, pendingValue, s.ttl).Result()
	if err != nil {
		return Reservation{}, fmt.Errorf("redis SET NX: %w", err)
	}
	if ok {
		return Reservation{State: StateAcquired}, nil
	}

	val, err := s.client.Get(ctx, rk).Result()
	if errors.Is(err, goredis.Nil) {
		// expired between the two calls; try once more
		ok, err = s.client.SetNX(ctx, rk, pendingValue, s.ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("redis SET NX: %w", err)
		}
		if ok {
			return Reservation{State: StateAcquired}, nil
		}
		return Reservation{State: StateInFlight}, nil
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("redis get: %w", err)
	}

	if parentID, found := strings.CutPrefix(val, donePrefix); found {
		return Reservation{State: StateDone, ParentID: parentID}, nil
	}
	return Reservation{State: StateInFlight}, nil
}

// Complete records the parent id produced under key.
func (s *Store) Complete(ctx context.Context, jobType domain.JobType, key, parentID string) error {
	if err := s.client.Set(ctx, redisKey(jobType, key), donePrefix+parentID, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Release drops a reservation so the key can be retried.
func (s *Store) Release(ctx context.Context, jobType domain.JobType, key string) error {
	if err := s.client.Del(ctx, redisKey(jobType, key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
