package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/batch-orchestrator/internal/domain"
	workerdomain "github.com/cuongbtq/batch-orchestrator/internal/worker/domain"
)

const jobColumns = `id, type, parent_id, status, input, result, error, worker_id, created_at, started_at, completed_at`

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ClaimJob moves a PENDING child to RUNNING using optimistic locking and
// returns the claimed row. A row that is missing, already claimed or a batch
// parent yields a sentinel error and is left untouched.
func (s *Storage) ClaimJob(ctx context.Context, jobID, workerID string, now time.Time) (*domain.Job, error) {
	query := s.db.Rebind(`
		UPDATE jobs
		SET status = ?,
		    worker_id = ?,
		    started_at = ?
		WHERE id = ?
		  AND status = ?
		  AND parent_id IS NOT NULL
	`)

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusRunning, workerID, now.UTC(), jobID, domain.JobStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, s.explainClaimMiss(ctx, jobID, workerID)
	}

	// The row is ours now; only the reconciler may still move it to FAILED
	var job domain.Job
	if err := s.db.GetContext(ctx, &job, s.db.Rebind(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), jobID); err != nil {
		return nil, fmt.Errorf("failed to load claimed job: %w", err)
	}

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
		slog.String("job_type", string(job.Type)),
	)

	return &job, nil
}

// explainClaimMiss picks the sentinel for a claim that matched no row.
func (s *Storage) explainClaimMiss(ctx context.Context, jobID, workerID string) error {
	var parentID sql.NullString
	err := s.db.GetContext(ctx, &parentID, s.db.Rebind(`SELECT parent_id FROM jobs WHERE id = ?`), jobID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrJobNotFound
	case err != nil:
		return fmt.Errorf("failed to look up unclaimed job: %w", err)
	case !parentID.Valid:
		return workerdomain.ErrNotAChild
	}

	s.logger.Warn("Failed to claim job - already claimed",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
	)
	return workerdomain.ErrJobAlreadyClaimed
}

// CompleteJob writes the COMPLETED terminal state with its result list.
func (s *Storage) CompleteJob(ctx context.Context, jobID string, result json.RawMessage, now time.Time) error {
	query := s.db.Rebind(`
		UPDATE jobs
		SET status = ?,
		    result = ?,
		    completed_at = ?
		WHERE id = ? AND status = ?
	`)

	return s.finish(ctx, query, jobID, domain.JobStatusCompleted,
		domain.JobStatusCompleted, string(result), now.UTC(), jobID, domain.JobStatusRunning)
}

// FailJob writes the FAILED terminal state with a human-readable reason.
func (s *Storage) FailJob(ctx context.Context, jobID, reason string, now time.Time) error {
	query := s.db.Rebind(`
		UPDATE jobs
		SET status = ?,
		    error = ?,
		    completed_at = ?
		WHERE id = ? AND status = ?
	`)

	return s.finish(ctx, query, jobID, domain.JobStatusFailed,
		domain.JobStatusFailed, reason, now.UTC(), jobID, domain.JobStatusRunning)
}

func (s *Storage) finish(ctx context.Context, query, jobID string, status domain.Status, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return workerdomain.ErrJobNotRunning
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", string(status)),
	)
	return nil
}

// ListStalePending returns ids of children still PENDING that were created
// before cutoff, oldest first.
func (s *Storage) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := s.db.Rebind(`
		SELECT id
		FROM jobs
		WHERE parent_id IS NOT NULL
		  AND status = ?
		  AND created_at < ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`)

	ids := []string{}
	if err := s.db.SelectContext(ctx, &ids, query, domain.JobStatusPending, cutoff.UTC(), limit); err != nil {
		return nil, fmt.Errorf("failed to list stale pending jobs: %w", err)
	}
	return ids, nil
}

// FailStaleRunning fails up to limit children that have been RUNNING since
// before cutoff and returns how many rows it changed.
func (s *Storage) FailStaleRunning(ctx context.Context, cutoff time.Time, reason string, now time.Time, limit int) (int64, error) {
	query := s.db.Rebind(`
		UPDATE jobs
		SET status = ?,
		    error = ?,
		    completed_at = ?
		WHERE status = ?
		  AND id IN (
			SELECT id
			FROM jobs
			WHERE parent_id IS NOT NULL
			  AND status = ?
			  AND started_at < ?
			ORDER BY started_at ASC
			LIMIT ?
		  )
	`)

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusFailed, reason, now.UTC(),
		domain.JobStatusRunning,
		domain.JobStatusRunning, cutoff.UTC(), limit,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale running jobs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
