package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/batch-orchestrator/internal/domain"
)

const jobColumns = `id, type, parent_id, status, input, result, error, worker_id, created_at, started_at, completed_at`

// Storage is the job store used by the API service.
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

// CreateBatch inserts a parent and its children atomically. Any failure
// rolls back every row, so a batch is either fully persisted or absent.
func (s *Storage) CreateBatch(ctx context.Context, parent *domain.Job, children []*domain.Job) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Error("Failed to roll back batch",
					slog.String("parent_id", parent.ID),
					slog.Any("error", rbErr),
				)
			}
		}
	}()

	query := `
		INSERT INTO jobs (
			id, type, parent_id, status, input, created_at
		) VALUES (
			:id, :type, :parent_id, :status, :input, :created_at
		)
	`

	if _, err = tx.NamedExecContext(ctx, query, parent); err != nil {
		return classifyError("insert parent", err)
	}

	// sqlx expands a slice argument into one multi-row VALUES list
	if len(children) > 0 {
		if _, err = tx.NamedExecContext(ctx, query, children); err != nil {
			return classifyError("insert children", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return classifyError("commit batch", err)
	}

	s.logger.Debug("Batch persisted",
		slog.String("parent_id", parent.ID),
		slog.String("job_type", string(parent.Type)),
		slog.Int("children", len(children)),
	)
	return nil
}

// GetJob returns the job with the given id or domain.ErrJobNotFound.
func (s *Storage) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`)

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// ListChildren returns one page of a parent's children in creation order.
func (s *Storage) ListChildren(ctx context.Context, parentID string, limit, offset int) ([]domain.Job, error) {
	query := s.db.Rebind(`
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE parent_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?
	`)

	jobs := []domain.Job{}
	if err := s.db.SelectContext(ctx, &jobs, query, parentID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}

	return jobs, nil
}

// CountChildren returns the number of children of a parent.
func (s *Storage) CountChildren(ctx context.Context, parentID string) (int, error) {
	query := s.db.Rebind(`SELECT COUNT(*) FROM jobs WHERE parent_id = ?`)

	var total int
	if err := s.db.GetContext(ctx, &total, query, parentID); err != nil {
		return 0, fmt.Errorf("failed to count children: %w", err)
	}

	return total, nil
}
