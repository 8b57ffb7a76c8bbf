package storage

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"

	"github.com/cuongbtq/batch-orchestrator/internal/domain"
)

// ErrConstraintViolation marks writes rejected by a table constraint or trigger.
var ErrConstraintViolation = errors.New("constraint violation")

// classifyError turns Postgres integrity errors into coded domain errors and
// wraps everything else.
func classifyError(op string, err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	code := string(pqErr.Code)
	switch {
	case code == pgerrcode.UniqueViolation:
		return &domain.Error{
			Code:    domain.CodeConflict,
			Message: fmt.Sprintf("failed to %s: duplicate job id", op),
			Cause:   errors.Join(ErrConstraintViolation, err),
		}
	case pgerrcode.IsIntegrityConstraintViolation(code):
		return &domain.Error{
			Code:    domain.CodeInternal,
			Message: fmt.Sprintf("failed to %s: %s", op, pqErr.Constraint),
			Cause:   errors.Join(ErrConstraintViolation, err),
		}
	default:
		return fmt.Errorf("failed to %s (sqlstate %s): %w", op, code, err)
	}
}
