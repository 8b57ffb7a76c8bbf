package storage

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/cuongbtq/batch-orchestrator/internal/domain"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCode      domain.Code
		wantViolation bool
		wantText      string
	}{
		{
			name:          "unique violation is a conflict",
			err:           &pq.Error{Code: pq.ErrorCode(pgerrcode.UniqueViolation), Constraint: "jobs_pkey"},
			wantCode:      domain.CodeConflict,
			wantViolation: true,
			wantText:      "duplicate job id",
		},
		{
			name:          "check violation is internal",
			err:           &pq.Error{Code: pq.ErrorCode(pgerrcode.CheckViolation), Constraint: "jobs_input_iff_child_check"},
			wantCode:      domain.CodeInternal,
			wantViolation: true,
			wantText:      "jobs_input_iff_child_check",
		},
		{
			name:          "foreign key violation is internal",
			err:           &pq.Error{Code: pq.ErrorCode(pgerrcode.ForeignKeyViolation), Constraint: "jobs_parent_id_fkey"},
			wantCode:      domain.CodeInternal,
			wantViolation: true,
			wantText:      "jobs_parent_id_fkey",
		},
		{
			name:     "other sqlstate keeps the code in the message",
			err:      &pq.Error{Code: pq.ErrorCode(pgerrcode.SerializationFailure)},
			wantCode: domain.CodeInternal,
			wantText: "sqlstate 40001",
		},
		{
			name:     "non-postgres error is wrapped",
			err:      errors.New("connection reset"),
			wantCode: domain.CodeInternal,
			wantText: "failed to insert parent: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError("insert parent", tt.err)

			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.wantCode, domain.CodeOf(got))
			assert.Equal(t, tt.wantViolation, errors.Is(got, ErrConstraintViolation))
			assert.Contains(t, got.Error(), tt.wantText)
		})
	}
}
