package domain

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Job is a single row of the jobs table. The same shape carries both roles:
// a batch header (ParentID nil) and a unit of work (ParentID set).
type Job struct {
	ID          string             `db:"id"`
	Type        JobType            `db:"type"`
	ParentID    *string            `db:"parent_id"`
	Status      Status             `db:"status"`
	Input       types.NullJSONText `db:"input"`
	Result      types.NullJSONText `db:"result"`
	Error       *string            `db:"error"`
	WorkerID    *string            `db:"worker_id"`
	CreatedAt   time.Time          `db:"created_at"`
	StartedAt   *time.Time         `db:"started_at"`
	CompletedAt *time.Time         `db:"completed_at"`
}

// IsParent reports whether the row is a batch header.
func (j *Job) IsParent() bool {
	return j.ParentID == nil
}

// IsChild reports whether the row belongs to a batch.
func (j *Job) IsChild() bool {
	return j.ParentID != nil
}

// NewParent builds a batch header row. Parents start in RUNNING and carry no input.
func NewParent(id string, jobType JobType, createdAt time.Time) *Job {
	return &Job{
		ID:        id,
		Type:      jobType,
		Status:    JobStatusRunning,
		CreatedAt: createdAt,
	}
}

// NewChild builds a PENDING unit of work under parentID.
func NewChild(id string, parent *Job, input []byte, createdAt time.Time) *Job {
	parentID := parent.ID
	return &Job{
		ID:        id,
		Type:      parent.Type,
		ParentID:  &parentID,
		Status:    JobStatusPending,
		Input:     types.NullJSONText{JSONText: types.JSONText(input), Valid: true},
		CreatedAt: createdAt,
	}
}

// CheckInvariants verifies the row-shape rules that hold for every job.
func (j *Job) CheckInvariants() error {
	if !j.Status.Valid() {
		return Invalidf("invalid status %q", j.Status)
	}
	if !j.Type.Valid() {
		return Invalidf("invalid job type %q", j.Type)
	}
	if j.IsParent() == j.Input.Valid {
		return Invalid("input must be set for children and absent for parents")
	}
	if j.Result.Valid && j.Status != JobStatusCompleted {
		return Invalid("result is only allowed on COMPLETED jobs")
	}
	if j.Error != nil && j.Status != JobStatusFailed {
		return Invalid("error is only allowed on FAILED jobs")
	}
	return nil
}
