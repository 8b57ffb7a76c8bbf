// Package testutil provides an in-process jobs database for store tests.
package testutil

import (
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// jobsSchema mirrors the migrations in SQLite dialect, guard triggers included.
// TIMESTAMP is spelled out so the driver scans the columns back into time.Time.
const jobsSchema = `
CREATE TABLE jobs (
    id           TEXT PRIMARY KEY,
    type         TEXT      NOT NULL,
    parent_id    TEXT      NULL REFERENCES jobs (id),
    status       TEXT      NOT NULL,
    input        TEXT      NULL,
    result       TEXT      NULL,
    error        TEXT      NULL,
    worker_id    TEXT      NULL,
    created_at   TIMESTAMP NOT NULL,
    started_at   TIMESTAMP NULL,
    completed_at TIMESTAMP NULL,
    CHECK (type IN ('find-job-vacancies', 'find-company-news', 'find-contact-activity')),
    CHECK (status IN ('PENDING', 'RUNNING', 'COMPLETED', 'FAILED')),
    CHECK ((parent_id IS NULL) = (input IS NULL)),
    CHECK (result IS NULL OR status = 'COMPLETED'),
    CHECK (error IS NULL OR status = 'FAILED'),
    CHECK ((completed_at IS NULL) = (status IN ('PENDING', 'RUNNING')))
);
CREATE INDEX idx_jobs_parent_created ON jobs (parent_id, created_at, id);

CREATE TRIGGER jobs_guard_immutable BEFORE UPDATE ON jobs
WHEN NEW.id IS NOT OLD.id
  OR NEW.parent_id IS NOT OLD.parent_id
  OR NEW.type IS NOT OLD.type
  OR NEW.input IS NOT OLD.input
  OR NEW.created_at IS NOT OLD.created_at
BEGIN
    SELECT RAISE(ABORT, 'jobs: immutable column changed');
END;

CREATE TRIGGER jobs_guard_transition BEFORE UPDATE OF status ON jobs
WHEN NEW.status IS NOT OLD.status AND NOT (
       (OLD.status = 'PENDING' AND NEW.status = 'RUNNING')
    OR (OLD.status = 'RUNNING' AND NEW.status IN ('COMPLETED', 'FAILED')))
BEGIN
    SELECT RAISE(ABORT, 'jobs: illegal status transition');
END;

CREATE TRIGGER jobs_forbid_delete BEFORE DELETE ON jobs
BEGIN
    SELECT RAISE(ABORT, 'jobs: rows are never deleted');
END;
`

// NewJobsDB opens a private in-memory database with the jobs table created.
// The pool is pinned to one connection because every :memory: connection is its own database.
func NewJobsDB(t testing.TB) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(jobsSchema); err != nil {
		db.Close()
		t.Fatalf("create jobs schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}
