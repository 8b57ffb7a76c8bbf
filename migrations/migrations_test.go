package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames_Ordered(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_create_jobs.sql", "0002_jobs_guard_trigger.sql"}, names)
}

func TestSchema_DeclaresInvariants(t *testing.T) {
	body, err := files.ReadFile("0001_create_jobs.sql")
	require.NoError(t, err)
	schema := string(body)

	for _, want := range []string{
		"jobs_input_iff_child_check",
		"jobs_result_only_completed_check",
		"jobs_error_only_failed_check",
		"idx_jobs_parent_created",
		"(parent_id, created_at, id)",
	} {
		assert.True(t, strings.Contains(schema, want), "schema is missing %s", want)
	}
}

func TestGuardTrigger_RejectsLeavingTerminalStates(t *testing.T) {
	body, err := files.ReadFile("0002_jobs_guard_trigger.sql")
	require.NoError(t, err)
	trigger := string(body)

	assert.Contains(t, trigger, "OLD.status IN ('COMPLETED', 'FAILED')")
	assert.Contains(t, trigger, "OLD.status = 'PENDING' AND NEW.status = 'RUNNING'")
	assert.Contains(t, trigger, "BEFORE UPDATE ON jobs")
}
