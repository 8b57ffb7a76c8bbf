package postgresql

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{
			name: "explicit sslmode",
			config: Config{
				Host:     "db.internal",
				Port:     5432,
				User:     "batch",
				Password: "secret",
				Database: "jobs_db",
				SSLMode:  "require",
			},
			want: "host=db.internal port=5432 user=batch password=secret dbname=jobs_db sslmode=require",
		},
		{
			name: "sslmode defaults to disable",
			config: Config{
				Host:     "localhost",
				Port:     5433,
				User:     "postgres",
				Password: "postgres",
				Database: "jobs_db",
			},
			want: "host=localhost port=5433 user=postgres password=postgres dbname=jobs_db sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.DSN())
		})
	}
}

func TestNewClient_GivesUpAfterAttempts(t *testing.T) {
	_, err := NewClient(&Config{
		Host:            "127.0.0.1",
		Port:            1,
		User:            "batch",
		Database:        "jobs_db",
		ConnectAttempts: 2,
		ConnectDelay:    time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestRegisterStats_ToleratesDuplicates(t *testing.T) {
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registerStats(reg, db, "jobs_db", logger)
	registerStats(reg, db, "jobs_db", logger)

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "go_sql_open_connections")
}
