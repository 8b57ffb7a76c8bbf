package worker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/batch-orchestrator/internal/domain"
	"github.com/cuongbtq/batch-orchestrator/internal/jobtype"
	workerdomain "github.com/cuongbtq/batch-orchestrator/internal/worker/domain"
)

func vacancyChild(input string) *domain.Job {
	parentID := "parent-1"
	return &domain.Job{
		ID:       "child-1",
		Type:     domain.JobTypeFindJobVacancies,
		ParentID: &parentID,
		Status:   domain.JobStatusRunning,
		Input:    types.NullJSONText{JSONText: types.JSONText(input), Valid: true},
	}
}

func vacancyCodec(t *testing.T) jobtype.Codec {
	t.Helper()
	codec, err := jobtype.Default().Lookup(domain.JobTypeFindJobVacancies)
	require.NoError(t, err)
	return codec
}

func TestHTTPExecutor_Success(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"title":"Go Engineer","url":"https://acme.test/jobs/1","location":"Remote"}]}`))
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(HTTPExecutorConfig{
		URL:     srv.URL,
		Timeout: time.Second,
		Headers: map[string]string{"Authorization": "Bearer upstream"},
	}, vacancyCodec(t))

	result, err := exec.Execute(context.Background(), vacancyChild(`{"companyName":"Acme"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"title":"Go Engineer","url":"https://acme.test/jobs/1","location":"Remote"}]`, string(result))

	assert.JSONEq(t, `{"companyName":"Acme"}`, string(gotBody))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "Bearer upstream", gotHeaders.Get("Authorization"))
	assert.Equal(t, "child-1", gotHeaders.Get("X-Job-ID"))
	assert.Equal(t, "find-job-vacancies", gotHeaders.Get("X-Job-Type"))
}

func TestHTTPExecutor_Responses(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantResult    string
		wantErr       bool
		wantRetryable bool
		wantInvalid   bool
	}{
		{name: "missing results is empty", status: http.StatusOK, body: `{}`, wantResult: `[]`},
		{name: "null results is empty", status: http.StatusOK, body: `{"results":null}`, wantResult: `[]`},
		{name: "server error", status: http.StatusBadGateway, body: `upstream down`, wantErr: true, wantRetryable: true},
		{name: "throttled", status: http.StatusTooManyRequests, body: ``, wantErr: true, wantRetryable: true},
		{name: "rejected input", status: http.StatusBadRequest, body: `bad company`, wantErr: true},
		{name: "not json", status: http.StatusOK, body: `<html>`, wantErr: true, wantInvalid: true},
		{name: "results not a list", status: http.StatusOK, body: `{"results":{"title":"x"}}`, wantErr: true, wantInvalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			exec := NewHTTPExecutor(HTTPExecutorConfig{URL: srv.URL}, vacancyCodec(t))
			result, err := exec.Execute(context.Background(), vacancyChild(`{"companyName":"Acme"}`))

			if !tt.wantErr {
				require.NoError(t, err)
				assert.JSONEq(t, tt.wantResult, string(result))
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantRetryable, workerdomain.IsRetryable(err))
			if tt.wantInvalid {
				assert.ErrorIs(t, err, workerdomain.ErrInvalidPayload)
			}
		})
	}
}

func TestHTTPExecutor_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	exec := NewHTTPExecutor(HTTPExecutorConfig{URL: url, Timeout: time.Second}, vacancyCodec(t))
	_, err := exec.Execute(context.Background(), vacancyChild(`{"companyName":"Acme"}`))
	require.Error(t, err)
	assert.True(t, workerdomain.IsRetryable(err))
}

func TestHTTPExecutor_ParentHasNoInput(t *testing.T) {
	exec := NewHTTPExecutor(HTTPExecutorConfig{URL: "http://127.0.0.1:1"}, vacancyCodec(t))
	_, err := exec.Execute(context.Background(), &domain.Job{ID: "p", Type: domain.JobTypeFindJobVacancies})
	assert.ErrorIs(t, err, workerdomain.ErrInvalidPayload)
}

func TestNewHTTPExecutors(t *testing.T) {
	registry := jobtype.Default()

	executors, err := NewHTTPExecutors(map[string]HTTPExecutorConfig{
		"find-job-vacancies":    {URL: "http://enrich/vacancies"},
		"find-company-news":     {URL: "http://enrich/news"},
		"find-contact-activity": {URL: "http://enrich/activity"},
	}, registry)
	require.NoError(t, err)
	assert.Len(t, executors, 3)
	assert.Contains(t, executors, domain.JobTypeFindCompanyNews)

	_, err = NewHTTPExecutors(map[string]HTTPExecutorConfig{"find-weather": {URL: "http://x"}}, registry)
	assert.Error(t, err)
}

func TestSnippet(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, snippet(long), 203)
	assert.Equal(t, "oops", snippet([]byte("  oops\n")))
}
