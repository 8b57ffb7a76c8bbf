package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/batch-orchestrator/internal/domain"
	"github.com/cuongbtq/batch-orchestrator/internal/jobtype"
	"github.com/cuongbtq/batch-orchestrator/shared/logger"
)

func newTestAggregator(store JobStore) *Aggregator {
	return NewAggregator(store, jobtype.Default(), logger.NewNop())
}

func parentJob(id string, jt domain.JobType) *domain.Job {
	return domain.NewParent(id, jt, fixedNow)
}

func childJob(t *testing.T, parent *domain.Job, id string, status domain.Status, input, result string, errMsg *string) domain.Job {
	t.Helper()
	c := domain.NewChild(id, parent, []byte(input), fixedNow.Add(time.Microsecond))
	c.Status = status
	if result != "" {
		c.Result = types.NullJSONText{JSONText: types.JSONText(result), Valid: true}
	}
	c.Error = errMsg
	return *c
}

func TestGetBatchResult_Unauthorized(t *testing.T) {
	store := new(mockStore)
	a := newTestAggregator(store)

	_, err := a.GetBatchResult(context.Background(), GetBatchResultRequest{
		Type:  domain.JobTypeFindCompanyNews,
		JobID: "p1",
	})

	assert.Equal(t, domain.CodeUnauthenticated, domain.CodeOf(err))
	store.AssertNotCalled(t, "GetJob", mock.Anything, mock.Anything)
}

func TestGetBatchResult_NotFound(t *testing.T) {
	parent := parentJob("p1", domain.JobTypeFindCompanyNews)
	child := childJob(t, parent, "c1", domain.JobStatusPending, `{"companyName":"a"}`, "", nil)

	tests := []struct {
		name  string
		jobID string
		jt    domain.JobType
		setup func(*mockStore)
	}{
		{
			name:  "absent id",
			jobID: "missing",
			jt:    domain.JobTypeFindCompanyNews,
			setup: func(m *mockStore) {
				m.On("GetJob", mock.Anything, "missing").Return(nil, domain.ErrJobNotFound)
			},
		},
		{
			name:  "child id",
			jobID: "c1",
			jt:    domain.JobTypeFindCompanyNews,
			setup: func(m *mockStore) {
				m.On("GetJob", mock.Anything, "c1").Return(&child, nil)
			},
		},
		{
			name:  "parent of another type",
			jobID: "p1",
			jt:    domain.JobTypeFindJobVacancies,
			setup: func(m *mockStore) {
				m.On("GetJob", mock.Anything, "p1").Return(parent, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mockStore)
			tt.setup(store)
			a := newTestAggregator(store)

			_, err := a.GetBatchResult(authorized(), GetBatchResultRequest{Type: tt.jt, JobID: tt.jobID})

			assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
			store.AssertNotCalled(t, "ListChildren", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestGetBatchResult_PagingBounds(t *testing.T) {
	tests := []struct {
		name        string
		limit       int
		offset      int
		total       int
		wantLimit   int
		wantOffset  int
		wantHasMore bool
	}{
		{"defaults", 0, 0, 120, DefaultPageLimit, 0, true},
		{"capped limit", 1000, 0, 120, MaxPageLimit, 0, false},
		{"negative offset", 10, -5, 5, 10, 0, false},
		{"exact end", 10, 110, 120, 10, 110, false},
		{"one left", 10, 109, 120, 10, 109, true},
		{"past the end", 10, 500, 120, 10, 500, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mockStore)
			store.On("GetJob", mock.Anything, "p1").Return(parentJob("p1", domain.JobTypeFindCompanyNews), nil)
			store.On("ListChildren", mock.Anything, "p1", tt.wantLimit, tt.wantOffset).Return([]domain.Job{}, nil).Once()
			store.On("CountChildren", mock.Anything, "p1").Return(tt.total, nil).Once()

			res, err := newTestAggregator(store).GetBatchResult(authorized(), GetBatchResultRequest{
				Type:   domain.JobTypeFindCompanyNews,
				JobID:  "p1",
				Limit:  tt.limit,
				Offset: tt.offset,
			})

			require.NoError(t, err)
			assert.Equal(t, tt.wantHasMore, res.HasMore)
			assert.Equal(t, tt.total, res.Total)
			assert.Equal(t, tt.wantLimit, res.Limit)
			store.AssertExpectations(t)
		})
	}
}

func TestGetBatchResult_ZeroChildren(t *testing.T) {
	store := new(mockStore)
	store.On("GetJob", mock.Anything, "p1").Return(parentJob("p1", domain.JobTypeFindCompanyNews), nil)
	store.On("ListChildren", mock.Anything, "p1", DefaultPageLimit, 0).Return([]domain.Job{}, nil)
	store.On("CountChildren", mock.Anything, "p1").Return(0, nil)

	res, err := newTestAggregator(store).GetBatchResult(authorized(), GetBatchResultRequest{
		Type:  domain.JobTypeFindCompanyNews,
		JobID: "p1",
	})

	require.NoError(t, err)
	assert.Equal(t, "p1", res.JobID)
	assert.Equal(t, domain.JobStatusRunning, res.Status)
	assert.NotNil(t, res.Children)
	assert.Empty(t, res.Children)
	assert.Zero(t, res.Total)
	assert.False(t, res.HasMore)
}

func TestGetBatchResult_ProjectsChildren(t *testing.T) {
	parent := parentJob("p1", domain.JobTypeFindJobVacancies)
	failure := "upstream returned 503"
	stray := "should not leak"

	page := []domain.Job{
		childJob(t, parent, "c1", domain.JobStatusCompleted, `{"companyName":"Acme"}`,
			`[{"title":"SRE","url":"https://acme.test/jobs/1"}]`, nil),
		childJob(t, parent, "c2", domain.JobStatusFailed, `{"companyName":"Globex"}`, "", &failure),
		childJob(t, parent, "c3", domain.JobStatusRunning, `{"companyName":"Initech"}`, "", nil),
		childJob(t, parent, "c4", domain.JobStatusCompleted, `{"companyName":"Umbrella"}`, "", nil),
		// error on a non-FAILED row is never surfaced
		childJob(t, parent, "c5", domain.JobStatusPending, `{"companyName":"Hooli"}`, "", &stray),
		// stored input that no longer decodes
		childJob(t, parent, "c6", domain.JobStatusPending, `{"company":"legacy"}`, "", nil),
	}

	store := new(mockStore)
	store.On("GetJob", mock.Anything, "p1").Return(parent, nil)
	store.On("ListChildren", mock.Anything, "p1", DefaultPageLimit, 0).Return(page, nil)
	store.On("CountChildren", mock.Anything, "p1").Return(len(page), nil)

	res, err := newTestAggregator(store).GetBatchResult(authorized(), GetBatchResultRequest{
		Type:  domain.JobTypeFindJobVacancies,
		JobID: "p1",
	})
	require.NoError(t, err)
	require.Len(t, res.Children, len(page))

	completed := res.Children[0]
	assert.Equal(t, "c1", completed.JobID)
	assert.Equal(t, jobtype.VacancySearch{CompanyName: "Acme"}, completed.Input)
	require.Len(t, completed.Results, 1)
	assert.Equal(t, jobtype.Vacancy{Title: "SRE", URL: "https://acme.test/jobs/1"}, completed.Results[0])
	assert.Nil(t, completed.Error)

	failed := res.Children[1]
	require.NotNil(t, failed.Error)
	assert.Equal(t, failure, *failed.Error)
	assert.Empty(t, failed.Results)

	for _, c := range res.Children[2:] {
		assert.NotNil(t, c.Results, c.JobID)
		assert.Empty(t, c.Results, c.JobID)
		assert.Nil(t, c.Error, c.JobID)
	}
	assert.Nil(t, res.Children[5].Input)
}

func TestGetBatchResult_StoreFailure(t *testing.T) {
	store := new(mockStore)
	store.On("GetJob", mock.Anything, "p1").Return(parentJob("p1", domain.JobTypeFindCompanyNews), nil)
	store.On("ListChildren", mock.Anything, "p1", DefaultPageLimit, 0).Return(nil, errors.New("timeout"))
	store.On("CountChildren", mock.Anything, "p1").Return(0, nil).Maybe()

	_, err := newTestAggregator(store).GetBatchResult(authorized(), GetBatchResultRequest{
		Type:  domain.JobTypeFindCompanyNews,
		JobID: "p1",
	})

	assert.Equal(t, domain.CodeInternal, domain.CodeOf(err))
}
