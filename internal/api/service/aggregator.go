package service

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/batch-orchestrator/internal/auth"
	"github.com/cuongbtq/batch-orchestrator/internal/domain"
	"github.com/cuongbtq/batch-orchestrator/internal/jobtype"
	"github.com/cuongbtq/batch-orchestrator/internal/metrics"
)

// Paging bounds for GetBatchResult.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 250
)

// GetBatchResultRequest selects one page of a batch. Limit <= 0 means the default.
type GetBatchResultRequest struct {
	Type   domain.JobType
	JobID  string
	Limit  int
	Offset int
}

// ChildResult is the caller view of one child job.
type ChildResult struct {
	JobID   string
	Status  domain.Status
	Input   any
	Results []any
	Error   *string
}

// BatchResult is one page of a batch.
type BatchResult struct {
	JobID    string
	Status   domain.Status
	Children []ChildResult
	Total    int
	HasMore  bool
	Limit    int
	Offset   int
}

// Aggregator reads a parent and pages through its children.
type Aggregator struct {
	store    JobStore
	registry *jobtype.Registry
	logger   *slog.Logger
}

func NewAggregator(store JobStore, registry *jobtype.Registry, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// GetBatchResult returns the parent's own status and one page of its children
// in creation order. A missing id, a child id, or an id of another type is NotFound.
func (a *Aggregator) GetBatchResult(ctx context.Context, req GetBatchResultRequest) (result *BatchResult, err error) {
	defer func() {
		metrics.BatchResultRequestsTotal.WithLabelValues(string(req.Type), outcomeOf(err)).Inc()
	}()

	if !auth.IsAuthorized(ctx) {
		return nil, domain.Unauthenticated()
	}

	codec, err := a.registry.Lookup(req.Type)
	if err != nil {
		return nil, domain.Invalidf("unsupported job type %q", req.Type)
	}

	parent, err := a.store.GetJob(ctx, req.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return nil, domain.NotFoundf("batch %s not found", req.JobID)
		}
		return nil, domain.Internal(err, "failed to load batch")
	}
	if !parent.IsParent() || parent.Type != req.Type {
		return nil, domain.NotFoundf("batch %s not found", req.JobID)
	}

	limit, offset := normalizePage(req.Limit, req.Offset)

	var (
		page  []domain.Job
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		page, err = a.store.ListChildren(gctx, parent.ID, limit, offset)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = a.store.CountChildren(gctx, parent.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, domain.Internal(err, "failed to load batch children")
	}

	children := make([]ChildResult, 0, len(page))
	for i := range page {
		children = append(children, a.project(codec, &page[i]))
	}

	return &BatchResult{
		JobID:    parent.ID,
		Status:   parent.Status,
		Children: children,
		Total:    total,
		HasMore:  offset+limit < total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// project builds the caller view of a child. Stored payloads that no longer
// decode are logged and left out rather than failing the whole page.
func (a *Aggregator) project(codec jobtype.Codec, job *domain.Job) ChildResult {
	out := ChildResult{
		JobID:   job.ID,
		Status:  job.Status,
		Results: []any{},
	}

	if job.Input.Valid {
		input, err := codec.DecodeInput(job.Input.JSONText)
		if err != nil {
			a.logger.Warn("Stored input does not decode",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
		} else {
			out.Input = input
		}
	}

	if job.Status == domain.JobStatusCompleted && job.Result.Valid {
		results, err := codec.DecodeResults(job.Result.JSONText)
		if err != nil {
			a.logger.Warn("Stored result does not decode",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
		} else {
			out.Results = results
		}
	}

	if job.Status == domain.JobStatusFailed {
		out.Error = job.Error
	}

	return out
}

func normalizePage(limit, offset int) (int, int) {
	switch {
	case limit <= 0:
		limit = DefaultPageLimit
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func outcomeOf(err error) string {
	switch domain.CodeOf(err) {
	case "":
		return metrics.OutcomeOK
	case domain.CodeNotFound:
		return metrics.OutcomeNotFound
	case domain.CodeUnauthenticated:
		return metrics.OutcomeUnauthenticated
	default:
		return metrics.OutcomeError
	}
}
