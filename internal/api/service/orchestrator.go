package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/batch-orchestrator/internal/api/idempotency"
	"github.com/cuongbtq/batch-orchestrator/internal/auth"
	"github.com/cuongbtq/batch-orchestrator/internal/domain"
	"github.com/cuongbtq/batch-orchestrator/internal/jobtype"
	"github.com/cuongbtq/batch-orchestrator/internal/metrics"
)

// MaxBatchItems is the largest batch StartBatch accepts.
const MaxBatchItems = 100

const idempotencyWriteTimeout = 5 * time.Second

// OrchestratorConfig tunes signal publication.
type OrchestratorConfig struct {
	// PublishConcurrency caps in-flight publishes; <= 0 means one per child
	PublishConcurrency int
	// PublishTimeout bounds the whole fan-out after commit
	PublishTimeout time.Duration
}

// StartBatchRequest is one batch submission.
type StartBatchRequest struct {
	Type           domain.JobType
	Items          []json.RawMessage
	IdempotencyKey string
}

// StartBatchResult identifies the parent job of the batch.
type StartBatchResult struct {
	JobID string
	// Replayed is true when an earlier submission with the same key is returned
	Replayed bool
}

// Orchestrator turns a batch submission into a parent and its children and
// signals each child for execution.
type Orchestrator struct {
	store       JobStore
	publisher   SignalPublisher
	idempotency IdempotencyStore
	registry    *jobtype.Registry
	clock       TimeProvider
	newID       func() string
	config      OrchestratorConfig
	logger      *slog.Logger
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithIdempotencyStore enables Idempotency-Key handling.
func WithIdempotencyStore(s IdempotencyStore) OrchestratorOption {
	return func(o *Orchestrator) { o.idempotency = s }
}

// WithClock replaces the system clock.
func WithClock(c TimeProvider) OrchestratorOption {
	return func(o *Orchestrator) { o.clock = c }
}

// WithIDGenerator replaces UUIDv7 id generation.
func WithIDGenerator(fn func() string) OrchestratorOption {
	return func(o *Orchestrator) { o.newID = fn }
}

func NewOrchestrator(
	store JobStore,
	publisher SignalPublisher,
	registry *jobtype.Registry,
	config OrchestratorConfig,
	logger *slog.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 30 * time.Second
	}
	o := &Orchestrator{
		store:     store,
		publisher: publisher,
		registry:  registry,
		clock:     RealTimeProvider{},
		newID:     NewJobID,
		config:    config,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartBatch persists a RUNNING parent and one PENDING child per item in a
// single transaction, then publishes one execution signal per child. Publish
// failures are logged and counted but never fail the call: the batch exists
// once the transaction commits.
func (o *Orchestrator) StartBatch(ctx context.Context, req StartBatchRequest) (*StartBatchResult, error) {
	if !auth.IsAuthorized(ctx) {
		return nil, domain.Unauthenticated()
	}

	codec, err := o.registry.Lookup(req.Type)
	if err != nil {
		return nil, domain.Invalidf("unsupported job type %q", req.Type)
	}

	if len(req.Items) > MaxBatchItems {
		return nil, domain.Invalidf("batch has %d items; at most %d are allowed", len(req.Items), MaxBatchItems)
	}

	inputs := make([]json.RawMessage, len(req.Items))
	for i, item := range req.Items {
		normalized, err := codec.NormalizeInput(item)
		if err != nil {
			return nil, domain.InvalidField(fmt.Sprintf("items[%d]", i), err)
		}
		inputs[i] = normalized
	}

	useKey := req.IdempotencyKey != "" && o.idempotency != nil
	if useKey {
		if err := idempotency.ValidateKey(req.IdempotencyKey); err != nil {
			return nil, err
		}
		res, err := o.idempotency.Reserve(ctx, req.Type, req.IdempotencyKey)
		if err != nil {
			return nil, domain.Internal(err, "failed to reserve idempotency key")
		}
		switch res.State {
		case idempotency.StateDone:
			o.logger.Info("Replaying batch for idempotency key",
				slog.String("job_type", string(req.Type)),
				slog.String("job_id", res.ParentID),
			)
			return &StartBatchResult{JobID: res.ParentID, Replayed: true}, nil
		case idempotency.StateInFlight:
			return nil, domain.Conflictf("a batch with this idempotency key is still being created")
		}
	}

	parent, children := o.buildBatch(req.Type, inputs)

	if err := o.store.CreateBatch(ctx, parent, children); err != nil {
		if useKey {
			o.releaseKey(ctx, req.Type, req.IdempotencyKey)
		}
		o.logger.Error("Failed to create batch",
			slog.String("job_type", string(req.Type)),
			slog.Int("items", len(children)),
			slog.Any("error", err),
		)
		return nil, asCoded(err, "failed to create batch")
	}

	metrics.BatchStartedTotal.WithLabelValues(string(req.Type)).Inc()
	metrics.BatchChildrenCreatedTotal.WithLabelValues(string(req.Type)).Add(float64(len(children)))

	o.logger.Info("Batch created",
		slog.String("job_id", parent.ID),
		slog.String("job_type", string(req.Type)),
		slog.Int("children", len(children)),
	)

	if useKey {
		o.completeKey(ctx, req.Type, req.IdempotencyKey, parent.ID)
	}

	o.publishSignals(ctx, parent.Type, children)

	return &StartBatchResult{JobID: parent.ID}, nil
}

// buildBatch assigns ids and strictly increasing creation times so that
// children list back in submission order.
func (o *Orchestrator) buildBatch(jobType domain.JobType, inputs []json.RawMessage) (*domain.Job, []*domain.Job) {
	base := o.clock.Now().UTC().Truncate(time.Microsecond)
	parent := domain.NewParent(o.newID(), jobType, base)

	children := make([]*domain.Job, len(inputs))
	for i, input := range inputs {
		children[i] = domain.NewChild(o.newID(), parent, input, base.Add(time.Duration(i+1)*time.Microsecond))
	}
	return parent, children
}

// publishSignals fans out one signal per child and waits for every attempt.
// The caller's cancellation does not stop it; the batch is already committed.
func (o *Orchestrator) publishSignals(ctx context.Context, jobType domain.JobType, children []*domain.Job) {
	if len(children) == 0 {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.PublishTimeout)
	defer cancel()

	var g errgroup.Group
	if o.config.PublishConcurrency > 0 {
		g.SetLimit(o.config.PublishConcurrency)
	}

	for _, child := range children {
		g.Go(func() error {
			if err := o.publisher.PublishExecute(pubCtx, child.ID); err != nil {
				metrics.BatchSignalPublishFailuresTotal.WithLabelValues(string(jobType)).Inc()
				o.logger.Error("Failed to publish execution signal",
					slog.String("job_id", child.ID),
					slog.String("parent_id", *child.ParentID),
					slog.Any("error", err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// completeKey records the committed parent under the key. It runs detached
// from the caller: a client that drops after the commit must still be able
// to replay with the same key.
func (o *Orchestrator) completeKey(ctx context.Context, jobType domain.JobType, key, parentID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotencyWriteTimeout)
	defer cancel()

	if err := o.idempotency.Complete(ctx, jobType, key, parentID); err != nil {
		o.logger.Warn("Failed to record idempotency key",
			slog.String("job_id", parentID),
			slog.Any("error", err),
		)
	}
}

func (o *Orchestrator) releaseKey(ctx context.Context, jobType domain.JobType, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotencyWriteTimeout)
	defer cancel()

	if err := o.idempotency.Release(ctx, jobType, key); err != nil {
		o.logger.Warn("Failed to release idempotency key",
			slog.String("job_type", string(jobType)),
			slog.Any("error", err),
		)
	}
}

// asCoded keeps coded errors as they are and wraps anything else as internal.
func asCoded(err error, message string) error {
	var appErr *domain.Error
	if errors.As(err, &appErr) {
		return err
	}
	return domain.Internal(err, message)
}
