package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuongbtq/batch-orchestrator/internal/domain"
	"github.com/cuongbtq/batch-orchestrator/internal/jobtype"
	workerdomain "github.com/cuongbtq/batch-orchestrator/internal/worker/domain"
)

// maxResponseBytes caps how much of an enrichment response is read.
const maxResponseBytes = 4 << 20

// Executor runs one child job and returns its normalized result list.
// Transient failures are wrapped in workerdomain.RetryableError.
type Executor interface {
	Execute(ctx context.Context, job *domain.Job) (json.RawMessage, error)
}

// HTTPExecutorConfig describes the enrichment endpoint for one job type.
type HTTPExecutorConfig struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
}

// HTTPExecutor POSTs the child's input to an enrichment endpoint and expects
// {"results": [...]} back. Results are validated against the type's codec.
type HTTPExecutor struct {
	client  *http.Client
	url     string
	headers map[string]string
	codec   jobtype.Codec
}

// NewHTTPExecutor creates an executor for codec's job type.
func NewHTTPExecutor(cfg HTTPExecutorConfig, codec jobtype.Codec) *HTTPExecutor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPExecutor{
		client:  &http.Client{Timeout: timeout},
		url:     cfg.URL,
		headers: cfg.Headers,
		codec:   codec,
	}
}

type enrichmentResponse struct {
	Results json.RawMessage `json:"results"`
}

func (e *HTTPExecutor) Execute(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	if !job.Input.Valid {
		return nil, fmt.Errorf("%w: child has no input", workerdomain.ErrInvalidPayload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(job.Input.JSONText))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Job-ID", job.ID)
	req.Header.Set("X-Job-Type", string(job.Type))
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("enrichment request canceled: %w", err)
		}
		return nil, workerdomain.NewRetryableError(fmt.Errorf("enrichment request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, workerdomain.NewRetryableError(fmt.Errorf("failed to read enrichment response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("enrichment endpoint returned %d: %s", resp.StatusCode, snippet(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, workerdomain.NewRetryableError(statusErr)
		}
		return nil, statusErr
	}

	var out enrichmentResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed enrichment response: %v", workerdomain.ErrInvalidPayload, err)
	}

	results, err := e.codec.NormalizeResults(out.Results)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", workerdomain.ErrInvalidPayload, err)
	}
	return results, nil
}

// snippet trims a response body for error messages.
func snippet(body []byte) string {
	const max = 200
	s := string(bytes.TrimSpace(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// NewHTTPExecutors builds one executor per configured type, rejecting types
// the registry does not know.
func NewHTTPExecutors(configs map[string]HTTPExecutorConfig, registry *jobtype.Registry) (map[domain.JobType]Executor, error) {
	executors := make(map[domain.JobType]Executor, len(configs))
	for name, cfg := range configs {
		jobType, err := domain.ParseJobType(name)
		if err != nil {
			return nil, err
		}
		codec, err := registry.Lookup(jobType)
		if err != nil {
			return nil, err
		}
		executors[jobType] = NewHTTPExecutor(cfg, codec)
	}
	return executors, nil
}
