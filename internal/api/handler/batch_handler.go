package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/batch-orchestrator/internal/api/dto"
	"github.com/cuongbtq/batch-orchestrator/internal/api/service"
	"github.com/cuongbtq/batch-orchestrator/internal/auth"
	"github.com/cuongbtq/batch-orchestrator/internal/domain"
)

// HeaderIdempotencyKey is the optional header that makes StartBatch replay-safe.
const HeaderIdempotencyKey = "Idempotency-Key"

// StartBatch handles POST /api/v1/{type}/batches
// Creates the parent job and one child per item, and signals the children for execution
func (h *BatchHandler) StartBatch(jobType domain.JobType) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if !auth.IsAuthorized(ctx) {
			respondError(c, h.logger, domain.Unauthenticated())
			return
		}

		h.logger.Info("StartBatch called",
			slog.String("job_type", string(jobType)),
			slog.String("path", c.Request.URL.Path),
		)

		var req dto.StartBatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, h.logger, domain.InvalidField("body", err))
			return
		}

		res, err := h.orchestrator.StartBatch(ctx, service.StartBatchRequest{
			Type:           jobType,
			Items:          req.Items,
			IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
		})
		if err != nil {
			respondError(c, h.logger, err)
			return
		}

		status := http.StatusCreated
		if res.Replayed {
			status = http.StatusOK
		}
		c.JSON(status, dto.StartBatchResponse{JobID: res.JobID})
	}
}

// GetBatchResult handles GET /api/v1/{type}/batches/:job_id
// Returns the parent's status and one page of its children
func (h *BatchHandler) GetBatchResult(jobType domain.JobType) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if !auth.IsAuthorized(ctx) {
			respondError(c, h.logger, domain.Unauthenticated())
			return
		}

		jobID := c.Param("job_id")
		h.logger.Info("GetBatchResult called",
			slog.String("job_type", string(jobType)),
			slog.String("job_id", jobID),
			slog.String("query", c.Request.URL.RawQuery),
		)

		var q dto.GetBatchResultQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondError(c, h.logger, domain.InvalidField("query", err))
			return
		}

		res, err := h.aggregator.GetBatchResult(ctx, service.GetBatchResultRequest{
			Type:   jobType,
			JobID:  jobID,
			Limit:  q.Limit,
			Offset: q.Offset,
		})
		if err != nil {
			respondError(c, h.logger, err)
			return
		}

		c.JSON(http.StatusOK, toBatchResultResponse(res))
	}
}

func toBatchResultResponse(res *service.BatchResult) dto.BatchResultResponse {
	children := make([]dto.ChildResultDTO, len(res.Children))
	for i, ch := range res.Children {
		results := ch.Results
		if results == nil {
			results = []any{}
		}
		children[i] = dto.ChildResultDTO{
			JobID:   ch.JobID,
			Status:  string(ch.Status),
			Input:   ch.Input,
			Results: results,
			Error:   ch.Error,
		}
	}

	return dto.BatchResultResponse{
		JobID:    res.JobID,
		Status:   string(res.Status),
		Children: children,
		Total:    res.Total,
		HasMore:  res.HasMore,
	}
}
