package dto

import "encoding/json"

// StartBatchRequest is the body of POST /api/v1/{type}/batches.
type StartBatchRequest struct {
	Items []json.RawMessage `json:"items" binding:"required"`
}

type StartBatchResponse struct {
	JobID string `json:"jobId"`
}

// GetBatchResultQuery is the query string of GET /api/v1/{type}/batches/{jobId}.
type GetBatchResultQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

type BatchResultResponse struct {
	JobID    string           `json:"jobId"`
	Status   string           `json:"status"`
	Children []ChildResultDTO `json:"children"`
	Total    int              `json:"total"`
	HasMore  bool             `json:"hasMore"`
}

type ChildResultDTO struct {
	JobID   string  `json:"jobId"`
	Status  string  `json:"status"`
	Input   any     `json:"input,omitempty"`
	Results []any   `json:"results"`
	Error   *string `json:"error,omitempty"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}
