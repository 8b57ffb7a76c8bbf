package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SignalContentType is the content type of execution signals on the bus.
const SignalContentType = "application/json"

// ErrMalformedSignal is returned for bus payloads that are not execution signals.
var ErrMalformedSignal = errors.New("malformed execution signal")

// ExecuteSignal asks a worker to run one child job.
type ExecuteSignal struct {
	JobID string `json:"jobId"`
}

// Encode renders the signal body.
func (s ExecuteSignal) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSignal parses a bus payload into an ExecuteSignal.
func DecodeSignal(body []byte) (ExecuteSignal, error) {
	var s ExecuteSignal
	if err := json.Unmarshal(body, &s); err != nil {
		return ExecuteSignal{}, fmt.Errorf("%w: %w", ErrMalformedSignal, err)
	}
	s.JobID = strings.TrimSpace(s.JobID)
	if s.JobID == "" {
		return ExecuteSignal{}, fmt.Errorf("%w: jobId is empty", ErrMalformedSignal)
	}
	return s, nil
}
