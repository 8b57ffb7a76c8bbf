// Package jobtype holds the per-type request and result shapes of batch jobs.
// Orchestration and aggregation logic is shared across types; only the
// (de)serialization of input items and result entries differs per variant.
package jobtype

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cuongbtq/batch-orchestrator/internal/domain"
)

// ErrUnknownType is returned when no codec is registered for a type.
var ErrUnknownType = errors.New("unknown job type")

// Codec encodes and decodes the payloads of one job type.
type Codec interface {
	Type() domain.JobType
	// NormalizeInput validates a raw item and returns its canonical encoding.
	NormalizeInput(raw json.RawMessage) (json.RawMessage, error)
	DecodeInput(raw []byte) (any, error)
	// DecodeResults decodes a stored result payload; an absent payload decodes to an empty list.
	DecodeResults(raw []byte) ([]any, error)
	// NormalizeResults validates worker output and returns its canonical encoding.
	NormalizeResults(raw []byte) (json.RawMessage, error)
}

// Input is implemented by every per-type item shape.
type Input interface {
	Validate() error
}

// Variant is the Codec of a type whose items decode into I and whose result entries decode into R.
type Variant[I Input, R any] struct {
	jobType domain.JobType
}

// NewVariant creates the codec for jobType.
func NewVariant[I Input, R any](jobType domain.JobType) *Variant[I, R] {
	return &Variant[I, R]{jobType: jobType}
}

func (v *Variant[I, R]) Type() domain.JobType {
	return v.jobType
}

func (v *Variant[I, R]) NormalizeInput(raw json.RawMessage) (json.RawMessage, error) {
	item, err := v.decodeInput(raw)
	if err != nil {
		return nil, err
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	out, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input: %w", err)
	}
	return out, nil
}

func (v *Variant[I, R]) DecodeInput(raw []byte) (any, error) {
	item, err := v.decodeInput(raw)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (v *Variant[I, R]) decodeInput(raw []byte) (I, error) {
	var item I
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return item, errors.New("item must be a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&item); err != nil {
		return item, fmt.Errorf("malformed item: %w", err)
	}
	return item, nil
}

func (v *Variant[I, R]) DecodeResults(raw []byte) ([]any, error) {
	entries, err := v.decodeResults(raw)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e
	}
	return out, nil
}

func (v *Variant[I, R]) NormalizeResults(raw []byte) (json.RawMessage, error) {
	entries, err := v.decodeResults(raw)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode results: %w", err)
	}
	return out, nil
}

func (v *Variant[I, R]) decodeResults(raw []byte) ([]R, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []R{}, nil
	}
	var entries []R
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("malformed %s results: %w", v.jobType, err)
	}
	if entries == nil {
		entries = []R{}
	}
	return entries, nil
}

// Registry maps job types to their codecs.
type Registry struct {
	codecs map[domain.JobType]Codec
}

// NewRegistry builds a registry from codecs. Registering a type twice panics.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[domain.JobType]Codec, len(codecs))}
	for _, c := range codecs {
		if _, dup := r.codecs[c.Type()]; dup {
			panic(fmt.Sprintf("jobtype: duplicate codec for %s", c.Type()))
		}
		r.codecs[c.Type()] = c
	}
	return r
}

// Default returns the registry of every supported job type.
func Default() *Registry {
	return NewRegistry(
		NewVariant[VacancySearch, Vacancy](domain.JobTypeFindJobVacancies),
		NewVariant[NewsSearch, NewsArticle](domain.JobTypeFindCompanyNews),
		NewVariant[ContactActivitySearch, ContactActivity](domain.JobTypeFindContactActivity),
	)
}

// Lookup returns the codec for t.
func (r *Registry) Lookup(t domain.JobType) (Codec, error) {
	c, ok := r.codecs[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	return c, nil
}

// Types returns the registered types in the order of domain.AllJobTypes.
func (r *Registry) Types() []domain.JobType {
	out := make([]domain.JobType, 0, len(r.codecs))
	for _, t := range domain.AllJobTypes {
		if _, ok := r.codecs[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
