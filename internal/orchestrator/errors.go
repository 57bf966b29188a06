package orchestrator

import (
	"errors"
	"fmt"

	"github.com/dusk-indust/reportgen/internal/upstream"
)

var (
	// ErrAlreadyExists is returned when a completed job exists and
	// regeneration was not requested.
	ErrAlreadyExists = errors.New("orchestrator: job already completed")

	// ErrAlreadyInProgress is returned when the job is generating, or when
	// another writer holds the job.
	ErrAlreadyInProgress = errors.New("orchestrator: job generation already in progress")

	// ErrMissingUpstreamData is returned when the subject has no usable data.
	ErrMissingUpstreamData = upstream.ErrMissingUpstreamData

	ErrJobNotFound     = errors.New("orchestrator: job not found")
	ErrSectionNotFound = errors.New("orchestrator: section not part of job")
	ErrUnknownSection  = errors.New("orchestrator: unknown section")
	ErrUnknownVariant  = errors.New("orchestrator: unknown variant")
	ErrInvalidRequest  = errors.New("orchestrator: invalid request")

	// ErrNotComplete matches every *NotCompleteError.
	ErrNotComplete = errors.New("orchestrator: document not yet complete")
)

// NotCompleteError reports how far a job is when its document is requested
// too early.
type NotCompleteError struct {
	Percent int
}

func (e *NotCompleteError) Error() string {
	return fmt.Sprintf("document not yet complete: %d%% done", e.Percent)
}

// Is makes errors.Is(err, ErrNotComplete) true.
func (e *NotCompleteError) Is(target error) bool {
	return target == ErrNotComplete
}

// Error codes shared by the MCP and HTTP surfaces.
const (
	CodeAlreadyExists       = "already_exists"
	CodeAlreadyInProgress   = "already_in_progress"
	CodeMissingUpstreamData = "missing_upstream_data"
	CodeNotFound            = "not_found"
	CodeInvalidRequest      = "invalid_request"
	CodeNotComplete         = "not_complete"
	CodeInternal            = "internal"
)

// ErrorCode classifies err for API clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, ErrAlreadyInProgress):
		return CodeAlreadyInProgress
	case errors.Is(err, ErrMissingUpstreamData):
		return CodeMissingUpstreamData
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrSectionNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnknownSection), errors.Is(err, ErrUnknownVariant), errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrNotComplete):
		return CodeNotComplete
	default:
		return CodeInternal
	}
}
