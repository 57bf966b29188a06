// Package orchestrator runs report generation jobs: it orders a job's
// sections by dependency, generates them one at a time in the background,
// tracks progress, regenerates single sections on request and reaps sections
// whose generation stalled.
package orchestrator

import "github.com/google/uuid"

// JobKey identifies a job by subject and variant. It is the unit of mutual
// exclusion for writers.
func JobKey(subjectID, variant string) string {
	return subjectID + "/" + variant
}

// InitiateRequest starts generation for one subject and variant.
type InitiateRequest struct {
	SubjectID string
	Variant   string

	// Regenerate discards a completed or stuck job and starts over.
	Regenerate bool

	// Sections restricts the job to these ids. Empty means the variant's
	// default set.
	Sections []int
}

// InitiateResult is returned as soon as the background run is scheduled.
type InitiateResult struct {
	JobID    uuid.UUID `json:"jobId"`
	Status   string    `json:"status"`
	Sections []int     `json:"sections"`
	Order    []int     `json:"order"`
}

// Status values of InitiateResult.
const StatusStarted = "started"
