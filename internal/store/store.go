// Package store persists report jobs and their per-section records.
package store

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a job or section record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidTransition is returned when a section update would violate the
	// section state machine (for example completing a section that is not
	// generating).
	ErrInvalidTransition = errors.New("store: invalid section status transition")
)

// Store is the persistence contract used by the orchestrator. Every section
// mutation goes through the same update path, which stamps updated_at; the
// reaper's staleness check depends on that.
type Store interface {
	io.Closer

	// Schema setup.
	Migrate(ctx context.Context) error

	// Jobs.
	CreateJob(ctx context.Context, subjectID, variant string, sectionIDs []int) (*Job, error)
	GetJob(ctx context.Context, subjectID, variant string) (*Job, error)
	GetJobByID(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
	SetJobStatus(ctx context.Context, id uuid.UUID, status JobStatus) error
	SetExecutionOrder(ctx context.Context, id uuid.UUID, order []int) error
	SaveJobSummary(ctx context.Context, id uuid.UUID, summary JobSummary) error
	SetAssembly(ctx context.Context, id uuid.UUID, assembledAt *time.Time, lastError string) error

	// Sections.
	ListSections(ctx context.Context, jobID uuid.UUID) ([]SectionRecord, error)
	GetSection(ctx context.Context, jobID uuid.UUID, sectionID int) (*SectionRecord, error)
	MarkGenerating(ctx context.Context, jobID uuid.UUID, sectionID int, countAttempt bool) error
	CompleteSection(ctx context.Context, jobID uuid.UUID, sectionID int, content string) error
	FailSection(ctx context.Context, jobID uuid.UUID, sectionID int, kind, message string) error
	ResetSection(ctx context.Context, jobID uuid.UUID, sectionID int) error
	FailStalled(ctx context.Context, cutoff time.Time, kind, message string) ([]StalledSection, error)
}
