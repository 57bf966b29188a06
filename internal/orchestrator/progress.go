package orchestrator

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dusk-indust/reportgen/internal/store"
)

// ProgressStatus is the overall status derived from a job's sections.
type ProgressStatus string

const (
	ProgressPending        ProgressStatus = "pending"
	ProgressInProgress     ProgressStatus = "in_progress"
	ProgressGenerating     ProgressStatus = "generating"
	ProgressCompleted      ProgressStatus = "completed"
	ProgressPartialFailure ProgressStatus = "partial_failure"
	ProgressFailed         ProgressStatus = "failed"
)

// Summary is the aggregate view of a set of section records.
type Summary struct {
	Total      int            `json:"total"`
	Completed  int            `json:"completed"`
	Failed     int            `json:"failed"`
	Generating int            `json:"generating"`
	Pending    int            `json:"pending"`
	Percentage int            `json:"percentage"`
	Status     ProgressStatus `json:"status"`
}

// Aggregate derives counts, percentage and overall status from records. It
// has no side effects.
func Aggregate(records []store.SectionRecord) Summary {
	s := Summary{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case store.SectionCompleted:
			s.Completed++
		case store.SectionFailed:
			s.Failed++
		case store.SectionGenerating:
			s.Generating++
		default:
			s.Pending++
		}
	}
	if s.Total > 0 {
		s.Percentage = int(math.Round(100 * float64(s.Completed) / float64(s.Total)))
	}

	switch {
	case s.Total > 0 && s.Completed == s.Total:
		s.Status = ProgressCompleted
	case s.Failed > 0 && s.Completed > 0:
		s.Status = ProgressPartialFailure
	case s.Failed > 0 && s.Generating == 0:
		s.Status = ProgressFailed
	case s.Generating > 0:
		s.Status = ProgressGenerating
	case s.Completed > 0:
		s.Status = ProgressInProgress
	default:
		s.Status = ProgressPending
	}
	return s
}

// jobStatus maps a summary onto the status persisted on a job that has no
// running loop.
func jobStatus(s Summary) store.JobStatus {
	switch s.Status {
	case ProgressCompleted:
		return store.JobCompleted
	case ProgressFailed:
		return store.JobFailed
	case ProgressGenerating:
		return store.JobGenerating
	case ProgressPending:
		return store.JobPending
	default:
		// partial_failure, and in_progress left behind by an interrupted run.
		return store.JobPartialFailure
	}
}

// Progress is the full progress view of one job.
type Progress struct {
	JobID       uuid.UUID         `json:"jobId"`
	SubjectID   string            `json:"subjectId"`
	Variant     string            `json:"variant"`
	JobStatus   store.JobStatus   `json:"jobStatus"`
	Running     bool              `json:"running"`
	Order       []int             `json:"order,omitempty"`
	LastError   string            `json:"lastError,omitempty"`
	AssembledAt *time.Time        `json:"assembledAt,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	Summary     Summary           `json:"summary"`
	Sections    []SectionProgress `json:"sections"`
}

// SectionProgress is the per-section entry of Progress.
type SectionProgress struct {
	ID          int                 `json:"id"`
	Name        string              `json:"name"`
	Title       string              `json:"title"`
	Status      store.SectionStatus `json:"status"`
	Error       string              `json:"error,omitempty"`
	ErrorKind   string              `json:"errorKind,omitempty"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
	Attempts    int                 `json:"attempts"`
}

// JobListing is one row of ListJobs. Counts are those recorded when the job
// last settled.
type JobListing struct {
	JobID     uuid.UUID       `json:"jobId"`
	SubjectID string          `json:"subjectId"`
	Variant   string          `json:"variant"`
	JobStatus store.JobStatus `json:"jobStatus"`
	Running   bool            `json:"running"`
	Total     int             `json:"total"`
	Completed int             `json:"completed"`
	Failed    int             `json:"failed"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
