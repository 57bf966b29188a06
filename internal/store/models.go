package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// JobStatus is the lifecycle state stored on a Job row.
type JobStatus string

const (
	JobPending        JobStatus = "pending"
	JobGenerating     JobStatus = "generating"
	JobCompleted      JobStatus = "completed"
	JobFailed         JobStatus = "failed"
	JobPartialFailure JobStatus = "partial_failure"
)

// SectionStatus is the state of one SectionRecord.
type SectionStatus string

const (
	SectionPending    SectionStatus = "pending"
	SectionGenerating SectionStatus = "generating"
	SectionCompleted  SectionStatus = "completed"
	SectionFailed     SectionStatus = "failed"
)

// Job is one end-to-end generation effort for a (subject, variant) pair.
type Job struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SubjectID         string         `gorm:"column:subject_id;not null;uniqueIndex:idx_report_job_subject_variant" json:"subject_id"`
	Variant           string         `gorm:"column:variant;not null;uniqueIndex:idx_report_job_subject_variant" json:"variant"`
	Status            JobStatus      `gorm:"column:status;not null;index" json:"status"`
	TotalSections     int            `gorm:"column:total_sections;not null" json:"total_sections"`
	SectionsCompleted int            `gorm:"column:sections_completed;not null;default:0" json:"sections_completed"`
	SectionsFailed    int            `gorm:"column:sections_failed;not null;default:0" json:"sections_failed"`
	ExecutionOrder    datatypes.JSON `gorm:"column:execution_order" json:"execution_order,omitempty"`
	LastError         string         `gorm:"column:last_error" json:"last_error,omitempty"`
	AssembledAt       *time.Time     `gorm:"column:assembled_at" json:"assembled_at,omitempty"`
	CreatedAt         time.Time      `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`

	Sections []SectionRecord `gorm:"foreignKey:JobID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Job) TableName() string { return "report_job" }

// Order decodes ExecutionOrder. A missing or malformed value yields nil.
func (j *Job) Order() []int {
	if len(j.ExecutionOrder) == 0 {
		return nil
	}
	var ids []int
	if err := json.Unmarshal(j.ExecutionOrder, &ids); err != nil {
		return nil
	}
	return ids
}

// SectionRecord is the persistent status of one section within one job.
type SectionRecord struct {
	ID                 uint          `gorm:"primaryKey" json:"-"`
	JobID              uuid.UUID     `gorm:"type:uuid;column:job_id;not null;uniqueIndex:idx_report_section_job_section" json:"job_id"`
	SectionID          int           `gorm:"column:section_id;not null;uniqueIndex:idx_report_section_job_section" json:"section_id"`
	Status             SectionStatus `gorm:"column:status;not null;index" json:"status"`
	Content            string        `gorm:"column:content" json:"content,omitempty"`
	ErrorMessage       string        `gorm:"column:error_message" json:"error_message,omitempty"`
	ErrorKind          string        `gorm:"column:error_kind" json:"error_kind,omitempty"`
	CompletedAt        *time.Time    `gorm:"column:completed_at" json:"completed_at,omitempty"`
	GenerationAttempts int           `gorm:"column:generation_attempts;not null;default:0" json:"generation_attempts"`
	CreatedAt          time.Time     `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"column:updated_at;not null;index" json:"updated_at"`
}

func (SectionRecord) TableName() string { return "report_section" }

// JobSummary is the set of aggregate columns rewritten after each pass over a
// job's sections.
type JobSummary struct {
	Status    JobStatus
	Total     int
	Completed int
	Failed    int
}

// StalledSection is a record the reaper moved from generating to failed.
type StalledSection struct {
	JobID       uuid.UUID `json:"jobId"`
	SubjectID   string    `json:"subjectId"`
	Variant     string    `json:"variant"`
	SectionID   int       `json:"sectionId"`
	LastUpdated time.Time `json:"lastUpdated"`
}
