package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dusk-indust/reportgen/internal/logger"
)

// Compile-time check that GormStore satisfies Store.
var _ Store = (*GormStore)(nil)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// GormStore implements Store on top of gorm. SQLite is used for local runs and
// tests, Postgres in production.
type GormStore struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

// Option configures a GormStore.
type Option func(*GormStore)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *GormStore) {
		s.now = func() time.Time { return now().UTC() }
	}
}

// Open connects to the database for the given driver and DSN.
func Open(driver, dsn string, log *logger.Logger, opts ...Option) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}

	if driver == DriverSQLite || driver == "" {
		// SQLite allows a single writer; serializing on one connection avoids
		// "database is locked" between the execution loop and the reaper.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("store: sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return New(db, log, opts...), nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, log *logger.Logger, opts ...Option) *GormStore {
	s := &GormStore{
		db:  db,
		log: logger.OrNop(log).With("component", "store"),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates or updates the job and section tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Job{}, &SectionRecord{}); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

// CreateJob inserts a pending job and one pending record per section id.
// Section records are upserted by (job_id, section_id), so re-initializing a
// section is idempotent.
func (s *GormStore) CreateJob(ctx context.Context, subjectID, variant string, sectionIDs []int) (*Job, error) {
	now := s.now()
	job := &Job{
		ID:            uuid.New(),
		SubjectID:     subjectID,
		Variant:       variant,
		Status:        JobPending,
		TotalSections: len(sectionIDs),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(job).Error; err != nil {
			return err
		}
		if len(sectionIDs) == 0 {
			return nil
		}
		records := make([]SectionRecord, 0, len(sectionIDs))
		for _, id := range sectionIDs {
			records = append(records, SectionRecord{
				JobID:     job.ID,
				SectionID: id,
				Status:    SectionPending,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "job_id"}, {Name: "section_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "content", "error_message", "error_kind", "completed_at", "updated_at",
			}),
		}).Create(&records).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store: create job %s/%s: %w", subjectID, variant, err)
	}
	return job, nil
}

// GetJob returns the job for a subject and variant.
func (s *GormStore) GetJob(ctx context.Context, subjectID, variant string) (*Job, error) {
	var job Job
	err := s.db.WithContext(ctx).
		Where("subject_id = ? AND variant = ?", subjectID, variant).
		First(&job).Error
	if err != nil {
		return nil, notFound(err, "job %s/%s", subjectID, variant)
	}
	return &job, nil
}

// GetJobByID returns the job with the given id.
func (s *GormStore) GetJobByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	var job Job
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, notFound(err, "job %s", id)
	}
	return &job, nil
}

// ListJobs returns every job, oldest first.
func (s *GormStore) ListJobs(ctx context.Context) ([]Job, error) {
	var jobs []Job
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	return jobs, nil
}

// DeleteJob removes a job and all of its section records in one transaction.
func (s *GormStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_id = ?", id).Delete(&SectionRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Job{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("store: delete job %s: %w", id, err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	return nil
}

// SetJobStatus records a lifecycle status on the job.
func (s *GormStore) SetJobStatus(ctx context.Context, id uuid.UUID, status JobStatus) error {
	return s.updateJob(ctx, id, map[string]any{"status": status})
}

// SetExecutionOrder records the order computed by the scheduler.
func (s *GormStore) SetExecutionOrder(ctx context.Context, id uuid.UUID, order []int) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("store: encode execution order: %w", err)
	}
	return s.updateJob(ctx, id, map[string]any{"execution_order": datatypes.JSON(raw)})
}

// SaveJobSummary rewrites the aggregate counters and status.
func (s *GormStore) SaveJobSummary(ctx context.Context, id uuid.UUID, summary JobSummary) error {
	return s.updateJob(ctx, id, map[string]any{
		"status":             summary.Status,
		"total_sections":     summary.Total,
		"sections_completed": summary.Completed,
		"sections_failed":    summary.Failed,
	})
}

// SetAssembly records the outcome of handing the document to the assembler.
func (s *GormStore) SetAssembly(ctx context.Context, id uuid.UUID, assembledAt *time.Time, lastError string) error {
	return s.updateJob(ctx, id, map[string]any{
		"assembled_at": assembledAt,
		"last_error":   lastError,
	})
}

func (s *GormStore) updateJob(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = s.now()
	res := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("store: update job %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sections
// ---------------------------------------------------------------------------

// ListSections returns a job's records ordered by section id.
func (s *GormStore) ListSections(ctx context.Context, jobID uuid.UUID) ([]SectionRecord, error) {
	var records []SectionRecord
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("section_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("store: list sections of job %s: %w", jobID, err)
	}
	return records, nil
}

// GetSection returns one record.
func (s *GormStore) GetSection(ctx context.Context, jobID uuid.UUID, sectionID int) (*SectionRecord, error) {
	var rec SectionRecord
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND section_id = ?", jobID, sectionID).
		First(&rec).Error
	if err != nil {
		return nil, notFound(err, "section %d of job %s", sectionID, jobID)
	}
	return &rec, nil
}

// MarkGenerating moves a pending section to generating. When countAttempt is
// set the attempt counter is incremented; regeneration counts the attempt
// when it resets the record instead.
func (s *GormStore) MarkGenerating(ctx context.Context, jobID uuid.UUID, sectionID int, countAttempt bool) error {
	updates := map[string]any{"status": SectionGenerating}
	if countAttempt {
		updates["generation_attempts"] = gorm.Expr("generation_attempts + 1")
	}
	return s.updateSection(ctx, jobID, sectionID, []SectionStatus{SectionPending}, updates)
}

// CompleteSection stores generated content on a generating section.
func (s *GormStore) CompleteSection(ctx context.Context, jobID uuid.UUID, sectionID int, content string) error {
	return s.updateSection(ctx, jobID, sectionID, []SectionStatus{SectionGenerating}, map[string]any{
		"status":        SectionCompleted,
		"content":       content,
		"completed_at":  s.now(),
		"error_message": "",
		"error_kind":    "",
	})
}

// FailSection records a failure on a generating section.
func (s *GormStore) FailSection(ctx context.Context, jobID uuid.UUID, sectionID int, kind, message string) error {
	return s.updateSection(ctx, jobID, sectionID, []SectionStatus{SectionGenerating}, map[string]any{
		"status":        SectionFailed,
		"content":       "",
		"completed_at":  nil,
		"error_message": message,
		"error_kind":    kind,
	})
}

// ResetSection returns a settled section to pending for an explicit
// regeneration, counting the attempt up front and clearing prior output.
func (s *GormStore) ResetSection(ctx context.Context, jobID uuid.UUID, sectionID int) error {
	return s.updateSection(ctx, jobID, sectionID,
		[]SectionStatus{SectionPending, SectionCompleted, SectionFailed},
		map[string]any{
			"status":              SectionPending,
			"generation_attempts": gorm.Expr("generation_attempts + 1"),
			"content":             "",
			"completed_at":        nil,
			"error_message":       "",
			"error_kind":          "",
		})
}

// updateSection is the single write path for section records. It only
// applies when the record is in one of the allowed source states, and it
// always stamps updated_at.
func (s *GormStore) updateSection(ctx context.Context, jobID uuid.UUID, sectionID int, from []SectionStatus, updates map[string]any) error {
	updates["updated_at"] = s.now()
	res := s.db.WithContext(ctx).Model(&SectionRecord{}).
		Where("job_id = ? AND section_id = ? AND status IN ?", jobID, sectionID, statusStrings(from)).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("store: update section %d of job %s: %w", sectionID, jobID, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	current, err := s.GetSection(ctx, jobID, sectionID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: section %d of job %s is %s", ErrInvalidTransition, sectionID, jobID, current.Status)
}

// FailStalled fails every generating record whose updated_at is older than
// cutoff and returns the records it changed.
func (s *GormStore) FailStalled(ctx context.Context, cutoff time.Time, kind, message string) ([]StalledSection, error) {
	cutoff = cutoff.UTC()
	var candidates []SectionRecord
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(SectionGenerating), cutoff).
		Order("job_id ASC, section_id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("store: find stalled sections: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	jobs := make(map[uuid.UUID]*Job)
	var stalled []StalledSection
	for _, rec := range candidates {
		// Re-check the predicate so a section that progressed after the scan
		// is left alone.
		res := s.db.WithContext(ctx).Model(&SectionRecord{}).
			Where("id = ? AND status = ? AND updated_at < ?", rec.ID, string(SectionGenerating), cutoff).
			Updates(map[string]any{
				"status":        SectionFailed,
				"content":       "",
				"completed_at":  nil,
				"error_message": message,
				"error_kind":    kind,
				"updated_at":    s.now(),
			})
		if res.Error != nil {
			return stalled, fmt.Errorf("store: fail stalled section %d of job %s: %w", rec.SectionID, rec.JobID, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}

		job, ok := jobs[rec.JobID]
		if !ok {
			job, err = s.GetJobByID(ctx, rec.JobID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return stalled, err
			}
			jobs[rec.JobID] = job
		}
		st := StalledSection{
			JobID:       rec.JobID,
			SectionID:   rec.SectionID,
			LastUpdated: rec.UpdatedAt,
		}
		if job != nil {
			st.SubjectID = job.SubjectID
			st.Variant = job.Variant
		}
		stalled = append(stalled, st)
	}
	if len(stalled) > 0 {
		s.log.Warn("failed stalled sections", "count", len(stalled), "cutoff", cutoff)
	}
	return stalled, nil
}

func statusStrings(statuses []SectionStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("store: get %s: %w", fmt.Sprintf(format, args...), err)
}
