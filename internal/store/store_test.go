package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source for stamping records.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*GormStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "reportgen.db"), nil, WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s, clock
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "dsn", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestCreateJob_InitializesPendingSections(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "subj-1", "full", []int{3, 1, 2})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, JobPending, job.Status)
	assert.Equal(t, 3, job.TotalSections)

	got, err := s.GetJob(ctx, "subj-1", "full")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	records, err := s.ListSections(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, i+1, rec.SectionID)
		assert.Equal(t, SectionPending, rec.Status)
		assert.Zero(t, rec.GenerationAttempts)
	}
}

func TestCreateJob_DuplicateSubjectVariant(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateJob(ctx, "subj-1", "full", []int{1})
	require.NoError(t, err)
	_, err = s.CreateJob(ctx, "subj-1", "full", []int{1})
	assert.Error(t, err)

	_, err = s.CreateJob(ctx, "subj-1", "brief", []int{1})
	assert.NoError(t, err, "a different variant is a different job")
}

func TestGetJob_NotFound(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetJob(ctx, "nobody", "full")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetJobByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetSection(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSectionLifecycle(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "subj-1", "full", []int{1})
	require.NoError(t, err)

	clock.Advance(time.Second)
	require.NoError(t, s.MarkGenerating(ctx, job.ID, 1, true))
	rec, err := s.GetSection(ctx, job.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, SectionGenerating, rec.Status)
	assert.Equal(t, 1, rec.GenerationAttempts)
	assert.True(t, rec.UpdatedAt.Equal(clock.Now()))

	clock.Advance(time.Second)
	require.NoError(t, s.CompleteSection(ctx, job.ID, 1, "hello"))
	rec, err = s.GetSection(ctx, job.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, SectionCompleted, rec.Status)
	assert.Equal(t, "hello", rec.Content)
	require.NotNil(t, rec.CompletedAt)
	assert.True(t, rec.CompletedAt.Equal(clock.Now()))
	assert.Empty(t, rec.ErrorMessage)
}

func TestSectionTransitions_Guarded(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "subj-1", "full", []int{1})
	require.NoError(t, err)

	// Cannot complete or fail a pending section.
	assert.ErrorIs(t, s.CompleteSection(ctx, job.ID, 1, "x"), ErrInvalidTransition)
	assert.ErrorIs(t, s.FailSection(ctx, job.ID, 1, "other", "boom"), ErrInvalidTransition)

	require.NoError(t, s.MarkGenerating(ctx, job.ID, 1, true))
	// Already generating.
	assert.ErrorIs(t, s.MarkGenerating(ctx, job.ID, 1, true), ErrInvalidTransition)
	// Cannot reset while generating.
	assert.ErrorIs(t, s.ResetSection(ctx, job.ID, 1), ErrInvalidTransition)

	// Missing section.
	assert.ErrorIs(t, s.MarkGenerating(ctx, job.ID, 9, true), ErrNotFound)
}

func TestFailSection_ClearsContent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "subj-1", "full", []int{1})
	require.NoError(t, err)
	require.NoError(t, s.MarkGenerating(ctx, job.ID, 1, true))
	require.NoError(t, s.FailSection(ctx, job.ID, 1, "service_unavailable", "service down"))

	rec, err := s.GetSection(ctx, job.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, SectionFailed, rec.Status)
	assert.Equal(t, "service_unavailable", rec.ErrorKind)
	assert.Equal(t, "service down", rec.ErrorMessage)
	assert.Empty(t, rec.Content)
	assert.Nil(t, rec.CompletedAt)
}

func TestResetSection_CountsAttemptAndClears(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "subj-1", "full", []int{1})
	require.NoError(t, err)
	require.NoError(t, s.MarkGenerating(ctx, job.ID, 1, true))
	require.NoError(t, s.CompleteSection(ctx, job.ID, 1, "v1"))

	require.NoError(t, s.ResetSection(ctx, job.ID, 1))
	rec, err := s.GetSection(ctx, job.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, SectionPending, rec.Status)
	assert.Equal(t, 2, rec.GenerationAttempts)
	assert.Empty(t, rec.Content)
	assert.Nil(t, rec.CompletedAt)

	// The regeneration attempt was already counted.
	require.NoError(t, s.MarkGenerating(ctx, job.ID, 1, false))
	rec, err = s.GetSection(ctx, job.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.GenerationAttempts)
}

func TestJobUpdates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "subj-1", "full", []int{1, 2})
	require.NoError(t, err)

	require.NoError(t, s.SetJobStatus(ctx, job.ID, JobGenerating))
	require.NoError(t, s.SetExecutionOrder(ctx, job.ID, []int{2, 1}))
	require.NoError(t, s.SaveJobSummary(ctx, job.ID, JobSummary{
		Status: JobPartialFailure, Total: 2, Completed: 1, Failed: 1,
	}))
	at := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetAssembly(ctx, job.ID, &at, ""))

	got, err := s.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobPartialFailure, got.Status)
	assert.Equal(t, []int{2, 1}, got.Order())
	assert.Equal(t, 1, got.SectionsCompleted)
	assert.Equal(t, 1, got.SectionsFailed)
	require.NotNil(t, got.AssembledAt)
	assert.True(t, got.AssembledAt.Equal(at))

	assert.ErrorIs(t, s.SetJobStatus(ctx, uuid.New(), JobFailed), ErrNotFound)
}

func TestDeleteJob_RemovesSections(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "subj-1", "full", []int{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, s.DeleteJob(ctx, job.ID))

	_, err = s.GetJobByID(ctx, job.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	records, err := s.ListSections(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.ErrorIs(t, s.DeleteJob(ctx, job.ID), ErrNotFound)

	// The pair can be initialized again.
	_, err = s.CreateJob(ctx, "subj-1", "full", []int{1})
	assert.NoError(t, err)
}

func TestListJobs(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateJob(ctx, "a", "full", []int{1})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = s.CreateJob(ctx, "b", "full", []int{1})
	require.NoError(t, err)

	jobs, err := s.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].SubjectID)
	assert.Equal(t, "b", jobs[1].SubjectID)
}

func TestFailStalled(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "subj-1", "full", []int{1, 2, 3})
	require.NoError(t, err)

	// Section 1 starts generating and then goes quiet.
	require.NoError(t, s.MarkGenerating(ctx, job.ID, 1, true))
	clock.Advance(20 * time.Minute)
	// Section 2 started recently.
	require.NoError(t, s.MarkGenerating(ctx, job.ID, 2, true))

	cutoff := clock.Now().Add(-15 * time.Minute)
	stalled, err := s.FailStalled(ctx, cutoff, "stalled", "generation timed out after 15 minutes")
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, 1, stalled[0].SectionID)
	assert.Equal(t, job.ID, stalled[0].JobID)
	assert.Equal(t, "subj-1", stalled[0].SubjectID)
	assert.Equal(t, "full", stalled[0].Variant)

	rec, err := s.GetSection(ctx, job.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, SectionFailed, rec.Status)
	assert.Equal(t, "stalled", rec.ErrorKind)
	assert.Equal(t, "generation timed out after 15 minutes", rec.ErrorMessage)
	assert.Equal(t, 1, rec.GenerationAttempts, "the stalled attempt was already counted")

	rec, err = s.GetSection(ctx, job.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, SectionGenerating, rec.Status)

	// Pending sections are never touched, however old.
	rec, err = s.GetSection(ctx, job.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, SectionPending, rec.Status)

	// A second sweep is a no-op.
	stalled, err = s.FailStalled(ctx, cutoff, "stalled", "x")
	require.NoError(t, err)
	assert.Empty(t, stalled)
}
