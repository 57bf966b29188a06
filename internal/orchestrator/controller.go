package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dusk-indust/reportgen/internal/catalog"
	"github.com/dusk-indust/reportgen/internal/document"
	"github.com/dusk-indust/reportgen/internal/generator"
	"github.com/dusk-indust/reportgen/internal/joblock"
	"github.com/dusk-indust/reportgen/internal/logger"
	"github.com/dusk-indust/reportgen/internal/store"
	"github.com/dusk-indust/reportgen/internal/telemetry"
	"github.com/dusk-indust/reportgen/internal/upstream"
)

// Deps are the collaborators of a Controller. Store, Generator and Source
// are required.
type Deps struct {
	Catalog   *catalog.Catalog
	Store     store.Store
	Generator generator.Generator
	Source    upstream.Source
	Assembler document.Assembler
	Locker    joblock.Locker
	Events    *Events
	Logger    *logger.Logger

	// Tracer defaults to the global reportgen tracer.
	Tracer trace.Tracer
}

// Controller owns the lifecycle of report jobs.
type Controller struct {
	cfg       Config
	catalog   *catalog.Catalog
	store     store.Store
	gen       generator.Generator
	source    upstream.Source
	assembler document.Assembler
	locker    joblock.Locker
	events    *Events
	log       *logger.Logger
	tracer    trace.Tracer
	registry  *Registry

	baseCtx context.Context
	stop    context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewController wires a Controller. Optional deps get defaults: the built-in
// catalog, a NopAssembler, an in-process Locker and a fresh Events.
func NewController(cfg Config, deps Deps) (*Controller, error) {
	if deps.Store == nil || deps.Generator == nil || deps.Source == nil {
		return nil, errors.New("orchestrator: store, generator and source are required")
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.Default()
	}
	if deps.Assembler == nil {
		deps.Assembler = document.NopAssembler{}
	}
	if deps.Locker == nil {
		deps.Locker = joblock.NewLocal()
	}
	if deps.Events == nil {
		deps.Events = NewEvents()
	}
	if deps.Tracer == nil {
		deps.Tracer = telemetry.Tracer()
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Controller{
		cfg:       cfg.withDefaults(),
		catalog:   deps.Catalog,
		store:     deps.Store,
		gen:       deps.Generator,
		source:    deps.Source,
		assembler: deps.Assembler,
		locker:    deps.Locker,
		events:    deps.Events,
		log:       logger.OrNop(deps.Logger).With("component", "controller"),
		tracer:    deps.Tracer,
		registry:  NewRegistry(),
		baseCtx:   ctx,
		stop:      stop,
	}, nil
}

// Catalog returns the section catalog in use.
func (c *Controller) Catalog() *catalog.Catalog { return c.catalog }

// Events returns the controller's event stream.
func (c *Controller) Events() *Events { return c.events }

// Running returns the job keys with a live background run.
func (c *Controller) Running() []string { return c.registry.Keys() }

// Wait blocks until no background run is live or ctx is done.
func (c *Controller) Wait(ctx context.Context) error { return c.registry.Wait(ctx) }

// Close cancels every background run and waits for them to settle.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.stop()
	c.registry.CancelAll()
	return c.registry.Wait(ctx)
}

// ---------------------------------------------------------------------------
// Initiate
// ---------------------------------------------------------------------------

// Initiate validates the request, resets any prior job state and starts the
// background run. It returns as soon as the run is scheduled.
func (c *Controller) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if req.SubjectID == "" {
		return nil, fmt.Errorf("%w: subject id is required", ErrInvalidRequest)
	}
	sections, err := c.resolveSections(req.Variant, req.Sections)
	if err != nil {
		return nil, err
	}

	payload, err := c.loadPayload(ctx, req.SubjectID)
	if err != nil {
		return nil, err
	}

	key := JobKey(req.SubjectID, req.Variant)
	if c.isClosed() || c.registry.Active(key) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInProgress, key)
	}
	lock, err := c.acquire(ctx, key)
	if err != nil {
		return nil, err
	}

	job, err := c.resetJob(ctx, req, sections)
	if err != nil {
		c.release(lock)
		return nil, err
	}

	order := Schedule(sections, c.catalog, c.log)
	started := c.registry.Go(c.baseCtx, key, func(runCtx context.Context) {
		defer c.release(lock)
		c.run(runCtx, job, order, payload, lock)
	})
	if !started {
		c.release(lock)
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInProgress, key)
	}

	c.log.Info("job started", "job", job.ID, "subject", req.SubjectID, "variant", req.Variant,
		"sections", sections, "order", order)
	return &InitiateResult{
		JobID:    job.ID,
		Status:   StatusStarted,
		Sections: sections,
		Order:    order,
	}, nil
}

// resolveSections validates the variant and requested ids and returns the
// sorted, de-duplicated id set for the job.
func (c *Controller) resolveSections(variant string, requested []int) ([]int, error) {
	defaults, err := c.catalog.DefaultSections(variant)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
	if len(requested) == 0 {
		return defaults, nil
	}
	if unknown := c.catalog.Unknown(requested); len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnknownSection, unknown)
	}
	return uniqueSorted(requested), nil
}

// resetJob applies the existing-job rules, clears prior state and creates the
// job with pending sections. The caller holds the job lock.
func (c *Controller) resetJob(ctx context.Context, req InitiateRequest, sections []int) (*store.Job, error) {
	existing, err := c.store.GetJob(ctx, req.SubjectID, req.Variant)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("orchestrator: load job: %w", err)
	default:
		if !req.Regenerate {
			switch existing.Status {
			case store.JobCompleted:
				return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, JobKey(req.SubjectID, req.Variant))
			case store.JobGenerating:
				return nil, fmt.Errorf("%w: %s", ErrAlreadyInProgress, JobKey(req.SubjectID, req.Variant))
			}
		}
		if err := c.store.DeleteJob(ctx, existing.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("orchestrator: clear job: %w", err)
		}
		c.log.Info("cleared prior job", "job", existing.ID, "status", existing.Status, "regenerate", req.Regenerate)
	}

	job, err := c.store.CreateJob(ctx, req.SubjectID, req.Variant, sections)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: create job: %w", err)
	}
	return job, nil
}

// ---------------------------------------------------------------------------
// Background run
// ---------------------------------------------------------------------------

// runOutcome accumulates per-section results across the run.
type runOutcome struct {
	completed []int
	failed    []int
}

func (o runOutcome) add(id int, ok bool) runOutcome {
	if ok {
		o.completed = append(o.completed, id)
	} else {
		o.failed = append(o.failed, id)
	}
	return o
}

// run generates every section in order. A failed section never stops the
// run; the outcome is folded and the job settled at the end.
func (c *Controller) run(ctx context.Context, job *store.Job, order []int, payload upstream.Payload, lock joblock.Lock) {
	log := c.log.With("job", job.ID, "subject", job.SubjectID, "variant", job.Variant)
	ctx, span := c.tracer.Start(ctx, "report.run", trace.WithAttributes(
		attribute.String("report.job_id", job.ID.String()),
		attribute.String("report.subject", job.SubjectID),
		attribute.String("report.variant", job.Variant),
		attribute.IntSlice("report.order", order),
	))
	defer span.End()

	if err := c.store.SetJobStatus(ctx, job.ID, store.JobGenerating); err != nil {
		log.Error("mark job generating", "error", err)
	}
	if err := c.store.SetExecutionOrder(ctx, job.ID, order); err != nil {
		log.Error("record execution order", "error", err)
	}

	var outcome runOutcome
	for i, id := range order {
		if i > 0 && !sleepCtx(ctx, c.cfg.SectionDelay) {
			break
		}
		def, _ := c.catalog.Section(id)
		ok := c.generateSection(ctx, log, job, def, payload, true)
		outcome = outcome.add(id, ok)

		if err := lock.Refresh(ctx, c.cfg.LockTTL); err != nil && ctx.Err() == nil {
			log.Warn("refresh job lock", "error", err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	interrupted := ctx.Err() != nil
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.SettleTimeout)
	defer cancel()
	status, err := c.settle(settleCtx, job, true)
	if err != nil {
		span.RecordError(err)
		log.Error("settle job", "error", err)
		return
	}
	span.SetAttributes(
		attribute.String("report.status", string(status)),
		attribute.Int("report.completed", len(outcome.completed)),
		attribute.Int("report.failed", len(outcome.failed)),
		attribute.Bool("report.interrupted", interrupted),
	)
	log.Info("job finished", "status", status, "completed", outcome.completed, "failed", outcome.failed,
		"interrupted", interrupted)
}

// generateSection runs one attempt for def and records the result. It
// reports whether the section completed.
func (c *Controller) generateSection(ctx context.Context, log *logger.Logger, job *store.Job, def catalog.SectionDefinition,
	payload upstream.Payload, countAttempt bool) (ok bool) {
	log = log.With("section", def.ID, "name", def.Name)
	ctx, span := c.tracer.Start(ctx, "report.section", trace.WithAttributes(
		attribute.Int("report.section_id", def.ID),
		attribute.String("report.section_name", def.Name),
	))
	var spanErr error
	defer func() {
		span.SetAttributes(attribute.Bool("report.section_completed", ok))
		telemetry.End(span, spanErr)
	}()

	if err := c.store.MarkGenerating(ctx, job.ID, def.ID, countAttempt); err != nil {
		spanErr = err
		log.Error("mark section generating", "error", err)
		return false
	}
	c.emitSection(job, def, store.SectionGenerating, "")

	upstreamContent, err := c.upstreamContent(ctx, job.ID, def)
	if err != nil {
		log.Warn("load dependency content", "error", err)
	}

	start := time.Now()
	genCtx, cancel := context.WithTimeout(ctx, c.cfg.SectionTimeout)
	content, err := c.gen.Generate(genCtx, generator.Request{
		Section:   def,
		SubjectID: job.SubjectID,
		Variant:   job.Variant,
		Payload:   payload,
		Upstream:  upstreamContent,
	})
	timedOut := ctx.Err() == nil && errors.Is(genCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if timedOut {
			err = &generator.Error{
				Kind:    generator.KindTimeout,
				Message: fmt.Sprintf("no content after %s", c.cfg.SectionTimeout),
				Err:     context.DeadlineExceeded,
			}
		}
		spanErr = err
		c.recordFailure(ctx, log, job, def, err)
		return false
	}

	if err := c.store.CompleteSection(ctx, job.ID, def.ID, content); err != nil {
		// The reaper may have failed the section while the generator was slow.
		spanErr = err
		log.Error("store section content", "error", err)
		return false
	}
	log.Info("section completed", "duration", time.Since(start).Round(time.Millisecond))
	c.emitSection(job, def, store.SectionCompleted, "")
	return true
}

func (c *Controller) recordFailure(ctx context.Context, log *logger.Logger, job *store.Job, def catalog.SectionDefinition, err error) {
	writeCtx := ctx
	var gerr *generator.Error
	if ctx.Err() != nil {
		gerr = &generator.Error{Kind: generator.KindOther, Message: "generation interrupted: " + ctx.Err().Error(), Err: err}
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), c.cfg.SettleTimeout)
		defer cancel()
	} else {
		gerr = generator.Classify(err)
	}

	log.Warn("section failed", "kind", gerr.Kind, "error", gerr.Error())
	if err := c.store.FailSection(writeCtx, job.ID, def.ID, string(gerr.Kind), gerr.Error()); err != nil {
		log.Error("store section failure", "error", err)
	}
	c.emitSection(job, def, store.SectionFailed, generator.UserMessage(gerr))
}

// upstreamContent maps the names of completed dependencies to their content.
func (c *Controller) upstreamContent(ctx context.Context, jobID uuid.UUID, def catalog.SectionDefinition) (map[string]string, error) {
	if len(def.Dependencies) == 0 {
		return nil, nil
	}
	records, err := c.store.ListSections(ctx, jobID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]store.SectionRecord, len(records))
	for _, r := range records {
		byID[r.SectionID] = r
	}

	out := make(map[string]string)
	for _, dep := range def.Dependencies {
		rec, ok := byID[dep]
		if !ok || rec.Status != store.SectionCompleted {
			continue
		}
		name := fmt.Sprintf("section-%d", dep)
		if depDef, ok := c.catalog.Section(dep); ok {
			name = depDef.Name
		}
		out[name] = rec.Content
	}
	return out, nil
}

// settle recomputes a job's counts from its records and applies the
// end-of-run rules: a fully completed job is assembled, a job in which every
// section failed is cleaned up when cleanupAllFailed is set, anything else
// keeps its records with a derived status. It returns the resulting status;
// a cleaned-up job reports JobFailed.
func (c *Controller) settle(ctx context.Context, job *store.Job, cleanupAllFailed bool) (store.JobStatus, error) {
	records, err := c.store.ListSections(ctx, job.ID)
	if err != nil {
		return "", fmt.Errorf("orchestrator: list sections: %w", err)
	}
	sum := Aggregate(records)

	if cleanupAllFailed && sum.Total > 0 && sum.Failed == sum.Total {
		if err := c.cleanup(ctx, job, "all sections failed"); err != nil {
			return "", err
		}
		c.emitJob(job, store.JobFailed, "all sections failed; job removed")
		return store.JobFailed, nil
	}

	status := jobStatus(sum)
	if status == store.JobCompleted {
		c.assemble(ctx, job, records)
	}
	if err := c.store.SaveJobSummary(ctx, job.ID, store.JobSummary{
		Status:    status,
		Total:     sum.Total,
		Completed: sum.Completed,
		Failed:    sum.Failed,
	}); err != nil {
		return "", fmt.Errorf("orchestrator: save summary: %w", err)
	}
	c.emitJob(job, status, fmt.Sprintf("%d/%d sections complete", sum.Completed, sum.Total))
	return status, nil
}

// assemble hands the finished document to the assembler. Failure is logged
// and recorded on the job; the document stays retrievable.
func (c *Controller) assemble(ctx context.Context, job *store.Job, records []store.SectionRecord) {
	doc := document.Build(job, c.catalog, records)

	var assembledAt *time.Time
	var lastError string
	if err := c.assembler.Assemble(ctx, doc); err != nil {
		c.log.Error("assemble document", "job", job.ID, "error", err)
		lastError = "assembly failed: " + err.Error()
	} else {
		now := time.Now().UTC()
		assembledAt = &now
	}
	if err := c.store.SetAssembly(ctx, job.ID, assembledAt, lastError); err != nil {
		c.log.Error("record assembly", "job", job.ID, "error", err)
	}
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// GetProgress returns the progress view of a job.
func (c *Controller) GetProgress(ctx context.Context, subjectID, variant string) (*Progress, error) {
	job, records, err := c.loadJob(ctx, subjectID, variant)
	if err != nil {
		return nil, err
	}

	p := &Progress{
		JobID:       job.ID,
		SubjectID:   job.SubjectID,
		Variant:     job.Variant,
		JobStatus:   job.Status,
		Running:     c.registry.Active(JobKey(subjectID, variant)),
		Order:       job.Order(),
		LastError:   job.LastError,
		AssembledAt: job.AssembledAt,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		Summary:     Aggregate(records),
		Sections:    make([]SectionProgress, 0, len(records)),
	}
	for _, r := range records {
		sp := SectionProgress{
			ID:          r.SectionID,
			Name:        fmt.Sprintf("section-%d", r.SectionID),
			Status:      r.Status,
			Error:       r.ErrorMessage,
			ErrorKind:   r.ErrorKind,
			CompletedAt: r.CompletedAt,
			Attempts:    r.GenerationAttempts,
		}
		if def, ok := c.catalog.Section(r.SectionID); ok {
			sp.Name = def.Name
			sp.Title = def.Title
		}
		p.Sections = append(p.Sections, sp)
	}
	return p, nil
}

// ListJobs lists every job, oldest first.
func (c *Controller) ListJobs(ctx context.Context) ([]JobListing, error) {
	jobs, err := c.store.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list jobs: %w", err)
	}
	out := make([]JobListing, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, JobListing{
			JobID:     j.ID,
			SubjectID: j.SubjectID,
			Variant:   j.Variant,
			JobStatus: j.Status,
			Running:   c.registry.Active(JobKey(j.SubjectID, j.Variant)),
			Total:     j.TotalSections,
			Completed: j.SectionsCompleted,
			Failed:    j.SectionsFailed,
			UpdatedAt: j.UpdatedAt,
		})
	}
	return out, nil
}

// GetDocument builds the document of a fully completed job. Anything less
// than 100% fails with a *NotCompleteError.
func (c *Controller) GetDocument(ctx context.Context, subjectID, variant string) (*document.Document, error) {
	job, records, err := c.loadJob(ctx, subjectID, variant)
	if err != nil {
		return nil, err
	}
	sum := Aggregate(records)
	if sum.Total == 0 || sum.Completed < sum.Total {
		return nil, &NotCompleteError{Percent: sum.Percentage}
	}
	return document.Build(job, c.catalog, records), nil
}

func (c *Controller) loadJob(ctx context.Context, subjectID, variant string) (*store.Job, []store.SectionRecord, error) {
	job, err := c.store.GetJob(ctx, subjectID, variant)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrJobNotFound, JobKey(subjectID, variant))
	}
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: load job: %w", err)
	}
	records, err := c.store.ListSections(ctx, job.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: list sections: %w", err)
	}
	return job, records, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (c *Controller) loadPayload(ctx context.Context, subjectID string) (upstream.Payload, error) {
	payload, err := c.source.Load(ctx, subjectID)
	if errors.Is(err, upstream.ErrMissingUpstreamData) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load upstream data: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingUpstreamData, subjectID)
	}
	return payload, nil
}

func (c *Controller) acquire(ctx context.Context, key string) (joblock.Lock, error) {
	lock, err := c.locker.TryAcquire(ctx, key, c.cfg.LockTTL)
	if errors.Is(err, joblock.ErrLocked) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInProgress, key)
	}
	if err != nil {
		return nil, fmt.Errorf("orchestrator: lock %s: %w", key, err)
	}
	return lock, nil
}

func (c *Controller) release(lock joblock.Lock) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SettleTimeout)
	defer cancel()
	if err := lock.Release(ctx); err != nil {
		c.log.Warn("release job lock", "key", lock.Key(), "error", err)
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) emitSection(job *store.Job, def catalog.SectionDefinition, status store.SectionStatus, msg string) {
	c.events.Emit(Event{
		Kind:      EventSection,
		JobID:     job.ID,
		SubjectID: job.SubjectID,
		Variant:   job.Variant,
		SectionID: def.ID,
		Name:      def.Name,
		Status:    string(status),
		Message:   msg,
	})
}

func (c *Controller) emitJob(job *store.Job, status store.JobStatus, msg string) {
	c.events.Emit(Event{
		Kind:      EventJob,
		JobID:     job.ID,
		SubjectID: job.SubjectID,
		Variant:   job.Variant,
		Status:    string(status),
		Message:   msg,
	})
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// sortedKeys is used for deterministic logging of id sets.
func sortedKeys(m map[uuid.UUID]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
