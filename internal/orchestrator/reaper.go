package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dusk-indust/reportgen/internal/generator"
	"github.com/dusk-indust/reportgen/internal/logger"
	"github.com/dusk-indust/reportgen/internal/store"
	"github.com/dusk-indust/reportgen/internal/telemetry"
)

// Reconciler brings a job's stored status back in line with its records.
type Reconciler interface {
	Reconcile(ctx context.Context, jobID uuid.UUID) (store.JobStatus, error)
}

// Compile-time check.
var _ Reconciler = (*Controller)(nil)

// Reconcile is called for jobs that had a section reaped. A job with no live
// run is settled here. A live run is hung on the reaped section, so it is
// canceled and given SettleTimeout to settle the job itself; a run that
// ignores cancellation is reported as generating.
func (c *Controller) Reconcile(ctx context.Context, jobID uuid.UUID) (store.JobStatus, error) {
	job, err := c.store.GetJobByID(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return "", fmt.Errorf("orchestrator: load job: %w", err)
	}

	key := JobKey(job.SubjectID, job.Variant)
	if !c.registry.Active(key) {
		return c.settle(ctx, job, true)
	}

	c.log.Warn("canceling hung run", "job", job.ID, "key", key)
	c.registry.Cancel(key)
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.SettleTimeout)
	defer cancel()
	if err := c.registry.WaitKey(waitCtx, key); err != nil {
		c.log.Error("hung run did not stop", "job", job.ID, "error", err)
		return store.JobGenerating, nil
	}

	settled, err := c.store.GetJobByID(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		// Every section had failed and the run cleaned the job up.
		return store.JobFailed, nil
	}
	if err != nil {
		return "", fmt.Errorf("orchestrator: load job: %w", err)
	}
	return settled.Status, nil
}

// SweepResult describes one reaper pass.
type SweepResult struct {
	Count    int                        `json:"count"`
	Sections []store.StalledSection     `json:"sections"`
	Jobs     map[string]store.JobStatus `json:"jobs,omitempty"`
}

// Reaper fails sections that have been generating for longer than the stall
// threshold.
type Reaper struct {
	store      store.Store
	reconciler Reconciler
	threshold  time.Duration
	interval   time.Duration
	log        *logger.Logger
	now        func() time.Time
}

// NewReaper builds a Reaper. reconciler may be nil, in which case affected
// jobs are not re-settled.
func NewReaper(cfg Config, st store.Store, reconciler Reconciler, log *logger.Logger) *Reaper {
	cfg = cfg.withDefaults()
	return &Reaper{
		store:      st,
		reconciler: reconciler,
		threshold:  cfg.StallThreshold,
		interval:   cfg.SweepInterval,
		log:        logger.OrNop(log).With("component", "reaper"),
		now:        time.Now,
	}
}

// Sweep runs one pass.
func (r *Reaper) Sweep(ctx context.Context) (_ *SweepResult, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "report.sweep")
	defer func() { telemetry.End(span, err) }()

	cutoff := r.now().Add(-r.threshold)
	msg := "generation timed out after " + humanDuration(r.threshold)

	stalled, err := r.store.FailStalled(ctx, cutoff, string(generator.KindStalled), msg)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: sweep: %w", err)
	}
	span.SetAttributes(attribute.Int("report.stalled", len(stalled)))
	result := &SweepResult{Count: len(stalled), Sections: stalled}
	if result.Sections == nil {
		result.Sections = []store.StalledSection{}
	}
	if len(stalled) == 0 || r.reconciler == nil {
		return result, nil
	}

	affected := make(map[uuid.UUID]bool)
	for _, s := range stalled {
		affected[s.JobID] = true
	}
	result.Jobs = make(map[string]store.JobStatus, len(affected))
	for _, id := range sortedKeys(affected) {
		status, err := r.reconciler.Reconcile(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrJobNotFound) {
				r.log.Error("reconcile job", "job", id, "error", err)
			}
			continue
		}
		result.Jobs[id.String()] = status
	}

	r.log.Warn("reaped stalled sections", "count", result.Count, "jobs", len(affected))
	return result, nil
}

// Run sweeps every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// humanDuration renders whole minutes as "N minute(s)" and anything else in
// Go duration syntax rounded to the second.
func humanDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		n := int(d / time.Minute)
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	}
	if d >= time.Second {
		d = d.Round(time.Second)
	}
	return d.String()
}
