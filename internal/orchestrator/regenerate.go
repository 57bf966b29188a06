package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/dusk-indust/reportgen/internal/store"
)

// SectionResult is the outcome of a single-section regeneration.
type SectionResult struct {
	SectionID int                 `json:"sectionId"`
	Name      string              `json:"name"`
	Status    store.SectionStatus `json:"status"`
	Error     string              `json:"error,omitempty"`
	ErrorKind string              `json:"errorKind,omitempty"`
	Attempts  int                 `json:"attempts"`
	JobStatus store.JobStatus     `json:"jobStatus"`
}

// RegenerateSection resets one section of an existing job and generates it
// again, synchronously, with current upstream data. Other sections are not
// touched, including those that depend on this one. It is rejected while a
// full run of the same job is live.
func (c *Controller) RegenerateSection(ctx context.Context, subjectID, variant string, sectionID int) (*SectionResult, error) {
	job, err := c.store.GetJob(ctx, subjectID, variant)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, JobKey(subjectID, variant))
	}
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load job: %w", err)
	}

	if _, err := c.store.GetSection(ctx, job.ID, sectionID); errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: section %d of %s", ErrSectionNotFound, sectionID, JobKey(subjectID, variant))
	} else if err != nil {
		return nil, fmt.Errorf("orchestrator: load section: %w", err)
	}
	def, ok := c.catalog.Section(sectionID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSection, sectionID)
	}

	key := JobKey(subjectID, variant)
	if c.isClosed() || c.registry.Active(key) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInProgress, key)
	}
	lock, err := c.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer c.release(lock)

	payload, err := c.loadPayload(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	if err := c.store.ResetSection(ctx, job.ID, sectionID); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: section %d is generating", ErrAlreadyInProgress, sectionID)
		}
		return nil, fmt.Errorf("orchestrator: reset section: %w", err)
	}
	c.emitSection(job, def, store.SectionPending, "")

	log := c.log.With("job", job.ID, "subject", subjectID, "variant", variant, "regenerate", true)
	c.generateSection(ctx, log, job, def, payload, false)

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.SettleTimeout)
	defer cancel()
	status, err := c.settle(settleCtx, job, false)
	if err != nil {
		return nil, err
	}

	rec, err := c.store.GetSection(settleCtx, job.ID, sectionID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load section: %w", err)
	}
	return &SectionResult{
		SectionID: sectionID,
		Name:      def.Name,
		Status:    rec.Status,
		Error:     rec.ErrorMessage,
		ErrorKind: rec.ErrorKind,
		Attempts:  rec.GenerationAttempts,
		JobStatus: status,
	}, nil
}
