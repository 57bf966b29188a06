package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/dusk-indust/reportgen/internal/store"
)

// cleanup deletes a job and all of its section records so that the next
// Initiate for the same subject and variant behaves as a first attempt.
func (c *Controller) cleanup(ctx context.Context, job *store.Job, reason string) error {
	err := c.store.DeleteJob(ctx, job.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("orchestrator: cleanup job %s: %w", job.ID, err)
	}
	c.log.Warn("job cleaned up", "job", job.ID, "subject", job.SubjectID, "variant", job.Variant, "reason", reason)
	return nil
}
