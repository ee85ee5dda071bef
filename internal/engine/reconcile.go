package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/corvid-labs/chronicle/pkg/api"
)

// ReconcileApprovals sweeps every paused workflow, polls the approval
// service for a decision on its gate, and resumes the ones that have
// one. It returns the number of workflows resumed. Workflows whose
// decision is still pending are left untouched.
//
// Run this periodically (or after an engine restart) so decisions made
// while no engine was watching are not lost.
func (e *Engine) ReconcileApprovals(ctx context.Context) (int, error) {
	if e.collab.Approvals == nil {
		return 0, errors.New("engine: reconcile requires an approval service")
	}

	ids, err := e.events.WorkflowIDs(ctx)
	if err != nil {
		return 0, err
	}

	resumed := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return resumed, err
		}

		state, err := e.loadState(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("workflow %s: %w", id, err))
			continue
		}
		if state.Status != api.StatusPaused || state.PausedStep == "" {
			continue
		}

		decision, err := e.collab.Approvals.PollDecision(ctx, id, state.PausedStep)
		if err != nil {
			errs = append(errs, fmt.Errorf("workflow %s: poll: %w", id, err))
			continue
		}
		if decision == nil {
			continue
		}

		if _, err := e.Resume(ctx, id, *decision); err != nil {
			// The decision was recorded; a failure in a later step does
			// not undo the resume, so count it.
			var stepErr *api.StepExecutionError
			if !errors.As(err, &stepErr) {
				errs = append(errs, fmt.Errorf("workflow %s: resume: %w", id, err))
				continue
			}
		}
		resumed++
	}

	return resumed, errors.Join(errs...)
}
