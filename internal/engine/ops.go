package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corvid-labs/chronicle/internal/replay"
	"github.com/corvid-labs/chronicle/internal/signature"
	"github.com/corvid-labs/chronicle/pkg/api"
)

// Administrative and query operations. Every mutation below goes
// through the same emit path as the execution loop, so it is signed and
// persisted before it takes effect.

// State reconstructs the current state of a workflow from its events.
func (e *Engine) State(ctx context.Context, workflowID string) (*api.WorkflowState, error) {
	return e.loadState(ctx, workflowID)
}

// StateAt reconstructs the workflow's state as of the given instant.
func (e *Engine) StateAt(ctx context.Context, workflowID string, at time.Time) (*api.WorkflowState, error) {
	events, err := e.events.ListEvents(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return replay.StateAt(events, at)
}

// History returns the ordered event stream of a workflow.
func (e *Engine) History(ctx context.Context, workflowID string) ([]api.WorkflowEvent, error) {
	return e.events.ListEvents(ctx, workflowID)
}

// ValidateHistory verifies the signatures of every event in the
// workflow's stream.
func (e *Engine) ValidateHistory(ctx context.Context, workflowID string, mode signature.VerifyMode) error {
	events, err := e.events.ListEvents(ctx, workflowID)
	if err != nil {
		return err
	}
	return e.signer.ValidateEventChain(events, mode)
}

// MigrateHistory returns the workflow's events with every legacy
// (version 1) event re-signed under the current schema version. The
// transform is pure; persisting the result is the caller's decision,
// typically into a fresh store during a migration run.
func (e *Engine) MigrateHistory(ctx context.Context, workflowID string) ([]api.WorkflowEvent, error) {
	events, err := e.events.ListEvents(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return e.signer.MigrateAll(events)
}

// Cancel terminally stops a workflow. Once applied, the engine refuses
// to execute further steps for this workflow id. Cancelling an already
// terminal workflow is a no-op.
func (e *Engine) Cancel(ctx context.Context, workflowID, reason, actor string) (*api.WorkflowState, error) {
	state, err := e.loadState(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if state.Status.Terminal() {
		return state, nil
	}
	return e.emit(ctx, state, api.NewEvent(workflowID, api.ActionCancelWorkflow, "", map[string]any{
		"reason": reason,
		"actor":  actor,
	}, e.clock()))
}

// Pause suspends a running workflow at its current step, for operator
// intervention outside approval gates.
func (e *Engine) Pause(ctx context.Context, workflowID, reason string) (*api.WorkflowState, error) {
	state, err := e.loadState(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if state.Status != api.StatusRunning {
		return nil, fmt.Errorf("engine: cannot pause workflow %s in status %s", workflowID, state.Status)
	}
	state, err = e.emit(ctx, state, api.NewEvent(workflowID, api.ActionPauseWorkflow, state.CurrentStep, map[string]any{
		"reason": reason,
	}, e.clock()))
	if err != nil {
		return state, err
	}
	e.observer.OnWorkflowPaused(ctx, workflowID, state.PausedStep)
	return state, nil
}

// Continue resumes an operator-paused workflow at the step where it
// stopped.
func (e *Engine) Continue(ctx context.Context, workflowID string) (*api.WorkflowState, error) {
	state, err := e.loadState(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if state.Status != api.StatusPaused {
		return nil, fmt.Errorf("engine: cannot continue workflow %s in status %s", workflowID, state.Status)
	}
	resumeAt := state.PausedStep

	tpl, err := e.templates.Template(state.TemplateName)
	if err != nil {
		return nil, err
	}
	state, err = e.emit(ctx, state, api.NewEvent(workflowID, api.ActionResumeWorkflow, resumeAt, map[string]any{
		"decision": "continue",
	}, e.clock()))
	if err != nil {
		return state, err
	}
	e.observer.OnWorkflowResumed(ctx, workflowID, resumeAt, "continue")
	return e.runLoop(ctx, tpl, state, resumeAt)
}

// Rollback removes a completed step's output and completion record,
// leaving an audit trail entry. It does not re-execute anything.
func (e *Engine) Rollback(ctx context.Context, workflowID, stepID, reason string) (*api.WorkflowState, error) {
	state, err := e.loadState(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if !state.Completed(stepID) {
		return nil, &api.ValidationError{Field: "step_id", Reason: "step " + stepID + " is not completed"}
	}
	return e.emit(ctx, state, api.NewEvent(workflowID, api.ActionRollbackStep, stepID, map[string]any{
		"reason": reason,
	}, e.clock()))
}

// Snapshot appends a snapshot marker recording the current event count,
// enabling fast-forward replay from a cached state.
func (e *Engine) Snapshot(ctx context.Context, workflowID string) (*api.WorkflowState, error) {
	state, err := e.loadState(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return e.emit(ctx, state, api.NewEvent(workflowID, api.ActionCreateSnapshot, "", nil, e.clock()))
}

// Annotate appends an operator comment for incident review; it has no
// effect on workflow semantics.
func (e *Engine) Annotate(ctx context.Context, workflowID, author, text string) (*api.WorkflowState, error) {
	state, err := e.loadState(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return e.emit(ctx, state, api.NewEvent(workflowID, api.ActionAnnotate, "", map[string]any{
		"author": author,
		"text":   text,
	}, e.clock()))
}

// CaptureInsight appends a structured cross-workflow learning record
// for later retrieval by other workflows.
func (e *Engine) CaptureInsight(ctx context.Context, workflowID, category string, insight map[string]any) (*api.WorkflowState, error) {
	state, err := e.loadState(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return e.emit(ctx, state, api.NewEvent(workflowID, api.ActionCaptureInsight, "", map[string]any{
		"category": category,
		"insight":  insight,
	}, e.clock()))
}

// StartChild runs a child workflow linked to a step of the parent. The
// link is recorded on the parent before the child starts, and the
// child's terminal status is recorded on the parent when the run
// returns. A paused child leaves its parent record in the running state
// until reconciliation completes it.
func (e *Engine) StartChild(ctx context.Context, parentWorkflowID, parentStepID, templateName string, childContext map[string]any) (*api.WorkflowState, error) {
	parent, err := e.loadState(ctx, parentWorkflowID)
	if err != nil {
		return nil, err
	}
	if parent.Status == api.StatusCancelled {
		return nil, fmt.Errorf("engine: cannot start child of cancelled workflow %s", parentWorkflowID)
	}

	childID := uuid.NewString()
	parent, err = e.emit(ctx, parent, api.NewEvent(parentWorkflowID, api.ActionStartChildWorkflow, parentStepID, map[string]any{
		"child_workflow_id": childID,
	}, e.clock()))
	if err != nil {
		return nil, err
	}

	child, runErr := e.Start(ctx, StartRequest{
		WorkflowID:       childID,
		TemplateName:     templateName,
		Context:          childContext,
		ParentWorkflowID: parentWorkflowID,
	})
	if child != nil && child.Status.Terminal() {
		if _, err := e.emit(ctx, parent, api.NewEvent(parentWorkflowID, api.ActionChildWorkflowComplete, parentStepID, map[string]any{
			"child_workflow_id": childID,
			"status":            string(child.Status),
		}, e.clock())); err != nil {
			return child, err
		}
	}
	return child, runErr
}

// Chain reconstructs the workflow's ancestry: the states of the root
// ancestor down to the given workflow, in chronological order.
func (e *Engine) Chain(ctx context.Context, workflowID string) ([]*api.WorkflowState, error) {
	return replay.Chain(ctx, workflowID, e.events.ListEvents)
}

// ChainIDs returns the workflow ids of the ancestry chain, root first.
func (e *Engine) ChainIDs(ctx context.Context, workflowID string) ([]string, error) {
	return replay.ChainIDs(ctx, workflowID, e.events.ListEvents)
}

// Depth returns the length of the workflow's ancestry chain.
func (e *Engine) Depth(ctx context.Context, workflowID string) (int, error) {
	return replay.Depth(ctx, workflowID, e.events.ListEvents)
}
