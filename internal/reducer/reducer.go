// Package reducer holds the single source of truth for workflow state
// transitions: a pure fold of one event into a prior state.
//
// Apply never mutates either argument and performs no I/O. The returned
// state is always a fresh object, so two calls with deep-equal inputs
// produce deep-equal (non-identical) outputs. Administrative actions
// (pause_workflow, cancel_workflow) are idempotent modulo the event
// counter.
package reducer

import (
	"github.com/corvid-labs/chronicle/pkg/api"
)

// NextStepComplete is the sentinel next_step value that marks the
// workflow as finished.
const NextStepComplete = "workflow_complete"

// Apply folds a single event into the state and returns the new state.
// Unknown actions fail with a ValidationError; every member of the
// api.Action enum is matched explicitly.
func Apply(state *api.WorkflowState, event api.WorkflowEvent) (*api.WorkflowState, error) {
	if state == nil {
		state = api.NewState(event.WorkflowID)
	}
	next := state.Clone()
	next.EventCount++

	switch event.Action {
	case api.ActionStartWorkflow:
		applyStart(next, event)
	case api.ActionCompleteStep:
		applyCompleteStep(next, event)
	case api.ActionFailStep:
		applyFailStep(next, event)
	case api.ActionApproveGate:
		applyApproveGate(next, event)
	case api.ActionRejectGate:
		applyRejectGate(next, event)
	case api.ActionPauseWorkflow:
		next.Status = api.StatusPaused
		next.PausedStep = event.StepID
		next.PauseReason = stringField(event.Data, "reason")
	case api.ActionResumeWorkflow:
		next.Status = api.StatusRunning
		next.PausedStep = ""
		next.PauseReason = ""
		next.Resumes = append(next.Resumes, api.ResumeRecord{
			StepID:   event.StepID,
			Decision: stringField(event.Data, "decision"),
			At:       event.Timestamp,
		})
		if event.StepID != "" {
			next.CurrentStep = event.StepID
		}
	case api.ActionRollbackStep:
		applyRollback(next, event)
	case api.ActionCancelWorkflow:
		next.Status = api.StatusCancelled
		next.CancelReason = stringField(event.Data, "reason")
		next.CancelledBy = stringField(event.Data, "actor")
		if next.EndedAt.IsZero() {
			next.EndedAt = event.Timestamp
		}
	case api.ActionRetryStep:
		next.Retries[event.StepID]++
		if next.Status == api.StatusFailed {
			next.Status = api.StatusRunning
		}
	case api.ActionStartChildWorkflow:
		next.ChildWorkflows = append(next.ChildWorkflows, api.ChildWorkflow{
			WorkflowID:   stringField(event.Data, "child_workflow_id"),
			ParentStepID: event.StepID,
			Status:       api.StatusRunning,
			StartedAt:    event.Timestamp,
		})
	case api.ActionChildWorkflowComplete:
		applyChildComplete(next, event)
	case api.ActionCreateSnapshot:
		next.Snapshots = append(next.Snapshots, api.Snapshot{
			EventCount: next.EventCount,
			At:         event.Timestamp,
		})
	case api.ActionAnnotate:
		next.Annotations = append(next.Annotations, api.Annotation{
			Author: stringField(event.Data, "author"),
			Text:   stringField(event.Data, "text"),
			At:     event.Timestamp,
		})
	case api.ActionCaptureInsight:
		next.Insights = append(next.Insights, api.Insight{
			Category: stringField(event.Data, "category"),
			Data:     api.CloneMap(mapField(event.Data, "insight")),
			At:       event.Timestamp,
		})
	default:
		return nil, &api.ValidationError{
			Field:  "action",
			Reason: "unknown action " + string(event.Action),
		}
	}

	return next, nil
}

func applyStart(s *api.WorkflowState, e api.WorkflowEvent) {
	s.WorkflowID = e.WorkflowID
	s.ParentWorkflowID = e.ParentWorkflowID
	s.Status = api.StatusRunning
	s.TemplateName = stringField(e.Data, "template_name")
	s.Context = api.CloneMap(mapField(e.Data, "context"))
	s.CurrentStep = e.StepID
	s.StartedAt = e.Timestamp
	s.StepsCompleted = []string{}
	s.StepsFailed = []string{}
}

func applyCompleteStep(s *api.WorkflowState, e api.WorkflowEvent) {
	s.StepsCompleted = append(s.StepsCompleted, e.StepID)
	if out, ok := e.Data["output"]; ok {
		s.Outputs[e.StepID] = api.CloneValue(out)
	}

	nextStep := stringField(e.Data, "next_step")
	if nextStep == "" || nextStep == NextStepComplete {
		s.Status = api.StatusCompleted
		s.CurrentStep = ""
		if s.EndedAt.IsZero() {
			s.EndedAt = e.Timestamp
		}
		return
	}
	s.CurrentStep = nextStep
}

func applyFailStep(s *api.WorkflowState, e api.WorkflowEvent) {
	s.Status = api.StatusFailed
	s.StepsFailed = append(s.StepsFailed, e.StepID)
	errType := stringField(e.Data, "error_type")
	if errType == "" {
		errType = "StepExecutionError"
	}
	s.LastError = &api.StepError{
		Type:      errType,
		Message:   stringField(e.Data, "error"),
		Retriable: boolField(e.Data, "retriable"),
	}
	if s.EndedAt.IsZero() {
		s.EndedAt = e.Timestamp
	}
}

func applyApproveGate(s *api.WorkflowState, e api.WorkflowEvent) {
	s.Approvals[e.StepID] = api.GateDecision{
		Actor:   stringField(e.Data, "approver"),
		Role:    stringField(e.Data, "role"),
		Comment: stringField(e.Data, "comment"),
		At:      e.Timestamp,
	}
	if s.Status == api.StatusPaused {
		s.Status = api.StatusRunning
		s.PausedStep = ""
		s.PauseReason = ""
	}
}

func applyRejectGate(s *api.WorkflowState, e api.WorkflowEvent) {
	s.Status = api.StatusRejected
	s.Rejections[e.StepID] = api.GateDecision{
		Actor:   stringField(e.Data, "rejector"),
		Role:    stringField(e.Data, "role"),
		Comment: stringField(e.Data, "reason"),
		At:      e.Timestamp,
	}
	s.PausedStep = ""
	s.PauseReason = ""
	if s.EndedAt.IsZero() {
		s.EndedAt = e.Timestamp
	}
}

func applyRollback(s *api.WorkflowState, e api.WorkflowEvent) {
	delete(s.Outputs, e.StepID)
	kept := s.StepsCompleted[:0]
	for _, id := range s.StepsCompleted {
		if id != e.StepID {
			kept = append(kept, id)
		}
	}
	s.StepsCompleted = kept
	s.Rollbacks = append(s.Rollbacks, api.RollbackRecord{
		StepID: e.StepID,
		Reason: stringField(e.Data, "reason"),
		At:     e.Timestamp,
	})
}

func applyChildComplete(s *api.WorkflowState, e api.WorkflowEvent) {
	childID := stringField(e.Data, "child_workflow_id")
	status := api.Status(stringField(e.Data, "status"))
	if status == "" {
		status = api.StatusCompleted
	}
	for i := range s.ChildWorkflows {
		if s.ChildWorkflows[i].WorkflowID == childID {
			s.ChildWorkflows[i].Status = status
			s.ChildWorkflows[i].CompletedAt = e.Timestamp
			return
		}
	}
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	v, _ := data[key].(string)
	return v
}

func boolField(data map[string]any, key string) bool {
	if data == nil {
		return false
	}
	v, _ := data[key].(bool)
	return v
}

func mapField(data map[string]any, key string) map[string]any {
	if data == nil {
		return nil
	}
	v, _ := data[key].(map[string]any)
	return v
}
