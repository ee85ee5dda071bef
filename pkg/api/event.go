package api

import (
	"time"

	"github.com/google/uuid"
)

// Action identifies the kind of state transition a WorkflowEvent records.
//
// The set is closed: the reducer matches it exhaustively, so adding a new
// action is a compile-visible exercise (extend the enum, the reducer and
// Valid together).
type Action string

const (
	ActionStartWorkflow         Action = "start_workflow"
	ActionCompleteStep          Action = "complete_step"
	ActionFailStep              Action = "fail_step"
	ActionApproveGate           Action = "approve_gate"
	ActionRejectGate            Action = "reject_gate"
	ActionPauseWorkflow         Action = "pause_workflow"
	ActionResumeWorkflow        Action = "resume_workflow"
	ActionRollbackStep          Action = "rollback_step"
	ActionCancelWorkflow        Action = "cancel_workflow"
	ActionRetryStep             Action = "retry_step"
	ActionStartChildWorkflow    Action = "start_child_workflow"
	ActionChildWorkflowComplete Action = "child_workflow_complete"
	ActionCreateSnapshot        Action = "create_snapshot"
	ActionAnnotate              Action = "annotate"
	ActionCaptureInsight        Action = "capture_insight"
)

// Actions lists every known action in a stable order.
var Actions = []Action{
	ActionStartWorkflow,
	ActionCompleteStep,
	ActionFailStep,
	ActionApproveGate,
	ActionRejectGate,
	ActionPauseWorkflow,
	ActionResumeWorkflow,
	ActionRollbackStep,
	ActionCancelWorkflow,
	ActionRetryStep,
	ActionStartChildWorkflow,
	ActionChildWorkflowComplete,
	ActionCreateSnapshot,
	ActionAnnotate,
	ActionCaptureInsight,
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionStartWorkflow, ActionCompleteStep, ActionFailStep,
		ActionApproveGate, ActionRejectGate,
		ActionPauseWorkflow, ActionResumeWorkflow,
		ActionRollbackStep, ActionCancelWorkflow, ActionRetryStep,
		ActionStartChildWorkflow, ActionChildWorkflowComplete,
		ActionCreateSnapshot, ActionAnnotate, ActionCaptureInsight:
		return true
	}
	return false
}

// Event schema versions. Version 1 events predate signing and carry no
// signature; version 2 events are HMAC-signed over their canonical form.
const (
	EventVersionLegacy  = 1
	EventVersionCurrent = 2
)

// WorkflowEvent is an immutable, append-only fact in a workflow's stream.
//
// Events are never updated in place. The JSON field names below are a
// bit-exact contract with the persistence layer and export tooling; do not
// rename them.
type WorkflowEvent struct {
	EventID          string         `json:"event_id"`
	WorkflowID       string         `json:"workflow_id"`
	ParentWorkflowID string         `json:"parent_workflow_id,omitempty"`
	Action           Action         `json:"action"`
	StepID           string         `json:"step_id,omitempty"`
	Data             map[string]any `json:"data,omitempty"`

	// Timestamp defines replay order within a stream. Ties are broken by
	// the store's insertion sequence.
	Timestamp time.Time `json:"timestamp"`

	EventVersion int `json:"event_version"`

	// Signature is a hex-encoded HMAC-SHA256 over the canonical form of
	// all other fields. Empty only for EventVersionLegacy events.
	Signature string `json:"signature,omitempty"`
}

// NewEvent builds an unsigned, current-version event with a fresh id and
// the given timestamp.
func NewEvent(workflowID string, action Action, stepID string, data map[string]any, at time.Time) WorkflowEvent {
	return WorkflowEvent{
		EventID:      uuid.NewString(),
		WorkflowID:   workflowID,
		Action:       action,
		StepID:       stepID,
		Data:         data,
		Timestamp:    at,
		EventVersion: EventVersionCurrent,
	}
}

// Validate performs structural checks on the event.
func (e WorkflowEvent) Validate() error {
	if e.EventID == "" {
		return &ValidationError{Field: "event_id", Reason: "required"}
	}
	if e.WorkflowID == "" {
		return &ValidationError{Field: "workflow_id", Reason: "required"}
	}
	if !e.Action.Valid() {
		return &ValidationError{Field: "action", Reason: "unknown action " + string(e.Action)}
	}
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "required"}
	}
	if e.EventVersion != EventVersionLegacy && e.EventVersion != EventVersionCurrent {
		return &ValidationError{Field: "event_version", Reason: "must be 1 or 2"}
	}
	return nil
}

// Clone returns a deep copy of the event. The Data payload is copied
// recursively so callers can never alias the original.
func (e WorkflowEvent) Clone() WorkflowEvent {
	out := e
	out.Data = cloneMap(e.Data)
	return out
}

// CloneMap deep-copies a structured payload (maps and slices copied
// recursively). The reducer uses it so derived state never aliases
// event data.
func CloneMap(m map[string]any) map[string]any { return cloneMap(m) }

// CloneValue deep-copies an arbitrary structured value.
func CloneValue(v any) any { return cloneValue(v) }

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
