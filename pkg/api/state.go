package api

import "time"

// Status represents the lifecycle state of a workflow.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusRunning     Status = "running"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusRejected    Status = "rejected"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further steps may execute in this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// GateDecision records a human (or synthesized) approval or rejection.
type GateDecision struct {
	Actor   string    `json:"actor"`
	Role    string    `json:"role,omitempty"`
	Comment string    `json:"comment,omitempty"`
	At      time.Time `json:"at"`
}

// StepError is the structured error recorded by a fail_step event.
type StepError struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Retriable bool   `json:"retriable"`
}

// ChildWorkflow links a child workflow run to the parent step that
// spawned it.
type ChildWorkflow struct {
	WorkflowID   string    `json:"workflow_id"`
	ParentStepID string    `json:"parent_step_id"`
	Status       Status    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
}

// Snapshot marks how many events had been folded when it was created,
// so replay can fast-forward from a cached state.
type Snapshot struct {
	EventCount int       `json:"event_count"`
	At         time.Time `json:"at"`
}

// Annotation is an operator comment attached for incident review; it has
// no effect on workflow semantics.
type Annotation struct {
	Author string    `json:"author,omitempty"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// Insight is a structured cross-workflow learning record.
type Insight struct {
	Category string         `json:"category,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	At       time.Time      `json:"at"`
}

// RollbackRecord is the audit trail entry left by a rollback_step event.
type RollbackRecord struct {
	StepID string    `json:"step_id"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// ResumeRecord captures an explicit resume decision.
type ResumeRecord struct {
	StepID   string    `json:"step_id,omitempty"`
	Decision string    `json:"decision,omitempty"`
	At       time.Time `json:"at"`
}

// WorkflowState is the projection of a workflow's event stream. It is
// never stored directly; it is always derived by folding events through
// the reducer.
type WorkflowState struct {
	WorkflowID       string `json:"workflow_id"`
	ParentWorkflowID string `json:"parent_workflow_id,omitempty"`
	TemplateName     string `json:"template_name,omitempty"`

	Status      Status         `json:"status"`
	Context     map[string]any `json:"context,omitempty"`
	CurrentStep string         `json:"current_step,omitempty"`

	StepsCompleted []string       `json:"steps_completed"`
	StepsFailed    []string       `json:"steps_failed"`
	Outputs        map[string]any `json:"outputs"`

	Approvals  map[string]GateDecision `json:"approvals"`
	Rejections map[string]GateDecision `json:"rejections"`
	Retries    map[string]int          `json:"retries"`

	// ResourceLocks reflects locks the engine reported as held via event
	// payloads; authoritative lock state lives in the lock store.
	ResourceLocks map[string]bool `json:"resource_locks,omitempty"`

	ChildWorkflows []ChildWorkflow  `json:"child_workflows,omitempty"`
	Snapshots      []Snapshot       `json:"snapshots,omitempty"`
	Annotations    []Annotation     `json:"annotations,omitempty"`
	Insights       []Insight        `json:"captured_insights,omitempty"`
	Rollbacks      []RollbackRecord `json:"rollbacks,omitempty"`
	Resumes        []ResumeRecord   `json:"resumes,omitempty"`

	PausedStep  string `json:"paused_step,omitempty"`
	PauseReason string `json:"pause_reason,omitempty"`

	CancelReason string `json:"cancel_reason,omitempty"`
	CancelledBy  string `json:"cancelled_by,omitempty"`

	LastError *StepError `json:"last_error,omitempty"`

	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`

	// EventCount is the number of events folded into this state.
	EventCount int `json:"event_count"`
}

// NewState returns the seed state that replay starts from.
func NewState(workflowID string) *WorkflowState {
	return &WorkflowState{
		WorkflowID:     workflowID,
		Status:         StatusInitialized,
		StepsCompleted: []string{},
		StepsFailed:    []string{},
		Outputs:        map[string]any{},
		Approvals:      map[string]GateDecision{},
		Rejections:     map[string]GateDecision{},
		Retries:        map[string]int{},
	}
}

// Clone returns a deep copy of the state. The reducer relies on this to
// honor its never-mutate contract structurally rather than by convention.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	out := *s
	out.Context = cloneMap(s.Context)
	out.StepsCompleted = append([]string{}, s.StepsCompleted...)
	out.StepsFailed = append([]string{}, s.StepsFailed...)

	out.Outputs = make(map[string]any, len(s.Outputs))
	for k, v := range s.Outputs {
		out.Outputs[k] = cloneValue(v)
	}
	out.Approvals = make(map[string]GateDecision, len(s.Approvals))
	for k, v := range s.Approvals {
		out.Approvals[k] = v
	}
	out.Rejections = make(map[string]GateDecision, len(s.Rejections))
	for k, v := range s.Rejections {
		out.Rejections[k] = v
	}
	out.Retries = make(map[string]int, len(s.Retries))
	for k, v := range s.Retries {
		out.Retries[k] = v
	}
	if s.ResourceLocks != nil {
		out.ResourceLocks = make(map[string]bool, len(s.ResourceLocks))
		for k, v := range s.ResourceLocks {
			out.ResourceLocks[k] = v
		}
	}
	out.ChildWorkflows = append([]ChildWorkflow(nil), s.ChildWorkflows...)
	out.Snapshots = append([]Snapshot(nil), s.Snapshots...)
	out.Rollbacks = append([]RollbackRecord(nil), s.Rollbacks...)
	out.Resumes = append([]ResumeRecord(nil), s.Resumes...)

	out.Annotations = make([]Annotation, len(s.Annotations))
	copy(out.Annotations, s.Annotations)
	out.Insights = make([]Insight, len(s.Insights))
	for i, in := range s.Insights {
		in.Data = cloneMap(in.Data)
		out.Insights[i] = in
	}
	if s.LastError != nil {
		le := *s.LastError
		out.LastError = &le
	}
	return &out
}

// Output returns the recorded output of a completed step, if any.
func (s *WorkflowState) Output(stepID string) (any, bool) {
	v, ok := s.Outputs[stepID]
	return v, ok
}

// Completed reports whether stepID is in the completed list.
func (s *WorkflowState) Completed(stepID string) bool {
	for _, id := range s.StepsCompleted {
		if id == stepID {
			return true
		}
	}
	return false
}
