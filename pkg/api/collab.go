package api

import "context"

// The engine treats "what a step does" as an opaque external call. These
// interfaces are the seams to those collaborators; all of them are
// constructor-injected so the engine is testable with fakes.

// AgentCall is the rendered payload handed to the agent collaborator.
type AgentCall struct {
	WorkflowID string
	StepID     string
	Payload    map[string]any
}

// AgentInvoker executes agent_call steps.
type AgentInvoker interface {
	Invoke(ctx context.Context, call AgentCall) (map[string]any, error)
}

// RiskLevel classifies a hitl_approval step's risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskAssessor evaluates a pending approval's risk when the template
// does not supply one via a prior step output or an override.
type RiskAssessor interface {
	Assess(ctx context.Context, workflowID, stepID string, wfContext map[string]any) (RiskLevel, error)
}

// GateDecider answers llm_assessment decision gates.
type GateDecider interface {
	Decide(ctx context.Context, prompt string, wfContext map[string]any, outputs map[string]any) (bool, error)
}

// ApprovalRequest describes a pending human approval.
type ApprovalRequest struct {
	WorkflowID string
	StepID     string
	Role       string
	Risk       RiskLevel
	Summary    string
}

// ApprovalDecision is a human decision recorded out of band.
type ApprovalDecision struct {
	Approved bool
	Actor    string
	Role     string
	Comment  string
}

// ApprovalService creates approval requests and exposes decisions made
// while the workflow was paused. PollDecision returns nil when no
// decision has been recorded yet; the reconciliation sweep uses it as a
// backstop for missed resume notifications.
type ApprovalService interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) error
	PollDecision(ctx context.Context, workflowID, stepID string) (*ApprovalDecision, error)
}

// Notification is the rendered payload of a notification step.
type Notification struct {
	WorkflowID string
	StepID     string
	Payload    map[string]any
}

// Notifier forwards notifications. Delivery failures are the notifier's
// concern; the engine treats notification steps as locally successful.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// FailureHandler is invoked after a step failure has been durably
// recorded, before the error is re-raised to the engine's caller.
type FailureHandler interface {
	HandleFailure(ctx context.Context, workflowID, stepID string, err error)
}

// Collaborators bundles the external interfaces a template can reach.
// Nil fields are allowed when no template step needs them.
type Collaborators struct {
	Agent     AgentInvoker
	Approvals ApprovalService
	Risk      RiskAssessor
	Gate      GateDecider
	Notifier  Notifier
	Failures  FailureHandler
}
