package api

import (
	"fmt"
	"time"
)

// StepType determines how the engine dispatches a step.
type StepType string

const (
	StepAgentCall    StepType = "agent_call"
	StepHITLApproval StepType = "hitl_approval"
	StepConditional  StepType = "conditional"
	StepNotification StepType = "notification"
)

// GateType selects how a decision gate is evaluated.
type GateType string

const (
	GateLLMAssessment      GateType = "llm_assessment"
	GateDeterministicCheck GateType = "deterministic_check"
)

// DecisionGate routes a step's success edge through an extra decision:
// either an external LLM assessment or a deterministic condition over
// the workflow's context and outputs.
type DecisionGate struct {
	Type GateType `yaml:"type" json:"type"`

	// Condition is the boolean expression for deterministic_check gates.
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`

	// Prompt is passed to the external assessor for llm_assessment gates.
	Prompt string `yaml:"prompt,omitempty" json:"prompt,omitempty"`
}

// RetryPolicy controls how an agent_call step is retried on failure.
// MaxAttempts includes the first attempt; Backoff is the delay between
// attempts.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff,omitempty" json:"backoff,omitempty"`
}

// Step is one node of a workflow template.
type Step struct {
	ID   string   `yaml:"id" json:"id"`
	Type StepType `yaml:"type" json:"type"`

	// Params is the payload template rendered against context/outputs
	// before invoking the agent or notifier.
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`

	// Condition is the boolean expression evaluated by conditional steps.
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`

	// ResourceLock, if set, names a lock held for the duration of the step.
	ResourceLock string `yaml:"resource_lock,omitempty" json:"resource_lock,omitempty"`

	Gate  *DecisionGate `yaml:"decision_gate,omitempty" json:"decision_gate,omitempty"`
	Retry *RetryPolicy  `yaml:"retry,omitempty" json:"retry,omitempty"`

	// HITL fields. RiskFrom names a prior step whose output carries a
	// "risk" field; RiskOverride forces a level regardless of assessment.
	ApproverRole string `yaml:"approver_role,omitempty" json:"approver_role,omitempty"`
	RiskFrom     string `yaml:"risk_from,omitempty" json:"risk_from,omitempty"`
	RiskOverride string `yaml:"risk_override,omitempty" json:"risk_override,omitempty"`

	// Successor links. An empty successor ends the workflow.
	OnSuccess  string `yaml:"on_success,omitempty" json:"on_success,omitempty"`
	OnFailure  string `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`
	OnTrue     string `yaml:"on_true,omitempty" json:"on_true,omitempty"`
	OnFalse    string `yaml:"on_false,omitempty" json:"on_false,omitempty"`
	OnApproved string `yaml:"on_approved,omitempty" json:"on_approved,omitempty"`
	OnRejected string `yaml:"on_rejected,omitempty" json:"on_rejected,omitempty"`
}

// Template is a statically loaded workflow definition: an ordered set of
// steps with named successor links. Execution starts at the first step.
type Template struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []Step `yaml:"steps" json:"steps"`
}

// First returns the entry step of the template.
func (t Template) First() (Step, bool) {
	if len(t.Steps) == 0 {
		return Step{}, false
	}
	return t.Steps[0], true
}

// Step looks up a step by id.
func (t Template) Step(id string) (Step, bool) {
	for _, s := range t.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// Validate checks the template's structure: name and steps present,
// unique step ids, known step types, and every successor link resolving
// to an existing step.
func (t Template) Validate() error {
	if t.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if len(t.Steps) == 0 {
		return &ValidationError{Field: "steps", Reason: "template must have at least one step"}
	}

	ids := make(map[string]bool, len(t.Steps))
	for _, s := range t.Steps {
		if s.ID == "" {
			return &ValidationError{Field: "steps", Reason: "step id is required"}
		}
		if ids[s.ID] {
			return &ValidationError{Field: "steps", Reason: "duplicate step id " + s.ID}
		}
		ids[s.ID] = true

		switch s.Type {
		case StepAgentCall, StepHITLApproval, StepConditional, StepNotification:
		default:
			return &ValidationError{
				Field:  "steps." + s.ID + ".type",
				Reason: fmt.Sprintf("unknown step type %q", s.Type),
			}
		}

		if s.Type == StepConditional && s.Condition == "" {
			return &ValidationError{
				Field:  "steps." + s.ID + ".condition",
				Reason: "conditional step requires a condition",
			}
		}
		if s.Gate != nil {
			switch s.Gate.Type {
			case GateLLMAssessment, GateDeterministicCheck:
			default:
				return &ValidationError{
					Field:  "steps." + s.ID + ".decision_gate.type",
					Reason: fmt.Sprintf("unknown gate type %q", s.Gate.Type),
				}
			}
			if s.Gate.Type == GateDeterministicCheck && s.Gate.Condition == "" {
				return &ValidationError{
					Field:  "steps." + s.ID + ".decision_gate.condition",
					Reason: "deterministic_check gate requires a condition",
				}
			}
		}
	}

	for _, s := range t.Steps {
		for _, link := range []struct{ field, target string }{
			{"on_success", s.OnSuccess},
			{"on_failure", s.OnFailure},
			{"on_true", s.OnTrue},
			{"on_false", s.OnFalse},
			{"on_approved", s.OnApproved},
			{"on_rejected", s.OnRejected},
		} {
			if link.target != "" && !ids[link.target] {
				return &ValidationError{
					Field:  "steps." + s.ID + "." + link.field,
					Reason: "references unknown step " + link.target,
				}
			}
		}
	}
	return nil
}

// TemplateSource resolves template names to definitions. The engine
// takes it as an injected dependency so tests can supply fakes.
type TemplateSource interface {
	Template(name string) (Template, error)
}
