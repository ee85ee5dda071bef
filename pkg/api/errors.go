package api

import (
	"fmt"
	"strings"
)

// ValidationError indicates that an event or template failed a
// structural check.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// TamperedEventError indicates that signature verification failed for
// one or more events. It must never be silently ignored.
type TamperedEventError struct {
	WorkflowID string
	EventIDs   []string
}

func (e *TamperedEventError) Error() string {
	return fmt.Sprintf("tampered event(s) in workflow %s: %s",
		e.WorkflowID, strings.Join(e.EventIDs, ", "))
}

// ChainIntegrityError indicates a cyclic parent reference or a parent
// chain deeper than the hard cap.
type ChainIntegrityError struct {
	WorkflowID string
	Reason     string
}

func (e *ChainIntegrityError) Error() string {
	return fmt.Sprintf("workflow chain %s: %s", e.WorkflowID, e.Reason)
}

// StepExecutionError wraps a failure raised by a step's external
// collaborator. The engine records it as a fail_step event before
// surfacing it to the caller.
type StepExecutionError struct {
	WorkflowID string
	StepID     string
	Retriable  bool
	Err        error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s of workflow %s failed: %v", e.StepID, e.WorkflowID, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// LockAcquisitionError indicates a named resource lock was unavailable.
type LockAcquisitionError struct {
	Lock       string
	WorkflowID string
}

func (e *LockAcquisitionError) Error() string {
	return fmt.Sprintf("resource lock %q unavailable for workflow %s", e.Lock, e.WorkflowID)
}
