// Package engine drives workflow templates: it executes steps against
// external collaborators, emits a signed event for every transition,
// manages resource locks, and implements pause/resume semantics around
// human approval gates.
//
// The engine is a single-threaded state machine per workflow: no two
// steps of the same workflow run concurrently. Many workflows may run
// concurrently on one Engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corvid-labs/chronicle/internal/persistence"
	"github.com/corvid-labs/chronicle/internal/reducer"
	"github.com/corvid-labs/chronicle/internal/replay"
	"github.com/corvid-labs/chronicle/internal/signature"
	"github.com/corvid-labs/chronicle/pkg/api"
)

// DefaultLockTTL bounds how long a crashed engine can hold a resource
// lock before another instance may steal it.
const DefaultLockTTL = time.Minute

// Config describes how to construct an Engine. Persistence, Signer and
// Templates are required; collaborators may be omitted when no template
// step needs them.
type Config struct {
	Persistence   persistence.Persistence
	Signer        *signature.Signer
	Templates     api.TemplateSource
	Collaborators api.Collaborators
	Observer      api.Observer

	// Clock is used for event timestamps; defaults to time.Now.
	Clock func() time.Time

	// LockOwner identifies this engine instance in the lock store;
	// defaults to a random id per Engine.
	LockOwner string
	LockTTL   time.Duration
}

// Engine is the orchestration loop over statically loaded templates.
type Engine struct {
	events    persistence.EventStore
	locks     persistence.LockStore
	signer    *signature.Signer
	templates api.TemplateSource
	collab    api.Collaborators
	observer  api.Observer
	clock     func() time.Time
	lockOwner string
	lockTTL   time.Duration
}

// New validates the config and returns an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Persistence.Events == nil {
		return nil, errors.New("engine: event store is required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("engine: signer is required")
	}
	if cfg.Templates == nil {
		return nil, errors.New("engine: template source is required")
	}

	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	owner := cfg.LockOwner
	if owner == "" {
		owner = "engine-" + uuid.NewString()
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	return &Engine{
		events:    cfg.Persistence.Events,
		locks:     cfg.Persistence.Locks,
		signer:    cfg.Signer,
		templates: cfg.Templates,
		collab:    cfg.Collaborators,
		observer:  obs,
		clock:     clock,
		lockOwner: owner,
		lockTTL:   ttl,
	}, nil
}

// StartRequest describes a new workflow run.
type StartRequest struct {
	// WorkflowID is optional; a UUID is generated when empty.
	WorkflowID   string
	TemplateName string
	Context      map[string]any

	// ParentWorkflowID links this run into a parent chain. Set once at
	// creation, immutable thereafter.
	ParentWorkflowID string
}

// Start begins a new workflow at its template's first step and runs it
// until completion, a pause, or a failure.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*api.WorkflowState, error) {
	tpl, err := e.templates.Template(req.TemplateName)
	if err != nil {
		return nil, err
	}
	first, ok := tpl.First()
	if !ok {
		return nil, &api.ValidationError{Field: "steps", Reason: "template has no steps"}
	}

	workflowID := req.WorkflowID
	if workflowID == "" {
		workflowID = uuid.NewString()
	}

	startEv := api.NewEvent(workflowID, api.ActionStartWorkflow, first.ID, map[string]any{
		"template_name": tpl.Name,
		"context":       req.Context,
	}, e.clock())
	startEv.ParentWorkflowID = req.ParentWorkflowID

	state := api.NewState(workflowID)
	state, err = e.emit(ctx, state, startEv)
	if err != nil {
		return nil, err
	}
	e.observer.OnWorkflowStart(ctx, workflowID, tpl.Name)

	return e.runLoop(ctx, tpl, state, first.ID)
}

// Resume applies a human decision to a paused workflow and continues
// execution from the gate's routing.
func (e *Engine) Resume(ctx context.Context, workflowID string, decision api.ApprovalDecision) (*api.WorkflowState, error) {
	state, err := e.loadState(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if state.Status != api.StatusPaused {
		return nil, fmt.Errorf("engine: cannot resume workflow %s in status %s", workflowID, state.Status)
	}

	tpl, err := e.templates.Template(state.TemplateName)
	if err != nil {
		return nil, err
	}
	step, ok := tpl.Step(state.PausedStep)
	if !ok {
		return nil, &api.ValidationError{Field: "paused_step", Reason: "unknown step " + state.PausedStep}
	}

	if decision.Approved {
		state, err = e.emit(ctx, state, api.NewEvent(workflowID, api.ActionApproveGate, step.ID, map[string]any{
			"approver": decision.Actor,
			"role":     decision.Role,
			"comment":  decision.Comment,
		}, e.clock()))
		if err != nil {
			return state, err
		}
		e.observer.OnWorkflowResumed(ctx, workflowID, step.ID, "approved")

		next := fallback(step.OnApproved, step.OnSuccess)
		state, err = e.completeStep(ctx, state, step.ID, map[string]any{"approved": true}, next)
		if err != nil {
			return state, err
		}
		if next == "" {
			e.observer.OnWorkflowCompleted(ctx, workflowID)
			return state, nil
		}
		return e.runLoop(ctx, tpl, state, next)
	}

	state, err = e.emit(ctx, state, api.NewEvent(workflowID, api.ActionRejectGate, step.ID, map[string]any{
		"rejector": decision.Actor,
		"role":     decision.Role,
		"reason":   decision.Comment,
	}, e.clock()))
	if err != nil {
		return state, err
	}
	e.observer.OnWorkflowResumed(ctx, workflowID, step.ID, "rejected")

	next := fallback(step.OnRejected, step.OnFailure)
	if next == "" {
		// Terminal rejection.
		return state, nil
	}
	// The template wires a rejection path; record the resume and keep
	// going.
	state, err = e.emit(ctx, state, api.NewEvent(workflowID, api.ActionResumeWorkflow, next, map[string]any{
		"decision": "rejected",
	}, e.clock()))
	if err != nil {
		return state, err
	}
	return e.runLoop(ctx, tpl, state, next)
}

// runLoop executes steps until there is no next step, a pause occurs,
// or an error is raised. External transitions (cancellation, decisions
// recorded by other processes) are picked up by reloading state before
// each dispatch.
func (e *Engine) runLoop(ctx context.Context, tpl api.Template, state *api.WorkflowState, stepID string) (*api.WorkflowState, error) {
	for stepID != "" {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		fresh, err := e.loadState(ctx, state.WorkflowID)
		if err != nil {
			return state, err
		}
		state = fresh
		if state.Status == api.StatusCancelled {
			return state, fmt.Errorf("engine: workflow %s is cancelled", state.WorkflowID)
		}
		if state.Status.Terminal() {
			return state, nil
		}

		step, ok := tpl.Step(stepID)
		if !ok {
			return state, &api.ValidationError{Field: "step", Reason: "unknown step " + stepID}
		}

		e.observer.OnStepStart(ctx, state.WorkflowID, step.ID, step.Type)
		started := e.clock()

		var (
			next   string
			paused bool
		)
		state, next, paused, err = e.dispatch(ctx, state, step)
		e.observer.OnStepCompleted(ctx, state.WorkflowID, step.ID, err, e.clock().Sub(started))
		if err != nil {
			return state, err
		}
		if paused {
			return state, nil
		}
		stepID = next
	}

	if state.Status == api.StatusCompleted {
		e.observer.OnWorkflowCompleted(ctx, state.WorkflowID)
	}
	return state, nil
}

// dispatch executes one step. The step's resource lock, when declared,
// is held for the duration of the dispatch and released regardless of
// outcome.
func (e *Engine) dispatch(ctx context.Context, state *api.WorkflowState, step api.Step) (_ *api.WorkflowState, next string, paused bool, err error) {
	if step.ResourceLock != "" {
		if e.locks == nil {
			return state, "", false, errors.New("engine: template declares resource locks but no lock store is configured")
		}
		acquired, lockErr := e.locks.TryAcquire(ctx, step.ResourceLock, e.lockOwner, e.lockTTL)
		if lockErr != nil {
			return state, "", false, lockErr
		}
		if !acquired {
			lockFail := &api.LockAcquisitionError{Lock: step.ResourceLock, WorkflowID: state.WorkflowID}
			return e.failStep(ctx, state, step, lockFail, false)
		}
		defer func() {
			_ = e.locks.Release(ctx, step.ResourceLock, e.lockOwner)
		}()
		// A step may run longer than one TTL; keep the lease alive until
		// the dispatch returns. Stops before Release (LIFO defers).
		stopRenewal := e.keepLockAlive(ctx, step.ResourceLock)
		defer stopRenewal()
	}

	switch step.Type {
	case api.StepAgentCall:
		return e.runAgentCall(ctx, state, step)
	case api.StepHITLApproval:
		return e.runApprovalGate(ctx, state, step)
	case api.StepConditional:
		return e.runConditional(ctx, state, step)
	case api.StepNotification:
		return e.runNotification(ctx, state, step)
	default:
		return state, "", false, &api.ValidationError{
			Field:  "steps." + step.ID + ".type",
			Reason: fmt.Sprintf("unknown step type %q", step.Type),
		}
	}
}

// keepLockAlive renews the named lease at half its TTL until the
// returned stop function is called, so a long-running locked step keeps
// mutual exclusion past the original lease expiry. Renewal stops
// silently if the lease was lost; the final Release is a no-op then.
func (e *Engine) keepLockAlive(ctx context.Context, name string) func() {
	interval := e.lockTTL / 2
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := e.locks.Renew(ctx, name, e.lockOwner, e.lockTTL); err != nil {
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

func (e *Engine) runAgentCall(ctx context.Context, state *api.WorkflowState, step api.Step) (*api.WorkflowState, string, bool, error) {
	if e.collab.Agent == nil {
		return state, "", false, errors.New("engine: template uses agent_call steps but no agent is configured")
	}

	maxAttempts := 1
	var backoff time.Duration
	if step.Retry != nil {
		if step.Retry.MaxAttempts > 0 {
			maxAttempts = step.Retry.MaxAttempts
		}
		backoff = step.Retry.Backoff
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		payload := renderParams(step.Params, state)
		result, callErr := e.collab.Agent.Invoke(ctx, api.AgentCall{
			WorkflowID: state.WorkflowID,
			StepID:     step.ID,
			Payload:    payload,
		})
		if callErr == nil {
			next, gateErr := e.successRoute(ctx, state, step, result)
			if gateErr != nil {
				return e.failStep(ctx, state, step, gateErr, false)
			}
			var err error
			state, err = e.completeStep(ctx, state, step.ID, result, next)
			return state, next, false, err
		}
		lastErr = callErr

		// Record the failed attempt durably before deciding whether to
		// retry.
		var err error
		state, err = e.emit(ctx, state, api.NewEvent(state.WorkflowID, api.ActionFailStep, step.ID, map[string]any{
			"error":     callErr.Error(),
			"retriable": attempt < maxAttempts,
		}, e.clock()))
		if err != nil {
			return state, "", false, err
		}

		if attempt == maxAttempts {
			break
		}
		state, err = e.emit(ctx, state, api.NewEvent(state.WorkflowID, api.ActionRetryStep, step.ID, nil, e.clock()))
		if err != nil {
			return state, "", false, err
		}
		if backoff > 0 {
			select {
			case <-ctx.Done():
				return state, "", false, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return e.failStep(ctx, state, step, lastErr, true)
}

func (e *Engine) runApprovalGate(ctx context.Context, state *api.WorkflowState, step api.Step) (*api.WorkflowState, string, bool, error) {
	risk, err := e.resolveRisk(ctx, state, step)
	if err != nil {
		return e.failStep(ctx, state, step, err, false)
	}

	if risk == api.RiskLow && step.ApproverRole == "" {
		// Low risk with no required approver role: approve immediately
		// without pausing.
		state, err = e.emit(ctx, state, api.NewEvent(state.WorkflowID, api.ActionApproveGate, step.ID, map[string]any{
			"approver": "system",
			"comment":  "auto-approved: low risk",
		}, e.clock()))
		if err != nil {
			return state, "", false, err
		}
		next := fallback(step.OnApproved, step.OnSuccess)
		state, err = e.completeStep(ctx, state, step.ID, map[string]any{"approved": true, "risk": string(risk)}, next)
		return state, next, false, err
	}

	if e.collab.Approvals != nil {
		req := api.ApprovalRequest{
			WorkflowID: state.WorkflowID,
			StepID:     step.ID,
			Role:       step.ApproverRole,
			Risk:       risk,
			Summary:    stringParam(step.Params, "summary"),
		}
		if reqErr := e.collab.Approvals.RequestApproval(ctx, req); reqErr != nil {
			return e.failStep(ctx, state, step, reqErr, false)
		}
	}

	state, err = e.emit(ctx, state, api.NewEvent(state.WorkflowID, api.ActionPauseWorkflow, step.ID, map[string]any{
		"reason": "awaiting approval",
		"risk":   string(risk),
	}, e.clock()))
	if err != nil {
		return state, "", false, err
	}
	e.observer.OnWorkflowPaused(ctx, state.WorkflowID, step.ID)
	return state, "", true, nil
}

func (e *Engine) runConditional(ctx context.Context, state *api.WorkflowState, step api.Step) (*api.WorkflowState, string, bool, error) {
	result, err := evalCondition(step.Condition, condEnv{context: state.Context, outputs: state.Outputs})
	if err != nil {
		return e.failStep(ctx, state, step, err, false)
	}

	next := step.OnFalse
	if result {
		next = step.OnTrue
	}
	state, err = e.completeStep(ctx, state, step.ID, map[string]any{"condition": result}, next)
	return state, next, false, err
}

func (e *Engine) runNotification(ctx context.Context, state *api.WorkflowState, step api.Step) (*api.WorkflowState, string, bool, error) {
	payload := renderParams(step.Params, state)
	if e.collab.Notifier != nil {
		// Delivery failures are the notifier's concern; the step always
		// succeeds locally.
		_ = e.collab.Notifier.Notify(ctx, api.Notification{
			WorkflowID: state.WorkflowID,
			StepID:     step.ID,
			Payload:    payload,
		})
	}

	next := step.OnSuccess
	state, err := e.completeStep(ctx, state, step.ID, payload, next)
	return state, next, false, err
}

// successRoute determines the next step after a successful agent call,
// consulting the step's decision gate if present.
func (e *Engine) successRoute(ctx context.Context, state *api.WorkflowState, step api.Step, result map[string]any) (string, error) {
	if step.Gate == nil {
		return step.OnSuccess, nil
	}

	outputs := make(map[string]any, len(state.Outputs)+1)
	for k, v := range state.Outputs {
		outputs[k] = v
	}
	// The gate sees the step's own result before it is committed.
	outputs[step.ID] = result

	switch step.Gate.Type {
	case api.GateDeterministicCheck:
		ok, err := evalCondition(step.Gate.Condition, condEnv{context: state.Context, outputs: outputs})
		if err != nil {
			return "", err
		}
		if ok {
			return step.OnSuccess, nil
		}
		return step.OnFailure, nil
	case api.GateLLMAssessment:
		if e.collab.Gate == nil {
			return "", errors.New("engine: template uses llm_assessment gates but no decider is configured")
		}
		ok, err := e.collab.Gate.Decide(ctx, step.Gate.Prompt, state.Context, outputs)
		if err != nil {
			return "", err
		}
		if ok {
			return step.OnSuccess, nil
		}
		return step.OnFailure, nil
	default:
		return "", &api.ValidationError{
			Field:  "steps." + step.ID + ".decision_gate.type",
			Reason: fmt.Sprintf("unknown gate type %q", step.Gate.Type),
		}
	}
}

// resolveRisk determines a hitl_approval step's risk level: an explicit
// override wins, then a prior step's output, then the external
// assessor. With no source at all the gate is treated as high risk, so
// it always pauses.
func (e *Engine) resolveRisk(ctx context.Context, state *api.WorkflowState, step api.Step) (api.RiskLevel, error) {
	if step.RiskOverride != "" {
		return api.RiskLevel(step.RiskOverride), nil
	}
	if step.RiskFrom != "" {
		if out, ok := state.Outputs[step.RiskFrom].(map[string]any); ok {
			if risk, ok := out["risk"].(string); ok && risk != "" {
				return api.RiskLevel(risk), nil
			}
		}
		return api.RiskHigh, nil
	}
	if e.collab.Risk != nil {
		return e.collab.Risk.Assess(ctx, state.WorkflowID, step.ID, state.Context)
	}
	return api.RiskHigh, nil
}

// completeStep emits the complete_step event for a step. An empty next
// step id marks the workflow completed.
func (e *Engine) completeStep(ctx context.Context, state *api.WorkflowState, stepID string, output map[string]any, next string) (*api.WorkflowState, error) {
	data := map[string]any{"output": output}
	if next != "" {
		data["next_step"] = next
	}
	return e.emit(ctx, state, api.NewEvent(state.WorkflowID, api.ActionCompleteStep, stepID, data, e.clock()))
}

// failStep records a fail_step event for stepErr and routes recovery:
// the failure is durably persisted first, then either the template's
// on_failure path continues the run or the error is surfaced to the
// caller. alreadyRecorded skips the fail_step emission for callers that
// have persisted the failure themselves.
func (e *Engine) failStep(ctx context.Context, state *api.WorkflowState, step api.Step, stepErr error, alreadyRecorded bool) (*api.WorkflowState, string, bool, error) {
	if !alreadyRecorded {
		var err error
		state, err = e.emit(ctx, state, api.NewEvent(state.WorkflowID, api.ActionFailStep, step.ID, map[string]any{
			"error":      stepErr.Error(),
			"error_type": errorType(stepErr),
			"retriable":  step.OnFailure != "",
		}, e.clock()))
		if err != nil {
			return state, "", false, err
		}
	}

	if step.OnFailure != "" {
		// The template wires a recovery path: record the transition
		// back to running and continue there.
		state, err := e.emit(ctx, state, api.NewEvent(state.WorkflowID, api.ActionRetryStep, step.ID, nil, e.clock()))
		if err != nil {
			return state, "", false, err
		}
		return state, step.OnFailure, false, nil
	}

	if e.collab.Failures != nil {
		e.collab.Failures.HandleFailure(ctx, state.WorkflowID, step.ID, stepErr)
	}
	e.observer.OnWorkflowFailed(ctx, state.WorkflowID, step.ID, stepErr)

	var lockErr *api.LockAcquisitionError
	retriable := errors.As(stepErr, &lockErr)
	return state, "", false, &api.StepExecutionError{
		WorkflowID: state.WorkflowID,
		StepID:     step.ID,
		Retriable:  retriable,
		Err:        stepErr,
	}
}

func errorType(err error) string {
	var lockErr *api.LockAcquisitionError
	if errors.As(err, &lockErr) {
		return "LockAcquisitionError"
	}
	var valErr *api.ValidationError
	if errors.As(err, &valErr) {
		return "ValidationError"
	}
	return "StepExecutionError"
}

// emit signs the event, appends it to the store, and folds it into the
// local state. Every transition is durably recorded before the engine
// acts on it.
func (e *Engine) emit(ctx context.Context, state *api.WorkflowState, ev api.WorkflowEvent) (*api.WorkflowState, error) {
	signed, err := e.signer.SignEvent(ev)
	if err != nil {
		return state, err
	}
	if err := e.events.AppendEvent(ctx, signed); err != nil {
		return state, fmt.Errorf("engine: append %s event: %w", ev.Action, err)
	}
	next, err := reducer.Apply(state, signed)
	if err != nil {
		return state, err
	}
	return next, nil
}

func (e *Engine) loadState(ctx context.Context, workflowID string) (*api.WorkflowState, error) {
	events, err := e.events.ListEvents(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("engine: workflow %s: %w", workflowID, persistence.ErrWorkflowNotFound)
	}
	return replay.Replay(events)
}

func fallback(primary, secondary string) string {
	if primary != "" {
		return primary
	}
	return secondary
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	v, _ := params[key].(string)
	return v
}
