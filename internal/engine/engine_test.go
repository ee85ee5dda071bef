package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/corvid-labs/chronicle/internal/persistence"
	"github.com/corvid-labs/chronicle/internal/signature"
	"github.com/corvid-labs/chronicle/internal/template"
	"github.com/corvid-labs/chronicle/pkg/api"
)

// Function adapters for the collaborator interfaces.

type agentFunc func(ctx context.Context, call api.AgentCall) (map[string]any, error)

func (f agentFunc) Invoke(ctx context.Context, call api.AgentCall) (map[string]any, error) {
	return f(ctx, call)
}

type gateFunc func(ctx context.Context, prompt string, wfContext, outputs map[string]any) (bool, error)

func (f gateFunc) Decide(ctx context.Context, prompt string, wfContext, outputs map[string]any) (bool, error) {
	return f(ctx, prompt, wfContext, outputs)
}

type notifyFunc func(ctx context.Context, n api.Notification) error

func (f notifyFunc) Notify(ctx context.Context, n api.Notification) error { return f(ctx, n) }

// approvalInbox records requests and serves canned decisions.
type approvalInbox struct {
	requests  []api.ApprovalRequest
	decisions map[string]*api.ApprovalDecision // workflowID/stepID
}

func newApprovalInbox() *approvalInbox {
	return &approvalInbox{decisions: make(map[string]*api.ApprovalDecision)}
}

func (a *approvalInbox) RequestApproval(ctx context.Context, req api.ApprovalRequest) error {
	a.requests = append(a.requests, req)
	return nil
}

func (a *approvalInbox) PollDecision(ctx context.Context, workflowID, stepID string) (*api.ApprovalDecision, error) {
	return a.decisions[workflowID+"/"+stepID], nil
}

type failureLog struct {
	calls []string
}

func (f *failureLog) HandleFailure(ctx context.Context, workflowID, stepID string, err error) {
	f.calls = append(f.calls, workflowID+"/"+stepID)
}

func newTestEngine(t *testing.T, yaml string, collab api.Collaborators) (*Engine, *persistence.MemoryStore, *signature.Signer) {
	t.Helper()

	tpl, err := template.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("template parse failed: %v", err)
	}
	lib, err := template.NewLibrary(tpl)
	if err != nil {
		t.Fatalf("library failed: %v", err)
	}
	signer, err := signature.NewSigner([]byte("test-key"))
	if err != nil {
		t.Fatalf("signer failed: %v", err)
	}
	store := persistence.NewMemoryStore()

	eng, err := New(Config{
		Persistence:   persistence.Persistence{Events: store, Locks: store},
		Signer:        signer,
		Templates:     lib,
		Collaborators: collab,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return eng, store, signer
}

const pipelineYAML = `
name: pipeline
steps:
  - id: s1
    type: agent_call
    params:
      task: "ingest {{context.source}}"
    on_success: s2
  - id: s2
    type: agent_call
    params:
      task: "transform {{outputs.s1.rows}}"
`

func okAgent() agentFunc {
	return func(ctx context.Context, call api.AgentCall) (map[string]any, error) {
		return map[string]any{"rows": 7, "step": call.StepID}, nil
	}
}

func TestEngine_TwoStepRunCompletes(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t, pipelineYAML, api.Collaborators{Agent: okAgent()})

	state, err := eng.Start(ctx, StartRequest{
		WorkflowID:   "wf-1",
		TemplateName: "pipeline",
		Context:      map[string]any{"source": "s3://in"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if state.Status != api.StatusCompleted {
		t.Fatalf("expected completed, got %s", state.Status)
	}
	if !reflect.DeepEqual(state.StepsCompleted, []string{"s1", "s2"}) {
		t.Fatalf("expected [s1 s2], got %v", state.StepsCompleted)
	}
	if _, ok := state.Output("s1"); !ok {
		t.Fatal("expected s1 output recorded")
	}
}

func TestEngine_ParamsRendered(t *testing.T) {
	ctx := context.Background()

	var tasks []string
	agent := agentFunc(func(ctx context.Context, call api.AgentCall) (map[string]any, error) {
		task, _ := call.Payload["task"].(string)
		tasks = append(tasks, task)
		return map[string]any{"rows": 7}, nil
	})
	eng, _, _ := newTestEngine(t, pipelineYAML, api.Collaborators{Agent: agent})

	if _, err := eng.Start(ctx, StartRequest{
		WorkflowID:   "wf-1",
		TemplateName: "pipeline",
		Context:      map[string]any{"source": "s3://in"},
	}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	want := []string{"ingest s3://in", "transform 7"}
	if !reflect.DeepEqual(tasks, want) {
		t.Fatalf("expected rendered tasks %v, got %v", want, tasks)
	}
}

const approvalYAML = `
name: deploy
steps:
  - id: assess
    type: agent_call
    on_success: gate
  - id: gate
    type: hitl_approval
    approver_role: ops
    risk_from: assess
    on_approved: ship
  - id: ship
    type: agent_call
`

func TestEngine_HighRiskPausesThenResumes(t *testing.T) {
	ctx := context.Background()
	inbox := newApprovalInbox()
	agent := agentFunc(func(ctx context.Context, call api.AgentCall) (map[string]any, error) {
		if call.StepID == "assess" {
			return map[string]any{"risk": "high"}, nil
		}
		return map[string]any{"shipped": true}, nil
	})
	eng, _, _ := newTestEngine(t, approvalYAML, api.Collaborators{Agent: agent, Approvals: inbox})

	state, err := eng.Start(ctx, StartRequest{WorkflowID: "wf-1", TemplateName: "deploy"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if state.Status != api.StatusPaused || state.PausedStep != "gate" {
		t.Fatalf("expected pause at gate, got %s/%s", state.Status, state.PausedStep)
	}
	if len(inbox.requests) != 1 || inbox.requests[0].Risk != api.RiskHigh || inbox.requests[0].Role != "ops" {
		t.Fatalf("expected high-risk approval request, got %+v", inbox.requests)
	}

	state, err = eng.Resume(ctx, "wf-1", api.ApprovalDecision{
		Approved: true,
		Actor:    "maria",
		Role:     "ops",
		Comment:  "checked the diff",
	})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if state.Status != api.StatusCompleted {
		t.Fatalf("expected completed after approval, got %s", state.Status)
	}
	d, ok := state.Approvals["gate"]
	if !ok || d.Actor != "maria" || d.Role != "ops" {
		t.Fatalf("expected recorded approval, got %+v", d)
	}
	if !state.Completed("ship") {
		t.Fatal("expected ship to run after approval")
	}
}

func TestEngine_RejectionIsTerminal(t *testing.T) {
	ctx := context.Background()
	inbox := newApprovalInbox()
	agent := agentFunc(func(ctx context.Context, call api.AgentCall) (map[string]any, error) {
		return map[string]any{"risk": "high"}, nil
	})
	eng, _, _ := newTestEngine(t, approvalYAML, api.Collaborators{Agent: agent, Approvals: inbox})

	if _, err := eng.Start(ctx, StartRequest{WorkflowID: "wf-1", TemplateName: "deploy"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	state, err := eng.Resume(ctx, "wf-1", api.ApprovalDecision{
		Approved: false,
		Actor:    "maria",
		Comment:  "too close to the freeze",
	})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if state.Status != api.StatusRejected {
		t.Fatalf("expected rejected, got %s", state.Status)
	}
	if state.Completed("ship") {
		t.Fatal("ship must not run after rejection")
	}
	if state.Rejections["gate"].Comment != "too close to the freeze" {
		t.Fatalf("expected recorded rejection, got %+v", state.Rejections["gate"])
	}

	// No further decisions are accepted.
	if _, err := eng.Resume(ctx, "wf-1", api.ApprovalDecision{Approved: true}); err == nil {
		t.Fatal("expected resume of a rejected workflow to fail")
	}
}

func TestEngine_LowRiskAutoApproves(t *testing.T) {
	ctx := context.Background()

	const yaml = `
name: autodeploy
steps:
  - id: gate
    type: hitl_approval
    risk_override: low
    on_approved: ship
  - id: ship
    type: agent_call
`
	eng, _, _ := newTestEngine(t, yaml, api.Collaborators{Agent: okAgent()})

	state, err := eng.Start(ctx, StartRequest{WorkflowID: "wf-1", TemplateName: "autodeploy"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if state.Status != api.StatusCompleted {
		t.Fatalf("expected completed without pausing, got %s", state.Status)
	}
	if state.Approvals["gate"].Actor != "system" {
		t.Fatalf("expected synthesized approval, got %+v", state.Approvals["gate"])
	}
}

func TestEngine_ConditionalRouting(t *testing.T) {
	const yaml = `
name: cond
steps:
  - id: check
    type: conditional
    condition: context.n > 2
    on_true: big
    on_false: small
  - id: big
    type: notification
  - id: small
    type: notification
`
	cases := []struct {
		n    int
		want string
	}{
		{n: 5, want: "big"},
		{n: 1, want: "small"},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("n=%d", tc.n), func(t *testing.T) {
			ctx := context.Background()
			eng, _, _ := newTestEngine(t, yaml, api.Collaborators{})

			state, err := eng.Start(ctx, StartRequest{
				WorkflowID:   "wf-1",
				TemplateName: "cond",
				Context:      map[string]any{"n": tc.n},
			})
			if err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			if !state.Completed(tc.want) {
				t.Fatalf("expected branch %s, completed: %v", tc.want, state.StepsCompleted)
			}
		})
	}
}

func TestEngine_NotificationFailureIsBestEffort(t *testing.T) {
	ctx := context.Background()

	const yaml = `
name: notify
steps:
  - id: ping
    type: notification
    params:
      channel: "#ops"
`
	notifier := notifyFunc(func(ctx context.Context, n api.Notification) error {
		return errors.New("webhook down")
	})
	eng, _, _ := newTestEngine(t, yaml, api.Collaborators{Notifier: notifier})

	state, err := eng.Start(ctx, StartRequest{WorkflowID: "wf-1", TemplateName: "notify"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if state.Status != api.StatusCompleted {
		t.Fatalf("notification delivery failure must not fail the step, got %s", state.Status)
	}
}

func TestEngine_LockContention(t *testing.T) {
	ctx := context.Background()

	const yaml = `
name: locked
steps:
  - id: migrate
    type: agent_call
    resource_lock: db-main
`
	failures := &failureLog{}
	eng, store, _ := newTestEngine(t, yaml, api.Collaborators{Agent: okAgent(), Failures: failures})

	// Another engine instance holds the lock.
	if ok, err := store.TryAcquire(ctx, "db-main", "other-engine", time.Minute); err != nil || !ok {
		t.Fatalf("pre-acquire failed: ok=%v err=%v", ok, err)
	}

	_, err := eng.Start(ctx, StartRequest{WorkflowID: "wf-1", TemplateName: "locked"})

	var stepErr *api.StepExecutionError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepExecutionError, got %v", err)
	}
	if !stepErr.Retriable {
		t.Fatal("lock contention must be retriable")
	}
	var lockErr *api.LockAcquisitionError
	if !errors.As(err, &lockErr) || lockErr.Lock != "db-main" {
		t.Fatalf("expected wrapped LockAcquisitionError, got %v", err)
	}
	if len(failures.calls) != 1 {
		t.Fatalf("expected failure handler invoked once, got %v", failures.calls)
	}

	// The failure is durable: a fresh load sees it.
	state, err := eng.State(ctx, "wf-1")
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if state.Status != api.StatusFailed || state.LastError == nil || state.LastError.Type != "LockAcquisitionError" {
		t.Fatalf("expected durable lock failure, got %+v", state.LastError)
	}
}

func TestEngine_LockReleasedAfterStep(t *testing.T) {
	ctx := context.Background()

	const yaml = `
name: locked
steps:
  - id: migrate
    type: agent_call
    resource_lock: db-main
`
	eng, store, _ := newTestEngine(t, yaml, api.Collaborators{Agent: okAgent()})

	if _, err := eng.Start(ctx, StartRequest{WorkflowID: "wf-1", TemplateName: "locked"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Lock must be free again, even though the run is over.
	ok, err := store.TryAcquire(ctx, "db-main", "someone-else", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock released after step, got ok=%v err=%v", ok, err)
	}
}

func TestEngine_LockRenewedDuringLongStep(t *testing.T) {
	ctx := context.Background()

	const yaml = `
name: locked
steps:
  - id: migrate
    type: agent_call
    resource_lock: db-main
`
	started := make(chan struct{})
	release := make(chan struct{})
	agent := agentFunc(func(ctx context.Context, call api.AgentCall) (map[string]any, error) {
		close(started)
		<-release
		return map[string]any{"ok": true}, nil
	})

	tpl, err := template.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("template parse failed: %v", err)
	}
	lib, err := template.NewLibrary(tpl)
	if err != nil {
		t.Fatalf("library failed: %v", err)
	}
	signer, err := signature.NewSigner([]byte("test-key"))
	if err != nil {
		t.Fatalf("signer failed: %v", err)
	}
	store := persistence.NewMemoryStore()
	eng, err := New(Config{
		Persistence:   persistence.Persistence{Events: store, Locks: store},
		Signer:        signer,
		Templates:     lib,
		Collaborators: api.Collaborators{Agent: agent},
		LockTTL:       30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	done := make(chan struct{})
	var state *api.WorkflowState
	go func() {
		defer close(done)
		state, err = eng.Start(ctx, StartRequest{WorkflowID: "wf-1", TemplateName: "locked"})
	}()

	<-started
	// Wait past several TTLs while the step is still in flight.
	time.Sleep(100 * time.Millisecond)

	ok, acqErr := store.TryAcquire(ctx, "db-main", "rival", time.Minute)
	if acqErr != nil {
		t.Fatalf("TryAcquire failed: %v", acqErr)
	}
	if ok {
		_ = store.Release(ctx, "db-main", "rival")
		t.Fatal("lease expired mid-step; a rival acquired the lock")
	}

	close(release)
	<-done
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if state.Status != api.StatusCompleted {
		t.Fatalf("expected completed, got %s", state.Status)
	}

	// Renewal stops with the step; the lock must be free afterwards.
	ok, acqErr = store.TryAcquire(ctx, "db-main", "rival", time.Minute)
	if acqErr != nil || !ok {
		t.Fatalf("expected lock released after step, got ok=%v err=%v", ok, acqErr)
	}
}

func TestEngine_RetryPolicy(t *testing.T) {
	ctx := context.Background()

	const yaml = `
name: flaky
steps:
  - id: fetch
    type: agent_call
    retry:
      max_attempts: 3
      backoff: 1ms
`
	attempts := 0
	agent := agentFunc(func(ctx context.Context, call api.AgentCall) (map[string]any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("upstream timeout")
		}
		return map[string]any{"ok": true}, nil
	})
	eng, _, _ := newTestEngine(t, yaml, api.Collaborators{Agent: agent})

	state, err := eng.Start(ctx, StartRequest{WorkflowID: "wf-1", TemplateName: "flaky"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if state.Status != api.StatusCompleted {
		t.Fatalf("expected completed after retries, got %s", state.Status)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if state.Retries["fetch"] != 2 {
		t.Fatalf("expected 2 recorded retries, got %d", state.Retries["fetch"])
	}
	if len(state.StepsFailed) != 2 {
		t.Fatalf("expected 2 durable failure records, got %v", state.StepsFailed)
	}
}

func TestEngine_OnFailureRoute(t *testing.T) {
	ctx := context.Background()

	const yaml = `
name: recover
steps:
  - id: risky
    type: agent_call
    on_failure: cleanup
  - id: cleanup
    type: notification
`
	agent := agentFunc(func(ctx context.Context, call api.AgentCall) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	eng, _, _ := newTestEngine(t, yaml, api.Collaborators{Agent: agent})

	state, err := eng.Start(ctx, StartRequest{WorkflowID: "wf-1", TemplateName: "recover"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if state.Status != api.StatusCompleted {
		t.Fatalf("expected recovery path to complete, got %s", state.Status)
	}
	if !state.Completed("cleanup") {
		t.Fatalf("expected cleanup to run, completed: %v", state.StepsCompleted)
	}
	if state.Retries["risky"] != 1 {
		t.Fatalf("expected recorded retry for risky, got %d", state.Retries["risky"])
	}
	if len(state.StepsFailed) != 1 || state.StepsFailed[0] != "risky" {
		t.Fatalf("expected durable failure record, got %v", state.StepsFailed)
	}
}

func TestEngine_FailureWithoutRouteSurfaces(t *testing.T) {
	ctx := context.Background()

	const yaml = `
name: fragile
steps:
  - id: only
    type: agent_call
`
	failures := &failureLog{}
	agent := agentFunc(func(ctx context.Context, call api.AgentCall) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	eng, _, _ := newTestEngine(t, yaml, api.Collaborators{Agent: agent, Failures: failures})

	_, err := eng.Start(ctx, StartRequest{WorkflowID: "wf-1", TemplateName: "fragile"})

	var stepErr *api.StepExecutionError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepExecutionError, got %v", err)
	}
	if stepErr.StepID != "only" || stepErr.WorkflowID != "wf-1" {
		t.Fatalf("expected error naming the step, got %+v", stepErr)
	}
	if len(failures.calls) != 1 || failures.calls[0] != "wf-1/only" {
		t.Fatalf("expected failure handler invoked, got %v", failures.calls)
	}

	// The failure was recorded before the error was raised.
	state, err := eng.State(ctx, "wf-1")
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if state.Status != api.StatusFailed || state.LastError == nil || state.LastError.Message != "boom" {
		t.Fatalf("expected durable failure, got %+v", state)
	}
}

func TestEngine_DeterministicGateRoutes(t *testing.T) {
	const yaml = `
name: gated
steps:
  - id: work
    type: agent_call
    decision_gate:
      type: deterministic_check
      condition: outputs.work.score >= 0.8
    on_success: good
    on_failure: bad
  - id: good
    type: notification
  - id: bad
    type: notification
`
	cases := []struct {
		score float64
		want  string
	}{
		{score: 0.9, want: "good"},
		{score: 0.4, want: "bad"},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("score=%v", tc.score), func(t *testing.T) {
			ctx := context.Background()
			agent := agentFunc(func(ctx context.Context, call api.AgentCall) (map[string]any, error) {
				return map[string]any{"score": tc.score}, nil
			})
			eng, _, _ := newTestEngine(t, yaml, api.Collaborators{Agent: agent})

			state, err := eng.Start(ctx, StartRequest{WorkflowID: "wf-1", TemplateName: "gated"})
			if err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			if !state.Completed(tc.want) {
				t.Fatalf("expected branch %s, completed: %v", tc.want, state.StepsCompleted)
			}
		})
	}
}

func TestEngine_LLMGateRoutes(t *testing.T) {
	const yaml = `
name: assessed
steps:
  - id: work
    type: agent_call
    decision_gate:
      type: llm_assessment
      prompt: "is this output safe to ship?"
    on_success: good
    on_failure: bad
  - id: good
    type: notification
  - id: bad
    type: notification
`
	for _, verdict := range []bool{true, false} {
		t.Run(fmt.Sprintf("verdict=%v", verdict), func(t *testing.T) {
			ctx := context.Background()

			var seenPrompt string
			gate := gateFunc(func(ctx context.Context, prompt string, wfContext, outputs map[string]any) (bool, error) {
				seenPrompt = prompt
				if _, ok := outputs["work"]; !ok {
					t.Error("gate must see the step's own output")
				}
				return verdict, nil
			})
			eng, _, _ := newTestEngine(t, yaml, api.Collaborators{Agent: okAgent(), Gate: gate})

			state, err := eng.Start(ctx, StartRequest{WorkflowID: "wf-1", TemplateName: "assessed"})
			if err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			want := "bad"
			if verdict {
				want = "good"
			}
			if !state.Completed(want) {
				t.Fatalf("expected branch %s, completed: %v", want, state.StepsCompleted)
			}
			if seenPrompt != "is this output safe to ship?" {
				t.Fatalf("expected gate prompt passed through, got %q", seenPrompt)
			}
		})
	}
}

func TestEngine_ReconcileApprovals(t *testing.T) {
	ctx := context.Background()
	inbox := newApprovalInbox()
	agent := agentFunc(func(ctx context.Context, call api.AgentCall) (map[string]any, error) {
		return map[string]any{"risk": "high"}, nil
	})
	eng, _, _ := newTestEngine(t, approvalYAML, api.Collaborators{Agent: agent, Approvals: inbox})

	if _, err := eng.Start(ctx, StartRequest{WorkflowID: "wf-1", TemplateName: "deploy"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// No decision yet: nothing to do.
	n, err := eng.ReconcileApprovals(ctx)
	if err != nil {
		t.Fatalf("ReconcileApprovals failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 resumed, got %d", n)
	}

	// A decision lands out of band; the sweep picks it up.
	inbox.decisions["wf-1/gate"] = &api.ApprovalDecision{Approved: true, Actor: "maria", Role: "ops"}

	n, err = eng.ReconcileApprovals(ctx)
	if err != nil {
		t.Fatalf("ReconcileApprovals failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 resumed, got %d", n)
	}

	state, err := eng.State(ctx, "wf-1")
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if state.Status != api.StatusCompleted {
		t.Fatalf("expected completed after sweep, got %s", state.Status)
	}
}

func TestEngine_UnknownWorkflow(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t, pipelineYAML, api.Collaborators{Agent: okAgent()})

	_, err := eng.State(ctx, "ghost")
	if !errors.Is(err, persistence.ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestEngine_UnknownTemplate(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t, pipelineYAML, api.Collaborators{Agent: okAgent()})

	_, err := eng.Start(ctx, StartRequest{TemplateName: "ghost"})
	var verr *api.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestNew_RequiresCoreDependencies(t *testing.T) {
	signer, _ := signature.NewSigner([]byte("k"))
	store := persistence.NewMemoryStore()
	lib, _ := template.NewLibrary()

	cases := []struct {
		name string
		cfg  Config
	}{
		{"no events", Config{Signer: signer, Templates: lib}},
		{"no signer", Config{Persistence: persistence.Persistence{Events: store}, Templates: lib}},
		{"no templates", Config{Persistence: persistence.Persistence{Events: store}, Signer: signer}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); err == nil {
				t.Fatal("expected constructor error")
			}
		})
	}
}
