package reducer

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/corvid-labs/chronicle/pkg/api"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func startEvent(workflowID string) api.WorkflowEvent {
	return api.NewEvent(workflowID, api.ActionStartWorkflow, "s1", map[string]any{
		"template_name": "demo",
		"context":       map[string]any{"ticket": "T-1"},
	}, at(0))
}

func mustApply(t *testing.T, state *api.WorkflowState, events ...api.WorkflowEvent) *api.WorkflowState {
	t.Helper()

	var err error
	for _, e := range events {
		state, err = Apply(state, e)
		if err != nil {
			t.Fatalf("Apply(%s) failed: %v", e.Action, err)
		}
	}
	return state
}

func TestApply_StartWorkflow(t *testing.T) {
	state := mustApply(t, nil, startEvent("wf-1"))

	if state.Status != api.StatusRunning {
		t.Fatalf("expected running, got %s", state.Status)
	}
	if state.TemplateName != "demo" {
		t.Fatalf("expected template demo, got %q", state.TemplateName)
	}
	if state.CurrentStep != "s1" {
		t.Fatalf("expected current step s1, got %q", state.CurrentStep)
	}
	if state.Context["ticket"] != "T-1" {
		t.Fatalf("expected context preserved, got %v", state.Context)
	}
	if state.EventCount != 1 {
		t.Fatalf("expected event count 1, got %d", state.EventCount)
	}
}

func TestApply_NeverMutatesInputs(t *testing.T) {
	ev := startEvent("wf-1")
	before := ev.Clone()

	state := mustApply(t, nil, ev)
	next := mustApply(t, state, api.NewEvent("wf-1", api.ActionCompleteStep, "s1", map[string]any{
		"output":    map[string]any{"rows": 3},
		"next_step": "s2",
	}, at(1)))

	if !reflect.DeepEqual(ev.Data, before.Data) {
		t.Fatal("event data mutated by Apply")
	}
	if state.EventCount != 1 || len(state.StepsCompleted) != 0 {
		t.Fatal("prior state mutated by Apply")
	}
	if next == state {
		t.Fatal("Apply must return a fresh state")
	}
}

func TestApply_Deterministic(t *testing.T) {
	ev := startEvent("wf-1")
	a := mustApply(t, nil, ev)
	b := mustApply(t, nil, ev)

	if !reflect.DeepEqual(a, b) {
		t.Fatal("same inputs must produce deep-equal states")
	}
}

func TestApply_CompleteStepRoutesToNext(t *testing.T) {
	state := mustApply(t, nil, startEvent("wf-1"),
		api.NewEvent("wf-1", api.ActionCompleteStep, "s1", map[string]any{
			"output":    map[string]any{"ok": true},
			"next_step": "s2",
		}, at(1)))

	if state.Status != api.StatusRunning {
		t.Fatalf("expected running, got %s", state.Status)
	}
	if state.CurrentStep != "s2" {
		t.Fatalf("expected current step s2, got %q", state.CurrentStep)
	}
	if !state.Completed("s1") {
		t.Fatal("expected s1 completed")
	}
	out, ok := state.Output("s1")
	if !ok || !reflect.DeepEqual(out, map[string]any{"ok": true}) {
		t.Fatalf("expected recorded output, got %v", out)
	}
}

func TestApply_CompleteStepFinishesWorkflow(t *testing.T) {
	for _, next := range []string{"", NextStepComplete} {
		data := map[string]any{"output": map[string]any{}}
		if next != "" {
			data["next_step"] = next
		}
		state := mustApply(t, nil, startEvent("wf-1"),
			api.NewEvent("wf-1", api.ActionCompleteStep, "s1", data, at(1)))

		if state.Status != api.StatusCompleted {
			t.Fatalf("next_step %q: expected completed, got %s", next, state.Status)
		}
		if state.EndedAt.IsZero() {
			t.Fatalf("next_step %q: expected ended_at set", next)
		}
	}
}

func TestApply_FailThenRetry(t *testing.T) {
	state := mustApply(t, nil, startEvent("wf-1"),
		api.NewEvent("wf-1", api.ActionFailStep, "s1", map[string]any{
			"error":     "upstream timeout",
			"retriable": true,
		}, at(1)))

	if state.Status != api.StatusFailed {
		t.Fatalf("expected failed, got %s", state.Status)
	}
	if state.LastError == nil || state.LastError.Message != "upstream timeout" || !state.LastError.Retriable {
		t.Fatalf("expected recorded error, got %+v", state.LastError)
	}
	if len(state.StepsFailed) != 1 || state.StepsFailed[0] != "s1" {
		t.Fatalf("expected s1 in failed list, got %v", state.StepsFailed)
	}

	state = mustApply(t, state, api.NewEvent("wf-1", api.ActionRetryStep, "s1", nil, at(2)))

	if state.Retries["s1"] != 1 {
		t.Fatalf("expected 1 retry for s1, got %d", state.Retries["s1"])
	}
	if state.Status != api.StatusRunning {
		t.Fatalf("expected running after retry, got %s", state.Status)
	}
}

func TestApply_ApproveGateResumesPaused(t *testing.T) {
	state := mustApply(t, nil, startEvent("wf-1"),
		api.NewEvent("wf-1", api.ActionPauseWorkflow, "gate", map[string]any{"reason": "awaiting approval"}, at(1)))

	if state.Status != api.StatusPaused || state.PausedStep != "gate" {
		t.Fatalf("expected paused at gate, got %s/%s", state.Status, state.PausedStep)
	}

	state = mustApply(t, state, api.NewEvent("wf-1", api.ActionApproveGate, "gate", map[string]any{
		"approver": "dana",
		"role":     "finance",
		"comment":  "lgtm",
	}, at(2)))

	if state.Status != api.StatusRunning {
		t.Fatalf("expected running after approval, got %s", state.Status)
	}
	if state.PausedStep != "" || state.PauseReason != "" {
		t.Fatal("expected pause fields cleared")
	}
	d, ok := state.Approvals["gate"]
	if !ok || d.Actor != "dana" || d.Role != "finance" {
		t.Fatalf("expected recorded approval, got %+v", d)
	}
}

func TestApply_RejectGateIsTerminal(t *testing.T) {
	state := mustApply(t, nil, startEvent("wf-1"),
		api.NewEvent("wf-1", api.ActionPauseWorkflow, "gate", nil, at(1)),
		api.NewEvent("wf-1", api.ActionRejectGate, "gate", map[string]any{
			"rejector": "dana",
			"reason":   "over budget",
		}, at(2)))

	if state.Status != api.StatusRejected {
		t.Fatalf("expected rejected, got %s", state.Status)
	}
	if !state.Status.Terminal() {
		t.Fatal("rejected must be terminal")
	}
	if state.Rejections["gate"].Comment != "over budget" {
		t.Fatalf("expected recorded rejection, got %+v", state.Rejections["gate"])
	}
}

func TestApply_PauseIsIdempotent(t *testing.T) {
	pause := api.NewEvent("wf-1", api.ActionPauseWorkflow, "gate", map[string]any{"reason": "hold"}, at(1))

	once := mustApply(t, nil, startEvent("wf-1"), pause)
	twice := mustApply(t, once, api.NewEvent("wf-1", api.ActionPauseWorkflow, "gate", map[string]any{"reason": "hold"}, at(2)))

	once.EventCount = 0
	twice.EventCount = 0
	if !reflect.DeepEqual(once, twice) {
		t.Fatal("second pause must not change state beyond the event counter")
	}
}

func TestApply_CancelIsIdempotent(t *testing.T) {
	once := mustApply(t, nil, startEvent("wf-1"),
		api.NewEvent("wf-1", api.ActionCancelWorkflow, "", map[string]any{"reason": "superseded", "actor": "ops"}, at(1)))

	if once.Status != api.StatusCancelled || once.CancelReason != "superseded" || once.CancelledBy != "ops" {
		t.Fatalf("expected cancelled state, got %+v", once)
	}

	twice := mustApply(t, once, api.NewEvent("wf-1", api.ActionCancelWorkflow, "", map[string]any{"reason": "superseded", "actor": "ops"}, at(2)))

	end1, end2 := once.EndedAt, twice.EndedAt
	if !end1.Equal(end2) {
		t.Fatal("second cancel must not move ended_at")
	}
	once.EventCount = 0
	twice.EventCount = 0
	if !reflect.DeepEqual(once, twice) {
		t.Fatal("second cancel must not change state beyond the event counter")
	}
}

func TestApply_RollbackRemovesOutput(t *testing.T) {
	state := mustApply(t, nil, startEvent("wf-1"),
		api.NewEvent("wf-1", api.ActionCompleteStep, "s1", map[string]any{
			"output":    map[string]any{"rows": 9},
			"next_step": "s2",
		}, at(1)),
		api.NewEvent("wf-1", api.ActionRollbackStep, "s1", map[string]any{"reason": "bad data"}, at(2)))

	if state.Completed("s1") {
		t.Fatal("expected s1 removed from completed list")
	}
	if _, ok := state.Output("s1"); ok {
		t.Fatal("expected s1 output removed")
	}
	if len(state.Rollbacks) != 1 || state.Rollbacks[0].StepID != "s1" || state.Rollbacks[0].Reason != "bad data" {
		t.Fatalf("expected audit record, got %v", state.Rollbacks)
	}
}

func TestApply_ChildWorkflowLifecycle(t *testing.T) {
	state := mustApply(t, nil, startEvent("wf-1"),
		api.NewEvent("wf-1", api.ActionStartChildWorkflow, "s1", map[string]any{"child_workflow_id": "wf-2"}, at(1)))

	if len(state.ChildWorkflows) != 1 || state.ChildWorkflows[0].Status != api.StatusRunning {
		t.Fatalf("expected running child record, got %v", state.ChildWorkflows)
	}

	state = mustApply(t, state, api.NewEvent("wf-1", api.ActionChildWorkflowComplete, "s1", map[string]any{
		"child_workflow_id": "wf-2",
		"status":            "completed",
	}, at(2)))

	child := state.ChildWorkflows[0]
	if child.Status != api.StatusCompleted || child.CompletedAt.IsZero() {
		t.Fatalf("expected completed child record, got %+v", child)
	}
}

func TestApply_SnapshotRecordsEventCount(t *testing.T) {
	state := mustApply(t, nil, startEvent("wf-1"),
		api.NewEvent("wf-1", api.ActionCreateSnapshot, "", nil, at(1)))

	if len(state.Snapshots) != 1 || state.Snapshots[0].EventCount != 2 {
		t.Fatalf("expected snapshot at event 2, got %v", state.Snapshots)
	}
}

func TestApply_AnnotateAndInsight(t *testing.T) {
	state := mustApply(t, nil, startEvent("wf-1"),
		api.NewEvent("wf-1", api.ActionAnnotate, "", map[string]any{"author": "ops", "text": "checked manually"}, at(1)),
		api.NewEvent("wf-1", api.ActionCaptureInsight, "", map[string]any{
			"category": "latency",
			"insight":  map[string]any{"p99_ms": 420},
		}, at(2)))

	if len(state.Annotations) != 1 || state.Annotations[0].Author != "ops" {
		t.Fatalf("expected annotation, got %v", state.Annotations)
	}
	if len(state.Insights) != 1 || state.Insights[0].Category != "latency" {
		t.Fatalf("expected insight, got %v", state.Insights)
	}
}

func TestApply_ResumeRestoresStep(t *testing.T) {
	state := mustApply(t, nil, startEvent("wf-1"),
		api.NewEvent("wf-1", api.ActionPauseWorkflow, "s1", map[string]any{"reason": "hold"}, at(1)),
		api.NewEvent("wf-1", api.ActionResumeWorkflow, "s1", map[string]any{"decision": "continue"}, at(2)))

	if state.Status != api.StatusRunning {
		t.Fatalf("expected running, got %s", state.Status)
	}
	if state.CurrentStep != "s1" {
		t.Fatalf("expected current step s1, got %q", state.CurrentStep)
	}
	if len(state.Resumes) != 1 || state.Resumes[0].Decision != "continue" {
		t.Fatalf("expected resume record, got %v", state.Resumes)
	}
}

func TestApply_UnknownAction(t *testing.T) {
	ev := api.NewEvent("wf-1", "explode", "", nil, at(0))
	_, err := Apply(nil, ev)

	var verr *api.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
