// Package chronicle is an event-sourced workflow engine for
// orchestrating multi-step tasks that mix automated agent calls with
// human approval gates.
//
// Every state transition is recorded as a signed, append-only event;
// workflow state is never stored directly but always derived by
// replaying the event stream through a pure reducer. That gives three
// properties at once: a tamper-evident audit trail, deterministic
// recovery after a crash, and the ability to reconstruct state as of
// any past instant.
//
// # Templates
//
// Workflows are declared as YAML templates: an ordered graph of steps,
// each an agent_call, hitl_approval, conditional, or notification.
// Steps route by id (on_success, on_failure, on_true, on_false,
// on_approved, on_rejected); an empty route completes the workflow.
//
//	name: deploy
//	steps:
//	  - id: build
//	    type: agent_call
//	    params: {task: "build release"}
//	    on_success: approve
//	  - id: approve
//	    type: hitl_approval
//	    approver_role: release-manager
//	    on_approved: ship
//	  - id: ship
//	    type: agent_call
//	    params: {task: "deploy {{outputs.build.artifact}}"}
//
// # Running workflows
//
//	lib, err := chronicle.LoadTemplateDir("templates")
//	eng, err := chronicle.NewInMemoryEngine(key, lib, chronicle.Options{
//		Collaborators: chronicle.Collaborators{Agent: myAgent},
//	})
//	state, err := eng.Start(ctx, chronicle.StartRequest{TemplateName: "deploy"})
//
// A hitl_approval step pauses the workflow; Start returns with the
// state paused. A later call to Resume with the human decision
// continues execution from the gate's routing. ReconcileApprovals
// sweeps paused workflows for decisions recorded while no engine was
// watching.
//
// # Persistence
//
// Two stores ship in the box: an in-memory store for tests and
// single-process use, and a SQLite store (pure-Go driver, no cgo) for
// durable, cross-process deployments. Resource locks are leased with a
// TTL so a crashed engine cannot hold a lock forever.
//
// # Integrity
//
// Events are signed with HMAC-SHA256 over a canonical serialization.
// ValidateHistory verifies a workflow's stream and reports tampered
// events; legacy (version 1) events can be re-signed with
// MigrateHistory.
package chronicle
