package chronicle

import (
	"context"
	"database/sql"
	"io"

	"github.com/corvid-labs/chronicle/internal/engine"
	"github.com/corvid-labs/chronicle/internal/export"
	"github.com/corvid-labs/chronicle/internal/persistence"
	"github.com/corvid-labs/chronicle/internal/signature"
	"github.com/corvid-labs/chronicle/internal/template"
	"github.com/corvid-labs/chronicle/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	WorkflowEvent = api.WorkflowEvent
	WorkflowState = api.WorkflowState
	Action        = api.Action
	Status        = api.Status

	Template     = api.Template
	Step         = api.Step
	StepType     = api.StepType
	DecisionGate = api.DecisionGate
	GateType     = api.GateType
	RetryPolicy  = api.RetryPolicy

	Collaborators    = api.Collaborators
	AgentCall        = api.AgentCall
	AgentInvoker     = api.AgentInvoker
	RiskLevel        = api.RiskLevel
	RiskAssessor     = api.RiskAssessor
	GateDecider      = api.GateDecider
	ApprovalRequest  = api.ApprovalRequest
	ApprovalDecision = api.ApprovalDecision
	ApprovalService  = api.ApprovalService
	Notification     = api.Notification
	Notifier         = api.Notifier
	FailureHandler   = api.FailureHandler

	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver

	ValidationError      = api.ValidationError
	TamperedEventError   = api.TamperedEventError
	ChainIntegrityError  = api.ChainIntegrityError
	StepExecutionError   = api.StepExecutionError
	LockAcquisitionError = api.LockAcquisitionError

	Engine       = engine.Engine
	StartRequest = engine.StartRequest
	Library      = template.Library
	VerifyMode   = signature.VerifyMode
)

// Re-export common observer and template helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver

	ParseTemplate   = template.Parse
	LoadTemplate    = template.LoadFile
	LoadTemplateDir = template.LoadDir
	NewLibrary      = template.NewLibrary
)

// Re-export status values for convenience.

const (
	StatusInitialized = api.StatusInitialized
	StatusRunning     = api.StatusRunning
	StatusPaused      = api.StatusPaused
	StatusCompleted   = api.StatusCompleted
	StatusFailed      = api.StatusFailed
	StatusRejected    = api.StatusRejected
	StatusCancelled   = api.StatusCancelled

	RiskLow    = api.RiskLow
	RiskMedium = api.RiskMedium
	RiskHigh   = api.RiskHigh

	VerifyStrict  = signature.Strict
	VerifyLenient = signature.Lenient
)

// Engine constructors
// These wrap the internal packages so external callers never need to
// import them.

// Options carries the optional pieces of an engine; zero value is fine.
type Options struct {
	Collaborators Collaborators
	Observer      Observer
}

// NewInMemoryEngine returns an Engine backed entirely by in-memory
// stores, signing events with the given key. Suitable for tests and
// single-process use; events do not survive a restart.
func NewInMemoryEngine(signingKey []byte, templates api.TemplateSource, opts Options) (*Engine, error) {
	signer, err := signature.NewSigner(signingKey)
	if err != nil {
		return nil, err
	}
	store := persistence.NewMemoryStore()
	return engine.New(engine.Config{
		Persistence:   persistence.Persistence{Events: store, Locks: store},
		Signer:        signer,
		Templates:     templates,
		Collaborators: opts.Collaborators,
		Observer:      opts.Observer,
	})
}

// NewSQLiteEngine returns an Engine that persists signed events and
// resource leases in a SQLite database.
func NewSQLiteEngine(db *sql.DB, signingKey []byte, templates api.TemplateSource, opts Options) (*Engine, error) {
	signer, err := signature.NewSigner(signingKey)
	if err != nil {
		return nil, err
	}
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Config{
		Persistence:   persistence.Persistence{Events: store, Locks: store},
		Signer:        signer,
		Templates:     templates,
		Collaborators: opts.Collaborators,
		Observer:      opts.Observer,
	})
}

// Convenience helpers that just forward to the underlying Engine.

// Start runs a workflow from its template's first step.
func Start(ctx context.Context, eng *Engine, req StartRequest) (*WorkflowState, error) {
	return eng.Start(ctx, req)
}

// Resume applies a human decision to a paused workflow.
func Resume(ctx context.Context, eng *Engine, workflowID string, decision ApprovalDecision) (*WorkflowState, error) {
	return eng.Resume(ctx, workflowID, decision)
}

// State reconstructs a workflow's current state from its events.
func State(ctx context.Context, eng *Engine, workflowID string) (*WorkflowState, error) {
	return eng.State(ctx, workflowID)
}

// ReconcileApprovals delegates to eng.ReconcileApprovals.
//
// It is typically called on process startup, before serving new work:
//
//	count, err := chronicle.ReconcileApprovals(ctx, engine)
func ReconcileApprovals(ctx context.Context, eng *Engine) (int, error) {
	return eng.ReconcileApprovals(ctx)
}

// Audit export helpers.

// ExportJSON writes a workflow's full event stream to w as JSON.
func ExportJSON(ctx context.Context, eng *Engine, workflowID string, w io.Writer) error {
	events, err := eng.History(ctx, workflowID)
	if err != nil {
		return err
	}
	return export.EventsJSON(w, events)
}

// ExportCSV writes a workflow's full event stream to w as CSV.
func ExportCSV(ctx context.Context, eng *Engine, workflowID string, w io.Writer) error {
	events, err := eng.History(ctx, workflowID)
	if err != nil {
		return err
	}
	return export.EventsCSV(w, events)
}

// ExportAudit writes a human-readable audit document for a workflow.
func ExportAudit(ctx context.Context, eng *Engine, workflowID string, w io.Writer) error {
	events, err := eng.History(ctx, workflowID)
	if err != nil {
		return err
	}
	return export.AuditDocument(w, events)
}
