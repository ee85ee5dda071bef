package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the workflow engine for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay workflow execution.
type Observer interface {
	// OnWorkflowStart is called once per workflow, after the
	// start_workflow event has been persisted.
	OnWorkflowStart(ctx context.Context, workflowID, templateName string)

	// OnWorkflowCompleted is called when a workflow reaches
	// StatusCompleted.
	OnWorkflowCompleted(ctx context.Context, workflowID string)

	// OnWorkflowFailed is called when a workflow transitions to
	// StatusFailed.
	OnWorkflowFailed(ctx context.Context, workflowID, stepID string, err error)

	// OnWorkflowPaused is called when a hitl_approval step suspends the
	// workflow awaiting an external decision.
	OnWorkflowPaused(ctx context.Context, workflowID, stepID string)

	// OnWorkflowResumed is called when a paused workflow resumes.
	OnWorkflowResumed(ctx context.Context, workflowID, stepID, decision string)

	// OnStepStart is called before a step is dispatched.
	OnStepStart(ctx context.Context, workflowID, stepID string, stepType StepType)

	// OnStepCompleted is called after a step finishes, for both
	// successes and failures (err != nil).
	OnStepCompleted(ctx context.Context, workflowID, stepID string, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnWorkflowStart(ctx context.Context, workflowID, templateName string)     {}
func (NoopObserver) OnWorkflowCompleted(ctx context.Context, workflowID string)               {}
func (NoopObserver) OnWorkflowFailed(ctx context.Context, workflowID, stepID string, _ error) {}
func (NoopObserver) OnWorkflowPaused(ctx context.Context, workflowID, stepID string)          {}
func (NoopObserver) OnWorkflowResumed(ctx context.Context, workflowID, stepID, decision string) {
}
func (NoopObserver) OnStepStart(ctx context.Context, workflowID, stepID string, _ StepType) {}
func (NoopObserver) OnStepCompleted(ctx context.Context, workflowID, stepID string, _ error, _ time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnWorkflowStart(ctx context.Context, workflowID, templateName string) {
	for _, o := range c.observers {
		o.OnWorkflowStart(ctx, workflowID, templateName)
	}
}

func (c *CompositeObserver) OnWorkflowCompleted(ctx context.Context, workflowID string) {
	for _, o := range c.observers {
		o.OnWorkflowCompleted(ctx, workflowID)
	}
}

func (c *CompositeObserver) OnWorkflowFailed(ctx context.Context, workflowID, stepID string, err error) {
	for _, o := range c.observers {
		o.OnWorkflowFailed(ctx, workflowID, stepID, err)
	}
}

func (c *CompositeObserver) OnWorkflowPaused(ctx context.Context, workflowID, stepID string) {
	for _, o := range c.observers {
		o.OnWorkflowPaused(ctx, workflowID, stepID)
	}
}

func (c *CompositeObserver) OnWorkflowResumed(ctx context.Context, workflowID, stepID, decision string) {
	for _, o := range c.observers {
		o.OnWorkflowResumed(ctx, workflowID, stepID, decision)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, workflowID, stepID string, st StepType) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, workflowID, stepID, st)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, workflowID, stepID string, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, workflowID, stepID, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs workflow / step
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnWorkflowStart(ctx context.Context, workflowID, templateName string) {
	o.Logger.InfoContext(ctx, "workflow_start",
		slog.String("workflow_id", workflowID),
		slog.String("template", templateName),
	)
}

func (o *LoggingObserver) OnWorkflowCompleted(ctx context.Context, workflowID string) {
	o.Logger.InfoContext(ctx, "workflow_completed",
		slog.String("workflow_id", workflowID),
	)
}

func (o *LoggingObserver) OnWorkflowFailed(ctx context.Context, workflowID, stepID string, err error) {
	o.Logger.ErrorContext(ctx, "workflow_failed",
		slog.String("workflow_id", workflowID),
		slog.String("step", stepID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnWorkflowPaused(ctx context.Context, workflowID, stepID string) {
	o.Logger.InfoContext(ctx, "workflow_paused",
		slog.String("workflow_id", workflowID),
		slog.String("step", stepID),
	)
}

func (o *LoggingObserver) OnWorkflowResumed(ctx context.Context, workflowID, stepID, decision string) {
	o.Logger.InfoContext(ctx, "workflow_resumed",
		slog.String("workflow_id", workflowID),
		slog.String("step", stepID),
		slog.String("decision", decision),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, workflowID, stepID string, st StepType) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("workflow_id", workflowID),
		slog.String("step", stepID),
		slog.String("type", string(st)),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, workflowID, stepID string, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("workflow_id", workflowID),
		slog.String("step", stepID),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	workflowsStarted   atomic.Int64
	workflowsCompleted atomic.Int64
	workflowsFailed    atomic.Int64
	workflowsPaused    atomic.Int64
	stepsCompleted     atomic.Int64
	totalStepDuration  atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	WorkflowsStarted   int64
	WorkflowsCompleted int64
	WorkflowsFailed    int64
	WorkflowsPaused    int64

	StepsCompleted  int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnWorkflowStart(ctx context.Context, workflowID, templateName string) {
	m.workflowsStarted.Add(1)
}

func (m *BasicMetrics) OnWorkflowCompleted(ctx context.Context, workflowID string) {
	m.workflowsCompleted.Add(1)
}

func (m *BasicMetrics) OnWorkflowFailed(ctx context.Context, workflowID, stepID string, err error) {
	m.workflowsFailed.Add(1)
}

func (m *BasicMetrics) OnWorkflowPaused(ctx context.Context, workflowID, stepID string) {
	m.workflowsPaused.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, workflowID, stepID string, err error, d time.Duration) {
	// Only count successful steps for average duration.
	if err == nil {
		m.stepsCompleted.Add(1)
		m.totalStepDuration.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		WorkflowsStarted:   m.workflowsStarted.Load(),
		WorkflowsCompleted: m.workflowsCompleted.Load(),
		WorkflowsFailed:    m.workflowsFailed.Load(),
		WorkflowsPaused:    m.workflowsPaused.Load(),
		StepsCompleted:     steps,
		AvgStepDuration:    avg,
	}
}
