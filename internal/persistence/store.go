// Package persistence defines the storage boundary of the engine: an
// append-only, idempotent event store and a durable named-lock store.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/corvid-labs/chronicle/pkg/api"
)

// ErrWorkflowNotFound is returned when a workflow has no events.
var ErrWorkflowNotFound = errors.New("workflow not found")

// EventStore is the append-only persistence boundary for signed
// workflow events.
//
// AppendEvent must be idempotent keyed by event id: appending the same
// event twice must not duplicate it, because the caller may redeliver
// on retry. ListEvents must return a single total order per workflow
// (timestamp, then insertion sequence) so replay stays deterministic
// under concurrent writers.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.WorkflowEvent) error
	ListEvents(ctx context.Context, workflowID string) ([]api.WorkflowEvent, error)
	// WorkflowIDs returns the ids of all workflows with at least one
	// event. Used by the reconciliation sweep.
	WorkflowIDs(ctx context.Context) ([]string, error)
}

// LockStore provides leased, named mutual exclusion for resource locks.
// Leases expire after their TTL so a crashed holder cannot wedge a
// resource forever.
//
// Implementations treat a lease held by the same owner as re-entrant.
type LockStore interface {
	// TryAcquire attempts to take the named lock. It returns
	// acquired=false, err=nil when another owner holds an unexpired
	// lease.
	TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (acquired bool, err error)
	// Renew extends a lease held by owner.
	Renew(ctx context.Context, name, owner string, ttl time.Duration) error
	// Release drops the lease if held by owner. It is idempotent.
	Release(ctx context.Context, name, owner string) error
}

// Persistence bundles the store interfaces so the engine can depend on
// a single abstraction.
type Persistence struct {
	Events EventStore
	Locks  LockStore
}
