package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/corvid-labs/chronicle/pkg/api"
)

// SQLiteStore is an EventStore and LockStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// Events are stored with an AUTOINCREMENT sequence so timestamp ties
// break in insertion order; the UNIQUE event_id column makes appends
// idempotent under redelivery. Resource locks are rows with an owner
// and an expiry, following the leased-lock pattern, so mutual exclusion
// holds across engine processes sharing one database.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements the interfaces.
var (
	_ EventStore = (*SQLiteStore)(nil)
	_ LockStore  = (*SQLiteStore)(nil)
)

// NewSQLiteStore initializes the required schema in the given database
// and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			workflow_id TEXT NOT NULL,
			parent_workflow_id TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			step_id TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL DEFAULT '{}',
			timestamp TEXT NOT NULL,
			event_version INTEGER NOT NULL,
			signature TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_workflow_events_stream
			ON workflow_events(workflow_id, timestamp, seq);

		CREATE TABLE IF NOT EXISTS resource_locks (
			name TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		);
	`)
	return err
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev api.WorkflowEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}

	// INSERT OR IGNORE keyed on the UNIQUE event_id column: redelivery
	// of an already-appended event is a no-op.
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO workflow_events
			(event_id, workflow_id, parent_workflow_id, action, step_id, data, timestamp, event_version, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID,
		ev.WorkflowID,
		ev.ParentWorkflowID,
		string(ev.Action),
		ev.StepID,
		string(data),
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.EventVersion,
		ev.Signature,
	)
	return err
}

func (s *SQLiteStore) ListEvents(ctx context.Context, workflowID string) ([]api.WorkflowEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, workflow_id, parent_workflow_id, action, step_id, data, timestamp, event_version, signature
		FROM workflow_events
		WHERE workflow_id = ?
		ORDER BY timestamp ASC, seq ASC`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.WorkflowEvent
	for rows.Next() {
		var (
			ev      api.WorkflowEvent
			action  string
			data    string
			ts      string
			version int
		)
		if err := rows.Scan(
			&ev.EventID, &ev.WorkflowID, &ev.ParentWorkflowID,
			&action, &ev.StepID, &data, &ts, &version, &ev.Signature,
		); err != nil {
			return nil, err
		}
		ev.Action = api.Action(action)
		ev.EventVersion = version

		if data != "" && data != "null" {
			if err := json.Unmarshal([]byte(data), &ev.Data); err != nil {
				return nil, fmt.Errorf("decode event %s data: %w", ev.EventID, err)
			}
		}
		when, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("decode event %s timestamp: %w", ev.EventID, err)
		}
		ev.Timestamp = when

		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) WorkflowIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT workflow_id FROM workflow_events ORDER BY workflow_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	expires := now.Add(ttl).UnixNano()

	// Take the lock when it is free, expired, or already ours.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO resource_locks (name, owner, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			owner = excluded.owner,
			expires_at = excluded.expires_at
		WHERE resource_locks.owner = excluded.owner
		   OR resource_locks.expires_at < ?`,
		name, owner, expires, now.UnixNano(),
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQLiteStore) Renew(ctx context.Context, name, owner string, ttl time.Duration) error {
	expires := time.Now().Add(ttl).UnixNano()
	res, err := s.db.ExecContext(ctx, `
		UPDATE resource_locks SET expires_at = ?
		WHERE name = ? AND owner = ?`,
		expires, name, owner,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &api.LockAcquisitionError{Lock: name}
	}
	return nil
}

func (s *SQLiteStore) Release(ctx context.Context, name, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM resource_locks WHERE name = ? AND owner = ?`,
		name, owner,
	)
	return err
}
