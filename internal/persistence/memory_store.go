package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/corvid-labs/chronicle/pkg/api"
)

// MemoryStore is a goroutine-safe EventStore and LockStore backed by
// maps. It is intended for tests and single-process deployments; a
// production deployment should use the SQLite store so locks and events
// survive restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]api.WorkflowEvent // workflow id -> ordered events
	seen   map[string]bool                // event id -> appended
	leases map[string]lease               // lock name -> lease
}

type lease struct {
	owner   string
	expires time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string][]api.WorkflowEvent),
		seen:   make(map[string]bool),
		leases: make(map[string]lease),
	}
}

// Ensure MemoryStore implements the interfaces.
var (
	_ EventStore = (*MemoryStore)(nil)
	_ LockStore  = (*MemoryStore)(nil)
)

func (s *MemoryStore) AppendEvent(ctx context.Context, ev api.WorkflowEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Redelivery of an already-appended event is a no-op.
	if s.seen[ev.EventID] {
		return nil
	}
	s.seen[ev.EventID] = true
	s.events[ev.WorkflowID] = append(s.events[ev.WorkflowID], ev.Clone())
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, workflowID string) ([]api.WorkflowEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.events[workflowID]
	out := make([]api.WorkflowEvent, len(stored))
	for i, e := range stored {
		out[i] = e.Clone()
	}
	// Insertion order already breaks timestamp ties; the stable sort
	// only reorders events whose timestamps genuinely differ.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *MemoryStore) WorkflowIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	l, held := s.leases[name]
	if held && l.owner != owner && l.expires.After(now) {
		return false, nil
	}
	s.leases[name] = lease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Renew(ctx context.Context, name, owner string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, held := s.leases[name]
	if !held || l.owner != owner {
		return &api.LockAcquisitionError{Lock: name}
	}
	s.leases[name] = lease{owner: owner, expires: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, name, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, held := s.leases[name]; held && l.owner == owner {
		delete(s.leases, name)
	}
	return nil
}
