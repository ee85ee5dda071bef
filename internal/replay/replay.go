// Package replay reconstructs workflow state by folding ordered event
// sequences through the reducer. The same code path serves initial
// execution, resumption and auditing, so replayed state is identical to
// live state by construction.
package replay

import (
	"sort"
	"time"

	"github.com/corvid-labs/chronicle/internal/reducer"
	"github.com/corvid-labs/chronicle/pkg/api"
)

// Replay folds the event list into a state, starting from the
// initialized seed. Events are sorted by timestamp with a stable sort,
// so ties keep their stored order.
func Replay(events []api.WorkflowEvent) (*api.WorkflowState, error) {
	if len(events) == 0 {
		return api.NewState(""), nil
	}

	ordered := sortEvents(events)
	state := api.NewState(ordered[0].WorkflowID)
	for _, e := range ordered {
		next, err := reducer.Apply(state, e)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}

// StateAt replays only the prefix of events with a timestamp at or
// before the given instant, yielding the workflow's state as of that
// point in time.
func StateAt(events []api.WorkflowEvent, at time.Time) (*api.WorkflowState, error) {
	prefix := make([]api.WorkflowEvent, 0, len(events))
	for _, e := range events {
		if !e.Timestamp.After(at) {
			prefix = append(prefix, e)
		}
	}
	return Replay(prefix)
}

// ReplayFrom fast-forwards from a cached state by folding only the
// events beyond the state's event count. The cached state must have
// been produced from a prefix of the same ordered stream, typically at
// a create_snapshot marker.
func ReplayFrom(cached *api.WorkflowState, events []api.WorkflowEvent) (*api.WorkflowState, error) {
	if cached == nil {
		return Replay(events)
	}
	ordered := sortEvents(events)
	if cached.EventCount >= len(ordered) {
		return cached.Clone(), nil
	}

	state := cached.Clone()
	for _, e := range ordered[cached.EventCount:] {
		next, err := reducer.Apply(state, e)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}

func sortEvents(events []api.WorkflowEvent) []api.WorkflowEvent {
	ordered := make([]api.WorkflowEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})
	return ordered
}
