package replay

import (
	"context"
	"fmt"

	"github.com/corvid-labs/chronicle/pkg/api"
)

// MaxChainDepth is the hard cap on parent-chain traversal. A deeper
// chain indicates runaway child-workflow composition and is surfaced as
// a ChainIntegrityError.
const MaxChainDepth = 20

// EventLoader fetches the ordered event stream for one workflow.
type EventLoader func(ctx context.Context, workflowID string) ([]api.WorkflowEvent, error)

// Chain reconstructs the states of a workflow and all of its ancestors,
// following parent_workflow_id links until none remains. The result is
// in chronological order: root ancestor first, the given workflow last.
//
// Cycles and chains deeper than MaxChainDepth raise a
// ChainIntegrityError.
func Chain(ctx context.Context, workflowID string, load EventLoader) ([]*api.WorkflowState, error) {
	var states []*api.WorkflowState
	visited := make(map[string]bool)

	current := workflowID
	for current != "" {
		if visited[current] {
			return nil, &api.ChainIntegrityError{
				WorkflowID: workflowID,
				Reason:     "cycle detected at " + current,
			}
		}
		if len(states) >= MaxChainDepth {
			return nil, &api.ChainIntegrityError{
				WorkflowID: workflowID,
				Reason:     fmt.Sprintf("chain exceeds %d workflows", MaxChainDepth),
			}
		}
		visited[current] = true

		events, err := load(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("load events for %s: %w", current, err)
		}
		state, err := Replay(events)
		if err != nil {
			return nil, err
		}
		// Loader may return no events for an unknown id; keep the seed
		// state so the chain still reflects the link.
		if state.WorkflowID == "" {
			state.WorkflowID = current
		}

		states = append(states, state)
		current = state.ParentWorkflowID
	}

	// Walked child -> root; return root first.
	for i, j := 0, len(states)-1; i < j; i, j = i+1, j-1 {
		states[i], states[j] = states[j], states[i]
	}
	return states, nil
}

// ChainIDs returns the workflow ids of the chain, root first.
func ChainIDs(ctx context.Context, workflowID string, load EventLoader) ([]string, error) {
	states, err := Chain(ctx, workflowID, load)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(states))
	for i, s := range states {
		ids[i] = s.WorkflowID
	}
	return ids, nil
}

// Depth returns the number of workflows in the chain, the given
// workflow included.
func Depth(ctx context.Context, workflowID string, load EventLoader) (int, error) {
	states, err := Chain(ctx, workflowID, load)
	if err != nil {
		return 0, err
	}
	return len(states), nil
}
