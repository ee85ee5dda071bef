package engine

import (
	"fmt"
	"strings"

	"github.com/corvid-labs/chronicle/pkg/api"
)

// renderParams resolves {{context.path}} and {{outputs.step.path}}
// placeholders in a step's parameter template against the current
// state. A string that is exactly one placeholder is replaced by the
// raw looked-up value; placeholders embedded in longer strings are
// stringified in place. Non-string values pass through deep-copied.
func renderParams(params map[string]any, state *api.WorkflowState) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = renderValue(v, state)
	}
	return out
}

func renderValue(v any, state *api.WorkflowState) any {
	switch val := v.(type) {
	case string:
		return renderString(val, state)
	case map[string]any:
		return renderParams(val, state)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = renderValue(elem, state)
		}
		return out
	default:
		return api.CloneValue(v)
	}
}

func renderString(s string, state *api.WorkflowState) any {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") &&
		strings.Count(trimmed, "{{") == 1 {
		path := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		return lookupPath(path, state)
	}

	// Inline placeholders: substitute their string form.
	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:start])
		path := strings.TrimSpace(rest[start+2 : start+end])
		if v := lookupPath(path, state); v != nil {
			fmt.Fprintf(&b, "%v", v)
		}
		rest = rest[start+end+2:]
	}
	return b.String()
}

// lookupPath walks a dotted path rooted at "context" or "outputs".
// Unknown roots and missing fields resolve to nil.
func lookupPath(path string, state *api.WorkflowState) any {
	parts := strings.Split(path, ".")
	var current any
	switch parts[0] {
	case "context":
		current = state.Context
	case "outputs":
		current = state.Outputs
	case "workflow_id":
		return state.WorkflowID
	default:
		return nil
	}
	for _, part := range parts[1:] {
		switch m := current.(type) {
		case map[string]any:
			current = m[part]
		default:
			return nil
		}
	}
	return api.CloneValue(current)
}
