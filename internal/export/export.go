// Package export renders a workflow's signed event stream into audit
// artifacts: machine-readable JSON and CSV, and a human-readable audit
// document with the derived final state.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/corvid-labs/chronicle/internal/replay"
	"github.com/corvid-labs/chronicle/pkg/api"
)

// EventsJSON writes the event stream as an indented JSON array.
func EventsJSON(w io.Writer, events []api.WorkflowEvent) error {
	out, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("export: encode events: %w", err)
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("export: write events: %w", err)
	}
	_, err = io.WriteString(w, "\n")
	return err
}

// csvHeader matches the persisted event schema, one column per field.
var csvHeader = []string{
	"event_id", "workflow_id", "parent_workflow_id", "action",
	"step_id", "data", "timestamp", "event_version", "signature",
}

// EventsCSV writes the event stream as CSV with one row per event. The
// data payload is JSON-encoded into its cell.
func EventsCSV(w io.Writer, events []api.WorkflowEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	for _, ev := range events {
		data := ""
		if len(ev.Data) > 0 {
			raw, err := json.Marshal(ev.Data)
			if err != nil {
				return fmt.Errorf("export: encode data of event %s: %w", ev.EventID, err)
			}
			data = string(raw)
		}
		row := []string{
			ev.EventID,
			ev.WorkflowID,
			ev.ParentWorkflowID,
			string(ev.Action),
			ev.StepID,
			data,
			ev.Timestamp.Format("2006-01-02T15:04:05.999999999Z07:00"),
			fmt.Sprintf("%d", ev.EventVersion),
			ev.Signature,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write event %s: %w", ev.EventID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// AuditDocument writes a reviewer-facing summary: the final derived
// state followed by the chronological event log.
func AuditDocument(w io.Writer, events []api.WorkflowEvent) error {
	state, err := replay.Replay(events)
	if err != nil {
		return fmt.Errorf("export: replay: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Workflow %s\n", state.WorkflowID)
	fmt.Fprintf(&b, "Template:  %s\n", state.TemplateName)
	fmt.Fprintf(&b, "Status:    %s\n", state.Status)
	if state.ParentWorkflowID != "" {
		fmt.Fprintf(&b, "Parent:    %s\n", state.ParentWorkflowID)
	}
	if !state.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Started:   %s\n", state.StartedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	if !state.EndedAt.IsZero() {
		fmt.Fprintf(&b, "Ended:     %s\n", state.EndedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	fmt.Fprintf(&b, "Events:    %d\n", state.EventCount)

	if len(state.StepsCompleted) > 0 {
		fmt.Fprintf(&b, "\nCompleted steps:\n")
		for _, id := range state.StepsCompleted {
			fmt.Fprintf(&b, "  - %s\n", id)
		}
	}
	if len(state.Retries) > 0 {
		fmt.Fprintf(&b, "\nRetries:\n")
		for _, id := range sortedKeys(state.Retries) {
			fmt.Fprintf(&b, "  - %s: %d\n", id, state.Retries[id])
		}
	}
	if len(state.Approvals) > 0 {
		fmt.Fprintf(&b, "\nApprovals:\n")
		for _, id := range sortedKeys(state.Approvals) {
			d := state.Approvals[id]
			fmt.Fprintf(&b, "  - %s by %s", id, d.Actor)
			if d.Role != "" {
				fmt.Fprintf(&b, " (%s)", d.Role)
			}
			if d.Comment != "" {
				fmt.Fprintf(&b, ": %s", d.Comment)
			}
			fmt.Fprintf(&b, "\n")
		}
	}
	if len(state.Rejections) > 0 {
		fmt.Fprintf(&b, "\nRejections:\n")
		for _, id := range sortedKeys(state.Rejections) {
			d := state.Rejections[id]
			fmt.Fprintf(&b, "  - %s by %s", id, d.Actor)
			if d.Comment != "" {
				fmt.Fprintf(&b, ": %s", d.Comment)
			}
			fmt.Fprintf(&b, "\n")
		}
	}
	if state.LastError != nil {
		fmt.Fprintf(&b, "\nLast error (%s, retriable=%t): %s\n",
			state.LastError.Type, state.LastError.Retriable, state.LastError.Message)
	}
	if len(state.Annotations) > 0 {
		fmt.Fprintf(&b, "\nAnnotations:\n")
		for _, a := range state.Annotations {
			fmt.Fprintf(&b, "  - [%s] %s: %s\n", a.At.UTC().Format("15:04:05"), a.Author, a.Text)
		}
	}

	fmt.Fprintf(&b, "\nEvent log:\n")
	for _, ev := range events {
		fmt.Fprintf(&b, "  %s  %-24s", ev.Timestamp.UTC().Format("2006-01-02 15:04:05"), ev.Action)
		if ev.StepID != "" {
			fmt.Fprintf(&b, "  step=%s", ev.StepID)
		}
		fmt.Fprintf(&b, "\n")
	}

	_, err = io.WriteString(w, b.String())
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
