package signature

import (
	"github.com/corvid-labs/chronicle/pkg/api"
)

// VerifyMode controls how ValidateEventChain reacts to invalid
// signatures.
type VerifyMode int

const (
	// Strict stops at the first invalid signature.
	Strict VerifyMode = iota
	// Lenient checks every event and reports all failures at once.
	Lenient
)

// ValidateEventChain verifies the signatures of every event in a
// workflow's stream. Legacy (version 1) events carry no signature and
// are skipped; they should be migrated with MigrateLegacy.
//
// Returns a *api.TamperedEventError naming the offending event ids, or
// nil when the chain is intact.
func (s *Signer) ValidateEventChain(events []api.WorkflowEvent, mode VerifyMode) error {
	var bad []string
	var workflowID string

	for _, e := range events {
		if workflowID == "" {
			workflowID = e.WorkflowID
		}
		if e.EventVersion == api.EventVersionLegacy {
			continue
		}
		ok, err := s.Verify(e)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if mode == Strict {
			return &api.TamperedEventError{WorkflowID: workflowID, EventIDs: []string{e.EventID}}
		}
		bad = append(bad, e.EventID)
	}

	if len(bad) > 0 {
		return &api.TamperedEventError{WorkflowID: workflowID, EventIDs: bad}
	}
	return nil
}

// MigrateLegacy re-signs a version 1 event under the current schema
// version. Semantic fields are copied untouched; only event_version and
// signature change. Events already at the current version are returned
// as-is.
func (s *Signer) MigrateLegacy(e api.WorkflowEvent) (api.WorkflowEvent, error) {
	if e.EventVersion != api.EventVersionLegacy {
		return e, nil
	}
	return s.SignEvent(e)
}

// MigrateAll migrates every legacy event in the list, preserving order.
func (s *Signer) MigrateAll(events []api.WorkflowEvent) ([]api.WorkflowEvent, error) {
	out := make([]api.WorkflowEvent, len(events))
	for i, e := range events {
		m, err := s.MigrateLegacy(e)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}
