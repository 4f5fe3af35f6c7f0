package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/disasterlens/civicguard/internal/model"
)

// LegacyState is the four-container JSON layout the browser edition of the
// dashboard kept in local storage. Importing one migrates browser-era data
// into the SQLite store; exporting one produces a snapshot the old client
// can read back.
type LegacyState struct {
	Cases   []*model.IncidentCase   `json:"global_incident_log"`
	Queue   []*model.IncidentCase   `json:"civic_offline_queue"`
	Session *model.UserProfile      `json:"dlxcg_auth_session,omitempty"`
	Audit   []*model.AdminActionLog `json:"admin_audit_trail"`
}

// ExportLegacy writes the current store contents in the legacy container
// layout. Cases keep their timestamp-descending order.
func (s *SQLiteStore) ExportLegacy(ctx context.Context, w io.Writer) error {
	state := LegacyState{
		Cases: []*model.IncidentCase{},
		Queue: []*model.IncidentCase{},
		Audit: []*model.AdminActionLog{},
	}

	cases, err := s.ListCases(ctx, "")
	if err != nil {
		return fmt.Errorf("export cases: %w", err)
	}
	state.Cases = append(state.Cases, cases...)

	pending, err := s.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("export offline queue: %w", err)
	}
	for _, p := range pending {
		state.Queue = append(state.Queue, p.Case)
	}

	session, err := s.GetSession(ctx)
	if err != nil {
		return fmt.Errorf("export session: %w", err)
	}
	state.Session = session

	audit, err := s.ListAuditEntries(ctx, "")
	if err != nil {
		return fmt.Errorf("export audit trail: %w", err)
	}
	state.Audit = append(state.Audit, audit...)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&state)
}

// ImportLegacy loads a legacy snapshot into the store. Cases and audit
// entries are upserted/appended by id, so importing the same snapshot twice
// does not duplicate cases.
func (s *SQLiteStore) ImportLegacy(ctx context.Context, r io.Reader) error {
	var state LegacyState
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return fmt.Errorf("decode legacy snapshot: %w", err)
	}

	for _, c := range state.Cases {
		if c.Revision == 0 {
			c.Revision = 1
		}
		// Reads normalize the location city from the top-level field, so
		// the digest must cover the normalized form.
		c.Location.City = c.City
		// Browser-era records carry short random checksums; reseal so the
		// imported case verifies against the digest used here.
		c.IntegrityChecksum = c.Checksum()
		if err := s.UpsertCase(ctx, c); err != nil {
			return fmt.Errorf("import case %s: %w", c.ID, err)
		}
	}
	if len(state.Queue) > 0 {
		// The queue has no natural key, so a re-imported snapshot would
		// append its pending cases again. Skip ids already buffered.
		queued := make(map[string]bool)
		pending, err := s.ListPending(ctx)
		if err != nil {
			return fmt.Errorf("list pending cases: %w", err)
		}
		for _, p := range pending {
			queued[p.Case.ID] = true
		}
		for _, c := range state.Queue {
			if queued[c.ID] {
				continue
			}
			queued[c.ID] = true
			if err := s.EnqueuePending(ctx, c); err != nil {
				return fmt.Errorf("import pending case %s: %w", c.ID, err)
			}
		}
	}
	if state.Session != nil {
		if err := s.PutSession(ctx, state.Session); err != nil {
			return fmt.Errorf("import session: %w", err)
		}
	}
	for _, e := range state.Audit {
		if err := s.AppendAuditEntry(ctx, e); err != nil {
			return fmt.Errorf("import audit entry %s: %w", e.ID, err)
		}
	}
	return nil
}
