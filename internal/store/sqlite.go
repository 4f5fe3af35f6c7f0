package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/disasterlens/civicguard/internal/model"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database at the given path and runs migrations.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename to ensure order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("execute migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// --- Cases ---

const caseColumns = `id, timestamp_ms, source_engine, evidence_type, image_url, video_url,
	latitude, longitude, city, region, address, analysis, status, responder, remarks,
	is_anonymous, reporter_id, integrity_checksum, device_fingerprint, history, revision`

func (s *SQLiteStore) UpsertCase(ctx context.Context, c *model.IncidentCase) error {
	analysisJSON, err := json.Marshal(c.Analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	historyJSON, err := json.Marshal(c.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO incident_cases (`+caseColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   timestamp_ms = excluded.timestamp_ms,
		   source_engine = excluded.source_engine,
		   evidence_type = excluded.evidence_type,
		   image_url = excluded.image_url,
		   video_url = excluded.video_url,
		   latitude = excluded.latitude,
		   longitude = excluded.longitude,
		   city = excluded.city,
		   region = excluded.region,
		   address = excluded.address,
		   analysis = excluded.analysis,
		   status = excluded.status,
		   responder = excluded.responder,
		   remarks = excluded.remarks,
		   is_anonymous = excluded.is_anonymous,
		   reporter_id = excluded.reporter_id,
		   integrity_checksum = excluded.integrity_checksum,
		   device_fingerprint = excluded.device_fingerprint,
		   history = excluded.history,
		   revision = excluded.revision`,
		c.ID, c.Timestamp, string(c.SourceEngine), string(c.EvidenceType),
		c.ImageURL, c.VideoURL,
		c.Location.Latitude, c.Location.Longitude, c.City, c.Location.Region, c.Location.Address,
		string(analysisJSON), string(c.Status), c.Responder, c.Remarks,
		boolToInt(c.IsAnonymous), c.ReporterID, c.IntegrityChecksum, c.DeviceFingerprint,
		string(historyJSON), c.Revision)
	return err
}

func (s *SQLiteStore) GetCase(ctx context.Context, id string) (*model.IncidentCase, error) {
	return scanCase(s.db.QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM incident_cases WHERE id = ?`, id))
}

func (s *SQLiteStore) ListCases(ctx context.Context, city string) ([]*model.IncidentCase, error) {
	query := `SELECT ` + caseColumns + ` FROM incident_cases`
	var args []interface{}
	if city != "" && city != "ALL" {
		query += ` WHERE city = ?`
		args = append(args, city)
	}
	query += ` ORDER BY timestamp_ms DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*model.IncidentCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanCase(row scannable) (*model.IncidentCase, error) {
	var c model.IncidentCase
	var sourceEngine, evidenceType, status, analysisJSON, historyJSON string
	var isAnonymous int
	err := row.Scan(&c.ID, &c.Timestamp, &sourceEngine, &evidenceType,
		&c.ImageURL, &c.VideoURL,
		&c.Location.Latitude, &c.Location.Longitude, &c.City,
		&c.Location.Region, &c.Location.Address,
		&analysisJSON, &status, &c.Responder, &c.Remarks,
		&isAnonymous, &c.ReporterID, &c.IntegrityChecksum, &c.DeviceFingerprint,
		&historyJSON, &c.Revision)
	if err != nil {
		return nil, err
	}
	c.SourceEngine = model.SourceEngine(sourceEngine)
	c.EvidenceType = model.EvidenceType(evidenceType)
	c.Status = model.CaseStatus(status)
	c.Location.City = c.City
	c.IsAnonymous = isAnonymous != 0
	if err := json.Unmarshal([]byte(analysisJSON), &c.Analysis); err != nil {
		return nil, fmt.Errorf("unmarshal analysis for case %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &c.History); err != nil {
		return nil, fmt.Errorf("unmarshal history for case %s: %w", c.ID, err)
	}
	return &c, nil
}

// --- Audit trail ---

func (s *SQLiteStore) AppendAuditEntry(ctx context.Context, entry *model.AdminActionLog) error {
	details := entry.Details
	if len(details) == 0 {
		details = json.RawMessage("{}")
	}
	// Entries are immutable; a duplicate id is the same entry replayed
	// (e.g. a legacy snapshot imported twice), never an edit.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_trail (id, case_id, action, admin, timestamp_ms, details)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		entry.ID, entry.CaseID, entry.Action, entry.Admin, entry.Timestamp, string(details))
	return err
}

func (s *SQLiteStore) ListAuditEntries(ctx context.Context, caseID string) ([]*model.AdminActionLog, error) {
	query := `SELECT id, case_id, action, admin, timestamp_ms, details FROM audit_trail`
	var args []interface{}
	if caseID != "" {
		// Per-case view keeps insertion order; the unfiltered trail is
		// newest-first.
		query += ` WHERE case_id = ? ORDER BY timestamp_ms, id`
		args = append(args, caseID)
	} else {
		query += ` ORDER BY timestamp_ms DESC, id`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*model.AdminActionLog
	for rows.Next() {
		var e model.AdminActionLog
		var details string
		if err := rows.Scan(&e.ID, &e.CaseID, &e.Action, &e.Admin, &e.Timestamp, &details); err != nil {
			return nil, err
		}
		e.Details = json.RawMessage(details)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// --- Offline queue ---

func (s *SQLiteStore) EnqueuePending(ctx context.Context, c *model.IncidentCase) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal pending case: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO offline_queue (case_id, payload) VALUES (?, ?)`,
		c.ID, string(payload))
	return err
}

func (s *SQLiteStore) ListPending(ctx context.Context) ([]*PendingCase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, payload FROM offline_queue ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []*PendingCase
	for rows.Next() {
		var p PendingCase
		var payload string
		if err := rows.Scan(&p.Position, &payload); err != nil {
			return nil, err
		}
		var c model.IncidentCase
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return nil, fmt.Errorf("unmarshal pending case at position %d: %w", p.Position, err)
		}
		p.Case = &c
		pending = append(pending, &p)
	}
	return pending, rows.Err()
}

func (s *SQLiteStore) RemovePending(ctx context.Context, position int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM offline_queue WHERE position = ?`, position)
	return err
}

// --- Session ---

func (s *SQLiteStore) PutSession(ctx context.Context, profile *model.UserProfile) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO auth_session (slot, profile) VALUES (1, ?)
		 ON CONFLICT(slot) DO UPDATE SET profile = excluded.profile`,
		string(payload))
	return err
}

func (s *SQLiteStore) GetSession(ctx context.Context) (*model.UserProfile, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT profile FROM auth_session WHERE slot = 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var profile model.UserProfile
	if err := json.Unmarshal([]byte(payload), &profile); err != nil {
		return nil, fmt.Errorf("unmarshal session profile: %w", err)
	}
	return &profile, nil
}

func (s *SQLiteStore) ClearSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_session WHERE slot = 1`)
	return err
}

// --- Helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
