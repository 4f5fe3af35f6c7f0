// Package cases owns the incident-case lifecycle: creation, queries,
// status transitions with their audit side effects, and alert dispatch.
package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disasterlens/civicguard/internal/alert"
	"github.com/disasterlens/civicguard/internal/cgerr"
	"github.com/disasterlens/civicguard/internal/model"
	"github.com/disasterlens/civicguard/internal/store"
	"github.com/google/uuid"
)

// NoRemarks is recorded in STATUS_UPDATE audit details when the acting
// user supplied none.
const NoRemarks = "No remarks provided"

// Options tunes lifecycle behavior.
type Options struct {
	// IgnoreMissing restores the legacy tolerance of the browser edition:
	// a status update for an unknown case id becomes a silent no-op
	// instead of a NotFoundError. Used when replaying old snapshots.
	IgnoreMissing bool
}

// Service is the case lifecycle service. All writes are serialized through
// a single-writer mutex; reads go straight to the store.
type Service struct {
	mu         sync.Mutex
	store      store.Store
	dispatcher alert.Dispatcher
	logger     *slog.Logger
	opts       Options
}

// NewService creates a Service over the given store and alert dispatcher.
func NewService(st store.Store, dispatcher alert.Dispatcher, logger *slog.Logger, opts Options) *Service {
	return &Service{
		store:      st,
		dispatcher: dispatcher,
		logger:     logger,
		opts:       opts,
	}
}

// Create validates and persists a case. It is an idempotent upsert keyed on
// id: a second create with the same id replaces the prior record entirely,
// history included. The integrity checksum and device fingerprint are
// assigned here, at store time. When the attached analysis is CRITICAL,
// exactly one alert is dispatched per call.
func (s *Service) Create(ctx context.Context, c *model.IncidentCase, userAgent string) error {
	if err := s.create(ctx, c, userAgent); err != nil {
		return err
	}

	if c.Analysis.RiskLevel == model.RiskCritical {
		// The case is already committed, so delivery failure must not
		// fail the create. Dispatch runs after the writer lock is
		// released; a slow gateway cannot stall other writes.
		if err := s.dispatcher.DispatchCritical(ctx, c); err != nil {
			s.logger.Error("critical alert dispatch failed", "case_id", c.ID, "error", err)
		}
	}
	return nil
}

func (s *Service) create(ctx context.Context, c *model.IncidentCase, userAgent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Timestamp == 0 {
		c.Timestamp = time.Now().UnixMilli()
	}
	if c.Status == "" {
		c.Status = model.StatusPending
	}
	if err := validate(c); err != nil {
		return err
	}

	if len(c.History) == 0 {
		reporter := c.ReporterID
		if reporter == "" {
			reporter = "reporter"
		}
		c.History = []model.StatusChange{{
			Status:    c.Status,
			Timestamp: c.Timestamp,
			User:      reporter,
		}}
	}

	// Revision continues from any record being replaced.
	prev, err := s.store.GetCase(ctx, c.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return &cgerr.TransportError{Op: "load case " + c.ID, Err: err}
	}
	if prev != nil {
		c.Revision = prev.Revision + 1
	} else {
		c.Revision = 1
	}

	c.DeviceFingerprint = fingerprint(userAgent)
	c.IntegrityChecksum = c.Checksum()

	if err := s.store.UpsertCase(ctx, c); err != nil {
		return &cgerr.TransportError{Op: "save case " + c.ID, Err: err}
	}
	return nil
}

// Query returns cases sorted by timestamp descending, optionally filtered
// to one city. An empty filter or "ALL" returns everything. It never
// mutates the store.
func (s *Service) Query(ctx context.Context, cityFilter string) ([]*model.IncidentCase, error) {
	cases, err := s.store.ListCases(ctx, cityFilter)
	if err != nil {
		return nil, &cgerr.TransportError{Op: "query cases", Err: err}
	}
	return cases, nil
}

// Get returns one case and verifies its integrity checksum.
func (s *Service) Get(ctx context.Context, id string) (*model.IncidentCase, error) {
	c, err := s.store.GetCase(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &cgerr.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, &cgerr.TransportError{Op: "load case " + id, Err: err}
	}
	if want := c.Checksum(); c.IntegrityChecksum != want {
		return nil, &cgerr.ValidationError{
			Field:  "integrityChecksum",
			Reason: fmt.Sprintf("stored checksum does not match content of case %s", id),
		}
	}
	return c, nil
}

// UpdateStatus transitions a case to newStatus, appends one history entry,
// and records one STATUS_UPDATE audit entry. Remarks, when given, replace
// the case remarks. An unknown id yields a NotFoundError unless the
// IgnoreMissing option is set, in which case the call is a silent no-op
// with no audit entry.
func (s *Service) UpdateStatus(ctx context.Context, id string, newStatus model.CaseStatus, actingUser, remarks string) error {
	if !newStatus.Valid() {
		return &cgerr.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", newStatus)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.store.GetCase(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		if s.opts.IgnoreMissing {
			s.logger.Debug("status update for unknown case ignored", "case_id", id)
			return nil
		}
		return &cgerr.NotFoundError{ID: id}
	}
	if err != nil {
		return &cgerr.TransportError{Op: "load case " + id, Err: err}
	}

	previous := c.Status
	c.Status = newStatus
	if remarks != "" {
		c.Remarks = remarks
	}
	c.History = append(c.History, model.StatusChange{
		Status:    newStatus,
		Timestamp: time.Now().UnixMilli(),
		User:      actingUser,
	})
	c.Revision++
	c.IntegrityChecksum = c.Checksum()

	if err := s.store.UpsertCase(ctx, c); err != nil {
		return &cgerr.TransportError{Op: "save case " + id, Err: err}
	}

	auditRemarks := remarks
	if auditRemarks == "" {
		auditRemarks = NoRemarks
	}
	return s.logAction(ctx, id, model.ActionStatusUpdate, actingUser, model.StatusUpdateDetails{
		PreviousStatus: previous,
		NewStatus:      newStatus,
		Remarks:        auditRemarks,
	})
}

// LogAction appends one audit-trail entry. The action tag is free text;
// STATUS_UPDATE and SECURE_ACCESS_GRANTED carry typed details.
func (s *Service) LogAction(ctx context.Context, caseID, action, admin string, details any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logAction(ctx, caseID, action, admin, details)
}

func (s *Service) logAction(ctx context.Context, caseID, action, admin string, details any) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return &cgerr.ValidationError{Field: "details", Reason: err.Error()}
	}
	now := time.Now().UnixMilli()
	entry := &model.AdminActionLog{
		ID:        fmt.Sprintf("LOG-%d-%s", now, uuid.NewString()[:8]),
		CaseID:    caseID,
		Action:    action,
		Admin:     admin,
		Timestamp: now,
		Details:   payload,
	}
	if err := s.store.AppendAuditEntry(ctx, entry); err != nil {
		return &cgerr.TransportError{Op: "append audit entry", Err: err}
	}
	return nil
}

// QueryLogs returns the audit trail for one case in insertion order, or,
// with an empty caseID, the full trail newest-first.
func (s *Service) QueryLogs(ctx context.Context, caseID string) ([]*model.AdminActionLog, error) {
	entries, err := s.store.ListAuditEntries(ctx, caseID)
	if err != nil {
		return nil, &cgerr.TransportError{Op: "query audit trail", Err: err}
	}
	return entries, nil
}

// SecureAccessGranted reports whether an admin has unlocked media access
// for the given case via a SECURE_ACCESS_GRANTED grant.
func (s *Service) SecureAccessGranted(ctx context.Context, caseID string) (bool, error) {
	entries, err := s.QueryLogs(ctx, caseID)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Action == model.ActionSecureAccessGranted {
			return true, nil
		}
	}
	return false, nil
}

func validate(c *model.IncidentCase) error {
	switch {
	case c.ID == "":
		return &cgerr.ValidationError{Field: "id", Reason: "must not be empty"}
	case !c.SourceEngine.Valid():
		return &cgerr.ValidationError{Field: "sourceEngine", Reason: fmt.Sprintf("unknown engine %q", c.SourceEngine)}
	case !c.EvidenceType.Valid():
		return &cgerr.ValidationError{Field: "evidenceType", Reason: fmt.Sprintf("unknown type %q", c.EvidenceType)}
	case !c.Status.Valid():
		return &cgerr.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", c.Status)}
	case !model.SupportedCity(c.City):
		return &cgerr.ValidationError{Field: "city", Reason: fmt.Sprintf("%q is not a supported city", c.City)}
	case c.EvidenceType == model.EvidenceImage && c.ImageURL == "":
		return &cgerr.ValidationError{Field: "imageUrl", Reason: "required for IMAGE evidence"}
	case c.EvidenceType == model.EvidenceVideo && c.VideoURL == "":
		return &cgerr.ValidationError{Field: "videoUrl", Reason: "required for VIDEO evidence"}
	case !c.Analysis.RiskLevel.Valid():
		return &cgerr.ValidationError{Field: "analysis.riskLevel", Reason: fmt.Sprintf("unknown level %q", c.Analysis.RiskLevel)}
	case !c.Analysis.UrgencyLevel.Valid():
		return &cgerr.ValidationError{Field: "analysis.urgencyLevel", Reason: fmt.Sprintf("unknown level %q", c.Analysis.UrgencyLevel)}
	case c.Analysis.ConfidenceScore < 0 || c.Analysis.ConfidenceScore > 1:
		return &cgerr.ValidationError{Field: "analysis.confidenceScore", Reason: "must be within [0,1]"}
	case c.Analysis.ImpactSeverity < 1 || c.Analysis.ImpactSeverity > 10:
		return &cgerr.ValidationError{Field: "analysis.impactSeverity", Reason: "must be within [1,10]"}
	}
	// The location city mirrors the top-level field; keep them consistent.
	if c.Location.City == "" {
		c.Location.City = c.City
	} else if c.Location.City != c.City {
		return &cgerr.ValidationError{Field: "location.city", Reason: "does not match case city"}
	}
	return nil
}
