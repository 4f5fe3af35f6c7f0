package store

import (
	"context"

	"github.com/disasterlens/civicguard/internal/model"
)

// PendingCase is an offline-queue entry: a case plus its FIFO position.
type PendingCase struct {
	Position int64
	Case     *model.IncidentCase
}

// Store defines the persistence interface for the incident dashboard.
type Store interface {
	// Cases
	UpsertCase(ctx context.Context, c *model.IncidentCase) error
	GetCase(ctx context.Context, id string) (*model.IncidentCase, error)
	// ListCases returns cases sorted by timestamp descending. An empty
	// city or "ALL" means no filtering.
	ListCases(ctx context.Context, city string) ([]*model.IncidentCase, error)

	// Audit trail
	AppendAuditEntry(ctx context.Context, entry *model.AdminActionLog) error
	// ListAuditEntries returns entries for one case in insertion order, or,
	// with an empty caseID, the full trail sorted by timestamp descending.
	ListAuditEntries(ctx context.Context, caseID string) ([]*model.AdminActionLog, error)

	// Offline queue
	EnqueuePending(ctx context.Context, c *model.IncidentCase) error
	ListPending(ctx context.Context) ([]*PendingCase, error)
	RemovePending(ctx context.Context, position int64) error

	// Session
	PutSession(ctx context.Context, profile *model.UserProfile) error
	// GetSession returns (nil, nil) when no session is active.
	GetSession(ctx context.Context) (*model.UserProfile, error)
	ClearSession(ctx context.Context) error

	Close() error
}
