// Package queue buffers cases submitted while disconnected and replays
// them into the case lifecycle once connectivity returns.
package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/disasterlens/civicguard/internal/cases"
	"github.com/disasterlens/civicguard/internal/cgerr"
	"github.com/disasterlens/civicguard/internal/model"
	"github.com/disasterlens/civicguard/internal/store"
)

// Queue is the durable offline submission buffer.
type Queue struct {
	store  store.Store
	cases  *cases.Service
	logger *slog.Logger
}

// New creates a Queue that replays into the given case service.
func New(st store.Store, svc *cases.Service, logger *slog.Logger) *Queue {
	return &Queue{store: st, cases: svc, logger: logger}
}

// Enqueue appends a case to the durable pending list.
func (q *Queue) Enqueue(ctx context.Context, c *model.IncidentCase) error {
	if err := q.store.EnqueuePending(ctx, c); err != nil {
		return &cgerr.TransportError{Op: "enqueue pending case", Err: err}
	}
	q.logger.Info("case queued for replay", "case_id", c.ID)
	return nil
}

// Pending returns the number of buffered cases.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	pending, err := q.store.ListPending(ctx)
	if err != nil {
		return 0, &cgerr.TransportError{Op: "list pending cases", Err: err}
	}
	return len(pending), nil
}

// Flush drains the pending list in FIFO order, creating each case and
// removing it from the queue as soon as it is committed. A failure aborts
// the remainder of the flush, but every case submitted so far has already
// been removed, so a later re-flush never duplicates work. Returns the
// number of cases flushed.
func (q *Queue) Flush(ctx context.Context) (int, error) {
	pending, err := q.store.ListPending(ctx)
	if err != nil {
		return 0, &cgerr.TransportError{Op: "list pending cases", Err: err}
	}

	flushed := 0
	for _, p := range pending {
		// The fingerprint was captured at submission time; replay with the
		// original agent so the stored fingerprint reflects the device
		// that produced the evidence.
		agent := p.Case.DeviceFingerprint
		if err := q.cases.Create(ctx, p.Case, agent); err != nil {
			return flushed, fmt.Errorf("flush case %s at position %d: %w", p.Case.ID, p.Position, err)
		}
		if err := q.store.RemovePending(ctx, p.Position); err != nil {
			return flushed, &cgerr.TransportError{Op: "remove flushed case", Err: err}
		}
		flushed++
	}
	if flushed > 0 {
		q.logger.Info("offline queue flushed", "count", flushed)
	}
	return flushed, nil
}
