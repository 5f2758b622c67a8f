// Package audit records internal pipeline actions (LLM round trips, tool
// executions, retrieval runs) to the audit_events table. Recording is best
// effort: an audit failure must never fail the user-facing response.
package audit

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opsdesk/opsdesk/internal/storage"
)

// EventStore is the slice of the store the recorder needs.
type EventStore interface {
	AppendAudit(ev storage.AuditEvent) error
}

// Recorder writes audit events. The zero-value *Recorder (nil) is a no-op,
// so components can take an optional recorder without nil checks at every
// call site.
type Recorder struct {
	store EventStore
}

func NewRecorder(store EventStore) *Recorder {
	return &Recorder{store: store}
}

// Record persists one pipeline action. err may be nil.
func (r *Recorder) Record(action, query, result string, err error, d time.Duration) {
	if r == nil {
		return
	}

	ev := storage.AuditEvent{
		ID:         uuid.New().String(),
		CreatedAt:  time.Now().UTC(),
		Action:     action,
		Query:      query,
		Result:     result,
		DurationMs: d.Milliseconds(),
	}
	if err != nil {
		ev.Error = err.Error()
	}

	if storeErr := r.store.AppendAudit(ev); storeErr != nil {
		slog.Error("writing audit event", "action", action, "error", storeErr)
	}
}
