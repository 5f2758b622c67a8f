package audit

import (
	"fmt"
	"testing"
	"time"

	"github.com/opsdesk/opsdesk/internal/storage"
)

type captureStore struct {
	events []storage.AuditEvent
	err    error
}

func (c *captureStore) AppendAudit(ev storage.AuditEvent) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}

func TestRecord(t *testing.T) {
	store := &captureStore{}
	r := NewRecorder(store)

	r.Record("llm_planning_call", "who is on call", "1 tool call", nil, 250*time.Millisecond)

	if len(store.events) != 1 {
		t.Fatalf("got %d events, want 1", len(store.events))
	}
	ev := store.events[0]
	if ev.Action != "llm_planning_call" || ev.Result != "1 tool call" {
		t.Errorf("event = %+v", ev)
	}
	if ev.DurationMs != 250 {
		t.Errorf("duration_ms = %d, want 250", ev.DurationMs)
	}
	if ev.ID == "" || ev.CreatedAt.IsZero() {
		t.Errorf("id/timestamp not set: %+v", ev)
	}
	if ev.Error != "" {
		t.Errorf("error = %q, want empty", ev.Error)
	}
}

func TestRecord_CapturesError(t *testing.T) {
	store := &captureStore{}
	r := NewRecorder(store)

	r.Record("tool_get_employees", "q", "", fmt.Errorf("db locked"), time.Millisecond)

	if store.events[0].Error != "db locked" {
		t.Errorf("error = %q", store.events[0].Error)
	}
}

func TestRecord_NilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	// Must not panic.
	r.Record("anything", "", "", nil, 0)
}

func TestRecord_StoreFailureSwallowed(t *testing.T) {
	r := NewRecorder(&captureStore{err: fmt.Errorf("disk full")})
	// Must not panic or propagate.
	r.Record("llm_synthesis_call", "q", "r", nil, time.Second)
}
