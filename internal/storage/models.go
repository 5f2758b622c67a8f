package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Query type labels recorded on interaction log entries.
const (
	QueryTypeStaticKnowledge = "static_knowledge"
	QueryTypeDynamicData     = "dynamic_data"
	QueryTypeOutOfScope      = "out_of_scope"
	QueryTypeIntentMismatch  = "intent_mismatch"
	QueryTypeError           = "error"
	QueryTypeLog             = "log"
)

// Employee is a directory record exposed through the get_employees tool.
type Employee struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Role            string `json:"role"`
	Team            string `json:"team"`
	TrackerUsername string `json:"tracker_username"`
}

// Ticket is an issue-tracker record exposed through the get_tickets tool.
type Ticket struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Assignee string `json:"assignee"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

// Deployment is a release record exposed through the get_deployments tool.
type Deployment struct {
	ID         int64  `json:"id"`
	Service    string `json:"service"`
	Version    string `json:"version"`
	Status     string `json:"status"`
	Date       string `json:"date"`
	DeployedBy string `json:"deployed_by"`
}

// Feedback is a user's reaction to a logged answer. Stored as a JSON blob in
// the logs.feedback column; a later submission for the same entry overwrites
// an earlier one.
type Feedback struct {
	Helpful   bool      `json:"helpful"`
	Text      string    `json:"feedback_text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LogEntry is one recorded question/answer interaction.
type LogEntry struct {
	ID             int64     `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Query          string    `json:"query"`
	Response       string    `json:"response"`
	Sources        []string  `json:"sources"`
	QueryType      string    `json:"query_type"`
	ProcessingSecs float64   `json:"processing_secs"`
	UserID         string    `json:"user_id,omitempty"`
	Feedback       *Feedback `json:"feedback,omitempty"`
}

// AuditEvent records one internal pipeline action (an LLM round trip or a
// tool execution) for operational inspection.
type AuditEvent struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Action     string    `json:"action"`
	Query      string    `json:"query,omitempty"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}
