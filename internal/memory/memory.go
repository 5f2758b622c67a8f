// Package memory formats recent interaction log entries into a conversation
// transcript for prompt context, and computes usage stats over the log.
package memory

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opsdesk/opsdesk/internal/storage"
)

const (
	// historyWindow is how many recent interactions are considered for
	// the transcript.
	historyWindow = 5

	// DefaultMaxChars is the default character budget for the transcript.
	DefaultMaxChars = 2000

	turnSeparator = "\n\n"
)

// LogReader is the slice of the store the memory needs.
type LogReader interface {
	RecentLogs(limit int, userID string) ([]storage.LogEntry, error)
	CountLogs(userID string) (int, error)
	CountLogsSince(userID string, t time.Time) (int, error)
	QueryTypeCounts(userID string) (map[string]int, error)
}

// Memory derives conversation context from the interaction log. It holds no
// state of its own; every call re-reads the log.
type Memory struct {
	store LogReader
}

func New(store LogReader) *Memory {
	return &Memory{store: store}
}

// Context returns a transcript of the user's recent interactions, oldest
// first, within the maxChars budget. Turns are accumulated newest-last and
// accumulation stops before the budget would be exceeded, so one oversized
// turn is dropped whole rather than truncated. A log read failure yields an
// empty transcript, never an error: answering without history beats not
// answering.
func (m *Memory) Context(userID string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	entries, err := m.store.RecentLogs(historyWindow, userID)
	if err != nil {
		slog.Warn("reading conversation history", "error", err)
		return ""
	}
	if len(entries) == 0 {
		return ""
	}

	// RecentLogs is newest-first; the transcript reads oldest-first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	var sb strings.Builder
	for _, e := range entries {
		turn := formatTurn(e)
		need := len(turn)
		if sb.Len() > 0 {
			need += len(turnSeparator)
		}
		if sb.Len()+need > maxChars {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString(turnSeparator)
		}
		sb.WriteString(turn)
	}
	return sb.String()
}

func formatTurn(e storage.LogEntry) string {
	turn := fmt.Sprintf("User: %s\nAssistant: %s", e.Query, e.Response)
	if len(e.Sources) > 0 {
		turn += "\nSources used: " + strings.Join(e.Sources, ", ")
	}
	return turn
}

// Stats summarizes interaction log usage.
type Stats struct {
	TotalConversations    int            `json:"total_conversations"`
	Recent24h             int            `json:"recent_conversations_24h"`
	QueryTypeDistribution map[string]int `json:"query_type_distribution"`
}

// Stats recomputes usage counters from the log. Nothing is cached.
func (m *Memory) Stats(userID string) (Stats, error) {
	total, err := m.store.CountLogs(userID)
	if err != nil {
		return Stats{}, fmt.Errorf("counting logs: %w", err)
	}

	recent, err := m.store.CountLogsSince(userID, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		return Stats{}, fmt.Errorf("counting recent logs: %w", err)
	}

	counts, err := m.store.QueryTypeCounts(userID)
	if err != nil {
		return Stats{}, fmt.Errorf("counting query types: %w", err)
	}

	return Stats{
		TotalConversations:    total,
		Recent24h:             recent,
		QueryTypeDistribution: counts,
	}, nil
}
