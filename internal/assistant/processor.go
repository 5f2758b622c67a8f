// Package assistant is the query pipeline: conversation memory, the intent
// gate, documentation retrieval, and the tool-calling agent, composed into a
// single ProcessQuery entry point that also maintains the interaction log.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsdesk/opsdesk/internal/agent"
	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/memory"
	"github.com/opsdesk/opsdesk/internal/retrieval"
	"github.com/opsdesk/opsdesk/internal/storage"
)

const defaultHistoryLimit = 10

// ScopeGate decides whether a query is within the assistant's remit.
type ScopeGate interface {
	InScope(ctx context.Context, query, conversationContext string) bool
}

// DocSearcher finds documentation chunks relevant to a query.
type DocSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.Result, error)
}

// Responder produces the final answer for a query.
type Responder interface {
	Answer(ctx context.Context, query, docContext, convContext string) agent.Answer
	Decline(ctx context.Context, query, convContext string) agent.Answer
}

// LogStore is the slice of the store the processor needs.
type LogStore interface {
	AppendLog(e storage.LogEntry) (int64, error)
	SetFeedback(id int64, fb storage.Feedback) error
	RecentLogs(limit int, userID string) ([]storage.LogEntry, error)
}

// ContextProvider derives conversation context and usage stats from the log.
type ContextProvider interface {
	Context(userID string, maxChars int) string
	Stats(userID string) (memory.Stats, error)
}

// Processor runs queries through the full pipeline and records the outcome.
type Processor struct {
	gate      ScopeGate
	retriever DocSearcher
	agent     Responder
	memory    ContextProvider
	store     LogStore
	audit     *audit.Recorder
	topK      int
}

func NewProcessor(gate ScopeGate, retriever DocSearcher, agent Responder, mem ContextProvider, store LogStore, rec *audit.Recorder, topK int) *Processor {
	return &Processor{
		gate:      gate,
		retriever: retriever,
		agent:     agent,
		memory:    mem,
		store:     store,
		audit:     rec,
		topK:      topK,
	}
}

// Response is the answer returned to callers, HTTP and CLI alike.
type Response struct {
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources"`
	Confidence float64  `json:"confidence"`
	QueryType  string   `json:"query_type"`
	LogID      int64    `json:"log_id,omitempty"`
}

// ProcessQuery answers one query. Conversation context is computed once and
// shared by the gate and the agent. A gate rejection skips retrieval and goes
// straight to the decline path. Whatever happens, the outcome is appended to
// the interaction log with its processing time; a log write failure is logged
// and the response is still returned, just without a LogID.
func (p *Processor) ProcessQuery(ctx context.Context, query, userID string) Response {
	start := time.Now()
	convContext := p.memory.Context(userID, memory.DefaultMaxChars)

	var ans agent.Answer
	if p.gate.InScope(ctx, query, convContext) {
		docContext := p.retrieveContext(ctx, query)
		ans = p.agent.Answer(ctx, query, docContext, convContext)
	} else {
		ans = p.agent.Decline(ctx, query, convContext)
	}

	resp := Response{
		Answer:     ans.Text,
		Sources:    ans.Sources,
		Confidence: ans.Confidence,
		QueryType:  ans.QueryType,
	}
	if resp.Sources == nil {
		resp.Sources = []string{}
	}

	id, err := p.store.AppendLog(storage.LogEntry{
		Query:          query,
		Response:       ans.Text,
		Sources:        ans.Sources,
		QueryType:      ans.QueryType,
		ProcessingSecs: time.Since(start).Seconds(),
		UserID:         userID,
	})
	if err != nil {
		slog.Error("writing interaction log", "error", err)
		return resp
	}
	resp.LogID = id
	return resp
}

// retrieveContext embeds the query and formats the top-K chunks for the
// prompt. A retrieval failure degrades to answering without documentation
// context rather than failing the query.
func (p *Processor) retrieveContext(ctx context.Context, query string) string {
	start := time.Now()
	results, err := p.retriever.Search(ctx, query, p.topK)
	p.audit.Record("kb_retrieval", query, fmt.Sprintf("%d chunks", len(results)), err, time.Since(start))
	if err != nil {
		slog.Warn("documentation retrieval failed", "error", err)
		return ""
	}
	return retrieval.FormatContext(results)
}

// SetFeedback attaches user feedback to a logged interaction. An unknown log
// id is a normal false return, not an error.
func (p *Processor) SetFeedback(logID int64, helpful bool, text string) (bool, error) {
	fb := storage.Feedback{
		Helpful:   helpful,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	if err := p.store.SetFeedback(logID, fb); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("saving feedback: %w", err)
	}
	return true, nil
}

// History returns the user's most recent interactions, newest first.
func (p *Processor) History(userID string, limit int) ([]storage.LogEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	entries, err := p.store.RecentLogs(limit, userID)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return entries, nil
}

// Stats aggregates interaction log usage for a user.
func (p *Processor) Stats(userID string) (memory.Stats, error) {
	return p.memory.Stats(userID)
}
