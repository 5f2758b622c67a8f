// Package api exposes the assistant over HTTP (chi) and MCP (stdio).
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsdesk/opsdesk/internal/assistant"
	"github.com/opsdesk/opsdesk/internal/kb"
	"github.com/opsdesk/opsdesk/internal/memory"
	"github.com/opsdesk/opsdesk/internal/storage"
)

// QueryProcessor is the slice of the assistant pipeline the API exposes.
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, query, userID string) assistant.Response
	SetFeedback(logID int64, helpful bool, text string) (bool, error)
	History(userID string, limit int) ([]storage.LogEntry, error)
	Stats(userID string) (memory.Stats, error)
}

// DataStore is the slice of the store the API reads and seeds.
type DataStore interface {
	ListEmployees() ([]storage.Employee, error)
	ListTickets() ([]storage.Ticket, error)
	ListDeployments() ([]storage.Deployment, error)
	InsertEmployee(e storage.Employee) error
	InsertTicket(t storage.Ticket) error
	InsertDeployment(d storage.Deployment) (int64, error)
	GetLog(id int64) (storage.LogEntry, error)
	RecentAudit(limit int) ([]storage.AuditEvent, error)
}

// DocIndexer rebuilds the documentation index.
type DocIndexer interface {
	IndexDir(ctx context.Context, dir string) (kb.Result, error)
}

// Deps holds everything the HTTP handler needs.
type Deps struct {
	Processor QueryProcessor
	Store     DataStore
	Indexer   DocIndexer
	DocsDir   string
	Token     string
}

// NewHandler returns the assistant's HTTP API. Every route except /health
// sits behind bearer auth when a token is configured.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/query", handleQuery(deps))
		r.Post("/feedback", handleFeedback(deps))
		r.Get("/history", handleHistory(deps))
		r.Get("/logs/{logID}", handleGetLog(deps))
		r.Get("/stats", handleStats(deps))
		r.Get("/audit", handleAudit(deps))

		r.Get("/employees", handleListEmployees(deps))
		r.Get("/tickets", handleListTickets(deps))
		r.Get("/deployments", handleListDeployments(deps))

		r.Post("/seed", handleSeed(deps))
		r.Post("/reindex", handleReindex(deps))
	})

	return r
}
