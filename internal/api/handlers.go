package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opsdesk/opsdesk/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type QueryRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
}

func handleQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		resp := deps.Processor.ProcessQuery(r.Context(), req.Query, req.UserID)
		writeJSON(w, resp)
	}
}

type FeedbackRequest struct {
	LogID        int64  `json:"log_id"`
	Helpful      bool   `json:"helpful"`
	FeedbackText string `json:"feedback_text"`
}

func handleFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req FeedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.LogID == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "log_id is required")
			return
		}

		ok, err := deps.Processor.SetFeedback(req.LogID, req.Helpful, req.FeedbackText)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save feedback: %v", err)
			return
		}
		writeJSON(w, map[string]bool{"success": ok})
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		limit := parseIntParam(r, "limit", 10, 100)

		entries, err := deps.Processor.History(userID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read history: %v", err)
			return
		}
		if entries == nil {
			entries = []storage.LogEntry{}
		}
		writeJSON(w, entries)
	}
}

func handleGetLog(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "logID"), 10, 64)
		if err != nil || id <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid log id")
			return
		}

		entry, err := deps.Store.GetLog(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "log entry %d not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read log entry: %v", err)
			return
		}
		writeJSON(w, entry)
	}
}

func handleAudit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 200)

		events, err := deps.Store.RecentAudit(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read audit trail: %v", err)
			return
		}
		if events == nil {
			events = []storage.AuditEvent{}
		}
		writeJSON(w, events)
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Processor.Stats(r.URL.Query().Get("user_id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute stats: %v", err)
			return
		}
		writeJSON(w, stats)
	}
}

func handleListEmployees(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		employees, err := deps.Store.ListEmployees()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list employees: %v", err)
			return
		}
		if employees == nil {
			employees = []storage.Employee{}
		}
		writeJSON(w, employees)
	}
}

func handleListTickets(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tickets, err := deps.Store.ListTickets()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list tickets: %v", err)
			return
		}
		if tickets == nil {
			tickets = []storage.Ticket{}
		}
		writeJSON(w, tickets)
	}
}

func handleListDeployments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deployments, err := deps.Store.ListDeployments()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list deployments: %v", err)
			return
		}
		if deployments == nil {
			deployments = []storage.Deployment{}
		}
		writeJSON(w, deployments)
	}
}

type SeedRequest struct {
	Employees   []storage.Employee   `json:"employees"`
	Tickets     []storage.Ticket     `json:"tickets"`
	Deployments []storage.Deployment `json:"deployments"`
}

func handleSeed(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req SeedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		for _, e := range req.Employees {
			if err := deps.Store.InsertEmployee(e); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to seed employee %d: %v", e.ID, err)
				return
			}
		}
		for _, t := range req.Tickets {
			if err := deps.Store.InsertTicket(t); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to seed ticket %s: %v", t.ID, err)
				return
			}
		}
		for _, d := range req.Deployments {
			if _, err := deps.Store.InsertDeployment(d); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to seed deployment for %s: %v", d.Service, err)
				return
			}
		}

		writeJSON(w, map[string]int{
			"employees":   len(req.Employees),
			"tickets":     len(req.Tickets),
			"deployments": len(req.Deployments),
		})
	}
}

func handleReindex(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Indexer.IndexDir(r.Context(), deps.DocsDir)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reindex failed: %v", err)
			return
		}
		writeJSON(w, res)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
