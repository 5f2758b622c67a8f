package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opsdesk/opsdesk/internal/llm"
	"github.com/opsdesk/opsdesk/internal/storage"
)

// Tool names exposed to the model.
const (
	ToolGetEmployees   = "get_employees"
	ToolGetDeployments = "get_deployments"
	ToolGetTickets     = "get_tickets"
)

// DataSource is the slice of the store the executor needs.
type DataSource interface {
	ListEmployees() ([]storage.Employee, error)
	ListDeployments() ([]storage.Deployment, error)
	ListTickets() ([]storage.Ticket, error)
}

// Definitions returns the static tool registry sent with every planning
// call. Every parameter is an optional filter; with no parameters the tool
// returns the full record set.
func Definitions() []llm.Tool {
	return []llm.Tool{
		{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        ToolGetEmployees,
				Description: "Look up employees. Filters match case-insensitively on substrings for text fields and exactly for ids. Omit all filters to list everyone.",
				Parameters: llm.Schema{
					Type: "object",
					Properties: map[string]llm.SchemaProperty{
						"id":               {Type: "number", Description: "Employee id"},
						"name":             {Type: "string", Description: "Full or partial name"},
						"email":            {Type: "string", Description: "Email address"},
						"role":             {Type: "string", Description: "Job role, e.g. SRE"},
						"team":             {Type: "string", Description: "Team name"},
						"tracker_username": {Type: "string", Description: "Issue tracker username"},
					},
				},
			},
		},
		{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        ToolGetDeployments,
				Description: "Look up service deployments. Filters match case-insensitively on substrings. Omit all filters to list every deployment.",
				Parameters: llm.Schema{
					Type: "object",
					Properties: map[string]llm.SchemaProperty{
						"service": {Type: "string", Description: "Service name"},
						"version": {Type: "string", Description: "Version string"},
						"status":  {Type: "string", Description: "Deployment status, e.g. success or failed"},
						"date":    {Type: "string", Description: "Deployment date (YYYY-MM-DD)"},
					},
				},
			},
		},
		{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        ToolGetTickets,
				Description: "Look up tracker tickets. Filters match case-insensitively on substrings. Omit all filters to list every ticket.",
				Parameters: llm.Schema{
					Type: "object",
					Properties: map[string]llm.SchemaProperty{
						"id":       {Type: "string", Description: "Ticket id, e.g. OPS-101"},
						"summary":  {Type: "string", Description: "Words from the ticket summary"},
						"assignee": {Type: "string", Description: "Assignee username"},
						"status":   {Type: "string", Description: "Ticket status"},
						"priority": {Type: "string", Description: "Ticket priority"},
					},
				},
			},
		},
	}
}

// Executor runs tool calls against the local store. Tools never reach the
// network; the model only ever sees their JSON results.
type Executor struct {
	data DataSource
}

func NewExecutor(data DataSource) *Executor {
	return &Executor{data: data}
}

// Call executes one named tool with the given (already decoded) arguments.
// The returned payload is always well-formed JSON material: either the
// filtered record set under the tool's collection key, or an "error" entry.
// Storage failures surface as error payloads so the synthesis call can tell
// the user the lookup failed instead of silently claiming no data exists.
func (e *Executor) Call(ctx context.Context, name string, args map[string]any) map[string]any {
	switch name {
	case ToolGetEmployees:
		records, err := e.data.ListEmployees()
		if err != nil {
			return errorPayload(fmt.Errorf("listing employees: %w", err))
		}
		return map[string]any{"employees": filterRecords(toMaps(records), args)}

	case ToolGetDeployments:
		records, err := e.data.ListDeployments()
		if err != nil {
			return errorPayload(fmt.Errorf("listing deployments: %w", err))
		}
		return map[string]any{"deployments": filterRecords(toMaps(records), args)}

	case ToolGetTickets:
		records, err := e.data.ListTickets()
		if err != nil {
			return errorPayload(fmt.Errorf("listing tickets: %w", err))
		}
		return map[string]any{"tickets": filterRecords(toMaps(records), args)}

	default:
		return map[string]any{"error": fmt.Sprintf("unknown tool: %s", name)}
	}
}

func errorPayload(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

// toMaps converts typed records to generic maps through their JSON encoding,
// so numeric fields compare as float64 exactly like decoded tool arguments.
func toMaps[T any](records []T) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

// filterRecords keeps records matching every supplied filter (logical AND).
// String filters match case-insensitive substrings; non-string filters
// require exact equality. Falsy filter values (nil, "", 0, false) are
// ignored, since models frequently send empty strings for parameters they
// did not mean to use. Unknown filter keys match nothing.
func filterRecords(records []map[string]any, params map[string]any) []map[string]any {
	filtered := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		if matchesFilters(rec, params) {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}

func matchesFilters(rec map[string]any, params map[string]any) bool {
	for key, want := range params {
		if isFalsy(want) {
			continue
		}
		have, ok := rec[key]
		if !ok {
			return false
		}
		if !valuesMatch(have, want) {
			return false
		}
	}
	return true
}

func valuesMatch(have, want any) bool {
	haveStr, haveIsStr := have.(string)
	wantStr, wantIsStr := want.(string)
	if haveIsStr && wantIsStr {
		return strings.Contains(strings.ToLower(haveStr), strings.ToLower(wantStr))
	}
	return have == want
}

func isFalsy(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case float64:
		return val == 0
	}
	return false
}
