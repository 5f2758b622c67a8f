package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opsdesk/opsdesk/internal/agent"
	"github.com/opsdesk/opsdesk/internal/retrieval"
)

// MCPRetriever abstracts semantic documentation search for the MCP layer.
type MCPRetriever interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.Result, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Processor QueryProcessor
	Retriever MCPRetriever
	Executor  *agent.Executor
}

// NewMCPServer creates an MCP server exposing the assistant's documentation
// search, data lookups, and the full query pipeline as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"opsdesk",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("opsdesk — team operations assistant over employees, tickets, deployments, and internal documentation."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_docs",
			mcp.WithDescription("Semantically search internal documentation and return relevant chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 3)")),
		),
		mcpSearchDocs(deps),
	)

	s.AddTool(
		mcp.NewTool("get_employees",
			mcp.WithDescription("List employees, optionally filtered. String filters match case-insensitive substrings."),
			mcp.WithNumber("id", mcp.Description("Filter by employee id")),
			mcp.WithString("name", mcp.Description("Filter by name")),
			mcp.WithString("email", mcp.Description("Filter by email")),
			mcp.WithString("role", mcp.Description("Filter by role")),
			mcp.WithString("team", mcp.Description("Filter by team")),
			mcp.WithString("tracker_username", mcp.Description("Filter by issue tracker username")),
		),
		mcpDataTool(deps, agent.ToolGetEmployees, employeeFilterKeys),
	)

	s.AddTool(
		mcp.NewTool("get_deployments",
			mcp.WithDescription("List deployments, optionally filtered. String filters match case-insensitive substrings."),
			mcp.WithString("service", mcp.Description("Filter by service name")),
			mcp.WithString("version", mcp.Description("Filter by version")),
			mcp.WithString("status", mcp.Description("Filter by status, e.g. success or failed")),
			mcp.WithString("date", mcp.Description("Filter by date (YYYY-MM-DD)")),
		),
		mcpDataTool(deps, agent.ToolGetDeployments, deploymentFilterKeys),
	)

	s.AddTool(
		mcp.NewTool("get_tickets",
			mcp.WithDescription("List tickets, optionally filtered. String filters match case-insensitive substrings."),
			mcp.WithString("id", mcp.Description("Filter by ticket id")),
			mcp.WithString("summary", mcp.Description("Filter by summary")),
			mcp.WithString("assignee", mcp.Description("Filter by assignee")),
			mcp.WithString("status", mcp.Description("Filter by status")),
			mcp.WithString("priority", mcp.Description("Filter by priority")),
		),
		mcpDataTool(deps, agent.ToolGetTickets, ticketFilterKeys),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask the assistant a question. Runs the full pipeline: intent gating, documentation retrieval, and data tools."),
			mcp.WithString("query", mcp.Description("The question"), mcp.Required()),
			mcp.WithString("user_id", mcp.Description("User id for conversation memory")),
		),
		mcpAsk(deps),
	)

	return s
}

var (
	employeeFilterKeys   = []string{"name", "email", "role", "team", "tracker_username"}
	deploymentFilterKeys = []string{"service", "version", "status", "date"}
	ticketFilterKeys     = []string{"id", "summary", "assignee", "status", "priority"}
)

func mcpSearchDocs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 3)
		if limit <= 0 {
			limit = 3
		}
		if limit > 20 {
			limit = 20
		}

		results, err := deps.Retriever.Search(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		type docResult struct {
			Filename string  `json:"filename"`
			Title    string  `json:"title"`
			Content  string  `json:"content"`
			Distance float32 `json:"distance"`
		}
		out := make([]docResult, len(results))
		for i, r := range results {
			out[i] = docResult{
				Filename: r.Filename,
				Title:    r.Title,
				Content:  r.Content,
				Distance: r.Distance,
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

// mcpDataTool adapts one of the agent's data tools to MCP. Only provided
// filter arguments are forwarded; filter semantics match the agent's.
func mcpDataTool(deps MCPDeps, tool string, stringKeys []string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := make(map[string]any)
		for _, key := range stringKeys {
			if v := req.GetString(key, ""); v != "" {
				args[key] = v
			}
		}
		if tool == agent.ToolGetEmployees {
			if id := req.GetInt("id", 0); id != 0 {
				args["id"] = float64(id)
			}
		}

		payload := deps.Executor.Call(ctx, tool, args)
		if msg, ok := payload["error"].(string); ok {
			return mcpError(msg), nil
		}

		b, err := json.Marshal(payload)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		userID := req.GetString("user_id", "")

		resp := deps.Processor.ProcessQuery(ctx, query, userID)

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal response: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
