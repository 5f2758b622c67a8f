package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExecutedCall is one tool invocation and its payload, in execution order.
type ExecutedCall struct {
	Name    string
	Payload map[string]any
}

// resultLabels maps tool names to the heading shown above their data block.
// The logical endpoint names give the model a stable way to cite where the
// data came from.
var resultLabels = map[string]string{
	ToolGetEmployees:   "Employee data (from /api/employees endpoint):",
	ToolGetDeployments: "Deployment data (from /api/deployments endpoint):",
	ToolGetTickets:     "Ticket data (from /api/tickets endpoint):",
}

// FormatResults renders executed tool calls as labeled, pretty-printed JSON
// blocks for the synthesis call, preserving execution order.
func FormatResults(calls []ExecutedCall) string {
	blocks := make([]string, 0, len(calls))
	for _, call := range calls {
		label, ok := resultLabels[call.Name]
		if !ok {
			label = fmt.Sprintf("Result of %s:", call.Name)
		}

		body, err := json.MarshalIndent(call.Payload, "", "  ")
		if err != nil {
			body = []byte(fmt.Sprintf(`{"error": "formatting result: %v"}`, err))
		}
		blocks = append(blocks, label+"\n"+string(body))
	}
	return strings.Join(blocks, "\n\n")
}
