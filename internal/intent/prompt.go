package intent

import "strings"

const systemPrompt = "You are an intent classifier for an internal team assistant. Respond with only YES or NO."

// BuildPrompt renders the scope-classification prompt for a query, with the
// recent conversation transcript included so follow-up questions are judged
// in context.
func BuildPrompt(query, conversationContext string) string {
	var sb strings.Builder

	sb.WriteString("The assistant answers questions about a team's internal operations:\n")
	sb.WriteString("- employees (names, roles, teams, contact details)\n")
	sb.WriteString("- deployments (services, versions, statuses, dates)\n")
	sb.WriteString("- tickets (ids, summaries, assignees, statuses, priorities)\n")
	sb.WriteString("- the team's internal documentation\n\n")

	if conversationContext != "" {
		sb.WriteString("Recent conversation:\n")
		sb.WriteString(conversationContext)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Is the following query within the assistant's scope? Answer YES or NO.\n\n")
	sb.WriteString("Query: ")
	sb.WriteString(query)
	return sb.String()
}
