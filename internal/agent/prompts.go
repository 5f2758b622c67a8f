package agent

import "strings"

const answerSystemPrompt = `You are a helpful assistant for a software team. You answer questions about the team's employees, service deployments, tracker tickets, and internal documentation.

Use the provided documentation context and conversation history when they are relevant. When you need live employee, deployment, or ticket data, call the available tools.

CRITICAL: End every answer with a line in exactly this format, listing the documentation files you used (or "none"):

Sources: file1.md, file2.md`

const declineSystemPrompt = `You are a helpful assistant for a software team. The user's question is outside your scope: you only cover the team's employees, deployments, tickets, and internal documentation.

Politely decline in one or two sentences, mention what you can help with, and if the conversation history suggests what the user is working on, point them in a useful direction.`

// declineFallback is returned when the decline call itself fails.
const declineFallback = "I can only help with questions about our team: employees, deployments, tickets, and internal documentation. Could you rephrase your question in that direction?"

// toolResultsPreamble is the assistant-side text attached to the tool result
// turn in the synthesis call.
const toolResultsPreamble = "I need to look up internal data to answer that."

// buildAnswerSystem assembles the synthesis system prompt with optional
// documentation and conversation sections.
func buildAnswerSystem(docContext, convContext string) string {
	var sb strings.Builder
	sb.WriteString(answerSystemPrompt)

	if docContext != "" {
		sb.WriteString("\n\nRelevant documentation:\n")
		sb.WriteString(docContext)
	}
	if convContext != "" {
		sb.WriteString("\n\nRecent conversation:\n")
		sb.WriteString(convContext)
	}
	return sb.String()
}
