// Package intent decides whether a query is within the assistant's scope
// before any retrieval or tool calling happens.
package intent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/opsdesk/opsdesk/internal/llm"
)

// Chatter is the slice of the LLM client the gate needs.
type Chatter interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error)
}

// Gate classifies queries as in or out of scope with a single short LLM
// call. The gate fails open: when the provider is unreachable, unconfigured,
// or returns garbage, the query is treated as in scope and the downstream
// pipeline decides what to do with it. Blocking legitimate questions is
// worse than occasionally answering an off-topic one.
type Gate struct {
	client Chatter
}

func NewGate(client Chatter) *Gate {
	return &Gate{client: client}
}

// InScope reports whether the query belongs to the assistant's domain.
// conversationContext is the transcript from memory, so follow-ups like
// "and what about his tickets?" inherit the scope of the earlier turns.
func (g *Gate) InScope(ctx context.Context, query, conversationContext string) bool {
	result, err := g.client.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(query, conversationContext)},
		},
		MaxTokens:   10,
		Temperature: 0.1,
	})
	if err != nil {
		slog.Warn("intent gate unavailable, treating query as in scope", "error", err)
		return true
	}

	return strings.Contains(strings.ToLower(result.Content), "yes")
}
