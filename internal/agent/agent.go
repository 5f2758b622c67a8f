// Package agent implements the two-phase tool-calling loop: a planning call
// that may request local data tools, local execution of those tools, and a
// synthesis call that turns the results into the final answer.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/llm"
	"github.com/opsdesk/opsdesk/internal/storage"
)

const (
	answerMaxTokens  = 1000
	declineMaxTokens = 400
	chatTemperature  = 0.7
)

// Chatter is the slice of the LLM client the agent needs.
type Chatter interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error)
}

// Answer is the agent's finished product for one query.
type Answer struct {
	Text       string
	Sources    []string
	Confidence float64
	QueryType  string
}

// Agent answers in-scope queries with documentation context and local data
// tools, and declines out-of-scope ones.
type Agent struct {
	client Chatter
	exec   *Executor
	audit  *audit.Recorder
}

func New(client Chatter, exec *Executor, rec *audit.Recorder) *Agent {
	return &Agent{client: client, exec: exec, audit: rec}
}

// Answer runs the two-phase protocol. Phase one sends the query with the
// tool registry and tool_choice "auto"; if the model requests no tools the
// reply is final (static_knowledge). Otherwise every requested tool runs
// locally, in the order the model returned them, and a second call without
// tools synthesizes the answer from their results (dynamic_data). Provider
// failures in either phase degrade to an apologetic error answer rather
// than propagating.
func (a *Agent) Answer(ctx context.Context, query, docContext, convContext string) Answer {
	messages := []llm.Message{
		{Role: "system", Content: buildAnswerSystem(docContext, convContext)},
		{Role: "user", Content: query},
	}

	start := time.Now()
	result, err := a.client.Chat(ctx, llm.ChatRequest{
		Messages:    messages,
		Tools:       Definitions(),
		ToolChoice:  "auto",
		MaxTokens:   answerMaxTokens,
		Temperature: chatTemperature,
	})
	a.audit.Record("llm_planning_call", query, planningSummary(result), err, time.Since(start))
	if err != nil {
		slog.Error("planning call failed", "error", err)
		return errorAnswer()
	}

	if len(result.ToolCalls) == 0 {
		text, sources := ExtractSources(result.Content)
		return Answer{
			Text:       text,
			Sources:    sources,
			Confidence: 0.8,
			QueryType:  storage.QueryTypeStaticKnowledge,
		}
	}

	// Phase two: execute every requested tool locally, in return order.
	executed := make([]ExecutedCall, 0, len(result.ToolCalls))
	for _, tc := range result.ToolCalls {
		toolStart := time.Now()
		payload := a.executeCall(ctx, tc)
		a.audit.Record("tool_"+tc.Function.Name, query, callSummary(payload), nil, time.Since(toolStart))
		executed = append(executed, ExecutedCall{Name: tc.Function.Name, Payload: payload})
	}

	messages = append(messages,
		llm.Message{Role: "assistant", Content: toolResultsPreamble, ToolCalls: result.ToolCalls},
		llm.Message{Role: "tool", Content: FormatResults(executed), ToolCallID: result.ToolCalls[0].ID},
	)

	synthStart := time.Now()
	synth, err := a.client.Chat(ctx, llm.ChatRequest{
		Messages:    messages,
		MaxTokens:   answerMaxTokens,
		Temperature: chatTemperature,
	})
	a.audit.Record("llm_synthesis_call", query, synthSummary(synth), err, time.Since(synthStart))
	if err != nil {
		slog.Error("synthesis call failed", "error", err)
		return errorAnswer()
	}

	text, sources := ExtractSources(synth.Content)
	return Answer{
		Text:       text,
		Sources:    sources,
		Confidence: 0.8,
		QueryType:  storage.QueryTypeDynamicData,
	}
}

func (a *Agent) executeCall(ctx context.Context, tc llm.ToolCall) map[string]any {
	var args map[string]any
	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return map[string]any{"error": fmt.Sprintf("invalid arguments for %s: %v", tc.Function.Name, err)}
		}
	}
	return a.exec.Call(ctx, tc.Function.Name, args)
}

// Decline produces a polite out-of-scope response with a single LLM call.
// The conversation transcript lets the decline acknowledge what the user
// has been doing. If even this call fails, a fixed fallback is returned.
func (a *Agent) Decline(ctx context.Context, query, convContext string) Answer {
	messages := []llm.Message{
		{Role: "system", Content: declineSystemPrompt},
	}
	if convContext != "" {
		messages = append(messages, llm.Message{Role: "system", Content: "Recent conversation:\n" + convContext})
	}
	messages = append(messages, llm.Message{Role: "user", Content: "Query: " + query})

	start := time.Now()
	result, err := a.client.Chat(ctx, llm.ChatRequest{
		Messages:    messages,
		MaxTokens:   declineMaxTokens,
		Temperature: chatTemperature,
	})
	a.audit.Record("llm_decline_call", query, synthSummary(result), err, time.Since(start))
	if err != nil {
		slog.Warn("decline call failed, using fallback", "error", err)
		return Answer{
			Text:       declineFallback,
			Sources:    nil,
			Confidence: 0.8,
			QueryType:  storage.QueryTypeOutOfScope,
		}
	}

	return Answer{
		Text:       result.Content,
		Sources:    nil,
		Confidence: 0.9,
		QueryType:  storage.QueryTypeOutOfScope,
	}
}

// errorAnswer is the degraded response for provider failures: well-formed,
// zero confidence, no sources.
func errorAnswer() Answer {
	return Answer{
		Text:       "Sorry, I ran into a problem answering that. Please try again in a moment.",
		Confidence: 0,
		QueryType:  storage.QueryTypeError,
	}
}

func planningSummary(r *llm.ChatResult) string {
	if r == nil {
		return ""
	}
	if len(r.ToolCalls) == 0 {
		return "direct answer"
	}
	return fmt.Sprintf("%d tool calls", len(r.ToolCalls))
}

func synthSummary(r *llm.ChatResult) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%d chars", len(r.Content))
}

func callSummary(payload map[string]any) string {
	if msg, ok := payload["error"].(string); ok {
		return "error: " + msg
	}
	for key, v := range payload {
		if list, ok := v.([]map[string]any); ok {
			return fmt.Sprintf("%d %s", len(list), key)
		}
	}
	return "ok"
}
