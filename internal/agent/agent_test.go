package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/llm"
	"github.com/opsdesk/opsdesk/internal/storage"
)

// scriptedChatter replays canned results and records every request.
type scriptedChatter struct {
	results []*llm.ChatResult
	errs    []error
	reqs    []llm.ChatRequest
}

func (s *scriptedChatter) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
	s.reqs = append(s.reqs, req)
	i := len(s.reqs) - 1
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return &llm.ChatResult{Content: "unscripted"}, nil
}

type auditCapture struct {
	events []storage.AuditEvent
}

func (a *auditCapture) AppendAudit(ev storage.AuditEvent) error {
	a.events = append(a.events, ev)
	return nil
}

func newTestAgent(chatter Chatter) (*Agent, *auditCapture) {
	cap := &auditCapture{}
	return New(chatter, NewExecutor(testData()), audit.NewRecorder(cap)), cap
}

func employeeToolCall(args string) llm.ToolCall {
	return llm.ToolCall{
		ID:   "call_1",
		Type: "function",
		Function: llm.FunctionCall{
			Name:      ToolGetEmployees,
			Arguments: args,
		},
	}
}

func TestAnswer_StaticPath(t *testing.T) {
	chatter := &scriptedChatter{results: []*llm.ChatResult{
		{Content: "Deploys run on Fridays.\n\nSources: deploy.md"},
	}}
	a, _ := newTestAgent(chatter)

	ans := a.Answer(context.Background(), "when do we deploy?", "", "")

	if ans.QueryType != storage.QueryTypeStaticKnowledge {
		t.Errorf("query type = %q, want static_knowledge", ans.QueryType)
	}
	if ans.Text != "Deploys run on Fridays." {
		t.Errorf("text = %q", ans.Text)
	}
	if len(ans.Sources) != 1 || ans.Sources[0] != "deploy.md" {
		t.Errorf("sources = %v", ans.Sources)
	}
	if ans.Confidence != 0.8 {
		t.Errorf("confidence = %f, want 0.8", ans.Confidence)
	}

	// Exactly one LLM round trip, with the tool registry attached.
	if len(chatter.reqs) != 1 {
		t.Fatalf("made %d LLM calls, want 1", len(chatter.reqs))
	}
	if len(chatter.reqs[0].Tools) != 3 || chatter.reqs[0].ToolChoice != "auto" {
		t.Errorf("planning request missing tool registry: %+v", chatter.reqs[0])
	}
}

func TestAnswer_DynamicPath(t *testing.T) {
	chatter := &scriptedChatter{results: []*llm.ChatResult{
		{ToolCalls: []llm.ToolCall{employeeToolCall(`{"team":"Platform"}`)}},
		{Content: "Dana Whitfield is the Platform SRE.\n\nSources: none"},
	}}
	a, _ := newTestAgent(chatter)

	ans := a.Answer(context.Background(), "who is on Platform?", "", "")

	if ans.QueryType != storage.QueryTypeDynamicData {
		t.Errorf("query type = %q, want dynamic_data", ans.QueryType)
	}
	if ans.Text != "Dana Whitfield is the Platform SRE." {
		t.Errorf("text = %q", ans.Text)
	}

	if len(chatter.reqs) != 2 {
		t.Fatalf("made %d LLM calls, want 2", len(chatter.reqs))
	}

	// The synthesis call carries the tool results and no tool registry.
	synth := chatter.reqs[1]
	if len(synth.Tools) != 0 {
		t.Errorf("synthesis request carries tools")
	}
	var toolMsg *llm.Message
	for i := range synth.Messages {
		if synth.Messages[i].Role == "tool" {
			toolMsg = &synth.Messages[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("synthesis request has no tool message")
	}
	if !strings.Contains(toolMsg.Content, "Employee data (from /api/employees endpoint):") {
		t.Errorf("tool message = %q", toolMsg.Content)
	}
	if !strings.Contains(toolMsg.Content, "Dana Whitfield") {
		t.Errorf("filtered record missing from tool message: %q", toolMsg.Content)
	}
}

func TestAnswer_InvalidToolArguments(t *testing.T) {
	chatter := &scriptedChatter{results: []*llm.ChatResult{
		{ToolCalls: []llm.ToolCall{employeeToolCall(`{broken json`)}},
		{Content: "The lookup failed.\n\nSources: none"},
	}}
	a, _ := newTestAgent(chatter)

	ans := a.Answer(context.Background(), "who?", "", "")

	if ans.QueryType != storage.QueryTypeDynamicData {
		t.Errorf("query type = %q", ans.QueryType)
	}
	toolMsg := chatter.reqs[1].Messages[len(chatter.reqs[1].Messages)-1]
	if !strings.Contains(toolMsg.Content, "invalid arguments") {
		t.Errorf("error payload not surfaced to synthesis: %q", toolMsg.Content)
	}
}

func TestAnswer_PlanningFailure(t *testing.T) {
	chatter := &scriptedChatter{errs: []error{fmt.Errorf("upstream 500")}}
	a, _ := newTestAgent(chatter)

	ans := a.Answer(context.Background(), "q", "", "")

	if ans.QueryType != storage.QueryTypeError {
		t.Errorf("query type = %q, want error", ans.QueryType)
	}
	if ans.Confidence != 0 {
		t.Errorf("confidence = %f, want 0", ans.Confidence)
	}
	if ans.Text == "" {
		t.Error("error answer has no text")
	}
}

func TestAnswer_SynthesisFailure(t *testing.T) {
	chatter := &scriptedChatter{
		results: []*llm.ChatResult{
			{ToolCalls: []llm.ToolCall{employeeToolCall(`{}`)}},
		},
		errs: []error{nil, fmt.Errorf("upstream timeout")},
	}
	a, _ := newTestAgent(chatter)

	ans := a.Answer(context.Background(), "q", "", "")
	if ans.QueryType != storage.QueryTypeError || ans.Confidence != 0 {
		t.Errorf("answer = %+v, want degraded error answer", ans)
	}
}

func TestAnswer_ContextSectionsInSystemPrompt(t *testing.T) {
	chatter := &scriptedChatter{results: []*llm.ChatResult{{Content: "ok\nSources: none"}}}
	a, _ := newTestAgent(chatter)

	a.Answer(context.Background(), "q", "[Source: a.md]\ndoc text", "User: hi\nAssistant: hello")

	system := chatter.reqs[0].Messages[0].Content
	if !strings.Contains(system, "doc text") {
		t.Errorf("system prompt missing documentation context")
	}
	if !strings.Contains(system, "User: hi") {
		t.Errorf("system prompt missing conversation context")
	}
}

func TestAnswer_AuditTrail(t *testing.T) {
	chatter := &scriptedChatter{results: []*llm.ChatResult{
		{ToolCalls: []llm.ToolCall{employeeToolCall(`{}`)}},
		{Content: "done\nSources: none"},
	}}
	a, cap := newTestAgent(chatter)

	a.Answer(context.Background(), "q", "", "")

	var actions []string
	for _, ev := range cap.events {
		actions = append(actions, ev.Action)
	}
	want := []string{"llm_planning_call", "tool_get_employees", "llm_synthesis_call"}
	if len(actions) != len(want) {
		t.Fatalf("audit actions = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("audit action[%d] = %q, want %q", i, actions[i], want[i])
		}
	}
}

func TestDecline(t *testing.T) {
	chatter := &scriptedChatter{results: []*llm.ChatResult{
		{Content: "I only cover team operations, but happy to help with deployments."},
	}}
	a, _ := newTestAgent(chatter)

	ans := a.Decline(context.Background(), "write me a poem", "User: deploy status?\nAssistant: ...")

	if ans.QueryType != storage.QueryTypeOutOfScope {
		t.Errorf("query type = %q, want out_of_scope", ans.QueryType)
	}
	if ans.Confidence != 0.9 {
		t.Errorf("confidence = %f, want 0.9", ans.Confidence)
	}
	if len(ans.Sources) != 0 {
		t.Errorf("sources = %v, want none", ans.Sources)
	}
	if len(chatter.reqs[0].Tools) != 0 {
		t.Error("decline request carries tools")
	}
}

func TestDecline_FallbackOnFailure(t *testing.T) {
	chatter := &scriptedChatter{errs: []error{fmt.Errorf("no provider")}}
	a, _ := newTestAgent(chatter)

	ans := a.Decline(context.Background(), "q", "")

	if ans.Text != declineFallback {
		t.Errorf("text = %q, want fixed fallback", ans.Text)
	}
	if ans.QueryType != storage.QueryTypeOutOfScope {
		t.Errorf("query type = %q", ans.QueryType)
	}
}
