package assistant

import (
	"context"
	"strings"
	"testing"

	"github.com/opsdesk/opsdesk/internal/agent"
	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/intent"
	"github.com/opsdesk/opsdesk/internal/llm"
	"github.com/opsdesk/opsdesk/internal/memory"
	"github.com/opsdesk/opsdesk/internal/retrieval"
	"github.com/opsdesk/opsdesk/internal/storage"
)

// scriptedProvider replays canned chat results in order and returns a fixed
// embedding vector. It stands in for the LLM behind both the gate and the
// agent, so one script drives the whole pipeline.
type scriptedProvider struct {
	results []*llm.ChatResult
	reqs    []llm.ChatRequest
}

func (p *scriptedProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
	p.reqs = append(p.reqs, req)
	if i := len(p.reqs) - 1; i < len(p.results) {
		return p.results[i], nil
	}
	return &llm.ChatResult{Content: "unscripted"}, nil
}

func (p *scriptedProvider) Embed(ctx context.Context, model, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

// newPipeline assembles a processor over a real in-memory store, the real
// executor, retriever, and memory, with only the LLM scripted.
func newPipeline(t *testing.T, provider *scriptedProvider) (*Processor, *storage.Store) {
	t.Helper()

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	recorder := audit.NewRecorder(store)
	vectors := retrieval.NewSQLiteStore(store.DB())
	retriever := retrieval.NewRetriever(retrieval.NewEmbedder(provider, "embed-model"), vectors)
	executor := agent.NewExecutor(store)
	answerer := agent.New(provider, executor, recorder)
	gate := intent.NewGate(provider)
	mem := memory.New(store)

	return NewProcessor(gate, retriever, answerer, mem, store, recorder, 3), store
}

func seedTeam(t *testing.T, store *storage.Store) {
	t.Helper()
	for _, e := range []storage.Employee{
		{ID: 1, Name: "Dana Whitfield", Role: "SRE", Team: "platform"},
		{ID: 2, Name: "Miguel Ortega", Role: "Backend Engineer", Team: "payments"},
	} {
		if err := store.InsertEmployee(e); err != nil {
			t.Fatalf("seeding employee: %v", err)
		}
	}
}

func TestProcessQuery_EmployeeFlowEndToEnd(t *testing.T) {
	provider := &scriptedProvider{results: []*llm.ChatResult{
		{Content: "YES"},
		{ToolCalls: []llm.ToolCall{{
			ID:   "call_1",
			Type: "function",
			Function: llm.FunctionCall{
				Name:      agent.ToolGetEmployees,
				Arguments: `{}`,
			},
		}}},
		{Content: "The team is Dana Whitfield and Miguel Ortega.\n\nSources: team.md"},
	}}
	proc, store := newPipeline(t, provider)
	seedTeam(t, store)

	// One indexed chunk so retrieval runs against a populated vector table.
	err := retrieval.NewSQLiteStore(store.DB()).Upsert([]retrieval.Record{{
		ID:        "team_0",
		Filename:  "team.md",
		Title:     "Team",
		Chunk:     "The team roster lives in the employee directory.",
		Embedding: []float32{1, 0, 0},
	}})
	if err != nil {
		t.Fatalf("seeding vectors: %v", err)
	}

	resp := proc.ProcessQuery(context.Background(), "Who are the employees?", "u1")

	if resp.QueryType != storage.QueryTypeDynamicData {
		t.Errorf("query type = %q, want dynamic_data", resp.QueryType)
	}
	if len(resp.Sources) == 0 {
		t.Error("sources are empty, want at least one")
	}
	if !strings.Contains(resp.Answer, "Dana Whitfield") {
		t.Errorf("answer = %q, want seeded employee name", resp.Answer)
	}
	if resp.LogID == 0 {
		t.Fatal("response carries no log id")
	}

	// Gate, planning, and synthesis round trips, in that order.
	if len(provider.reqs) != 3 {
		t.Fatalf("made %d LLM calls, want 3", len(provider.reqs))
	}
	synth := provider.reqs[2]
	toolMsg := synth.Messages[len(synth.Messages)-1]
	if toolMsg.Role != "tool" || !strings.Contains(toolMsg.Content, "Miguel Ortega") {
		t.Errorf("synthesis tool message = %+v, want seeded employee data", toolMsg)
	}

	// The interaction is persisted with the full outcome.
	entry, err := store.GetLog(resp.LogID)
	if err != nil {
		t.Fatalf("reading log entry: %v", err)
	}
	if entry.Query != "Who are the employees?" || entry.UserID != "u1" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.QueryType != storage.QueryTypeDynamicData || entry.Response != resp.Answer {
		t.Errorf("entry = %+v", entry)
	}

	// Retrieval and both LLM round trips left an audit trail.
	events, err := store.RecentAudit(10)
	if err != nil {
		t.Fatalf("reading audit trail: %v", err)
	}
	seen := map[string]bool{}
	for _, ev := range events {
		seen[ev.Action] = true
	}
	for _, action := range []string{"kb_retrieval", "llm_planning_call", "llm_synthesis_call"} {
		if !seen[action] {
			t.Errorf("audit trail missing %s: %v", action, seen)
		}
	}
}

func TestProcessQuery_FollowUpCarriesHistory(t *testing.T) {
	provider := &scriptedProvider{results: []*llm.ChatResult{
		{Content: "YES"},
		{Content: "Dana Whitfield runs the platform team.\n\nSources: none"},
		{Content: "YES"},
		{Content: "She is the on-call SRE this week.\n\nSources: none"},
	}}
	proc, store := newPipeline(t, provider)
	seedTeam(t, store)

	first := proc.ProcessQuery(context.Background(), "Who runs platform?", "u1")
	if first.LogID == 0 {
		t.Fatal("first interaction not logged")
	}

	proc.ProcessQuery(context.Background(), "What is she doing this week?", "u1")

	// The second gate call sees the first turn via the persisted log.
	gatePrompt := provider.reqs[2].Messages[1].Content
	if !strings.Contains(gatePrompt, "Who runs platform?") {
		t.Errorf("follow-up gate prompt missing prior turn: %q", gatePrompt)
	}
}
