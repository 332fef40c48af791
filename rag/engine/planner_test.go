package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/docsage/docsage/message"
)

// scriptedLLM replays canned responses in order. Once the script is
// exhausted it keeps returning the last response.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
}

func (s *scriptedLLM) Complete(ctx context.Context, msgs []*message.Message) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return message.NewMessage(message.RoleAssistant, ""), nil
	}
	idx := s.calls - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return message.NewMessage(message.RoleAssistant, s.responses[idx]), nil
}

func (s *scriptedLLM) SetTemperature(float64) {}
func (s *scriptedLLM) SetMaxTokens(int64)     {}
func (s *scriptedLLM) SetModel(string)        {}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestPlanner(client *scriptedLLM) *planner {
	cfg := defaultConfig()
	if client == nil {
		return newPlanner(nil, cfg, testLogger())
	}
	return newPlanner(client, cfg, testLogger())
}

func TestPlannerSimpleQuestion(t *testing.T) {
	client := &scriptedLLM{responses: []string{
		`{"needs_decomposition": false, "reasoning": "single concept", "sub_queries": []}`,
	}}
	p := newTestPlanner(client)

	plan := p.Plan(context.Background(), "What is the refund policy?")
	if len(plan) != 1 {
		t.Fatalf("expected single sub-query for a simple question, got %d", len(plan))
	}
	if plan[0].Text != "What is the refund policy?" {
		t.Errorf("simple plan should carry the original question, got %q", plan[0].Text)
	}
}

func TestPlannerCompoundQuestion(t *testing.T) {
	client := &scriptedLLM{responses: []string{
		`{"needs_decomposition": true, "reasoning": "comparison needs both sides", "sub_queries": ["product A features", "product B features"]}`,
	}}
	p := newTestPlanner(client)

	plan := p.Plan(context.Background(), "Compare product A and product B")
	if len(plan) != 2 {
		t.Fatalf("expected 2 sub-queries, got %d", len(plan))
	}
	if plan[0].Text != "product A features" || plan[1].Text != "product B features" {
		t.Errorf("sub-queries out of order: %+v", plan)
	}
	for _, sq := range plan {
		if sq.Rationale == "" {
			t.Errorf("sub-query %q lost the planner reasoning", sq.Text)
		}
	}
}

func TestPlannerFencedJSON(t *testing.T) {
	client := &scriptedLLM{responses: []string{
		"```json\n{\"needs_decomposition\": true, \"sub_queries\": [\"alpha\", \"beta\"]}\n```",
	}}
	p := newTestPlanner(client)

	plan := p.Plan(context.Background(), "alpha and beta?")
	if len(plan) != 2 {
		t.Fatalf("fenced JSON should still decode, got %d sub-queries", len(plan))
	}
}

func TestPlannerCapsSubQueries(t *testing.T) {
	queries := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		queries = append(queries, fmt.Sprintf("\"topic %d\"", i))
	}
	client := &scriptedLLM{responses: []string{
		fmt.Sprintf(`{"needs_decomposition": true, "sub_queries": [%s, %s, %s, %s, %s, %s, %s, %s]}`,
			queries[0], queries[1], queries[2], queries[3], queries[4], queries[5], queries[6], queries[7]),
	}}
	p := newTestPlanner(client)

	plan := p.Plan(context.Background(), "everything about everything")
	if len(plan) != maxSubQueries {
		t.Fatalf("expected plan capped at %d sub-queries, got %d", maxSubQueries, len(plan))
	}
}

func TestPlannerFallsBackOnError(t *testing.T) {
	client := &scriptedLLM{err: fmt.Errorf("model unavailable")}
	p := newTestPlanner(client)

	plan := p.Plan(context.Background(), "What changed in v2?")
	if len(plan) != 1 || plan[0].Text != "What changed in v2?" {
		t.Fatalf("planner error must degrade to the original question, got %+v", plan)
	}
}

func TestPlannerFallsBackOnGarbage(t *testing.T) {
	for _, output := range []string{
		"I think you should search for several things.",
		`{"needs_decomposition": true, "sub_queries": []}`,
		`{"needs_decomposition": true, "sub_queries": ["   ", ""]}`,
		"",
	} {
		client := &scriptedLLM{responses: []string{output}}
		p := newTestPlanner(client)
		plan := p.Plan(context.Background(), "original question")
		if len(plan) != 1 || plan[0].Text != "original question" {
			t.Errorf("output %q should degrade to single-query plan, got %+v", output, plan)
		}
	}
}

func TestPlannerWithoutClient(t *testing.T) {
	p := newTestPlanner(nil)
	plan := p.Plan(context.Background(), "anything")
	if len(plan) != 1 || plan[0].Text != "anything" {
		t.Fatalf("nil client must yield the single-query plan, got %+v", plan)
	}
}
