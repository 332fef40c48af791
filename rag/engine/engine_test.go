package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// stubRetriever serves canned hits keyed by exact query text. Queries listed
// in fails error out that many times before succeeding, which exercises the
// single-retry behaviour.
type stubRetriever struct {
	mu    sync.Mutex
	hits  map[string][]SearchHit
	fails map[string]int
	calls []string
}

func (r *stubRetriever) Search(ctx context.Context, query string, k int) ([]SearchHit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, query)
	if r.fails[query] > 0 {
		r.fails[query]--
		return nil, fmt.Errorf("search backend unavailable")
	}
	hits := r.hits[query]
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (r *stubRetriever) queried(query string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, q := range r.calls {
		if q == query {
			n++
		}
	}
	return n
}

const (
	planSimple   = `{"needs_decomposition": false, "sub_queries": []}`
	reflectDone  = `{"is_complete": true, "confidence": 0.9, "missing_aspects": [], "needs_refinement": false}`
	reflectRetry = `{"is_complete": false, "confidence": 0.5, "missing_aspects": ["pricing"], "needs_refinement": true}`
)

func newTestEngine(t *testing.T, retriever Retriever, plannerOut string, reflectorOuts []string, opts ...Option) (*Engine, *scriptedLLM) {
	t.Helper()
	writer := &scriptedLLM{responses: []string{"Answer based on the evidence. [docs]"}}
	eng, err := New(Clients{
		Planner:     &scriptedLLM{responses: []string{plannerOut}},
		Synthesizer: writer,
		Reflector:   &scriptedLLM{responses: reflectorOuts},
	}, retriever, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return eng, writer
}

func TestEngineSinglePass(t *testing.T) {
	retriever := &stubRetriever{hits: map[string][]SearchHit{
		"What is the refund window?": {
			{Text: "Refunds are accepted within 30 days.", Source: "policy.md", Score: 0.9},
			{Text: "Contact support to start a refund.", Source: "support.md", Score: 0.7},
		},
	}}
	eng, _ := newTestEngine(t, retriever, planSimple, []string{reflectDone})

	result, err := eng.Ask(context.Background(), "What is the refund window?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if result.RoundsUsed != 0 {
		t.Errorf("rounds_used = %d, want 0 for a session that converges immediately", result.RoundsUsed)
	}
	if result.FinalConfidence != 0.9 {
		t.Errorf("final_confidence = %v, want 0.9", result.FinalConfidence)
	}
	wantSources := []string{"policy.md", "support.md"}
	if len(result.Sources) != 2 || result.Sources[0] != wantSources[0] || result.Sources[1] != wantSources[1] {
		t.Errorf("sources = %v, want %v", result.Sources, wantSources)
	}
	if result.Answer == "" {
		t.Error("answer must not be empty")
	}
}

func TestEngineDecomposedRetrieval(t *testing.T) {
	retriever := &stubRetriever{hits: map[string][]SearchHit{
		"product A features": {{Text: "A has offline mode.", Source: "a.md", Score: 0.8}},
		"product B features": {{Text: "B has realtime sync.", Source: "b.md", Score: 0.8}},
	}}
	plan := `{"needs_decomposition": true, "sub_queries": ["product A features", "product B features"]}`
	eng, _ := newTestEngine(t, retriever, plan, []string{reflectDone})

	result, err := eng.Ask(context.Background(), "Compare product A and product B")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if retriever.queried("product A features") != 1 || retriever.queried("product B features") != 1 {
		t.Errorf("each sub-query must be searched exactly once, calls: %v", retriever.calls)
	}
	if len(result.Sources) != 2 {
		t.Errorf("both sub-query sources must be cited, got %v", result.Sources)
	}
}

func TestEngineConvergence(t *testing.T) {
	retriever := &stubRetriever{hits: map[string][]SearchHit{
		"How is the product sold?": {{Text: "Sold via annual contracts.", Source: "sales.md", Score: 0.9}},
		"pricing":                  {{Text: "Tiered pricing by seat count.", Source: "pricing.md", Score: 0.85}},
	}}
	eng, _ := newTestEngine(t, retriever, planSimple, []string{reflectRetry, reflectDone})

	result, err := eng.Ask(context.Background(), "How is the product sold?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if result.RoundsUsed != 1 {
		t.Errorf("rounds_used = %d, want 1 (two rounds executed)", result.RoundsUsed)
	}
	if retriever.queried("pricing") != 1 {
		t.Errorf("refinement round must search the missing aspect, calls: %v", retriever.calls)
	}
	wantSources := []string{"pricing.md", "sales.md"}
	if len(result.Sources) != 2 || result.Sources[0] != wantSources[0] || result.Sources[1] != wantSources[1] {
		t.Errorf("answer must merge both rounds' evidence, sources = %v", result.Sources)
	}
}

func TestEngineRoundCapTermination(t *testing.T) {
	retriever := &stubRetriever{hits: map[string][]SearchHit{
		"never satisfied": {{Text: "partial info", Source: "doc.md", Score: 0.5}},
		"pricing":         {{Text: "partial info", Source: "doc.md", Score: 0.5}},
	}}

	eng, _ := newTestEngine(t, retriever, planSimple, []string{reflectRetry}, WithMaxRounds(2))

	result, err := eng.Ask(context.Background(), "never satisfied")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if result.RoundsUsed != 2 {
		t.Errorf("rounds_used = %d, want the cap of 2 even though the reflector always demands refinement", result.RoundsUsed)
	}
	if result.Answer == "" {
		t.Error("round-cap completion must still return the best available draft")
	}
}

func TestEngineMaxRoundsZero(t *testing.T) {
	retriever := &stubRetriever{hits: map[string][]SearchHit{
		"question": {{Text: "some text", Source: "doc.md", Score: 0.6}},
	}}
	eng, _ := newTestEngine(t, retriever, planSimple, []string{reflectRetry}, WithMaxRounds(0))

	result, err := eng.Ask(context.Background(), "question")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if result.RoundsUsed != 0 {
		t.Errorf("max_rounds=0 must forbid refinement, rounds_used = %d", result.RoundsUsed)
	}
}

func TestEngineEmptyIndex(t *testing.T) {
	retriever := &stubRetriever{hits: map[string][]SearchHit{}}
	writerErr := &scriptedLLM{err: fmt.Errorf("generator must not be called")}
	eng, err := New(Clients{
		Planner:     &scriptedLLM{responses: []string{planSimple}},
		Synthesizer: writerErr,
		Reflector:   &scriptedLLM{responses: []string{reflectDone}},
	}, retriever)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := eng.Ask(context.Background(), "anything indexed?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if !strings.Contains(result.Answer, "No relevant content") {
		t.Errorf("empty index must produce the no-content answer, got %q", result.Answer)
	}
	if len(result.Sources) != 0 {
		t.Errorf("sources must be empty, got %v", result.Sources)
	}
	if result.FinalConfidence != 0 {
		t.Errorf("final_confidence = %v, want 0", result.FinalConfidence)
	}
	if writerErr.callCount() != 0 {
		t.Errorf("generator was called %d times for an empty pool", writerErr.callCount())
	}
}

func TestEngineDeduplicatesAcrossRounds(t *testing.T) {
	// Both rounds return the identical chunk; it must be pooled and cited once.
	hit := SearchHit{Text: "Shared fact.", Source: "shared.md", Score: 0.8}
	retriever := &stubRetriever{hits: map[string][]SearchHit{
		"question": {hit},
		"pricing":  {hit},
	}}
	eng, _ := newTestEngine(t, retriever, planSimple, []string{reflectRetry, reflectDone})

	result, err := eng.Ask(context.Background(), "question")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if len(result.Sources) != 1 || result.Sources[0] != "shared.md" {
		t.Errorf("duplicate chunk must contribute one citation, sources = %v", result.Sources)
	}
}

func TestEngineIdempotence(t *testing.T) {
	build := func() (*Engine, error) {
		retriever := &stubRetriever{hits: map[string][]SearchHit{
			"question": {{Text: "fact one", Source: "one.md", Score: 0.9}},
			"pricing":  {{Text: "fact two", Source: "two.md", Score: 0.8}},
		}}
		return New(Clients{
			Planner:     &scriptedLLM{responses: []string{planSimple}},
			Synthesizer: &scriptedLLM{responses: []string{"deterministic answer"}},
			Reflector:   &scriptedLLM{responses: []string{reflectRetry, reflectDone}},
		}, retriever)
	}

	var results []*Result
	for i := 0; i < 2; i++ {
		eng, err := build()
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		result, err := eng.Ask(context.Background(), "question")
		if err != nil {
			t.Fatalf("Ask failed: %v", err)
		}
		results = append(results, result)
	}

	if results[0].RoundsUsed != results[1].RoundsUsed {
		t.Errorf("rounds_used differ: %d vs %d", results[0].RoundsUsed, results[1].RoundsUsed)
	}
	if results[0].Answer != results[1].Answer {
		t.Errorf("answers differ: %q vs %q", results[0].Answer, results[1].Answer)
	}
	if fmt.Sprint(results[0].Sources) != fmt.Sprint(results[1].Sources) {
		t.Errorf("sources differ: %v vs %v", results[0].Sources, results[1].Sources)
	}
}

func TestEnginePartialRetrievalFailure(t *testing.T) {
	retriever := &stubRetriever{
		hits: map[string][]SearchHit{
			"topic a": {{Text: "a facts", Source: "a.md", Score: 0.8}},
			"topic b": {{Text: "b facts", Source: "b.md", Score: 0.8}},
		},
		// topic b fails twice: first call and its retry, so the round
		// proceeds with topic a only.
		fails: map[string]int{"topic b": 2},
	}
	plan := `{"needs_decomposition": true, "sub_queries": ["topic a", "topic b"]}`
	eng, _ := newTestEngine(t, retriever, plan, []string{reflectDone})

	result, err := eng.Ask(context.Background(), "a and b?")
	if err != nil {
		t.Fatalf("partial retrieval failure must be non-fatal: %v", err)
	}
	if len(result.Sources) != 1 || result.Sources[0] != "a.md" {
		t.Errorf("sources = %v, want only the successful sub-query's source", result.Sources)
	}
	if retriever.queried("topic b") != 2 {
		t.Errorf("failed sub-query must be retried exactly once, got %d calls", retriever.queried("topic b"))
	}
}

func TestEngineRetrievalRetryRecovers(t *testing.T) {
	retriever := &stubRetriever{
		hits:  map[string][]SearchHit{"question": {{Text: "fact", Source: "doc.md", Score: 0.9}}},
		fails: map[string]int{"question": 1},
	}
	eng, _ := newTestEngine(t, retriever, planSimple, []string{reflectDone})

	result, err := eng.Ask(context.Background(), "question")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if len(result.Sources) != 1 {
		t.Errorf("retry should have recovered the hits, sources = %v", result.Sources)
	}
}

func TestEngineEmptyQuestion(t *testing.T) {
	retriever := &stubRetriever{hits: map[string][]SearchHit{}}
	eng, _ := newTestEngine(t, retriever, planSimple, []string{reflectDone})

	if _, err := eng.Ask(context.Background(), "   "); err == nil {
		t.Fatal("blank question must be rejected")
	}
}

func TestEngineRequiresSynthesizerClient(t *testing.T) {
	retriever := &stubRetriever{hits: map[string][]SearchHit{}}
	if _, err := New(Clients{}, retriever); err == nil {
		t.Fatal("missing generation client must fail construction")
	}
}

func TestEngineRequiresRetriever(t *testing.T) {
	if _, err := New(Clients{Default: &scriptedLLM{}}, nil); err == nil {
		t.Fatal("missing retriever must fail construction")
	}
}

func TestEngineConfidenceThresholdBoundaries(t *testing.T) {
	// threshold 0: a complete draft with any confidence converges at once.
	retriever := &stubRetriever{hits: map[string][]SearchHit{
		"question": {{Text: "fact", Source: "doc.md", Score: 0.9}},
	}}
	lowConfidence := `{"is_complete": true, "confidence": 0.1, "missing_aspects": []}`
	eng, _ := newTestEngine(t, retriever, planSimple, []string{lowConfidence}, WithConfidenceThreshold(0))
	result, err := eng.Ask(context.Background(), "question")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if result.RoundsUsed != 0 {
		t.Errorf("threshold 0 must accept any confidence, rounds_used = %d", result.RoundsUsed)
	}

	// threshold 1: confidence 0.9 is not enough, refinement runs to the cap.
	retriever2 := &stubRetriever{hits: map[string][]SearchHit{
		"question": {{Text: "fact", Source: "doc.md", Score: 0.9}},
	}}
	highBar := `{"is_complete": true, "confidence": 0.9, "missing_aspects": []}`
	eng2, _ := newTestEngine(t, retriever2, planSimple, []string{highBar},
		WithConfidenceThreshold(1), WithMaxRounds(1))
	result2, err := eng2.Ask(context.Background(), "question")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if result2.RoundsUsed != 1 {
		t.Errorf("threshold 1 must force refinement to the cap, rounds_used = %d", result2.RoundsUsed)
	}
}
