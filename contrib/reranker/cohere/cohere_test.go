package cohere

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docsage/docsage/rag/document"
	"github.com/docsage/docsage/rag/reranker"
)

type stubReranker struct {
	called bool
}

func (s *stubReranker) Rank(ctx context.Context, q []float32, c []reranker.Candidate) ([]reranker.Result, error) {
	s.called = true
	return []reranker.Result{
		{Chunk: c[0].Chunk, Score: 0.5},
	}, nil
}

func TestRankFallsBackWithoutAPIKey(t *testing.T) {
	fallback := &stubReranker{}
	client := New("", WithFallback(fallback))

	ctx := reranker.ContextWithQuery(context.Background(), "refund policy")
	candidates := []reranker.Candidate{
		{Chunk: document.Chunk{ID: "chunk-1", Content: "Refunds take ten days."}},
	}

	results, err := client.Rank(ctx, nil, candidates)
	if err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	if len(results) != 1 || !fallback.called {
		t.Fatal("expected fallback path")
	}
}

func TestRankFallsBackWithoutQueryText(t *testing.T) {
	fallback := &stubReranker{}
	client := New("key", WithFallback(fallback))

	candidates := []reranker.Candidate{
		{Chunk: document.Chunk{ID: "chunk-1", Content: "Plans renew monthly."}},
	}

	if _, err := client.Rank(context.Background(), nil, candidates); err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	if !fallback.called {
		t.Fatal("expected fallback without query in context")
	}
}

func TestRankOrdersByAPIScores(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Query != "billing cycle" {
			t.Errorf("query = %q", req.Query)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 1, "relevance_score": 0.95},
				{"index": 0, "relevance_score": 0.40},
			},
		})
	}))
	defer server.Close()

	client := New("key", WithEndpoint(server.URL))
	ctx := reranker.ContextWithQuery(context.Background(), "billing cycle")
	candidates := []reranker.Candidate{
		{Chunk: document.Chunk{ID: "c-1", Content: "Shipping is free over fifty dollars."}},
		{Chunk: document.Chunk{ID: "c-2", Content: "Plans renew monthly on the signup date."}},
	}

	results, err := client.Rank(ctx, nil, candidates)
	if err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "c-2" || results[0].Score != 0.95 {
		t.Fatalf("top result = %s (%.2f), want c-2 (0.95)", results[0].Chunk.ID, results[0].Score)
	}
}

func TestRankServerErrorUsesFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	fallback := &stubReranker{}
	client := New("key", WithEndpoint(server.URL), WithFallback(fallback))
	ctx := reranker.ContextWithQuery(context.Background(), "billing cycle")
	candidates := []reranker.Candidate{
		{Chunk: document.Chunk{ID: "c-1", Content: "Plans renew monthly."}},
	}

	if _, err := client.Rank(ctx, nil, candidates); err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	if !fallback.called {
		t.Fatal("expected fallback after server error")
	}
}
