package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/docsage/docsage/llm"
	"github.com/docsage/docsage/message"
)

// flakyLLM fails the first n calls, then answers. It records the user prompt
// of every call so tests can inspect what context was sent.
type flakyLLM struct {
	mu       sync.Mutex
	failures int
	err      error
	response string
	calls    int
	prompts  []string
}

func (f *flakyLLM) Complete(ctx context.Context, msgs []*message.Message) (*message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, msg := range msgs {
		if msg.Role == message.RoleUser {
			f.prompts = append(f.prompts, msg.Content)
		}
	}
	if f.calls <= f.failures {
		return nil, f.err
	}
	return message.NewMessage(message.RoleAssistant, f.response), nil
}

func (f *flakyLLM) SetTemperature(float64) {}
func (f *flakyLLM) SetMaxTokens(int64)     {}
func (f *flakyLLM) SetModel(string)        {}

func (f *flakyLLM) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type wordTokenizer struct{}

func (wordTokenizer) CountTokens(text string) int {
	return len(strings.Fields(text))
}

func sampleEvidence() []RetrievedChunk {
	return []RetrievedChunk{
		{Text: "Plans renew monthly.", Source: "billing.md", Score: 0.91, Round: 0},
		{Text: "Support is available 24/7.", Source: "support.md", Score: 0.74, Round: 0},
		{Text: "Plans renew monthly unless cancelled.", Source: "billing.md", Score: 0.66, Round: 1},
	}
}

func TestSynthesizerComposesDraft(t *testing.T) {
	client := &flakyLLM{response: "Plans renew monthly [billing.md] and support runs 24/7 [support.md]."}
	s := newSynthesizer(client, defaultConfig(), testLogger())

	draft, err := s.Compose(context.Background(), "How do plans work?", sampleEvidence(), 0)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if draft.Round != 0 {
		t.Errorf("draft round = %d, want 0", draft.Round)
	}
	wantSources := []string{"billing.md", "support.md"}
	if len(draft.Sources) != len(wantSources) {
		t.Fatalf("sources = %v, want %v", draft.Sources, wantSources)
	}
	for i, src := range wantSources {
		if draft.Sources[i] != src {
			t.Errorf("sources[%d] = %q, want %q (sorted, deduplicated)", i, draft.Sources[i], src)
		}
	}

	prompt := client.lastPrompt()
	if !strings.Contains(prompt, "Plans renew monthly.") || !strings.Contains(prompt, "[billing.md]") {
		t.Errorf("prompt missing evidence passages:\n%s", prompt)
	}
	if !strings.Contains(prompt, "How do plans work?") {
		t.Errorf("prompt missing the question:\n%s", prompt)
	}
}

func TestSynthesizerRefinementPrompt(t *testing.T) {
	client := &flakyLLM{response: "refined answer"}
	s := newSynthesizer(client, defaultConfig(), testLogger())

	if _, err := s.Compose(context.Background(), "question", sampleEvidence(), 2); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if !strings.Contains(client.lastPrompt(), "refinement pass 2") {
		t.Errorf("refinement rounds must use the refinement prompt:\n%s", client.lastPrompt())
	}
}

func TestSynthesizerChunkBudget(t *testing.T) {
	cfg := defaultConfig()
	cfg.ContextChunkBudget = 2
	client := &flakyLLM{response: "answer"}
	s := newSynthesizer(client, cfg, testLogger())

	if _, err := s.Compose(context.Background(), "question", sampleEvidence(), 0); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	prompt := client.lastPrompt()
	if !strings.Contains(prompt, "Plans renew monthly.") || !strings.Contains(prompt, "Support is available 24/7.") {
		t.Errorf("top-scored chunks must survive the budget:\n%s", prompt)
	}
	if strings.Contains(prompt, "unless cancelled") {
		t.Errorf("lowest-scored chunk should be dropped by the budget:\n%s", prompt)
	}
}

func TestSynthesizerTokenBudget(t *testing.T) {
	cfg := defaultConfig()
	cfg.ContextTokenBudget = 4
	cfg.tokenizer = wordTokenizer{}
	client := &flakyLLM{response: "answer"}
	s := newSynthesizer(client, cfg, testLogger())

	if _, err := s.Compose(context.Background(), "question", sampleEvidence(), 0); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	prompt := client.lastPrompt()
	if !strings.Contains(prompt, "Plans renew monthly.") {
		t.Errorf("the best chunk must always be included:\n%s", prompt)
	}
	if strings.Contains(prompt, "Support is available") {
		t.Errorf("token budget should have cut the second chunk:\n%s", prompt)
	}
}

func TestSynthesizerRetriesTransientErrors(t *testing.T) {
	client := &flakyLLM{
		failures: 1,
		err:      llm.Transient(fmt.Errorf("rate limited")),
		response: "answer after retry",
	}
	s := newSynthesizer(client, defaultConfig(), testLogger())

	draft, err := s.Compose(context.Background(), "question", sampleEvidence(), 0)
	if err != nil {
		t.Fatalf("transient failure within budget must recover: %v", err)
	}
	if draft.Text != "answer after retry" {
		t.Errorf("draft text = %q", draft.Text)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2", client.calls)
	}
}

func TestSynthesizerDoesNotRetryFatalErrors(t *testing.T) {
	client := &flakyLLM{
		failures: 10,
		err:      fmt.Errorf("invalid request"),
	}
	s := newSynthesizer(client, defaultConfig(), testLogger())

	_, err := s.Compose(context.Background(), "question", sampleEvidence(), 0)
	if !errors.Is(err, ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
	if client.calls != 1 {
		t.Errorf("fatal errors must not be retried, calls = %d", client.calls)
	}
}

func TestSynthesizerEmptyDraftIsFatal(t *testing.T) {
	client := &flakyLLM{response: "   "}
	s := newSynthesizer(client, defaultConfig(), testLogger())

	_, err := s.Compose(context.Background(), "question", sampleEvidence(), 0)
	if !errors.Is(err, ErrSynthesis) {
		t.Fatalf("empty generator output must fail the draft, got %v", err)
	}
}

func TestSynthesizerExhaustsRetryBudget(t *testing.T) {
	client := &flakyLLM{
		failures: 10,
		err:      llm.Transient(fmt.Errorf("still rate limited")),
	}
	cfg := defaultConfig()
	cfg.SynthesisRetries = 2
	s := newSynthesizer(client, cfg, testLogger())

	_, err := s.Compose(context.Background(), "question", sampleEvidence(), 0)
	if !errors.Is(err, ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis after retry budget, got %v", err)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want the full retry budget of 2", client.calls)
	}
}
