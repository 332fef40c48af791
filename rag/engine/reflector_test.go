package engine

import (
	"context"
	"fmt"
	"testing"
)

func newTestReflector(client *scriptedLLM, threshold float64) *reflector {
	cfg := defaultConfig()
	cfg.ConfidenceThreshold = threshold
	if client == nil {
		return newReflector(nil, cfg, testLogger())
	}
	return newReflector(client, cfg, testLogger())
}

func sampleDraft() *Draft {
	return &Draft{
		Text:    "The plan includes unlimited seats. [handbook]",
		Round:   0,
		Sources: []string{"handbook"},
	}
}

func TestReflectorAcceptsCompleteDraft(t *testing.T) {
	client := &scriptedLLM{responses: []string{
		`{"is_complete": true, "confidence": 0.92, "missing_aspects": [], "needs_refinement": false}`,
	}}
	r := newTestReflector(client, 0.7)

	a := r.Assess(context.Background(), "What does the plan include?", sampleDraft())
	if a.NeedsRefinement {
		t.Fatal("complete high-confidence draft must not be refined")
	}
	if a.Confidence != 0.92 {
		t.Errorf("confidence = %v, want 0.92", a.Confidence)
	}
}

func TestReflectorFlagsMissingAspects(t *testing.T) {
	client := &scriptedLLM{responses: []string{
		`{"is_complete": false, "confidence": 0.8, "missing_aspects": ["pricing tiers", "  ", "regional availability"], "needs_refinement": false}`,
	}}
	r := newTestReflector(client, 0.7)

	a := r.Assess(context.Background(), "How is the product sold?", sampleDraft())
	if !a.NeedsRefinement {
		t.Fatal("incomplete draft must trigger refinement regardless of the model's own flag")
	}
	if len(a.MissingAspects) != 2 {
		t.Fatalf("blank aspects should be dropped, got %v", a.MissingAspects)
	}
	if a.MissingAspects[0] != "pricing tiers" || a.MissingAspects[1] != "regional availability" {
		t.Errorf("aspects mangled: %v", a.MissingAspects)
	}
}

func TestReflectorLowConfidenceTriggersRefinement(t *testing.T) {
	client := &scriptedLLM{responses: []string{
		`{"is_complete": true, "confidence": 0.4, "missing_aspects": [], "needs_refinement": false}`,
	}}
	r := newTestReflector(client, 0.7)

	a := r.Assess(context.Background(), "question", sampleDraft())
	if !a.NeedsRefinement {
		t.Fatal("confidence below threshold must trigger refinement")
	}
}

func TestReflectorIgnoresInconsistentFlag(t *testing.T) {
	// The model demands refinement but reports a complete, confident draft
	// with no gaps. The structured fields win.
	client := &scriptedLLM{responses: []string{
		`{"is_complete": true, "confidence": 0.95, "missing_aspects": [], "needs_refinement": true}`,
	}}
	r := newTestReflector(client, 0.7)

	a := r.Assess(context.Background(), "question", sampleDraft())
	if a.NeedsRefinement {
		t.Fatal("refinement decision must be recomputed from structured fields only")
	}
}

func TestReflectorConfidenceLabels(t *testing.T) {
	tests := []struct {
		label string
		want  float64
	}{
		{"high", 0.9},
		{"Medium", 0.6},
		{"low", 0.3},
	}
	for _, tt := range tests {
		client := &scriptedLLM{responses: []string{
			fmt.Sprintf(`{"is_complete": true, "confidence": %q, "missing_aspects": []}`, tt.label),
		}}
		r := newTestReflector(client, 0.1)
		a := r.Assess(context.Background(), "question", sampleDraft())
		if a.Confidence != tt.want {
			t.Errorf("label %q: confidence = %v, want %v", tt.label, a.Confidence, tt.want)
		}
	}
}

func TestReflectorClampsNumericConfidence(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"1.7", 1},
		{"-0.3", 0},
		{"0.5", 0.5},
	}
	for _, tt := range tests {
		client := &scriptedLLM{responses: []string{
			fmt.Sprintf(`{"is_complete": true, "confidence": %s, "missing_aspects": []}`, tt.raw),
		}}
		r := newTestReflector(client, 0.1)
		a := r.Assess(context.Background(), "question", sampleDraft())
		if a.Confidence != tt.want {
			t.Errorf("raw %s: confidence = %v, want %v", tt.raw, a.Confidence, tt.want)
		}
	}
}

func TestReflectorDegradesToAcceptance(t *testing.T) {
	clients := []*scriptedLLM{
		{err: fmt.Errorf("model unavailable")},
		{responses: []string{"the draft looks fine to me"}},
		{responses: []string{`{"is_complete": true, "confidence": "absolutely"}`}},
		{responses: []string{""}},
	}
	for i, client := range clients {
		r := newTestReflector(client, 0.7)
		a := r.Assess(context.Background(), "question", sampleDraft())
		if a.NeedsRefinement {
			t.Errorf("case %d: unusable critique must accept the draft, got %+v", i, a)
		}
		if a.Confidence != 0.5 {
			t.Errorf("case %d: conservative confidence = %v, want 0.5", i, a.Confidence)
		}
	}
}

func TestReflectorWithoutClient(t *testing.T) {
	r := newTestReflector(nil, 0.7)
	a := r.Assess(context.Background(), "question", sampleDraft())
	if a.NeedsRefinement || !a.Complete {
		t.Fatalf("nil client must accept the draft, got %+v", a)
	}
}
