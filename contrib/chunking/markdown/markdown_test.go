package markdown

import (
	"context"
	"strings"
	"testing"

	"github.com/docsage/docsage/rag/document"
)

const policyDoc = `Intro paragraph before any heading.

# Billing

Plans renew monthly and can be cancelled at any time.

## Refunds

Refunds are issued within ten business days once a return is approved.
`

func TestChunkerSplitsByHeadings(t *testing.T) {
	ch := New(WithMaxHeadingLevel(2), WithMaxCharacters(400), WithMinCharacters(0))
	doc := document.Document{ID: "policy", Source: "policy.md", Content: policyDoc}

	chunks, err := ch.Chunk(context.Background(), doc)
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks (intro + 2 sections), got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[1].Content, "# Billing") {
		t.Fatalf("section chunk should keep its heading: %q", chunks[1].Content)
	}
	if got := chunks[2].Metadata["section_title"]; got != "Refunds" {
		t.Fatalf("section_title = %v, want Refunds", got)
	}
	for i, c := range chunks {
		if c.Source != "policy.md" {
			t.Fatalf("chunk %d source = %q", i, c.Source)
		}
		if c.Ordinal != i+1 {
			t.Fatalf("chunk %d ordinal = %d", i, c.Ordinal)
		}
	}
}

func TestChunkerMergesShortSections(t *testing.T) {
	ch := New(WithMinCharacters(100))
	doc := document.Document{
		ID:      "short",
		Content: "# A\n\nTiny.\n\n# B\n\nAlso tiny.\n",
	}

	chunks, err := ch.Chunk(context.Background(), doc)
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected merged single chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Content, "# A") || !strings.Contains(chunks[0].Content, "# B") {
		t.Fatalf("merged chunk missing sections: %q", chunks[0].Content)
	}
}

func TestChunkerNoHeadingsSingleChunk(t *testing.T) {
	ch := New()
	doc := document.Document{ID: "plain", Content: "Just a plain paragraph without structure."}

	chunks, err := ch.Chunk(context.Background(), doc)
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}
