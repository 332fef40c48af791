// Package openai summarizes chunks with an OpenAI chat model.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/docsage/docsage/llm"
	"github.com/docsage/docsage/message"
	"github.com/docsage/docsage/rag/document"
	"github.com/docsage/docsage/rag/summarizer"
)

const defaultConcurrency = 8

// Summarizer condenses chunks through a chat model. Summaries keep the input
// language and carry 3-5 numbered key points.
type Summarizer struct {
	client      llm.Client
	tokens      int
	concurrency int
}

var _ summarizer.Summarizer = (*Summarizer)(nil)

// Option customises the summarizer.
type Option func(*Summarizer)

// WithTargetTokens sets the approximate summary length (default 120).
func WithTargetTokens(tokens int) Option {
	return func(s *Summarizer) {
		if tokens > 0 {
			s.tokens = tokens
		}
	}
}

// WithConcurrency bounds parallel model calls (default 8).
func WithConcurrency(n int) Option {
	return func(s *Summarizer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates a summarizer backed by the given client.
func New(client llm.Client, opts ...Option) (*Summarizer, error) {
	if client == nil {
		return nil, fmt.Errorf("summarizer requires a client")
	}
	s := &Summarizer{
		client:      client,
		tokens:      120,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SummarizeChunks summarizes each chunk, preserving input order. A single
// failed chunk fails the batch.
func (s *Summarizer) SummarizeChunks(ctx context.Context, chunks []document.Chunk) ([]document.Summary, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	out := make([]document.Summary, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range chunks {
		g.Go(func() error {
			sum, err := s.summarizeOne(gctx, chunks[i])
			if err != nil {
				return err
			}
			out[i] = *sum
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Summarizer) summarizeOne(ctx context.Context, c document.Chunk) (*document.Summary, error) {
	title := c.Source
	if metaTitle, ok := c.Metadata["section_title"].(string); ok && metaTitle != "" {
		title = metaTitle
	}

	prompt := fmt.Sprintf(`Provide a reasoning summary of the following text:
Title: %s
Content:
%s

Requirements:
1) Output in the input language
2) Keep the summary to approximately %d tokens
3) Extract 3-5 key points (numbered)
4) Output JSON only: {"summary":"...","key_points":["kp1","kp2"]}
`, title, c.Content, s.tokens)

	resp, err := s.client.Complete(ctx, []*message.Message{
		message.NewMessage(message.RoleUser, prompt),
	})
	if err != nil {
		return nil, fmt.Errorf("summarize chunk %s: %w", c.ID, err)
	}

	text := stripFences(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("summarize chunk %s: empty response", c.ID)
	}

	var js struct {
		Summary   string   `json:"summary"`
		KeyPoints []string `json:"key_points"`
	}
	if err := json.Unmarshal([]byte(text), &js); err != nil {
		return nil, fmt.Errorf("summarize chunk %s: decode response: %w", c.ID, err)
	}
	return &document.Summary{
		ChunkID:   c.ID,
		Summary:   js.Summary,
		KeyPoints: js.KeyPoints,
	}, nil
}

func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = trimmed[3:]
		trimmed = strings.TrimPrefix(trimmed, "json")
		trimmed = strings.TrimPrefix(trimmed, "JSON")
		if idx := strings.Index(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
	}
	return strings.TrimSpace(trimmed)
}
