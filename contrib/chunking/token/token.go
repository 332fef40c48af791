// Package token provides a token-window chunker. It approximates tokenization
// with a unicode word pattern so it needs no provider-specific codec, while
// still enforcing per-chunk token budgets and overlaps.
package token

import (
	"context"
	"regexp"
	"strings"

	"github.com/docsage/docsage/rag/document"
)

var tokenPattern = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*|\p{N}+|[^\s]`)

// Chunker splits documents into windows of at most maxTokens tokens, with
// overlapTokens shared between consecutive windows. Whitespace between tokens
// is preserved so chunk text reads like the source.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// Option customises the token chunker.
type Option func(*Chunker)

// WithMaxTokens sets the maximum tokens per chunk (default 256).
func WithMaxTokens(tokens int) Option {
	return func(c *Chunker) {
		if tokens > 0 {
			c.maxTokens = tokens
		}
	}
}

// WithOverlapTokens sets how many tokens consecutive chunks share (default 32).
func WithOverlapTokens(tokens int) Option {
	return func(c *Chunker) {
		if tokens >= 0 {
			c.overlapTokens = tokens
		}
	}
}

// New creates a token-window chunker.
func New(opts ...Option) *Chunker {
	ch := &Chunker{
		maxTokens:     256,
		overlapTokens: 32,
	}
	for _, opt := range opts {
		opt(ch)
	}
	if ch.overlapTokens >= ch.maxTokens {
		ch.overlapTokens = ch.maxTokens / 2
	}
	return ch
}

type segment struct {
	start  int
	end    int
	counts bool
}

// Chunk implements chunking.Chunker.
func (c *Chunker) Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error) {
	document.EnsureDocumentID(&doc)
	segments, tokenSegments := buildSegments(doc.Content)
	if len(tokenSegments) == 0 {
		return []document.Chunk{c.newChunk(doc, 1, doc.Content)}, nil
	}

	var chunks []document.Chunk
	tokenStart := 0
	for ordinal := 1; tokenStart < len(tokenSegments); ordinal++ {
		tokenEnd := tokenStart + c.maxTokens
		if tokenEnd > len(tokenSegments) {
			tokenEnd = len(tokenSegments)
		}
		startSegment := tokenSegments[tokenStart]
		if startSegment > 0 && !segments[startSegment-1].counts {
			startSegment--
		}
		endSegment := tokenSegments[tokenEnd-1] + 1
		for endSegment < len(segments) && !segments[endSegment].counts {
			endSegment++
		}

		text := extract(doc.Content, segments[startSegment:endSegment])
		chunks = append(chunks, c.newChunk(doc, ordinal, text))

		if tokenEnd == len(tokenSegments) {
			break
		}
		tokenStart = tokenEnd - c.overlapTokens
		if tokenStart < 0 {
			tokenStart = 0
		}
	}

	return chunks, nil
}

func (c *Chunker) newChunk(doc document.Document, ordinal int, content string) document.Chunk {
	return document.Chunk{
		ID:         document.NextChunkID(doc.ID),
		DocumentID: doc.ID,
		Source:     doc.Source,
		Content:    content,
		Ordinal:    ordinal,
	}
}

func buildSegments(text string) ([]segment, []int) {
	var segments []segment
	var tokenSegments []int
	prevEnd := 0
	for _, loc := range tokenPattern.FindAllStringIndex(text, -1) {
		if loc[0] > prevEnd {
			segments = append(segments, segment{start: prevEnd, end: loc[0]})
		}
		segments = append(segments, segment{start: loc[0], end: loc[1], counts: true})
		tokenSegments = append(tokenSegments, len(segments)-1)
		prevEnd = loc[1]
	}
	if prevEnd < len(text) {
		segments = append(segments, segment{start: prevEnd, end: len(text)})
	}
	return segments, tokenSegments
}

func extract(content string, segments []segment) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(content[seg.start:seg.end])
	}
	return b.String()
}
