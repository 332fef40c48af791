// Package markdown provides a structure-aware chunker that splits markdown by
// heading hierarchy. Sections keep their heading so each chunk reads as a
// self-contained passage, and oversized sections fall back to a base chunker.
package markdown

import (
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/docsage/docsage/rag/chunking"
	"github.com/docsage/docsage/rag/document"
)

// Chunker splits markdown documents along headings using a goldmark AST.
type Chunker struct {
	maxHeadingLevel int
	maxCharacters   int
	minCharacters   int
	fallback        chunking.Chunker
	parser          goldmark.Markdown
}

// Option customises the markdown chunker.
type Option func(*Chunker)

// WithMaxHeadingLevel caps which heading level starts a new section (default 3).
func WithMaxHeadingLevel(level int) Option {
	return func(c *Chunker) {
		if level > 0 {
			c.maxHeadingLevel = level
		}
	}
}

// WithMaxCharacters bounds section size before the fallback chunker takes over.
func WithMaxCharacters(chars int) Option {
	return func(c *Chunker) {
		if chars > 0 {
			c.maxCharacters = chars
		}
	}
}

// WithMinCharacters merges adjoining sections until they reach the given size.
func WithMinCharacters(chars int) Option {
	return func(c *Chunker) {
		if chars >= 0 {
			c.minCharacters = chars
		}
	}
}

// WithFallbackChunker replaces the chunker used for oversized sections.
func WithFallbackChunker(ch chunking.Chunker) Option {
	return func(c *Chunker) {
		if ch != nil {
			c.fallback = ch
		}
	}
}

// New creates a markdown chunker with sensible defaults.
func New(opts ...Option) *Chunker {
	ch := &Chunker{
		maxHeadingLevel: 3,
		maxCharacters:   1200,
		minCharacters:   240,
		parser:          goldmark.New(),
		fallback: chunking.NewSimpleChunker(
			chunking.WithChunkSize(800),
			chunking.WithOverlap(120),
		),
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Chunk implements chunking.Chunker.
func (c *Chunker) Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error) {
	document.EnsureDocumentID(&doc)

	sections := c.splitSections(doc.Content)
	if len(sections) == 0 {
		return c.fallback.Chunk(ctx, doc)
	}

	chunks := make([]document.Chunk, 0, len(sections))
	ordinal := 0
	for _, sec := range sections {
		payload := strings.TrimSpace(sec.raw)
		if payload == "" {
			continue
		}

		if len(payload) <= c.maxCharacters {
			ordinal++
			chunks = append(chunks, document.Chunk{
				ID:         document.NextChunkID(doc.ID),
				DocumentID: doc.ID,
				Source:     doc.Source,
				Content:    payload,
				Ordinal:    ordinal,
				Metadata:   mergeMetadata(doc.Metadata, sec.metadata),
			})
			continue
		}

		// Section too large; re-chunk it while preserving section metadata.
		sub := document.Document{
			ID:       doc.ID,
			Source:   doc.Source,
			Title:    doc.Title,
			Content:  payload,
			Metadata: mergeMetadata(doc.Metadata, sec.metadata),
		}
		splits, err := c.fallback.Chunk(ctx, sub)
		if err != nil {
			return nil, err
		}
		for _, split := range splits {
			ordinal++
			chunk := split.Clone()
			chunk.ID = document.NextChunkID(doc.ID)
			chunk.DocumentID = doc.ID
			chunk.Source = doc.Source
			chunk.Ordinal = ordinal
			chunk.Metadata = mergeMetadata(sub.Metadata, chunk.Metadata)
			chunks = append(chunks, chunk)
		}
	}

	return chunks, nil
}

type section struct {
	raw      string
	level    int
	title    string
	metadata map[string]any
}

type heading struct {
	start int
	level int
	title string
}

func (c *Chunker) splitSections(content string) []section {
	source := []byte(content)
	root := c.parser.Parser().Parse(text.NewReader(source))

	var headings []heading
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Level > c.maxHeadingLevel {
			return ast.WalkContinue, nil
		}
		lines := h.Lines()
		if lines == nil || lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		headings = append(headings, heading{
			start: lines.At(0).Start,
			level: h.Level,
			title: strings.TrimSpace(string(h.Text(source))),
		})
		return ast.WalkSkipChildren, nil
	})

	if len(headings) == 0 {
		raw := strings.TrimSpace(content)
		if raw == "" {
			return nil
		}
		return []section{{raw: raw}}
	}

	var sections []section
	if intro := strings.TrimSpace(string(source[:headings[0].start])); intro != "" {
		sections = append(sections, section{raw: intro})
	}
	for i, h := range headings {
		end := len(source)
		if i+1 < len(headings) {
			end = headings[i+1].start
		}
		raw := strings.TrimSpace(string(source[h.start:end]))
		if raw == "" {
			continue
		}
		sections = append(sections, section{
			raw:   raw,
			level: h.level,
			title: h.title,
			metadata: map[string]any{
				"section_title": h.title,
				"section_level": h.level,
			},
		})
	}
	return c.mergeShortSections(sections)
}

func (c *Chunker) mergeShortSections(sections []section) []section {
	if c.minCharacters <= 0 || len(sections) == 0 {
		return sections
	}
	merged := make([]section, 0, len(sections))
	var pending *section
	for idx, sec := range sections {
		current := sec
		if pending != nil {
			current = combineSections(*pending, sec)
			pending = nil
		}
		if len(current.raw) < c.minCharacters && idx < len(sections)-1 {
			tmp := current
			pending = &tmp
			continue
		}
		merged = append(merged, current)
	}
	if pending != nil {
		merged = append(merged, *pending)
	}
	return merged
}

func combineSections(a, b section) section {
	title := a.title
	if strings.TrimSpace(title) == "" {
		title = b.title
	}
	return section{
		raw:      strings.TrimSpace(a.raw + "\n\n" + b.raw),
		level:    a.level,
		title:    title,
		metadata: mergeMetadata(a.metadata, b.metadata),
	}
}

func mergeMetadata(base, extra map[string]any) map[string]any {
	if base == nil && extra == nil {
		return nil
	}
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
