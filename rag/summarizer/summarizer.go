// Package summarizer condenses chunks into summaries that can be indexed
// alongside the original text to improve recall on broad questions.
package summarizer

import (
	"context"

	"github.com/docsage/docsage/rag/document"
)

// Summarizer produces one summary per input chunk, preserving order.
type Summarizer interface {
	SummarizeChunks(ctx context.Context, chunks []document.Chunk) ([]document.Summary, error)
}
