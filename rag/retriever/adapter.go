package retriever

import (
	"context"

	"github.com/docsage/docsage/rag/engine"
)

// Adapter exposes a Retriever through the engine's search contract.
type Adapter struct {
	base *Retriever
}

// NewAdapter wraps the retriever for use as an engine retriever.
func NewAdapter(base *Retriever) *Adapter {
	return &Adapter{base: base}
}

// Search implements engine.Retriever. Hits cite the chunk's source so the
// engine can attribute answers; chunks without an explicit source fall back
// to the document ID.
func (a *Adapter) Search(ctx context.Context, query string, k int) ([]engine.SearchHit, error) {
	results, err := a.base.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	hits := make([]engine.SearchHit, 0, len(results))
	for _, res := range results {
		source := res.Chunk.Source
		if source == "" {
			source = res.Chunk.DocumentID
		}
		hits = append(hits, engine.SearchHit{
			Text:   res.Chunk.Content,
			Source: source,
			Score:  res.Score,
		})
	}
	return hits, nil
}
