package embedder

import (
	"context"

	"github.com/docsage/docsage/rag/document"
	"github.com/docsage/docsage/vector"
)

// Embedder exposes methods tailored for RAG components.
type Embedder interface {
	EmbedDocument(ctx context.Context, chunk document.Chunk) ([]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// VectorAdapter bridges the generic vector.Embedder interface into a rag Embedder.
type VectorAdapter struct {
	base      vector.Embedder
	normalize bool
}

// NewVectorAdapter creates a new adapter.
func NewVectorAdapter(base vector.Embedder) *VectorAdapter {
	return &VectorAdapter{base: base}
}

// NewNormalizingAdapter creates an adapter that L2-normalizes every vector.
func NewNormalizingAdapter(base vector.Embedder) *VectorAdapter {
	return &VectorAdapter{base: base, normalize: true}
}

// EmbedDocument embeds the chunk content using the base embedder.
func (v *VectorAdapter) EmbedDocument(ctx context.Context, chunk document.Chunk) ([]float32, error) {
	if v == nil || v.base == nil {
		return nil, nil
	}
	vec, err := v.base.Embed(ctx, chunk.Content)
	if err != nil {
		return nil, err
	}
	if v.normalize {
		vec = vector.Normalize(vec)
	}
	return vec, nil
}

// EmbedQuery embeds the query string.
func (v *VectorAdapter) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if v == nil || v.base == nil {
		return nil, nil
	}
	vec, err := v.base.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if v.normalize {
		vec = vector.Normalize(vec)
	}
	return vec, nil
}
