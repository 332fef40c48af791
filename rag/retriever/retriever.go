package retriever

import (
	"context"
	"fmt"
	"sync"

	"github.com/docsage/docsage/rag/chunking"
	"github.com/docsage/docsage/rag/document"
	"github.com/docsage/docsage/rag/embedder"
	"github.com/docsage/docsage/rag/reranker"
	"github.com/docsage/docsage/rag/summarizer"
	"github.com/docsage/docsage/vector"
)

// Config controls retrieval behaviour.
type Config struct {
	SearchTopK int
	RerankTopK int
	MinScore   float32
	Summarizer summarizer.Summarizer
}

// Option customizes retriever config.
type Option func(*Config)

// WithSearchTopK sets the default number of neighbors fetched from the vector store.
func WithSearchTopK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.SearchTopK = k
		}
	}
}

// WithRerankTopK sets how many documents survive reranking.
func WithRerankTopK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.RerankTopK = k
		}
	}
}

// WithMinScore drops results scoring below the threshold.
func WithMinScore(score float32) Option {
	return func(cfg *Config) {
		if score >= 0 {
			cfg.MinScore = score
		}
	}
}

// WithSummarizer additionally indexes a condensed rendition of each chunk,
// which improves recall on broad questions at extra indexing cost.
func WithSummarizer(s summarizer.Summarizer) Option {
	return func(cfg *Config) {
		cfg.Summarizer = s
	}
}

// Retriever coordinates chunking, embedding, similarity search, and reranking.
type Retriever struct {
	store    vector.VectorStore
	embedder embedder.Embedder
	chunker  chunking.Chunker
	reranker reranker.Reranker
	cfg      Config

	mu        sync.RWMutex
	documents map[string]document.Document
	chunks    map[string]document.Chunk
}

// New creates a retriever.
func New(store vector.VectorStore, emb embedder.Embedder, chunker chunking.Chunker, rer reranker.Reranker, opts ...Option) *Retriever {
	cfg := Config{
		SearchTopK: 8,
		RerankTopK: 5,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Retriever{
		store:     store,
		embedder:  emb,
		chunker:   chunker,
		reranker:  rer,
		cfg:       cfg,
		documents: make(map[string]document.Document),
		chunks:    make(map[string]document.Chunk),
	}
}

// IndexDocuments ingests documents -> chunks -> embeddings -> vector store.
func (r *Retriever) IndexDocuments(ctx context.Context, docs ...document.Document) error {
	if r.store == nil || r.embedder == nil || r.chunker == nil {
		return fmt.Errorf("retriever not fully configured")
	}

	for _, doc := range docs {
		document.EnsureDocumentID(&doc)
		chunks, err := r.chunker.Chunk(ctx, doc)
		if err != nil {
			return fmt.Errorf("chunk document %s: %w", doc.ID, err)
		}

		for _, chunk := range chunks {
			if err := r.indexChunk(ctx, doc, chunk); err != nil {
				return err
			}
		}

		if r.cfg.Summarizer != nil {
			if err := r.indexSummaries(ctx, doc, chunks); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Retriever) indexChunk(ctx context.Context, doc document.Document, chunk document.Chunk) error {
	vec, err := r.embedder.EmbedDocument(ctx, chunk)
	if err != nil {
		return fmt.Errorf("embed chunk %s: %w", chunk.ID, err)
	}
	embedding := &vector.Embedding{
		ID:     chunk.ID,
		Vector: vec,
		Text:   chunk.Content,
	}
	if err := r.store.AddEmbedding(ctx, embedding); err != nil {
		return fmt.Errorf("store chunk %s: %w", chunk.ID, err)
	}

	r.mu.Lock()
	r.chunks[chunk.ID] = chunk.Clone()
	r.documents[doc.ID] = doc.Clone()
	r.mu.Unlock()
	return nil
}

// indexSummaries stores a condensed rendition of each chunk next to the
// original so broad queries can land on the summary.
func (r *Retriever) indexSummaries(ctx context.Context, doc document.Document, chunks []document.Chunk) error {
	summaries, err := r.cfg.Summarizer.SummarizeChunks(ctx, chunks)
	if err != nil {
		return fmt.Errorf("summarize document %s: %w", doc.ID, err)
	}
	for i, sum := range summaries {
		if i >= len(chunks) || sum.Summary == "" {
			continue
		}
		base := chunks[i]
		content := sum.Summary
		for _, kp := range sum.KeyPoints {
			content += "\n- " + kp
		}
		derived := document.Chunk{
			ID:         base.ID + "_summary",
			DocumentID: base.DocumentID,
			Source:     base.Source,
			Content:    content,
			Ordinal:    base.Ordinal,
			Metadata:   map[string]any{"summary_of": base.ID},
		}
		if err := r.indexChunk(ctx, doc, derived); err != nil {
			return err
		}
	}
	return nil
}

// Search executes semantic search followed by reranking. A non-positive topK
// falls back to the configured default.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]reranker.Result, error) {
	if topK <= 0 {
		topK = r.cfg.SearchTopK
	}

	queryVec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.store.Search(ctx, queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	candidates := make([]reranker.Candidate, 0, len(hits))
	for _, hit := range hits {
		chunk, ok := r.lookupChunk(hit.ID)
		if !ok {
			continue
		}
		candidates = append(candidates, reranker.Candidate{
			Chunk:  chunk,
			Vector: hit.Vector,
		})
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	ranked := candidates
	var results []reranker.Result
	if r.reranker != nil {
		results, err = r.reranker.Rank(reranker.ContextWithQuery(ctx, query), queryVec, ranked)
		if err != nil {
			return nil, err
		}
	} else {
		results = make([]reranker.Result, 0, len(ranked))
		for _, cand := range ranked {
			results = append(results, reranker.Result{Chunk: cand.Chunk, Score: cand.Score})
		}
	}

	if r.cfg.MinScore > 0 {
		filtered := results[:0]
		for _, res := range results {
			if res.Score >= r.cfg.MinScore {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}

	limit := topK
	if r.cfg.RerankTopK > 0 && r.cfg.RerankTopK < limit {
		limit = r.cfg.RerankTopK
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Document fetches a document by ID.
func (r *Retriever) Document(id string) (document.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.documents[id]
	return doc.Clone(), ok
}

// lookupChunk retrieves chunk metadata.
func (r *Retriever) lookupChunk(id string) (document.Chunk, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chunk, ok := r.chunks[id]
	if !ok {
		return document.Chunk{}, false
	}
	return chunk.Clone(), true
}

// Clear drops all indexed state.
func (r *Retriever) Clear(ctx context.Context) error {
	if r.store != nil {
		if err := r.store.Clear(ctx); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = make(map[string]document.Chunk)
	r.documents = make(map[string]document.Document)
	return nil
}

// Count returns number of chunks indexed.
func (r *Retriever) Count(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	return r.store.Count(ctx)
}
