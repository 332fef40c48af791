package engine

import (
	"context"
	"sort"
)

// Retriever is the search collaborator the engine depends on. Implementations
// return at most k hits ordered by descending similarity; an empty result is
// a valid answer meaning nothing relevant was indexed.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]SearchHit, error)
}

// SearchHit is one retrieval result.
type SearchHit struct {
	Text   string
	Source string
	Score  float32
}

// Tokenizer counts tokens for the optional context token budget.
type Tokenizer interface {
	CountTokens(text string) int
}

// SubQuery is a decomposed or refinement-derived search string.
type SubQuery struct {
	Text      string `json:"text"`
	Rationale string `json:"rationale,omitempty"`
}

// RetrievedChunk is a hit annotated with the round and sub-query that
// produced it.
type RetrievedChunk struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float32 `json:"score"`
	Round  int     `json:"round"`
	Query  string  `json:"query,omitempty"`
}

// Draft is a candidate answer plus the sources that were placed in its
// generation prompt.
type Draft struct {
	Text    string   `json:"text"`
	Round   int      `json:"round"`
	Sources []string `json:"sources,omitempty"`
}

// Assessment is the structured self-critique of a draft.
type Assessment struct {
	Complete        bool     `json:"complete"`
	Confidence      float64  `json:"confidence"`
	MissingAspects  []string `json:"missing_aspects,omitempty"`
	NeedsRefinement bool     `json:"needs_refinement"`
}

// Result is the final answer handed back to callers.
type Result struct {
	Answer          string   `json:"answer"`
	Sources         []string `json:"sources"`
	RoundsUsed      int      `json:"rounds_used"`
	FinalConfidence float64  `json:"final_confidence"`
}

type chunkKey struct {
	source string
	text   string
}

// evidencePool accumulates retrieved chunks for one session. It only grows:
// a chunk seen in an earlier round keeps its original provenance and score.
// Distinct text spans from the same source are distinct chunks; there is no
// fuzzy merging of overlapping windows.
type evidencePool struct {
	chunks []RetrievedChunk
	index  map[chunkKey]int
}

func newEvidencePool() *evidencePool {
	return &evidencePool{
		index: make(map[chunkKey]int),
	}
}

// add appends the chunk unless the same (source, text) pair is already
// pooled. Returns true when the chunk was new.
func (p *evidencePool) add(chunk RetrievedChunk) bool {
	key := chunkKey{source: chunk.Source, text: chunk.Text}
	if _, ok := p.index[key]; ok {
		return false
	}
	p.index[key] = len(p.chunks)
	p.chunks = append(p.chunks, chunk)
	return true
}

func (p *evidencePool) size() int {
	return len(p.chunks)
}

// snapshot returns a copy safe to hand to the synthesizer.
func (p *evidencePool) snapshot() []RetrievedChunk {
	out := make([]RetrievedChunk, len(p.chunks))
	copy(out, p.chunks)
	return out
}

// sources returns the deduplicated, sorted source identifiers pooled so far.
func (p *evidencePool) sources() []string {
	seen := make(map[string]struct{}, len(p.chunks))
	out := make([]string, 0, len(p.chunks))
	for _, chunk := range p.chunks {
		if _, ok := seen[chunk.Source]; ok {
			continue
		}
		seen[chunk.Source] = struct{}{}
		out = append(out, chunk.Source)
	}
	sort.Strings(out)
	return out
}
