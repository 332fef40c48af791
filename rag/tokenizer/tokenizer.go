// Package tokenizer defines the token counting contract used for context
// budgets, plus a dependency-free implementation good enough for tests and
// rough budgeting. Use contrib/tokenizer/tiktoken for model-exact counts.
package tokenizer

import (
	"strings"
	"sync"
	"unicode"
)

// Tokenizer encodes text into token ids and counts tokens.
type Tokenizer interface {
	Encode(text string) []int
	CountTokens(text string) int
	Decode(ids []int) string
}

var _ Tokenizer = (*SimpleTokenizer)(nil)

// SimpleTokenizer builds its vocabulary on the fly. Splitting rules: latin
// words and digit runs stay whole, Han characters tokenize per rune, and
// punctuation stands alone.
type SimpleTokenizer struct {
	mu       sync.Mutex
	vocab    map[string]int
	invVocab map[int]string
	nextID   int
}

// NewSimpleTokenizer creates a tokenizer with an empty vocabulary.
func NewSimpleTokenizer() *SimpleTokenizer {
	return &SimpleTokenizer{
		vocab:    make(map[string]int),
		invVocab: make(map[int]string),
		nextID:   1, // 0 is reserved for padding
	}
}

func (t *SimpleTokenizer) addToken(tok string) int {
	if id, ok := t.vocab[tok]; ok {
		return id
	}
	id := t.nextID
	t.vocab[tok] = id
	t.invVocab[id] = tok
	t.nextID++
	return id
}

func splitTokens(s string) []string {
	var toks []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			toks = append(toks, buf.String())
			buf.Reset()
		}
	}

	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.Is(unicode.Han, r):
			flush()
			toks = append(toks, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			buf.WriteRune(r)
		default:
			flush()
			toks = append(toks, string(r))
		}
	}

	flush()
	return toks
}

// Encode maps text onto vocabulary ids, growing the vocabulary as needed.
func (t *SimpleTokenizer) Encode(text string) []int {
	toks := splitTokens(text)
	ids := make([]int, 0, len(toks))
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tok := range toks {
		ids = append(ids, t.addToken(tok))
	}
	return ids
}

// CountTokens counts tokens without touching the vocabulary.
func (t *SimpleTokenizer) CountTokens(text string) int {
	return len(splitTokens(text))
}

// Decode reassembles token ids into text. Unknown ids are skipped.
func (t *SimpleTokenizer) Decode(ids []int) string {
	var sb strings.Builder
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		if tok, ok := t.invVocab[id]; ok {
			sb.WriteString(tok)
		}
	}
	return sb.String()
}
