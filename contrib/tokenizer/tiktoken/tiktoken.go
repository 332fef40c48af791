// Package tiktoken wraps the tiktoken BPE tokenizer for token counting and
// token-window slicing.
package tiktoken

import (
	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts and slices text by BPE tokens.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New resolves the encoding by model name first (e.g. "gpt-4o-mini"), then
// by encoding name (e.g. "cl100k_base").
func New(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

// Encode returns the token IDs for text.
func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	return len(t.Encode(text))
}

// Decode converts token IDs back to text.
func (t *Tokenizer) Decode(ids []int) string {
	return t.enc.Decode(ids)
}
