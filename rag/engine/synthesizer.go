package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/docsage/docsage/llm"
	"github.com/docsage/docsage/message"
)

// ErrSynthesis marks a session that failed because no draft could be
// generated within the retry budget.
var ErrSynthesis = errors.New("answer synthesis failed")

type synthesizer struct {
	llm    llm.Client
	cfg    *Config
	logger *slog.Logger
}

func newSynthesizer(client llm.Client, cfg *Config, logger *slog.Logger) *synthesizer {
	return &synthesizer{
		llm:    client,
		cfg:    cfg,
		logger: logger,
	}
}

// Compose turns the evidence snapshot into a draft answer. Evidence is ranked
// by similarity and truncated to the configured budgets before prompting; the
// returned draft records exactly the sources that entered the prompt.
func (s *synthesizer) Compose(ctx context.Context, question string, evidence []RetrievedChunk, round int) (*Draft, error) {
	if s.llm == nil {
		return nil, fmt.Errorf("synthesizer client is not configured")
	}

	included := s.selectContext(evidence)
	contextBlock, sources := formatContext(included)

	var userPrompt string
	if round > 0 {
		userPrompt = fmt.Sprintf("You are refining an earlier answer with additional context gathered in follow-up searches (refinement pass %d).\n\nContext from documents:\n%s\nQuestion: %s\n\nProvide a complete answer that synthesizes all of the information:", round, contextBlock, question)
	} else {
		userPrompt = fmt.Sprintf("Context from documents:\n%s\nQuestion: %s\n\nAnswer:", contextBlock, question)
	}

	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, s.cfg.SynthesisPrompt),
		message.NewMessage(message.RoleUser, userPrompt),
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond

	text, err := backoff.Retry(ctx, func() (string, error) {
		resp, err := s.llm.Complete(ctx, msgs)
		if err != nil {
			if llm.IsTransient(err) {
				s.logger.Warn("synthesis attempt failed, retrying", "error", err)
				return "", err
			}
			return "", backoff.Permanent(err)
		}
		if resp == nil || strings.TrimSpace(resp.Text()) == "" {
			return "", backoff.Permanent(fmt.Errorf("generator returned empty draft"))
		}
		return strings.TrimSpace(resp.Text()), nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(s.cfg.SynthesisRetries)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	return &Draft{
		Text:    text,
		Round:   round,
		Sources: sources,
	}, nil
}

// selectContext ranks chunks by similarity and drops the weakest ones until
// the chunk and token budgets hold.
func (s *synthesizer) selectContext(evidence []RetrievedChunk) []RetrievedChunk {
	ranked := make([]RetrievedChunk, len(evidence))
	copy(ranked, evidence)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if s.cfg.ContextChunkBudget > 0 && len(ranked) > s.cfg.ContextChunkBudget {
		ranked = ranked[:s.cfg.ContextChunkBudget]
	}

	if s.cfg.ContextTokenBudget > 0 && s.cfg.tokenizer != nil {
		kept := ranked[:0]
		used := 0
		for _, chunk := range ranked {
			cost := s.cfg.tokenizer.CountTokens(chunk.Text)
			if len(kept) > 0 && used+cost > s.cfg.ContextTokenBudget {
				break
			}
			kept = append(kept, chunk)
			used += cost
		}
		ranked = kept
	}
	return ranked
}

func formatContext(chunks []RetrievedChunk) (string, []string) {
	if len(chunks) == 0 {
		return "No context passages were retrieved.\n", nil
	}

	var b strings.Builder
	seen := make(map[string]struct{}, len(chunks))
	sources := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		fmt.Fprintf(&b, "[%s] (score %.2f)\n%s\n---\n", chunk.Source, chunk.Score, chunk.Text)
		if _, ok := seen[chunk.Source]; ok {
			continue
		}
		seen[chunk.Source] = struct{}{}
		sources = append(sources, chunk.Source)
	}
	sort.Strings(sources)
	return b.String(), sources
}
