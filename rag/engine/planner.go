package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docsage/docsage/llm"
	"github.com/docsage/docsage/message"
)

const maxSubQueries = 5

type planner struct {
	llm    llm.Client
	prompt string
	logger *slog.Logger
}

type planOutput struct {
	NeedsDecomposition bool     `json:"needs_decomposition"`
	Reasoning          string   `json:"reasoning"`
	SubQueries         []string `json:"sub_queries"`
}

func newPlanner(client llm.Client, cfg *Config, logger *slog.Logger) *planner {
	return &planner{
		llm:    client,
		prompt: cfg.PlannerPrompt,
		logger: logger,
	}
}

// Plan classifies the question as simple or compound and returns the initial
// sub-query set. It never fails and never returns an empty plan: retrieval
// with the raw question is always a safe degraded behaviour, so any
// classification problem collapses to the single-subquery plan.
func (p *planner) Plan(ctx context.Context, question string) []SubQuery {
	fallback := []SubQuery{{Text: question}}
	if p.llm == nil {
		return fallback
	}

	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, p.prompt),
		message.NewMessage(message.RoleUser, fmt.Sprintf("Question: %s\nReturn JSON only.", question)),
	}
	resp, err := p.llm.Complete(ctx, msgs)
	if err != nil {
		p.logger.Warn("query planning failed, using single-query plan", "error", err)
		return fallback
	}
	if resp == nil || strings.TrimSpace(resp.Text()) == "" {
		p.logger.Warn("query planner returned empty output, using single-query plan")
		return fallback
	}

	plan, err := decodeJSON[planOutput](resp.Text())
	if err != nil {
		p.logger.Warn("query plan output invalid, using single-query plan", "error", err)
		return fallback
	}

	if !plan.NeedsDecomposition {
		return fallback
	}

	subs := make([]SubQuery, 0, len(plan.SubQueries))
	for _, q := range plan.SubQueries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		subs = append(subs, SubQuery{Text: q, Rationale: plan.Reasoning})
		if len(subs) == maxSubQueries {
			break
		}
	}
	if len(subs) == 0 {
		return fallback
	}
	p.logger.Debug("question decomposed", "sub_queries", len(subs), "reasoning", trimForLog(plan.Reasoning, 120))
	return subs
}
