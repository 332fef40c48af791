// Package enricher injects data into a model call before it runs.
package enricher

import (
	"github.com/docsage/docsage/message"
	"github.com/docsage/docsage/middleware"
)

// EnricherFunc mutates the middleware context, e.g. rewriting messages or
// stashing metadata for later middlewares.
type EnricherFunc func(*middleware.Context) error

// ContextEnricher runs an EnricherFunc before the call proceeds.
type ContextEnricher struct {
	enricher EnricherFunc
}

// NewContextEnricher creates a context enriching middleware.
func NewContextEnricher(enricher EnricherFunc) *ContextEnricher {
	return &ContextEnricher{enricher: enricher}
}

// Name implements middleware.Middleware.
func (m *ContextEnricher) Name() string {
	return "ContextEnricher"
}

// Execute implements middleware.Middleware.
func (m *ContextEnricher) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if m.enricher != nil {
		if err := m.enricher(ctx); err != nil {
			return err
		}
	}
	return next(ctx)
}

// NewSystemPrompt returns an enricher that prepends a system message when
// the call does not already carry one.
func NewSystemPrompt(prompt string) *ContextEnricher {
	return NewContextEnricher(func(ctx *middleware.Context) error {
		for _, msg := range ctx.Messages {
			if msg != nil && msg.Role == message.RoleSystem {
				return nil
			}
		}
		ctx.Messages = append(
			[]*message.Message{message.NewMessage(message.RoleSystem, prompt)},
			ctx.Messages...,
		)
		return nil
	})
}
