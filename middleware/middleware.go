// Package middleware intercepts model calls. A chain wraps an llm.Client so
// cross-cutting concerns like logging, rate limiting, and input validation
// stay out of the engine loop.
package middleware

import (
	"context"

	"github.com/docsage/docsage/llm"
	"github.com/docsage/docsage/message"
)

// Context is the state passed through a middleware chain for one model call.
type Context struct {
	// Messages sent to the model. Middlewares may rewrite them before the
	// call reaches the client.
	Messages []*message.Message

	// Response produced by the client, set once the final handler ran.
	Response *message.Message

	// Metadata passes data between middlewares in the same chain run.
	Metadata map[string]any

	ctx context.Context
}

// NewContext creates a middleware context for one model call.
func NewContext(ctx context.Context, messages []*message.Message) *Context {
	return &Context{
		Messages: messages,
		Metadata: make(map[string]any),
		ctx:      ctx,
	}
}

// Context returns the underlying context.Context.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Input returns the text of the last user message, which is what most
// validation and logging middlewares care about.
func (c *Context) Input() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i] != nil && c.Messages[i].Role == message.RoleUser {
			return c.Messages[i].Text()
		}
	}
	return ""
}

// Handler passes control to the next middleware in the chain.
type Handler func(*Context) error

// Middleware intercepts a model call. Returning an error without calling
// next stops the chain.
type Middleware interface {
	Name() string
	Execute(ctx *Context, next Handler) error
}

// Chain is an ordered sequence of middlewares.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a chain from the given middlewares.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Add appends a middleware to the chain.
func (c *Chain) Add(m Middleware) *Chain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Execute runs the chain, ending in finalHandler.
func (c *Chain) Execute(ctx *Context, finalHandler Handler) error {
	return c.execute(ctx, 0, finalHandler)
}

func (c *Chain) execute(ctx *Context, index int, finalHandler Handler) error {
	if index >= len(c.middlewares) {
		return finalHandler(ctx)
	}
	next := func(ctx *Context) error {
		return c.execute(ctx, index+1, finalHandler)
	}
	return c.middlewares[index].Execute(ctx, next)
}

// client wraps a base llm.Client with a middleware chain.
type client struct {
	base  llm.Client
	chain *Chain
}

// Wrap returns an llm.Client whose Complete calls pass through the given
// middlewares before reaching base.
func Wrap(base llm.Client, middlewares ...Middleware) llm.Client {
	return &client{base: base, chain: NewChain(middlewares...)}
}

// Complete implements llm.Client.
func (c *client) Complete(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	mctx := NewContext(ctx, messages)
	err := c.chain.Execute(mctx, func(mctx *Context) error {
		resp, err := c.base.Complete(mctx.Context(), mctx.Messages)
		if err != nil {
			return err
		}
		mctx.Response = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mctx.Response, nil
}

// SetTemperature implements llm.Client.
func (c *client) SetTemperature(temp float64) {
	c.base.SetTemperature(temp)
}

// SetMaxTokens implements llm.Client.
func (c *client) SetMaxTokens(max int64) {
	c.base.SetMaxTokens(max)
}

// SetModel implements llm.Client.
func (c *client) SetModel(model string) {
	c.base.SetModel(model)
}
