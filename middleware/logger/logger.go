// Package logger provides middlewares that log model calls.
package logger

import (
	"log/slog"

	"github.com/docsage/docsage/middleware"
	"github.com/docsage/docsage/pkg/logging"
)

const inputLogLimit = 120

// RequestLogger logs the prompt heading into the model.
type RequestLogger struct {
	logger *slog.Logger
}

// NewRequestLogger creates a request logging middleware. A nil logger falls
// back to the shared component logger.
func NewRequestLogger(logger *slog.Logger) *RequestLogger {
	if logger == nil {
		logger = logging.WithComponent("middleware")
	}
	return &RequestLogger{logger: logger}
}

// Name implements middleware.Middleware.
func (m *RequestLogger) Name() string {
	return "RequestLogger"
}

// Execute implements middleware.Middleware.
func (m *RequestLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	m.logger.Debug("model request",
		"messages", len(ctx.Messages),
		"input", trim(ctx.Input(), inputLogLimit),
	)
	return next(ctx)
}

// ResponseLogger logs the model's response, or the error that replaced it.
type ResponseLogger struct {
	logger *slog.Logger
}

// NewResponseLogger creates a response logging middleware.
func NewResponseLogger(logger *slog.Logger) *ResponseLogger {
	if logger == nil {
		logger = logging.WithComponent("middleware")
	}
	return &ResponseLogger{logger: logger}
}

// Name implements middleware.Middleware.
func (m *ResponseLogger) Name() string {
	return "ResponseLogger"
}

// Execute implements middleware.Middleware.
func (m *ResponseLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	switch {
	case err != nil:
		m.logger.Warn("model call failed", "error", err)
	case ctx.Response != nil:
		m.logger.Debug("model response", "output", trim(ctx.Response.Text(), inputLogLimit))
	}
	return err
}

func trim(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
