// Package errorhandler maps or recovers errors raised further down a chain.
package errorhandler

import (
	"github.com/docsage/docsage/middleware"
)

// ErrorHandlerFunc inspects an error and returns the error to surface, or
// nil to swallow it.
type ErrorHandlerFunc func(error) error

// ErrorHandler applies an ErrorHandlerFunc to downstream failures.
type ErrorHandler struct {
	handler ErrorHandlerFunc
}

// NewErrorHandler creates an error handling middleware.
func NewErrorHandler(handler ErrorHandlerFunc) *ErrorHandler {
	return &ErrorHandler{handler: handler}
}

// Name implements middleware.Middleware.
func (m *ErrorHandler) Name() string {
	return "ErrorHandler"
}

// Execute implements middleware.Middleware.
func (m *ErrorHandler) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	if err != nil && m.handler != nil {
		return m.handler(err)
	}
	return err
}
