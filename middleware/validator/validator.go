// Package validator checks prompts before they reach the model and filters
// responses on the way back.
package validator

import (
	"github.com/docsage/docsage/message"
	"github.com/docsage/docsage/middleware"
)

// ValidatorFunc validates the user input of a model call.
type ValidatorFunc func(string) error

// FilterFunc transforms or rejects a model response.
type FilterFunc func(*message.Message) error

// InputValidator rejects calls whose user input fails validation.
type InputValidator struct {
	validator ValidatorFunc
}

// NewInputValidator creates an input validation middleware.
func NewInputValidator(validator ValidatorFunc) *InputValidator {
	return &InputValidator{validator: validator}
}

// Name implements middleware.Middleware.
func (m *InputValidator) Name() string {
	return "InputValidator"
}

// Execute implements middleware.Middleware.
func (m *InputValidator) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if m.validator != nil {
		if err := m.validator(ctx.Input()); err != nil {
			return err
		}
	}
	return next(ctx)
}

// ResponseFilter post-processes the model response.
type ResponseFilter struct {
	filter FilterFunc
}

// NewResponseFilter creates a response filtering middleware.
func NewResponseFilter(filter FilterFunc) *ResponseFilter {
	return &ResponseFilter{filter: filter}
}

// Name implements middleware.Middleware.
func (m *ResponseFilter) Name() string {
	return "ResponseFilter"
}

// Execute implements middleware.Middleware.
func (m *ResponseFilter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	if err != nil {
		return err
	}
	if ctx.Response != nil && m.filter != nil {
		return m.filter(ctx.Response)
	}
	return nil
}
