package middleware

import "errors"

var (
	// ErrRateLimitExceeded indicates a rate limit middleware refused the call.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidInput indicates input validation failed.
	ErrInvalidInput = errors.New("invalid input")
)
