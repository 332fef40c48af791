package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransientWrapping(t *testing.T) {
	base := errors.New("connection reset")
	err := Transient(base)

	if !IsTransient(err) {
		t.Fatal("expected wrapped error to be transient")
	}
	if !errors.Is(err, base) {
		t.Fatal("expected Unwrap to reach the base error")
	}

	wrapped := fmt.Errorf("call failed: %w", err)
	if !IsTransient(wrapped) {
		t.Fatal("expected transient marker to survive further wrapping")
	}
}

func TestTransientNil(t *testing.T) {
	if Transient(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
	if IsTransient(nil) {
		t.Fatal("nil is not transient")
	}
	if IsTransient(errors.New("plain")) {
		t.Fatal("plain errors are not transient")
	}
}
