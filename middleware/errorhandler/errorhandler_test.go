package errorhandler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/docsage/docsage/middleware"
)

func TestErrorHandlerWrapsError(t *testing.T) {
	mw := NewErrorHandler(func(err error) error {
		return fmt.Errorf("model call: %w", err)
	})

	boom := errors.New("boom")
	err := mw.Execute(middleware.NewContext(context.Background(), nil), func(*middleware.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if err.Error() != "model call: boom" {
		t.Fatalf("err = %q", err.Error())
	}
}

func TestErrorHandlerCanSwallowError(t *testing.T) {
	mw := NewErrorHandler(func(error) error { return nil })

	err := mw.Execute(middleware.NewContext(context.Background(), nil), func(*middleware.Context) error {
		return errors.New("ignored")
	})
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
}

func TestErrorHandlerPassesSuccess(t *testing.T) {
	called := false
	mw := NewErrorHandler(func(error) error {
		called = true
		return nil
	})

	err := mw.Execute(middleware.NewContext(context.Background(), nil), func(*middleware.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if called {
		t.Fatal("handler should not run on success")
	}
}
