package validator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/docsage/docsage/message"
	"github.com/docsage/docsage/middleware"
)

func testContext(input string) *middleware.Context {
	return middleware.NewContext(context.Background(), []*message.Message{
		message.NewMessage(message.RoleUser, input),
	})
}

func TestInputValidatorRejectsBadInput(t *testing.T) {
	mw := NewInputValidator(func(input string) error {
		if strings.TrimSpace(input) == "" {
			return middleware.ErrInvalidInput
		}
		return nil
	})

	handlerRan := false
	err := mw.Execute(testContext("   "), func(ctx *middleware.Context) error {
		handlerRan = true
		return nil
	})
	if !errors.Is(err, middleware.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if handlerRan {
		t.Fatal("handler should not run for invalid input")
	}
}

func TestInputValidatorPassesGoodInput(t *testing.T) {
	mw := NewInputValidator(func(string) error { return nil })

	handlerRan := false
	err := mw.Execute(testContext("valid question"), func(ctx *middleware.Context) error {
		handlerRan = true
		return nil
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !handlerRan {
		t.Fatal("handler should run for valid input")
	}
}

func TestResponseFilterTransformsResponse(t *testing.T) {
	mw := NewResponseFilter(func(msg *message.Message) error {
		msg.Content = strings.ToUpper(msg.Content)
		return nil
	})

	mctx := testContext("question")
	err := mw.Execute(mctx, func(ctx *middleware.Context) error {
		ctx.Response = message.NewMessage(message.RoleAssistant, "answer")
		return nil
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if mctx.Response.Content != "ANSWER" {
		t.Fatalf("response = %q, want ANSWER", mctx.Response.Content)
	}
}

func TestResponseFilterSkipsOnError(t *testing.T) {
	filtered := false
	mw := NewResponseFilter(func(*message.Message) error {
		filtered = true
		return nil
	})

	boom := errors.New("boom")
	err := mw.Execute(testContext("question"), func(ctx *middleware.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if filtered {
		t.Fatal("filter should not run after an error")
	}
}
