package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/docsage/docsage/message"
	"github.com/docsage/docsage/middleware"
)

func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func testContext(input string) *middleware.Context {
	return middleware.NewContext(context.Background(), []*message.Message{
		message.NewMessage(message.RoleUser, input),
	})
}

func TestRequestLoggerLogsInput(t *testing.T) {
	var buf bytes.Buffer
	mw := NewRequestLogger(captureLogger(&buf))

	err := mw.Execute(testContext("what is the refund window?"), func(ctx *middleware.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(buf.String(), "refund window") {
		t.Fatalf("log missing input: %s", buf.String())
	}
}

func TestResponseLoggerLogsOutput(t *testing.T) {
	var buf bytes.Buffer
	mw := NewResponseLogger(captureLogger(&buf))

	mctx := testContext("question")
	err := mw.Execute(mctx, func(ctx *middleware.Context) error {
		ctx.Response = message.NewMessage(message.RoleAssistant, "ten business days")
		return nil
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(buf.String(), "ten business days") {
		t.Fatalf("log missing output: %s", buf.String())
	}
}

func TestResponseLoggerLogsError(t *testing.T) {
	var buf bytes.Buffer
	mw := NewResponseLogger(captureLogger(&buf))

	boom := errors.New("model unavailable")
	err := mw.Execute(testContext("question"), func(ctx *middleware.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if !strings.Contains(buf.String(), "model unavailable") {
		t.Fatalf("log missing error: %s", buf.String())
	}
}
