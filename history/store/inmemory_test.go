package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	pkgerrors "github.com/docsage/docsage/errors"
	"github.com/docsage/docsage/history"
)

func sampleRecord(id string, age time.Duration) *history.Record {
	return &history.Record{
		ID:         id,
		Question:   "How do refunds work?",
		Answer:     "Refunds are accepted within 30 days. [policy.md]",
		Sources:    []string{"policy.md"},
		RoundsUsed: 1,
		Confidence: 0.85,
		CreatedAt:  time.Now().Add(-age),
	}
}

func TestInMemoryStoreSaveAndGet(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	rec := sampleRecord("sess-1", 0)
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Answer != rec.Answer || got.RoundsUsed != rec.RoundsUsed {
		t.Errorf("roundtrip mismatch: %+v", got)
	}

	// Stored records must be isolated from caller mutation.
	rec.Sources[0] = "mutated"
	got2, _ := s.Get(ctx, "sess-1")
	if got2.Sources[0] != "policy.md" {
		t.Error("store must keep its own copy of the record")
	}
}

func TestInMemoryStoreSaveReplaces(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Save(ctx, sampleRecord("sess-1", 0)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	updated := sampleRecord("sess-1", 0)
	updated.Answer = "revised answer"
	if err := s.Save(ctx, updated); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if s.Count() != 1 {
		t.Errorf("count = %d, want 1 after replacing", s.Count())
	}
	got, _ := s.Get(ctx, "sess-1")
	if got.Answer != "revised answer" {
		t.Errorf("answer = %q, want the replacement", got.Answer)
	}
}

func TestInMemoryStoreValidation(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Save(ctx, nil); err == nil {
		t.Error("nil record must be rejected")
	}
	if err := s.Save(ctx, &history.Record{}); err == nil {
		t.Error("empty ID must be rejected")
	}
}

func TestInMemoryStoreListNewestFirst(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := sampleRecord(fmt.Sprintf("sess-%d", i), time.Duration(i)*time.Hour)
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	records, err := s.List(ctx, 3)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len = %d, want limit of 3", len(records))
	}
	for i := 0; i < len(records)-1; i++ {
		if records[i].CreatedAt.Before(records[i+1].CreatedAt) {
			t.Errorf("records out of order at %d: %v before %v", i, records[i].CreatedAt, records[i+1].CreatedAt)
		}
	}

	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("limit 0 must return everything, got %d", len(all))
	}
}

func TestInMemoryStoreDelete(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Save(ctx, sampleRecord("sess-1", 0)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "sess-1"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "missing"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown ID, got %v", err)
	}
}
