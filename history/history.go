package history

import (
	"context"
	"time"
)

// Record is one archived answering session: the question asked, the answer
// produced, and how the session got there.
type Record struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Sources    []string  `json:"sources"`
	RoundsUsed int       `json:"rounds_used"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cloned := *r
	if r.Sources != nil {
		cloned.Sources = make([]string, len(r.Sources))
		copy(cloned.Sources, r.Sources)
	}
	return &cloned
}

// Store persists completed sessions. Implementations must be safe for
// concurrent use; the engine archives from whatever goroutine ran the
// session.
type Store interface {
	// Save persists the record, replacing any record with the same ID.
	Save(ctx context.Context, rec *Record) error
	// Get returns the record by ID, or errors.ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)
	// List returns up to limit records, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*Record, error)
	// Delete removes the record by ID, or errors.ErrNotFound.
	Delete(ctx context.Context, id string) error
}
