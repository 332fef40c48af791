package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/docsage/docsage/config"
	pkgerrors "github.com/docsage/docsage/errors"
	"github.com/docsage/docsage/history"
)

// PostgresStore implements history.Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultPostgresConfig returns a configuration for a local server.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:    "localhost",
		Port:    5432,
		User:    "postgres",
		DBName:  "docsage",
		SSLMode: "disable",
	}
}

// NewPostgresStore connects to PostgreSQL and prepares the sessions table.
func NewPostgresStore(cfg *PostgresConfig) (*PostgresStore, error) {
	if cfg == nil {
		cfg = DefaultPostgresConfig()
	}
	if err := config.ValidatePostgresConfig(cfg.Host, cfg.Port, cfg.User, cfg.DBName, cfg.SSLMode); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.createTable(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS answer_sessions (
		id VARCHAR(255) PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		sources TEXT[] NOT NULL DEFAULT '{}',
		rounds_used INTEGER NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_answer_sessions_created_at ON answer_sessions(created_at);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Save persists the record, replacing any record with the same ID.
func (s *PostgresStore) Save(ctx context.Context, rec *history.Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.ID == "" {
		return fmt.Errorf("record ID cannot be empty")
	}

	query := `
	INSERT INTO answer_sessions (id, question, answer, sources, rounds_used, confidence, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		question = EXCLUDED.question,
		answer = EXCLUDED.answer,
		sources = EXCLUDED.sources,
		rounds_used = EXCLUDED.rounds_used,
		confidence = EXCLUDED.confidence
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Question,
		rec.Answer,
		pq.Array(rec.Sources),
		rec.RoundsUsed,
		rec.Confidence,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get returns the record by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*history.Record, error) {
	query := `SELECT id, question, answer, sources, rounds_used, confidence, created_at
	          FROM answer_sessions WHERE id = $1`

	rec := &history.Record{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Question, &rec.Answer, pq.Array(&rec.Sources),
		&rec.RoundsUsed, &rec.Confidence, &rec.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("record %s: %w", id, pkgerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return rec, nil
}

// List returns up to limit records, newest first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]*history.Record, error) {
	query := `SELECT id, question, answer, sources, rounds_used, confidence, created_at
	          FROM answer_sessions ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	records := make([]*history.Record, 0)
	for rows.Next() {
		rec := &history.Record{}
		if err := rows.Scan(&rec.ID, &rec.Question, &rec.Answer, pq.Array(&rec.Sources),
			&rec.RoundsUsed, &rec.Confidence, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return records, nil
}

// Delete removes the record by ID.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM answer_sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record %s: %w", id, pkgerrors.ErrNotFound)
	}
	return nil
}

// Clear removes all records.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM answer_sessions"); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM answer_sessions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// Ping checks the PostgreSQL connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the PostgreSQL connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
