package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docsage/docsage/config"
	pkgerrors "github.com/docsage/docsage/errors"
	"github.com/docsage/docsage/history"
)

// RedisStore implements history.Store on Redis. Each record is a JSON value
// under <prefix><id>, with a set <prefix>ids tracking live records.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration // 0 means records never expire
}

// NewRedisStore creates a Redis-backed history store.
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = &RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "docsage:history:",
		}
	}
	if err := config.ValidateRedisConfig(cfg.Addr, cfg.DB, cfg.Prefix); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisStore{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
	}, nil
}

func (s *RedisStore) recordKey(id string) string {
	return s.prefix + id
}

func (s *RedisStore) setKey() string {
	return s.prefix + "ids"
}

// Save persists the record, replacing any record with the same ID.
func (s *RedisStore) Save(ctx context.Context, rec *history.Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.ID == "" {
		return fmt.Errorf("record ID cannot be empty")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := s.client.Set(ctx, s.recordKey(rec.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	if err := s.client.SAdd(ctx, s.setKey(), rec.ID).Err(); err != nil {
		return fmt.Errorf("failed to track record ID: %w", err)
	}
	return nil
}

// Get returns the record by ID.
func (s *RedisStore) Get(ctx context.Context, id string) (*history.Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("record %s: %w", id, pkgerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	var rec history.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

// List returns up to limit records, newest first.
func (s *RedisStore) List(ctx context.Context, limit int) ([]*history.Record, error) {
	ids, err := s.client.SMembers(ctx, s.setKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list record IDs: %w", err)
	}

	records := make([]*history.Record, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.Get(ctx, s.recordKey(id)).Result()
		if err != nil {
			if err == redis.Nil {
				// Record expired; drop it from the tracking set.
				s.client.SRem(ctx, s.setKey(), id)
				continue
			}
			return nil, fmt.Errorf("failed to get record: %w", err)
		}
		var rec history.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		records = append(records, &rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Delete removes the record by ID.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	removed, err := s.client.Del(ctx, s.recordKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if err := s.client.SRem(ctx, s.setKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to untrack record ID: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("record %s: %w", id, pkgerrors.ErrNotFound)
	}
	return nil
}

// Clear removes all records.
func (s *RedisStore) Clear(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, s.setKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to list record IDs: %w", err)
	}
	if len(ids) > 0 {
		keys := make([]string, 0, len(ids))
		for _, id := range ids {
			keys = append(keys, s.recordKey(id))
		}
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete records: %w", err)
		}
	}
	if err := s.client.Del(ctx, s.setKey()).Err(); err != nil {
		return fmt.Errorf("failed to delete record set: %w", err)
	}
	return nil
}

// Count returns the number of tracked records.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	count, err := s.client.SCard(ctx, s.setKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(count), nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
