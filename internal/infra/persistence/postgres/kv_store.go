package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/pricestage/internal/snapshot"
)

// KVStore persists snapshot payloads in the snapshot_kv table.
type KVStore struct {
	pool *pgxpool.Pool
}

// NewKVStore constructs a KVStore backed by the provided pool.
func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool}
}

const (
	kvGetSQL = `
SELECT payload
FROM snapshot_kv
WHERE key = $1;
`

	kvPutSQL = `
INSERT INTO snapshot_kv (key, payload, updated_at)
VALUES ($1, $2::jsonb, NOW())
ON CONFLICT (key) DO UPDATE
SET payload = EXCLUDED.payload,
    updated_at = EXCLUDED.updated_at;
`

	kvDeleteSQL = `
DELETE FROM snapshot_kv
WHERE key = $1;
`

	kvNextSequenceSQL = `
INSERT INTO snapshot_seq (key, value, updated_at)
VALUES ($1, $2 + 1, NOW())
ON CONFLICT (key) DO UPDATE
SET value = GREATEST(snapshot_seq.value, EXCLUDED.value - 1) + 1,
    updated_at = EXCLUDED.updated_at
RETURNING value;
`
)

// Get returns the payload stored under key.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.pool == nil {
		return nil, false, fmt.Errorf("snapshot kv store: nil pool")
	}
	var payload []byte
	err := s.pool.QueryRow(ctx, kvGetSQL, strings.TrimSpace(key)).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("snapshot kv store: get %s: %w", key, err)
	}
	return payload, true, nil
}

// Put upserts the payload under key.
func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	if s.pool == nil {
		return fmt.Errorf("snapshot kv store: nil pool")
	}
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return fmt.Errorf("snapshot kv store: key required")
	}
	if _, err := s.pool.Exec(ctx, kvPutSQL, trimmed, string(value)); err != nil {
		return fmt.Errorf("snapshot kv store: put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if s.pool == nil {
		return fmt.Errorf("snapshot kv store: nil pool")
	}
	if _, err := s.pool.Exec(ctx, kvDeleteSQL, strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("snapshot kv store: delete %s: %w", key, err)
	}
	return nil
}

// NextSequence atomically advances the counter under key past floor. It
// implements snapshot.Sequencer, so concurrent writers never share a version.
func (s *KVStore) NextSequence(ctx context.Context, key string, floor uint64) (uint64, error) {
	if s.pool == nil {
		return 0, fmt.Errorf("snapshot kv store: nil pool")
	}
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return 0, fmt.Errorf("snapshot kv store: key required")
	}
	if floor > math.MaxInt64-1 {
		return 0, fmt.Errorf("snapshot kv store: sequence floor %d out of range", floor)
	}
	var next int64
	if err := s.pool.QueryRow(ctx, kvNextSequenceSQL, trimmed, int64(floor)).Scan(&next); err != nil {
		return 0, fmt.Errorf("snapshot kv store: sequence %s: %w", key, err)
	}
	return uint64(next), nil
}

var (
	_ snapshot.Backend   = (*KVStore)(nil)
	_ snapshot.Sequencer = (*KVStore)(nil)
)
