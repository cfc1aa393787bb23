package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/pricestage/internal/infra/persistence"
)

// Store exposes PostgreSQL-backed snapshot and audit repositories.
type Store struct {
	*persistence.Store
}

// New constructs a PostgreSQL persistence store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{Store: persistence.NewStore(pool)}
}

// Snapshots returns the key-value backend for snapshot slots.
func (s *Store) Snapshots() *KVStore {
	return NewKVStore(s.Pool())
}

// Audit returns the audit event repository.
func (s *Store) Audit() *AuditStore {
	return NewAuditStore(s.Pool())
}
