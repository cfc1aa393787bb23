package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/pricestage/internal/audit"
)

// AuditStore persists pipeline audit events.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore constructs an AuditStore backed by the provided pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

const maxAuditLimit = 1000

const (
	auditInsertSQL = `
INSERT INTO ingestion_audit_events (
    id,
    dataset,
    action,
    actor_id,
    occurred_at,
    row_count
)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING;
`

	auditListSQL = `
SELECT
    id,
    dataset,
    action,
    actor_id,
    occurred_at,
    row_count
FROM ingestion_audit_events
WHERE ($1 = '' OR dataset = $1)
ORDER BY occurred_at DESC, recorded_at DESC
LIMIT $2;
`
)

// Record inserts evt. It implements audit.Hook.
func (s *AuditStore) Record(ctx context.Context, evt audit.Event) error {
	if s.pool == nil {
		return fmt.Errorf("audit store: nil pool")
	}
	id, err := uuid.Parse(strings.TrimSpace(evt.ID))
	if err != nil {
		return fmt.Errorf("audit store: event id: %w", err)
	}
	dataset := strings.TrimSpace(evt.Dataset)
	if dataset == "" {
		return fmt.Errorf("audit store: dataset required")
	}
	var rowCount pgtype.Int4
	if rows, ok := evt.Rows(); ok {
		rowCount = pgtype.Int4{Int32: int32(rows), Valid: true}
	}
	if _, err := s.pool.Exec(ctx, auditInsertSQL, id, dataset, string(evt.Action), evt.ActorID, evt.Timestamp, rowCount); err != nil {
		return fmt.Errorf("audit store: insert: %w", err)
	}
	return nil
}

// List returns recent events, newest first. It implements audit.History.
func (s *AuditStore) List(ctx context.Context, dataset string, limit int) ([]audit.Event, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("audit store: nil pool")
	}
	if limit <= 0 {
		limit = audit.DefaultHistoryLimit
	} else if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	rows, err := s.pool.Query(ctx, auditListSQL, strings.TrimSpace(dataset), limit)
	if err != nil {
		return nil, fmt.Errorf("audit store: list: %w", err)
	}
	defer rows.Close()

	events := make([]audit.Event, 0, limit)
	for rows.Next() {
		evt, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit store: iterate: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditEvent(row rowScanner) (audit.Event, error) {
	var (
		evt      audit.Event
		id       uuid.UUID
		action   string
		rowCount pgtype.Int4
	)
	if err := row.Scan(&id, &evt.Dataset, &action, &evt.ActorID, &evt.Timestamp, &rowCount); err != nil {
		return audit.Event{}, fmt.Errorf("audit store: scan event: %w", err)
	}
	evt.ID = id.String()
	evt.Action = audit.Action(action)
	evt.Timestamp = evt.Timestamp.UTC()
	if rowCount.Valid {
		evt.Details = audit.RowCount(int(rowCount.Int32))
	}
	return evt, nil
}

var (
	_ audit.Hook    = (*AuditStore)(nil)
	_ audit.History = (*AuditStore)(nil)
)
