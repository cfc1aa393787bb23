package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/coachpo/pricestage/internal/audit"
	"github.com/coachpo/pricestage/internal/infra/telemetry"
)

func TestKVStoreNilPool(t *testing.T) {
	store := NewKVStore(nil)
	ctx := context.Background()
	if _, _, err := store.Get(ctx, "zppa:staging"); err == nil {
		t.Fatalf("expected error when pool nil")
	}
	if err := store.Put(ctx, "zppa:staging", []byte(`{}`)); err == nil {
		t.Fatalf("expected error when pool nil")
	}
	if err := store.Delete(ctx, "zppa:staging"); err == nil {
		t.Fatalf("expected error when pool nil")
	}
	if _, err := store.NextSequence(ctx, "zppa:staging:seq", 0); err == nil {
		t.Fatalf("expected error when pool nil")
	}
}

func TestAuditStoreNilPool(t *testing.T) {
	store := NewAuditStore(nil)
	ctx := context.Background()
	evt := audit.NewEvent("zppa", audit.ActionStage, "u1", time.Now(), audit.RowCount(1))
	if err := store.Record(ctx, evt); err == nil {
		t.Fatalf("expected error when pool nil")
	}
	if _, err := store.List(ctx, "zppa", 10); err == nil {
		t.Fatalf("expected error when pool nil")
	}
}

func TestObservePoolMetricsIgnoresNilPool(t *testing.T) {
	provider, err := telemetry.NewProvider(context.Background(), telemetry.Config{})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	if err := ObservePoolMetrics(provider, nil, ""); err != nil {
		t.Fatalf("expected nil pool to be ignored, got %v", err)
	}
}
