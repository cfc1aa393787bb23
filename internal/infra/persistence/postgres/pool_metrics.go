package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/pricestage/internal/infra/telemetry"
)

// ObservePoolMetrics registers observable gauges that report pgx pool health.
// Gauges emit total, idle and acquired connection counts.
func ObservePoolMetrics(provider *telemetry.Provider, pool *pgxpool.Pool, poolName string) error {
	if pool == nil {
		return nil
	}
	normalized := strings.TrimSpace(poolName)
	if normalized == "" {
		normalized = "primary"
	}
	attrs := metric.WithAttributes(
		telemetry.AttrEnvironment.String(provider.Environment()),
		attribute.String("db_pool", normalized),
	)

	gauges := []struct {
		name        string
		description string
		read        func(*pgxpool.Stat) int32
	}{
		{"pricestage.db.pool.connections.total", "Total connections (idle + acquired + constructing)", (*pgxpool.Stat).TotalConns},
		{"pricestage.db.pool.connections.idle", "Idle connections ready for checkout", (*pgxpool.Stat).IdleConns},
		{"pricestage.db.pool.connections.acquired", "Connections currently acquired by callers", (*pgxpool.Stat).AcquiredConns},
	}

	meter := provider.Meter("postgres.pool")
	for _, g := range gauges {
		read := g.read
		if _, err := meter.Int64ObservableGauge(g.name,
			metric.WithDescription(g.description),
			metric.WithUnit("{connection}"),
			metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
				observer.Observe(int64(read(pool.Stat())), attrs)
				return nil
			}),
		); err != nil {
			return fmt.Errorf("register %s: %w", g.name, err)
		}
	}
	return nil
}
