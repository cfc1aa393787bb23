package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/pricestage/internal/audit"
)

const (
	meterName               = "github.com/coachpo/pricestage/pipeline"
	metricPipelineActions   = "pricestage.pipeline.actions"
	metricPipelineRows      = "pricestage.pipeline.rows"
	metricMigrationsApplied = "pricestage.migrations.runs"
)

// PipelineMetrics is an audit hook that counts pipeline actions and records
// the number of rows each action touched.
type PipelineMetrics struct {
	environment string
	actions     metric.Int64Counter
	rows        metric.Int64Histogram
}

// NewPipelineMetrics registers the pipeline instruments on the provider's meter.
func NewPipelineMetrics(provider *Provider) (*PipelineMetrics, error) {
	meter := provider.Meter(meterName)
	actions, err := meter.Int64Counter(metricPipelineActions,
		metric.WithDescription("Pipeline stage, promote and rollback actions"),
		metric.WithUnit("{action}"))
	if err != nil {
		return nil, fmt.Errorf("create %s counter: %w", metricPipelineActions, err)
	}
	rows, err := meter.Int64Histogram(metricPipelineRows,
		metric.WithDescription("Rows carried by a pipeline action"),
		metric.WithUnit("{row}"))
	if err != nil {
		return nil, fmt.Errorf("create %s histogram: %w", metricPipelineRows, err)
	}
	return &PipelineMetrics{
		environment: provider.Environment(),
		actions:     actions,
		rows:        rows,
	}, nil
}

// Record implements audit.Hook.
func (m *PipelineMetrics) Record(ctx context.Context, evt audit.Event) error {
	attrs := metric.WithAttributes(PipelineAttributes(m.environment, evt.Dataset, string(evt.Action))...)
	m.actions.Add(ctx, 1, attrs)
	if rows, ok := evt.Rows(); ok {
		m.rows.Record(ctx, int64(rows), attrs)
	}
	return nil
}

// MigrationCounter counts schema migration runs by direction and result.
type MigrationCounter struct {
	environment string
	runs        metric.Int64Counter
}

// NewMigrationCounter registers the migration counter.
func NewMigrationCounter(provider *Provider) (*MigrationCounter, error) {
	runs, err := provider.Meter(meterName).Int64Counter(metricMigrationsApplied,
		metric.WithDescription("Schema migration runs"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, fmt.Errorf("create %s counter: %w", metricMigrationsApplied, err)
	}
	return &MigrationCounter{environment: provider.Environment(), runs: runs}, nil
}

// Observe records one migration run.
func (c *MigrationCounter) Observe(ctx context.Context, direction string, err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	c.runs.Add(ctx, 1, metric.WithAttributes(MigrationAttributes(c.environment, direction, result)...))
}
