// Package telemetry provides semantic conventions for pricestage observability.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attribute keys for pricestage-specific telemetry.
// Following OpenTelemetry naming conventions: namespace.attribute_name

const (
	// AttrEnvironment specifies the deployment environment (dev/staging/prod) for every metric.
	AttrEnvironment = attribute.Key("environment")
	// AttrDataset identifies the pipeline dataset (zppa, merchant).
	AttrDataset = attribute.Key("dataset")
	// AttrAction records the pipeline mutation (stage, promote, rollback).
	AttrAction = attribute.Key("action")
	// AttrDirection distinguishes up and down schema migrations.
	AttrDirection = attribute.Key("migration.direction")
	// AttrResult records the outcome of an operation (success, error class, etc.).
	AttrResult = attribute.Key("result")
)

// PipelineAttributes returns attributes for pipeline action metrics.
func PipelineAttributes(environment, dataset, action string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrDataset.String(dataset),
	}
	if action != "" {
		attrs = append(attrs, AttrAction.String(action))
	}
	return attrs
}

// MigrationAttributes returns attributes for schema migration metrics.
func MigrationAttributes(environment, direction, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrDirection.String(direction),
		AttrResult.String(result),
	}
}
