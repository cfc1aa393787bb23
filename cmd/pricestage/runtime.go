package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/coachpo/pricestage/internal/app/ingest"
	"github.com/coachpo/pricestage/internal/audit"
	"github.com/coachpo/pricestage/internal/domain/pricing"
	"github.com/coachpo/pricestage/internal/infra/config"
	"github.com/coachpo/pricestage/internal/infra/persistence"
	"github.com/coachpo/pricestage/internal/infra/persistence/filekv"
	"github.com/coachpo/pricestage/internal/infra/persistence/migrations"
	"github.com/coachpo/pricestage/internal/infra/persistence/postgres"
	"github.com/coachpo/pricestage/internal/infra/telemetry"
	"github.com/coachpo/pricestage/internal/snapshot"
)

const telemetryShutdownTimeout = 5 * time.Second

// runtime holds both pipelines and everything they were built over.
type runtime struct {
	logger    *log.Logger
	benchmark *ingest.BenchmarkService
	merchant  *ingest.MerchantService
	history   audit.History
	telemetry *telemetry.Provider
	closers   []func()
}

// storage is the per-backend part of the runtime.
type storage struct {
	benchmark snapshot.Slots[pricing.BenchmarkRecord]
	merchant  snapshot.Slots[pricing.MerchantRecord]
	hook      audit.Hook
	history   audit.History
	close     func()
}

func newRuntime(ctx context.Context, cfg config.AppConfig, logger *log.Logger) (*runtime, error) {
	provider, err := initTelemetry(ctx, logger, cfg.Environment, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	rt := &runtime{logger: logger, telemetry: provider}

	store, err := openStorage(ctx, cfg, provider, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if store.close != nil {
		rt.closers = append(rt.closers, store.close)
	}
	rt.history = store.history

	metrics, err := telemetry.NewPipelineMetrics(provider)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("pipeline metrics: %w", err)
	}
	hook := audit.Multi(logger, audit.LogHook(logger), store.hook, metrics)

	common := []ingest.Option{
		ingest.WithAuditHook(hook),
		ingest.WithLogger(logger),
	}

	benchmarkKind := ingest.BenchmarkKind()
	benchmarkKind.Dataset = cfg.Pipelines.Benchmark.Dataset
	rt.benchmark, err = ingest.New(benchmarkKind, store.benchmark, common...)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("benchmark pipeline: %w", err)
	}

	threshold, err := cfg.Pipelines.Merchant.GuardThreshold()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("merchant pipeline: %w", err)
	}
	merchantOpts := append([]ingest.Option{ingest.WithPriceGuardThreshold(threshold)}, common...)
	if cfg.Pipelines.Merchant.RequireOverrideAck {
		merchantOpts = append(merchantOpts, ingest.WithRequireOverrideAck())
	}
	merchantKind := ingest.MerchantKind(pricing.DefaultPriceGuardThreshold)
	merchantKind.Dataset = cfg.Pipelines.Merchant.Dataset
	rt.merchant, err = ingest.New(merchantKind, store.merchant, merchantOpts...)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("merchant pipeline: %w", err)
	}

	return rt, nil
}

func openStorage(ctx context.Context, cfg config.AppConfig, provider *telemetry.Provider, logger *log.Logger) (storage, error) {
	benchmarkNS := cfg.Pipelines.Benchmark.Dataset
	merchantNS := cfg.Pipelines.Merchant.Dataset

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		logger.Printf("storage backend: memory (snapshots are lost on exit)")
		recorder := audit.NewRecorder()
		return storage{
			benchmark: snapshot.NewMemorySlots[pricing.BenchmarkRecord](),
			merchant:  snapshot.NewMemorySlots[pricing.MerchantRecord](),
			hook:      recorder,
			history:   recorder,
		}, nil

	case config.BackendFile:
		backend, err := filekv.Open(cfg.Storage.Directory)
		if err != nil {
			return storage{}, err
		}
		auditLog, err := filekv.NewAuditLog(cfg.Storage.Directory, logger)
		if err != nil {
			return storage{}, err
		}
		logger.Printf("storage backend: file (dir=%s)", backend.Dir())
		return storage{
			benchmark: snapshot.NewKVSlots[pricing.BenchmarkRecord](backend, benchmarkNS, logger),
			merchant:  snapshot.NewKVSlots[pricing.MerchantRecord](backend, merchantNS, logger),
			hook:      auditLog,
			history:   auditLog,
		}, nil

	case config.BackendPostgres:
		if cfg.Database.RunMigrations {
			counter, err := telemetry.NewMigrationCounter(provider)
			if err != nil {
				return storage{}, fmt.Errorf("migration metrics: %w", err)
			}
			if err := migrations.Apply(ctx, cfg.Database.DSN, "", migrations.WithLogger(logger), migrations.WithObserver(counter)); err != nil {
				return storage{}, fmt.Errorf("apply migrations: %w", err)
			}
		}
		pool, err := persistence.Connect(ctx, cfg.Database, logger)
		if err != nil {
			return storage{}, err
		}
		if err := postgres.ObservePoolMetrics(provider, pool, "primary"); err != nil {
			logger.Printf("pool metrics unavailable: %v", err)
		}
		store := postgres.New(pool)
		logger.Printf("storage backend: postgres")
		return storage{
			benchmark: snapshot.NewKVSlots[pricing.BenchmarkRecord](store.Snapshots(), benchmarkNS, logger),
			merchant:  snapshot.NewKVSlots[pricing.MerchantRecord](store.Snapshots(), merchantNS, logger),
			hook:      store.Audit(),
			history:   store.Audit(),
			close:     store.Close,
		}, nil
	}
	return storage{}, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
}

func initTelemetry(ctx context.Context, logger *log.Logger, env config.Environment, cfg config.TelemetryConfig) (*telemetry.Provider, error) {
	telemetryCfg := telemetry.DefaultConfig()
	if cfg.OTLPEndpoint != "" {
		telemetryCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}
	if cfg.ServiceName != "" {
		telemetryCfg.ServiceName = cfg.ServiceName
	}
	telemetryCfg.Environment = string(env)
	telemetryCfg.OTLPInsecure = cfg.OTLPInsecure
	telemetryCfg.Enabled = cfg.Enabled

	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}

	if telemetryCfg.Enabled {
		logger.Printf("telemetry initialized: endpoint=%s, service=%s", telemetryCfg.OTLPEndpoint, telemetryCfg.ServiceName)
	}
	return provider, nil
}

// Close releases storage and flushes telemetry.
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
	if r.telemetry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := r.telemetry.Shutdown(ctx); err != nil {
		r.logger.Printf("telemetry shutdown: %v", err)
	}
}
