// Package persistence exposes shared wiring for database-backed stores.
package persistence

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/pricestage/errs"
	"github.com/coachpo/pricestage/internal/infra/config"
)

// Store coordinates database-backed repositories. Concrete implementations live
// in subpackages (e.g. postgres).
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store backed by the provided pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pgx pool for repository implementations.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// PoolConfig translates database settings into a pgxpool configuration.
func PoolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	return poolCfg, nil
}

// Connect opens a pool and pings it, retrying with exponential backoff until
// cfg.ConnectTimeout elapses.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *log.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = 5 * time.Second

	for attempt := 1; ; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		if logger != nil {
			logger.Printf("database connect attempt %d failed: %v", attempt, err)
		}
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = backoffCfg.MaxInterval
		}
		select {
		case <-ctx.Done():
			return nil, errs.New("persistence/connect", errs.CodeUnavailable,
				errs.WithMessage(fmt.Sprintf("database unreachable after %d attempt(s)", attempt)),
				errs.WithCause(err))
		case <-time.After(sleep):
		}
	}
}
