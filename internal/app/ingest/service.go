// Package ingest orchestrates the stage, promote and rollback lifecycle of a
// price dataset.
package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/pricestage/errs"
	"github.com/coachpo/pricestage/internal/audit"
	"github.com/coachpo/pricestage/internal/domain/diff"
	"github.com/coachpo/pricestage/internal/domain/pricing"
	"github.com/coachpo/pricestage/internal/domain/tabular"
	"github.com/coachpo/pricestage/internal/domain/validate"
	"github.com/coachpo/pricestage/internal/snapshot"
)

// Guard compares staged records with production and reports price variances.
type Guard[R any] func(production, next []R) []pricing.PriceVariance

// Kind describes one record kind handled by a pipeline.
type Kind[R any] struct {
	Dataset  string
	Validate func(rows []tabular.Row) validate.Report[R]
	KeyOf    func(R) string
	// Guard is optional; nil disables price-variance evaluation.
	Guard Guard[R]
	// GuardFor rebuilds Guard for a threshold given via WithPriceGuardThreshold.
	// Kinds without a threshold-based guard leave it nil.
	GuardFor func(threshold decimal.Decimal) Guard[R]
}

func (k Kind[R]) validateKind() error {
	if strings.TrimSpace(k.Dataset) == "" {
		return errs.New("ingest", errs.CodeInvalid, errs.WithMessage("dataset name required"))
	}
	if k.Validate == nil || k.KeyOf == nil {
		return errs.New("ingest", errs.CodeInvalid, errs.WithDataset(k.Dataset), errs.WithMessage("validator and key function required"))
	}
	return nil
}

// StageResult reports the outcome of a stage attempt. Validation failures are
// returned here with Success false, never as an error.
type StageResult[R any] struct {
	Success          bool                    `json:"success"`
	Issues           []validate.Issue        `json:"issues"`
	Snapshot         snapshot.Snapshot[R]    `json:"snapshot"`
	Diff             diff.Result[R]          `json:"diff"`
	PriceAlerts      []pricing.PriceVariance `json:"priceAlerts,omitempty"`
	RequiresOverride bool                    `json:"requiresOverride"`
}

type settings struct {
	hook           audit.Hook
	logger         *log.Logger
	clock          func() time.Time
	requireAck     bool
	guardThreshold decimal.Decimal
	thresholdSet   bool
}

// Option configures a Service.
type Option func(*settings)

// WithAuditHook installs the hook notified on every stage, promote and rollback.
func WithAuditHook(hook audit.Hook) Option {
	return func(s *settings) {
		s.hook = hook
	}
}

// WithLogger overrides the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for snapshot and audit timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRequireOverrideAck makes Promote refuse staged data that breached the
// price guard unless the caller acknowledges the override.
func WithRequireOverrideAck() Option {
	return func(s *settings) {
		s.requireAck = true
	}
}

// WithPriceGuardThreshold sets the relative price change above which records
// are flagged. New rejects it for kinds without GuardFor.
func WithPriceGuardThreshold(threshold decimal.Decimal) Option {
	return func(s *settings) {
		s.guardThreshold = threshold
		s.thresholdSet = true
	}
}

func resolve(opts []Option) settings {
	cfg := settings{
		logger:         log.New(os.Stdout, "ingest ", log.LstdFlags|log.Lmicroseconds),
		clock:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

type promoteSettings struct {
	expectedVersion uint64
	checkVersion    bool
	acknowledged    bool
}

// PromoteOption configures a single Promote call.
type PromoteOption func(*promoteSettings)

// WithExpectedStaging rejects the promote when staging no longer holds the
// given snapshot version.
func WithExpectedStaging(version uint64) PromoteOption {
	return func(p *promoteSettings) {
		p.expectedVersion = version
		p.checkVersion = true
	}
}

// WithOverrideAcknowledged confirms the caller reviewed the price alerts of
// the staged snapshot.
func WithOverrideAcknowledged() PromoteOption {
	return func(p *promoteSettings) {
		p.acknowledged = true
	}
}

// Service runs one pipeline over three snapshot slots. Mutations are
// serialised; reads only rely on the stores' own locking.
type Service[R any] struct {
	mu     sync.Mutex
	kind   Kind[R]
	slots  snapshot.Slots[R]
	hook   audit.Hook
	logger *log.Logger
	now    func() time.Time

	requireAck bool
}

// New builds a service for kind. Zero slots default to process-lifetime memory stores.
func New[R any](kind Kind[R], slots snapshot.Slots[R], opts ...Option) (*Service[R], error) {
	if err := kind.validateKind(); err != nil {
		return nil, err
	}
	if slots.Staging == nil && slots.Production == nil && slots.Backup == nil {
		slots = snapshot.NewMemorySlots[R]()
	}
	if err := slots.Validate(); err != nil {
		return nil, err
	}
	cfg := resolve(opts)
	if cfg.thresholdSet {
		if kind.GuardFor == nil {
			return nil, errs.New("ingest", errs.CodeInvalid, errs.WithDataset(kind.Dataset),
				errs.WithMessage("price guard threshold given for a kind without a price guard"))
		}
		if !cfg.guardThreshold.IsPositive() {
			return nil, errs.New("ingest", errs.CodeInvalid, errs.WithDataset(kind.Dataset),
				errs.WithMessage("price guard threshold must be >0"))
		}
		kind.Guard = kind.GuardFor(cfg.guardThreshold)
	}
	return &Service[R]{
		kind:       kind,
		slots:      slots,
		hook:       cfg.hook,
		logger:     cfg.logger,
		now:        cfg.clock,
		requireAck: cfg.requireAck,
	}, nil
}

// Dataset returns the dataset name used in audit events.
func (s *Service[R]) Dataset() string {
	return s.kind.Dataset
}

// StageCSV parses and validates content and, when it is valid, replaces the
// staging snapshot. An invalid file leaves staging untouched.
func (s *Service[R]) StageCSV(ctx context.Context, content, actorID string) (StageResult[R], error) {
	report := s.kind.Validate(tabular.Parse(content))
	if !report.Valid() {
		return StageResult[R]{Success: false, Issues: report.Issues}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	production, err := s.readData(ctx, s.slots.Production, "read production")
	if err != nil {
		return StageResult[R]{}, err
	}
	alerts := s.evaluate(production, report.Data)

	staged, err := s.slots.Staging.Write(ctx, snapshot.Snapshot[R]{
		Data:             report.Data,
		StagedAt:         s.now().UTC(),
		ActorID:          actorID,
		RequiresOverride: len(alerts) > 0,
	})
	if err != nil {
		return StageResult[R]{}, s.wrap("write staging", err)
	}
	s.emit(ctx, audit.ActionStage, actorID, len(staged.Data))
	s.logger.Printf("%s: staged %d rows version=%d actor=%s alerts=%d", s.kind.Dataset, len(staged.Data), staged.Version, actorID, len(alerts))

	return StageResult[R]{
		Success:          true,
		Issues:           []validate.Issue{},
		Snapshot:         staged,
		Diff:             diff.ByKey(production, staged.Data, s.kind.KeyOf),
		PriceAlerts:      alerts,
		RequiresOverride: len(alerts) > 0,
	}, nil
}

// DiffWithProduction compares next with production. A nil next falls back to
// the staged data, or to nothing when staging is empty. No slot is modified.
func (s *Service[R]) DiffWithProduction(ctx context.Context, next []R) (diff.Result[R], error) {
	production, err := s.readData(ctx, s.slots.Production, "read production")
	if err != nil {
		return diff.Result[R]{}, err
	}
	if next == nil {
		next, err = s.readData(ctx, s.slots.Staging, "read staging")
		if err != nil {
			return diff.Result[R]{}, err
		}
	}
	return diff.ByKey(production, next, s.kind.KeyOf), nil
}

// EvaluatePriceGuards reports variances of next against production. Kinds
// without a guard always report none.
func (s *Service[R]) EvaluatePriceGuards(ctx context.Context, next []R) ([]pricing.PriceVariance, error) {
	if s.kind.Guard == nil {
		return []pricing.PriceVariance{}, nil
	}
	production, err := s.readData(ctx, s.slots.Production, "read production")
	if err != nil {
		return nil, err
	}
	return s.evaluate(production, next), nil
}

// Promote makes the staged snapshot live. The previous production snapshot is
// copied to backup first and staging is cleared only once production is written.
func (s *Service[R]) Promote(ctx context.Context, actorID string, opts ...PromoteOption) (snapshot.Snapshot[R], error) {
	var ps promoteSettings
	for _, opt := range opts {
		if opt != nil {
			opt(&ps)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged, ok, err := s.slots.Staging.Read(ctx)
	if err != nil {
		return snapshot.Snapshot[R]{}, s.wrap("read staging", err)
	}
	if !ok {
		return snapshot.Snapshot[R]{}, errs.New("ingest/promote", errs.CodePrecondition,
			errs.WithDataset(s.kind.Dataset),
			errs.WithCanonicalCode(errs.CanonicalNothingToPromote),
			errs.WithMessage("nothing to promote"),
			errs.WithRemediation("stage a valid file before promoting"))
	}
	if ps.checkVersion && staged.Version != ps.expectedVersion {
		return snapshot.Snapshot[R]{}, errs.New("ingest/promote", errs.CodeConflict,
			errs.WithDataset(s.kind.Dataset),
			errs.WithCanonicalCode(errs.CanonicalStaleStaging),
			errs.WithMessage("staging changed since it was reviewed"),
			errs.WithField("expected_version", strconv.FormatUint(ps.expectedVersion, 10)),
			errs.WithField("staged_version", strconv.FormatUint(staged.Version, 10)),
			errs.WithRemediation("review the current diff and retry"))
	}
	if s.requireAck && staged.RequiresOverride && !ps.acknowledged {
		return snapshot.Snapshot[R]{}, errs.New("ingest/promote", errs.CodePrecondition,
			errs.WithDataset(s.kind.Dataset),
			errs.WithCanonicalCode(errs.CanonicalOverrideRequired),
			errs.WithMessage("staged prices breach the variance guard"),
			errs.WithRemediation("acknowledge the price alerts to promote"))
	}

	current, hasCurrent, err := s.slots.Production.Read(ctx)
	if err != nil {
		return snapshot.Snapshot[R]{}, s.wrap("read production", err)
	}
	if hasCurrent {
		if _, err := s.slots.Backup.Write(ctx, current); err != nil {
			return snapshot.Snapshot[R]{}, s.wrap("write backup", err)
		}
	}

	promoted, err := s.slots.Production.Write(ctx, snapshot.Snapshot[R]{
		Data:     staged.Data,
		StagedAt: s.now().UTC(),
		ActorID:  actorID,
	})
	if err != nil {
		return snapshot.Snapshot[R]{}, s.wrap("write production", err)
	}
	if err := s.slots.Staging.Clear(ctx); err != nil {
		return snapshot.Snapshot[R]{}, s.wrap("clear staging", err)
	}

	s.emit(ctx, audit.ActionPromote, actorID, len(promoted.Data))
	s.logger.Printf("%s: promoted %d rows version=%d actor=%s", s.kind.Dataset, len(promoted.Data), promoted.Version, actorID)
	return promoted, nil
}

// Rollback restores production from backup. Backup is left as is, so calling
// it twice yields the same production data.
func (s *Service[R]) Rollback(ctx context.Context, actorID string) (snapshot.Snapshot[R], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup, ok, err := s.slots.Backup.Read(ctx)
	if err != nil {
		return snapshot.Snapshot[R]{}, s.wrap("read backup", err)
	}
	if !ok {
		return snapshot.Snapshot[R]{}, errs.New("ingest/rollback", errs.CodePrecondition,
			errs.WithDataset(s.kind.Dataset),
			errs.WithCanonicalCode(errs.CanonicalNothingToRollBack),
			errs.WithMessage("nothing to roll back to"),
			errs.WithRemediation("a rollback needs at least two promotes"))
	}

	restored, err := s.slots.Production.Write(ctx, snapshot.Snapshot[R]{
		Data:     backup.Data,
		StagedAt: backup.StagedAt,
		ActorID:  backup.ActorID,
	})
	if err != nil {
		return snapshot.Snapshot[R]{}, s.wrap("write production", err)
	}

	s.emit(ctx, audit.ActionRollback, actorID, len(restored.Data))
	s.logger.Printf("%s: rolled back to %d rows staged by %s, actor=%s", s.kind.Dataset, len(restored.Data), restored.ActorID, actorID)
	return restored, nil
}

// GetProduction returns the live snapshot and false when none exists.
func (s *Service[R]) GetProduction(ctx context.Context) (snapshot.Snapshot[R], bool, error) {
	return s.slots.Production.Read(ctx)
}

// GetStaging returns the staged snapshot and false when none exists.
func (s *Service[R]) GetStaging(ctx context.Context) (snapshot.Snapshot[R], bool, error) {
	return s.slots.Staging.Read(ctx)
}

// GetBackup returns the backup snapshot and false when none exists.
func (s *Service[R]) GetBackup(ctx context.Context) (snapshot.Snapshot[R], bool, error) {
	return s.slots.Backup.Read(ctx)
}

// Get reads the snapshot held by slot and reports false when it is empty.
func (s *Service[R]) Get(ctx context.Context, slot snapshot.Slot) (snapshot.Snapshot[R], bool, error) {
	store, err := s.slots.Get(slot)
	if err != nil {
		return snapshot.Snapshot[R]{}, false, err
	}
	return store.Read(ctx)
}

func (s *Service[R]) readData(ctx context.Context, store snapshot.Store[R], action string) ([]R, error) {
	snap, ok, err := store.Read(ctx)
	if err != nil {
		return nil, s.wrap(action, err)
	}
	if !ok {
		return []R{}, nil
	}
	return snap.Data, nil
}

func (s *Service[R]) evaluate(production, next []R) []pricing.PriceVariance {
	if s.kind.Guard == nil {
		return nil
	}
	return s.kind.Guard(production, next)
}

func (s *Service[R]) emit(ctx context.Context, action audit.Action, actorID string, rows int) {
	evt := audit.NewEvent(s.kind.Dataset, action, actorID, s.now(), audit.RowCount(rows))
	audit.Emit(ctx, s.hook, evt, s.logger)
}

func (s *Service[R]) wrap(action string, err error) error {
	return fmt.Errorf("ingest %s: %s: %w", s.kind.Dataset, action, err)
}
