// Package tracker exposes a pipeline as an observable asynchronous state
// machine for UI and API layers.
package tracker

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/coachpo/pricestage/errs"
	"github.com/coachpo/pricestage/internal/app/ingest"
	"github.com/coachpo/pricestage/internal/domain/diff"
	"github.com/coachpo/pricestage/internal/domain/pricing"
	"github.com/coachpo/pricestage/internal/domain/validate"
	"github.com/coachpo/pricestage/internal/snapshot"
)

// Phase is the lifecycle position of a tracked pipeline.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseValidating  Phase = "validating"
	PhaseStaged      Phase = "staged"
	PhasePromoting   Phase = "promoting"
	PhaseRollingBack Phase = "rollingBack"
	PhaseError       Phase = "error"
)

// Busy reports whether an operation is in flight.
func (p Phase) Busy() bool {
	return p == PhaseValidating || p == PhasePromoting || p == PhaseRollingBack
}

// Pipeline is the subset of the ingestion service the tracker drives.
type Pipeline[R any] interface {
	StageCSV(ctx context.Context, content, actorID string) (ingest.StageResult[R], error)
	Promote(ctx context.Context, actorID string, opts ...ingest.PromoteOption) (snapshot.Snapshot[R], error)
	Rollback(ctx context.Context, actorID string) (snapshot.Snapshot[R], error)
	DiffWithProduction(ctx context.Context, next []R) (diff.Result[R], error)
	EvaluatePriceGuards(ctx context.Context, next []R) ([]pricing.PriceVariance, error)
	GetStaging(ctx context.Context) (snapshot.Snapshot[R], bool, error)
}

// State is the observable payload. Snapshot holds the staged snapshot while
// staged and the production snapshot after a promote or rollback.
type State[R any] struct {
	Phase            Phase
	Issues           []validate.Issue
	Snapshot         *snapshot.Snapshot[R]
	Diff             *diff.Result[R]
	PriceAlerts      []pricing.PriceVariance
	RequiresOverride bool
	Err              error
}

// Tracker runs pipeline operations in the background and publishes every
// state transition to subscribers.
type Tracker[R any] struct {
	pipeline Pipeline[R]

	mu     sync.Mutex
	state  State[R]
	subs   map[int]chan State[R]
	nextID int

	wg conc.WaitGroup
}

// New creates an idle tracker for pipeline.
func New[R any](pipeline Pipeline[R]) *Tracker[R] {
	return &Tracker[R]{
		pipeline: pipeline,
		state:    State[R]{Phase: PhaseIdle},
		subs:     make(map[int]chan State[R]),
	}
}

// State returns the current state.
func (t *Tracker[R]) State() State[R] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Subscribe returns a channel receiving every subsequent state. Slow readers
// only see the latest state. The returned func stops the subscription.
func (t *Tracker[R]) Subscribe(buffer int) (<-chan State[R], func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan State[R], buffer)
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			close(ch)
		})
	}
}

// Stage validates and stages content in the background.
func (t *Tracker[R]) Stage(ctx context.Context, content, actorID string) error {
	if err := t.begin(PhaseValidating); err != nil {
		return err
	}
	t.run(func() State[R] {
		res, err := t.pipeline.StageCSV(ctx, content, actorID)
		if err != nil {
			return State[R]{Phase: PhaseError, Err: err}
		}
		if !res.Success {
			return State[R]{Phase: PhaseError, Issues: res.Issues}
		}
		snap := res.Snapshot
		d := res.Diff
		return State[R]{
			Phase:            PhaseStaged,
			Issues:           res.Issues,
			Snapshot:         &snap,
			Diff:             &d,
			PriceAlerts:      res.PriceAlerts,
			RequiresOverride: res.RequiresOverride,
		}
	})
	return nil
}

// Promote promotes the staged snapshot in the background.
func (t *Tracker[R]) Promote(ctx context.Context, actorID string, opts ...ingest.PromoteOption) error {
	if err := t.begin(PhasePromoting); err != nil {
		return err
	}
	t.run(func() State[R] {
		snap, err := t.pipeline.Promote(ctx, actorID, opts...)
		if err != nil {
			return State[R]{Phase: PhaseError, Err: err}
		}
		return State[R]{Phase: PhaseIdle, Snapshot: &snap}
	})
	return nil
}

// Rollback restores the backup in the background.
func (t *Tracker[R]) Rollback(ctx context.Context, actorID string) error {
	if err := t.begin(PhaseRollingBack); err != nil {
		return err
	}
	t.run(func() State[R] {
		snap, err := t.pipeline.Rollback(ctx, actorID)
		if err != nil {
			return State[R]{Phase: PhaseError, Err: err}
		}
		return State[R]{Phase: PhaseIdle, Snapshot: &snap}
	})
	return nil
}

// RefreshDiff recomputes the diff and price alerts of the current staging
// snapshot against production without changing the phase.
func (t *Tracker[R]) RefreshDiff(ctx context.Context) error {
	staged, ok, err := t.pipeline.GetStaging(ctx)
	if err != nil {
		return err
	}
	next := []R{}
	if ok && staged.Data != nil {
		next = staged.Data
	}
	d, err := t.pipeline.DiffWithProduction(ctx, next)
	if err != nil {
		return err
	}
	alerts, err := t.pipeline.EvaluatePriceGuards(ctx, next)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if ok && t.state.Phase == PhaseStaged {
		t.state.Snapshot = &staged
	}
	t.state.Diff = &d
	t.state.PriceAlerts = alerts
	t.state.RequiresOverride = len(alerts) > 0
	t.publishLocked()
	return nil
}

// Reset returns an errored or staged tracker to idle.
func (t *Tracker[R]) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Phase.Busy() {
		return busyError(t.state.Phase)
	}
	t.state = State[R]{Phase: PhaseIdle}
	t.publishLocked()
	return nil
}

// Wait blocks until every background operation has finished.
func (t *Tracker[R]) Wait() {
	t.wg.Wait()
}

func (t *Tracker[R]) begin(phase Phase) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Phase.Busy() {
		return busyError(t.state.Phase)
	}
	t.state = State[R]{Phase: phase, Snapshot: t.state.Snapshot, Diff: t.state.Diff}
	t.publishLocked()
	return nil
}

func (t *Tracker[R]) run(op func() State[R]) {
	t.wg.Go(func() {
		var next State[R]
		var pc panics.Catcher
		pc.Try(func() { next = op() })
		if recovered := pc.Recovered(); recovered != nil {
			next = State[R]{Phase: PhaseError, Err: recovered.AsError()}
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		t.state = next
		t.publishLocked()
	})
}

func (t *Tracker[R]) publishLocked() {
	for _, ch := range t.subs {
		select {
		case ch <- t.state:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- t.state:
		default:
		}
	}
}

func busyError(phase Phase) error {
	return errs.New("tracker", errs.CodeConflict,
		errs.WithMessage("operation already in progress"),
		errs.WithField("phase", string(phase)))
}
