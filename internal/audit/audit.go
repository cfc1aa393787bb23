// Package audit defines the events emitted by pipeline mutations and the
// hooks that observe them.
package audit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action identifies the mutation that produced an event.
type Action string

const (
	ActionStage    Action = "stage"
	ActionPromote  Action = "promote"
	ActionRollback Action = "rollback"
)

// Details carries optional event metadata.
type Details struct {
	Rows *int `json:"rows,omitempty"`
}

// RowCount builds Details for n rows.
func RowCount(n int) *Details {
	return &Details{Rows: &n}
}

// Event is a single audit trail entry.
type Event struct {
	ID        string    `json:"id"`
	Dataset   string    `json:"dataset"`
	Action    Action    `json:"action"`
	ActorID   string    `json:"actorId"`
	Timestamp time.Time `json:"timestamp"`
	Details   *Details  `json:"details,omitempty"`
}

// NewEvent stamps a fresh event id.
func NewEvent(dataset string, action Action, actorID string, at time.Time, details *Details) Event {
	return Event{
		ID:        uuid.NewString(),
		Dataset:   dataset,
		Action:    action,
		ActorID:   actorID,
		Timestamp: at.UTC(),
		Details:   details,
	}
}

// Rows returns the row count and whether one was recorded.
func (e Event) Rows() (int, bool) {
	if e.Details == nil || e.Details.Rows == nil {
		return 0, false
	}
	return *e.Details.Rows, true
}

// Hook observes audit events.
type Hook interface {
	Record(ctx context.Context, evt Event) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, evt Event) error

// Record calls f.
func (f HookFunc) Record(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Emit delivers evt to hook, recovering panics and logging failures so the
// caller's operation is never affected.
func Emit(ctx context.Context, hook Hook, evt Event, logger *log.Logger) {
	if hook == nil {
		return
	}
	if err := safeRecord(ctx, hook, evt); err != nil && logger != nil {
		logger.Printf("audit hook failed: dataset=%s action=%s actor=%s: %v", evt.Dataset, evt.Action, evt.ActorID, err)
	}
}

func safeRecord(ctx context.Context, hook Hook, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit hook panic: %v", r)
		}
	}()
	return hook.Record(ctx, evt)
}

type multi struct {
	hooks  []Hook
	logger *log.Logger
}

// Multi fans an event out to every hook. Each hook is isolated from the others.
func Multi(logger *log.Logger, hooks ...Hook) Hook {
	filtered := make([]Hook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return &multi{hooks: filtered, logger: logger}
}

func (m *multi) Record(ctx context.Context, evt Event) error {
	for _, h := range m.hooks {
		Emit(ctx, h, evt, m.logger)
	}
	return nil
}

// History lists recorded events, newest first. An empty dataset matches all
// datasets; a non-positive limit applies the store default.
type History interface {
	List(ctx context.Context, dataset string, limit int) ([]Event, error)
}

// DefaultHistoryLimit bounds History listings when no limit is given.
const DefaultHistoryLimit = 50

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return new(Recorder)
}

func (r *Recorder) Record(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// List implements History.
func (r *Recorder) List(_ context.Context, dataset string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, min(limit, len(r.events)))
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if dataset != "" && r.events[i].Dataset != dataset {
			continue
		}
		out = append(out, r.events[i])
	}
	return out, nil
}

// LogHook writes one line per event.
func LogHook(logger *log.Logger) Hook {
	return HookFunc(func(_ context.Context, evt Event) error {
		if logger == nil {
			return nil
		}
		if rows, ok := evt.Rows(); ok {
			logger.Printf("audit: dataset=%s action=%s actor=%s rows=%d", evt.Dataset, evt.Action, evt.ActorID, rows)
			return nil
		}
		logger.Printf("audit: dataset=%s action=%s actor=%s", evt.Dataset, evt.Action, evt.ActorID)
		return nil
	})
}
