// Package snapshot defines dataset snapshot storage primitives.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/coachpo/pricestage/errs"
)

// Slot names one of the three storage locations of a pipeline.
type Slot string

const (
	SlotStaging    Slot = "staging"
	SlotProduction Slot = "production"
	SlotBackup     Slot = "backup"
)

// AllSlots lists every slot in a stable order.
var AllSlots = []Slot{SlotStaging, SlotProduction, SlotBackup}

// ParseSlot resolves a slot name.
func ParseSlot(name string) (Slot, error) {
	for _, s := range AllSlots {
		if string(s) == name {
			return s, nil
		}
	}
	return "", errs.New("snapshot/slot", errs.CodeInvalid, errs.WithMessage(fmt.Sprintf("unknown slot %q", name)))
}

// Snapshot is an immutable dataset version held by a slot.
type Snapshot[R any] struct {
	Data     []R       `json:"data"`
	StagedAt time.Time `json:"stagedAt"`
	ActorID  string    `json:"actorId"`
	// Version is assigned by the store on every write and increases per slot.
	Version uint64 `json:"version"`
	// RequiresOverride marks staged data that breached a price guard.
	RequiresOverride bool `json:"requiresOverride,omitempty"`
}

type cloner[R any] interface {
	Clone() R
}

// Clone returns a copy that shares no slice storage with s. Records that
// implement Clone() R are cloned element by element.
func (s Snapshot[R]) Clone() Snapshot[R] {
	clone := s
	clone.Data = make([]R, len(s.Data))
	for i, rec := range s.Data {
		if c, ok := any(rec).(cloner[R]); ok {
			clone.Data[i] = c.Clone()
			continue
		}
		clone.Data[i] = rec
	}
	return clone
}

// Store is the contract for one slot. Implementations copy on read and write
// so callers never share state with the store.
type Store[R any] interface {
	// Read returns the stored snapshot and false when the slot is empty.
	Read(ctx context.Context) (Snapshot[R], bool, error)
	// Write replaces the slot content and returns the stored snapshot with its new version.
	Write(ctx context.Context, snap Snapshot[R]) (Snapshot[R], error)
	// Clear empties the slot.
	Clear(ctx context.Context) error
}

// Slots groups the three stores of a pipeline.
type Slots[R any] struct {
	Staging    Store[R]
	Production Store[R]
	Backup     Store[R]
}

// Validate ensures every slot has a store.
func (s Slots[R]) Validate() error {
	if s.Staging == nil || s.Production == nil || s.Backup == nil {
		return errs.New("snapshot/slots", errs.CodeInvalid, errs.WithMessage("staging, production and backup stores required"))
	}
	return nil
}

// Get returns the store for slot.
func (s Slots[R]) Get(slot Slot) (Store[R], error) {
	switch slot {
	case SlotStaging:
		return s.Staging, nil
	case SlotProduction:
		return s.Production, nil
	case SlotBackup:
		return s.Backup, nil
	default:
		return nil, errs.New("snapshot/slot", errs.CodeInvalid, errs.WithMessage(fmt.Sprintf("unknown slot %q", slot)))
	}
}

func checkContext(ctx context.Context, op string) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s context: %w", op, ctx.Err())
	default:
		return nil
	}
}
