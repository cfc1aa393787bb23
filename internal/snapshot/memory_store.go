package snapshot

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-lifetime Store.
type MemoryStore[R any] struct {
	mu      sync.RWMutex
	snap    Snapshot[R]
	present bool
	version uint64
}

// NewMemoryStore creates an empty memory-backed slot.
func NewMemoryStore[R any]() *MemoryStore[R] {
	return new(MemoryStore[R])
}

// NewMemorySlots creates three independent memory-backed slots.
func NewMemorySlots[R any]() Slots[R] {
	return Slots[R]{
		Staging:    NewMemoryStore[R](),
		Production: NewMemoryStore[R](),
		Backup:     NewMemoryStore[R](),
	}
}

// Read returns a copy of the stored snapshot.
func (s *MemoryStore[R]) Read(ctx context.Context) (Snapshot[R], bool, error) {
	if err := checkContext(ctx, "memory store read"); err != nil {
		return Snapshot[R]{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return Snapshot[R]{}, false, nil
	}
	return s.snap.Clone(), true, nil
}

// Write stores a copy of snap under the next version.
func (s *MemoryStore[R]) Write(ctx context.Context, snap Snapshot[R]) (Snapshot[R], error) {
	if err := checkContext(ctx, "memory store write"); err != nil {
		return Snapshot[R]{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	snap.Version = s.version
	if snap.StagedAt.IsZero() {
		snap.StagedAt = time.Now().UTC()
	}
	s.snap = snap.Clone()
	s.present = true
	return s.snap.Clone(), nil
}

// Clear empties the slot. The version counter keeps increasing across clears.
func (s *MemoryStore[R]) Clear(ctx context.Context) error {
	if err := checkContext(ctx, "memory store clear"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot[R]{}
	s.present = false
	return nil
}
