package snapshot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/coachpo/pricestage/errs"
)

// Backend is a durable byte-oriented key-value store.
type Backend interface {
	// Get returns the value for key and false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Sequencer is implemented by backends that can allocate versions atomically.
type Sequencer interface {
	// NextSequence stores and returns max(current counter, floor) + 1 for key.
	NextSequence(ctx context.Context, key string, floor uint64) (uint64, error)
}

// KVStore persists one slot as a JSON document under a single backend key.
// Versions come from a counter kept under a sibling key so they never repeat,
// even after Clear or a discarded payload.
type KVStore[R any] struct {
	backend Backend
	key     string
	seqKey  string
	logger  *log.Logger
	mu      sync.Mutex
}

// NewKVStore binds a slot to key on backend. A nil logger disables decode warnings.
func NewKVStore[R any](backend Backend, key string, logger *log.Logger) *KVStore[R] {
	trimmed := strings.TrimSpace(key)
	return &KVStore[R]{backend: backend, key: trimmed, seqKey: SequenceKey(trimmed), logger: logger}
}

// SequenceKey returns the key holding the version counter of slotKey.
func SequenceKey(slotKey string) string {
	return slotKey + ":seq"
}

// SlotKey returns the backend key of slot within namespace.
func SlotKey(namespace string, slot Slot) string {
	return strings.TrimSpace(namespace) + ":" + string(slot)
}

// NewKVSlots creates the three slots of a pipeline under namespace.
func NewKVSlots[R any](backend Backend, namespace string, logger *log.Logger) Slots[R] {
	return Slots[R]{
		Staging:    NewKVStore[R](backend, SlotKey(namespace, SlotStaging), logger),
		Production: NewKVStore[R](backend, SlotKey(namespace, SlotProduction), logger),
		Backup:     NewKVStore[R](backend, SlotKey(namespace, SlotBackup), logger),
	}
}

// Key returns the backend key.
func (s *KVStore[R]) Key() string { return s.key }

// Read decodes the stored snapshot. An undecodable payload reads as empty.
func (s *KVStore[R]) Read(ctx context.Context) (Snapshot[R], bool, error) {
	if err := s.ready(); err != nil {
		return Snapshot[R]{}, false, err
	}
	if err := checkContext(ctx, "kv store read"); err != nil {
		return Snapshot[R]{}, false, err
	}
	return s.read(ctx)
}

func (s *KVStore[R]) read(ctx context.Context) (Snapshot[R], bool, error) {
	raw, found, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return Snapshot[R]{}, false, s.storageErr("read", err)
	}
	if !found || len(raw) == 0 {
		return Snapshot[R]{}, false, nil
	}
	var snap Snapshot[R]
	if err := json.Unmarshal(raw, &snap); err != nil {
		if s.logger != nil {
			s.logger.Printf("snapshot %s: discarding payload: %v", s.key, s.malformedErr(err))
		}
		return Snapshot[R]{}, false, nil
	}
	if snap.Data == nil {
		snap.Data = []R{}
	}
	return snap, true, nil
}

// Write encodes snap under the next version.
func (s *KVStore[R]) Write(ctx context.Context, snap Snapshot[R]) (Snapshot[R], error) {
	if err := s.ready(); err != nil {
		return Snapshot[R]{}, err
	}
	if err := checkContext(ctx, "kv store write"); err != nil {
		return Snapshot[R]{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, found, err := s.read(ctx)
	if err != nil {
		return Snapshot[R]{}, err
	}
	var floor uint64
	if found {
		floor = current.Version
	}
	version, err := s.nextVersion(ctx, floor)
	if err != nil {
		return Snapshot[R]{}, err
	}
	snap = snap.Clone()
	snap.Version = version
	if snap.StagedAt.IsZero() {
		snap.StagedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return Snapshot[R]{}, s.storageErr("encode", err)
	}
	if err := s.backend.Put(ctx, s.key, payload); err != nil {
		return Snapshot[R]{}, s.storageErr("write", err)
	}
	return snap.Clone(), nil
}

// nextVersion advances the slot counter past floor and persists it before the
// payload is written.
func (s *KVStore[R]) nextVersion(ctx context.Context, floor uint64) (uint64, error) {
	if seq, ok := s.backend.(Sequencer); ok {
		next, err := seq.NextSequence(ctx, s.seqKey, floor)
		if err != nil {
			return 0, s.storageErr("sequence", err)
		}
		return next, nil
	}

	raw, found, err := s.backend.Get(ctx, s.seqKey)
	if err != nil {
		return 0, s.storageErr("read sequence", err)
	}
	if found {
		stored, perr := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
		switch {
		case perr != nil:
			if s.logger != nil {
				s.logger.Printf("snapshot %s: ignoring unreadable sequence: %v", s.key, perr)
			}
		case stored > floor:
			floor = stored
		}
	}
	next := floor + 1
	if err := s.backend.Put(ctx, s.seqKey, []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, s.storageErr("write sequence", err)
	}
	return next, nil
}

// Clear removes the payload. The version counter is kept.
func (s *KVStore[R]) Clear(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := checkContext(ctx, "kv store clear"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Delete(ctx, s.key); err != nil {
		return s.storageErr("clear", err)
	}
	return nil
}

func (s *KVStore[R]) ready() error {
	if s == nil || s.backend == nil {
		return errs.New("snapshot/kv", errs.CodeInvalid, errs.WithMessage("nil backend"))
	}
	if s.key == "" {
		return errs.New("snapshot/kv", errs.CodeInvalid, errs.WithMessage("key required"))
	}
	return nil
}

func (s *KVStore[R]) malformedErr(err error) error {
	return errs.New("snapshot/kv", errs.CodeStorage,
		errs.WithCanonicalCode(errs.CanonicalMalformedSnapshot),
		errs.WithMessage("undecodable payload"),
		errs.WithField("key", s.key),
		errs.WithCause(err))
}

func (s *KVStore[R]) storageErr(action string, err error) error {
	return errs.New("snapshot/kv", errs.CodeStorage,
		errs.WithMessage(fmt.Sprintf("%s %s", action, s.key)),
		errs.WithField("key", s.key),
		errs.WithCause(err))
}

// MemoryBackend is an in-process Backend.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (b *MemoryBackend) Put(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	b.data[key] = stored
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}
