// Package filekv stores snapshot payloads and audit events as files under a
// directory.
package filekv

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/coachpo/pricestage/internal/audit"
	"github.com/coachpo/pricestage/internal/snapshot"
)

const (
	payloadExt   = ".json"
	auditLogName = "audit.jsonl"
)

// Backend keeps one file per key. Writes go to a temporary file that is
// renamed into place so readers never see a partial payload.
type Backend struct {
	dir string
	mu  sync.RWMutex
}

// Open creates dir when needed and returns a Backend rooted there.
func Open(dir string) (*Backend, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("filekv: directory required")
	}
	clean := filepath.Clean(strings.TrimSpace(dir))
	if err := os.MkdirAll(clean, 0o750); err != nil {
		return nil, fmt.Errorf("filekv: create directory: %w", err)
	}
	return &Backend{dir: clean}, nil
}

// Dir returns the root directory.
func (b *Backend) Dir() string {
	return b.dir
}

// Get returns the payload stored under key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, err := os.ReadFile(path) // #nosec G304 -- path is derived from a sanitised key.
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("filekv: read %s: %w", key, err)
	}
	return data, true, nil
}

// Put atomically replaces the payload stored under key.
func (b *Backend) Put(ctx context.Context, key string, value []byte) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	tmp, err := os.CreateTemp(b.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("filekv: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("filekv: write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("filekv: sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filekv: close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("filekv: commit %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (b *Backend) Delete(ctx context.Context, key string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("filekv: delete %s: %w", key, err)
	}
	return nil
}

// path maps "merchant:staging" to "<dir>/merchant.staging.json".
func (b *Backend) path(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", fmt.Errorf("filekv: key required")
	}
	var sb strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		case r == ':' || r == '.':
			sb.WriteByte('.')
		default:
			return "", fmt.Errorf("filekv: invalid character %q in key %q", r, key)
		}
	}
	name := sb.String()
	if strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("filekv: key %q must not start with a separator", key)
	}
	return filepath.Join(b.dir, name+payloadExt), nil
}

var _ snapshot.Backend = (*Backend)(nil)

// AuditLog appends audit events as JSON lines.
type AuditLog struct {
	path   string
	logger *log.Logger
	mu     sync.Mutex
}

// NewAuditLog writes to audit.jsonl inside dir. Lines that fail to decode are
// logged and skipped when listing.
func NewAuditLog(dir string, logger *log.Logger) (*AuditLog, error) {
	clean := filepath.Clean(strings.TrimSpace(dir))
	if err := os.MkdirAll(clean, 0o750); err != nil {
		return nil, fmt.Errorf("filekv audit: create directory: %w", err)
	}
	return &AuditLog{path: filepath.Join(clean, auditLogName), logger: logger}, nil
}

// Record appends evt. It implements audit.Hook.
func (l *AuditLog) Record(_ context.Context, evt audit.Event) error {
	line, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("filekv audit: encode: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) // #nosec G304 -- fixed file name.
	if err != nil {
		return fmt.Errorf("filekv audit: open: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("filekv audit: append: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("filekv audit: close: %w", err)
	}
	return nil
}

// List returns recent events, newest first. It implements audit.History.
func (l *AuditLog) List(_ context.Context, dataset string, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = audit.DefaultHistoryLimit
	}
	l.mu.Lock()
	data, err := os.ReadFile(l.path)
	l.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return []audit.Event{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filekv audit: read: %w", err)
	}

	var all []audit.Event
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var evt audit.Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			if l.logger != nil {
				l.logger.Printf("filekv audit: skipping malformed line %d: %v", lineNo, err)
			}
			continue
		}
		if dataset != "" && evt.Dataset != dataset {
			continue
		}
		all = append(all, evt)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("filekv audit: scan: %w", err)
	}

	out := make([]audit.Event, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

var (
	_ audit.Hook    = (*AuditLog)(nil)
	_ audit.History = (*AuditLog)(nil)
)
