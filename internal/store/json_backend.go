package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// JSONBackend keeps the document in a single JSON file of the form
// { [accountId]: { quests: {...}, dailyCounts: {...} } }.
type JSONBackend struct {
	path string
	lock *flock.Flock
}

func NewJSONBackend(path, lockPath string) (*JSONBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is empty")
	}
	if lockPath == "" {
		lockPath = path + ".lock"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	return &JSONBackend{path: path, lock: flock.New(lockPath)}, nil
}

// ErrCorrupt marks a load failure after which the backend is safe to write:
// the unreadable document has already been moved aside.
var ErrCorrupt = errors.New("corrupt store")

// Load reads the document. A corrupt file is moved aside to <path>.corrupt
// and reported as ErrCorrupt so the caller can start empty.
func (b *JSONBackend) Load() (map[string]AccountRecord, error) {
	buf, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]AccountRecord{}, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	out := map[string]AccountRecord{}
	if len(buf) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(buf, &out); err != nil {
		if rerr := os.Rename(b.path, b.path+".corrupt"); rerr != nil {
			return nil, fmt.Errorf("parse store: %w (move aside: %v)", err, rerr)
		}
		return nil, fmt.Errorf("%w: parse store: %w", ErrCorrupt, err)
	}
	return out, nil
}

func (b *JSONBackend) Save(all map[string]AccountRecord, _ string) error {
	locked, err := b.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock store: timeout acquiring lock")
	}
	defer func() { _ = b.lock.Unlock() }()

	buf, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o600); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

func (b *JSONBackend) Close() error { return nil }
