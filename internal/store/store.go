package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Backend persists the whole account document. changed names the account
// whose record triggered the save so row-oriented backends can skip the rest.
type Backend interface {
	Load() (map[string]AccountRecord, error)
	Save(all map[string]AccountRecord, changed string) error
	Close() error
}

// Store is the process-wide record of per-account quest and daily-action
// state. Every mutation is written through to the backend before returning.
// Backend failures are logged and never surfaced to callers.
type Store struct {
	mu      sync.Mutex
	backend Backend
	data    map[string]AccountRecord
	log     *zap.Logger
	now     func() time.Time
	loc     *time.Location
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLocation sets the zone whose calendar days bound daily counters.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// New loads the backend document. A nil backend keeps state in memory only.
// When the document cannot be read and was not moved aside, the backend is
// detached so the first save cannot overwrite it.
func New(backend Backend, log *zap.Logger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		backend: backend,
		data:    make(map[string]AccountRecord),
		log:     log,
		now:     time.Now,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	if backend == nil {
		return s
	}
	loaded, err := backend.Load()
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			s.log.Warn("load store failed, starting empty", zap.Error(err))
			return s
		}
		s.log.Warn("load store failed, state will not persist", zap.Error(err))
		_ = backend.Close()
		s.backend = nil
		return s
	}
	for id, rec := range loaded {
		s.data[id] = rec.normalized()
	}
	return s
}

// Open builds the backend for driver. When the backend cannot be opened the
// store falls back to memory and logs a warning.
func Open(driver, path, lockPath string, log *zap.Logger, opts ...Option) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var (
		backend Backend
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverJSON:
		backend, err = NewJSONBackend(path, lockPath)
	case DriverSQLite:
		backend, err = NewSQLiteBackend(path, lockPath)
	default:
		return nil, fmt.Errorf("unsupported store driver %q (expected %s|%s)", driver, DriverJSON, DriverSQLite)
	}
	if err != nil {
		log.Warn("open store backend failed, state will not persist", zap.String("path", path), zap.Error(err))
		backend = nil
	}
	return New(backend, log, opts...), nil
}

func (s *Store) Close() error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

func (s *Store) record(id string) AccountRecord {
	rec, ok := s.data[id]
	if !ok {
		rec = newAccountRecord()
		s.data[id] = rec
	}
	return rec
}

func (s *Store) flush(changed string) {
	if s.backend == nil {
		return
	}
	if err := s.backend.Save(s.data, changed); err != nil {
		s.log.Warn("save store failed", zap.String("account", changed), zap.Error(err))
	}
}

// Account returns a copy of the account's record, creating it if absent.
func (s *Store) Account(id string) AccountRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(id).clone()
}

// Accounts lists the known account ids in sorted order.
func (s *Store) Accounts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) Quest(id, questID string) (QuestState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.record(id).Quests[questID]
	return q, ok
}

// UpdateQuest merges patch into the stored quest and persists immediately.
// A future NextRunTime is never lowered except by an explicit reset to 0.
func (s *Store) UpdateQuest(id, questID string, patch QuestPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(id)
	current := rec.Quests[questID]
	if patch.NextRunTime != nil && *patch.NextRunTime != 0 {
		nowMs := s.now().UnixMilli()
		if current.NextRunTime > nowMs && *patch.NextRunTime < current.NextRunTime {
			s.log.Debug("keeping later next run",
				zap.String("account", id),
				zap.String("quest", questID),
				zap.Int64("stored", current.NextRunTime),
				zap.Int64("requested", *patch.NextRunTime),
			)
			patch.NextRunTime = nil
		}
	}
	rec.Quests[questID] = patch.apply(current)
	s.flush(id)
}

// ResetQuest sets the quest ready now. It reports whether the quest existed.
func (s *Store) ResetQuest(id, questID string) bool {
	s.mu.Lock()
	rec := s.record(id)
	_, ok := rec.Quests[questID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.UpdateQuest(id, questID, Ready())
	return true
}

// ResetAccount makes every stored quest of the account ready now and returns
// how many were reset.
func (s *Store) ResetAccount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[id]
	if !ok || len(rec.Quests) == 0 {
		return 0
	}
	for qid, q := range rec.Quests {
		q.NextRunTime = 0
		rec.Quests[qid] = q
	}
	s.flush(id)
	return len(rec.Quests)
}

// DailyCount returns the category's count for the current calendar day,
// rolling the counter over first when the day changed since lastTxTime.
func (s *Store) DailyCount(id, category string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollover(id, category).Count
}

// IncrementDailyCount bumps today's count and stamps lastTxTime.
func (s *Store) IncrementDailyCount(id, category string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.rollover(id, category)
	c.Count++
	c.LastTxTime = s.now().UnixMilli()
	s.record(id).DailyCounts[category] = c
	s.flush(id)
}

func (s *Store) rollover(id, category string) DailyCounter {
	rec := s.record(id)
	c := rec.DailyCounts[category]
	now := s.now()
	if s.sameDay(c.LastTxTime, now) {
		return c
	}
	c = DailyCounter{Count: 0, LastTxTime: now.UnixMilli()}
	rec.DailyCounts[category] = c
	s.flush(id)
	return c
}

func (s *Store) sameDay(ms int64, now time.Time) bool {
	if ms <= 0 {
		return false
	}
	y1, m1, d1 := time.UnixMilli(ms).In(s.loc).Date()
	y2, m2, d2 := now.In(s.loc).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
