package cooldown

import (
	"strings"
	"time"

	"github.com/ggonzalez94/questd/internal/store"
)

type Store interface {
	Quest(id, questID string) (store.QuestState, bool)
	UpdateQuest(id, questID string, patch store.QuestPatch)
}

// Key identifies the action being gated. Category is the quest's own
// category; Group is what gets persisted next to the cooldown ("social",
// "onchain") and defaults to Category.
type Key struct {
	QuestID  string
	Title    string
	Category string
	Group    string
}

func (k Key) persistedCategory() string {
	if k.Group != "" {
		return k.Group
	}
	return k.Category
}

// Effective is the resolved wait before an action may run again.
type Effective struct {
	Seconds   int64
	Server    int64
	Persisted int64
	Exempt    bool
	ReadyAt   time.Time
}

func (e Effective) Ready() bool { return e.Seconds <= 0 }

// Resolver merges server-reported and locally persisted cooldowns.
type Resolver struct {
	store  Store
	exempt []string
	now    func() time.Time
}

// New builds a resolver. exempt lists the no-cooldown overrides, matched
// against quest titles (substring) and categories (exact), case-insensitively.
func New(s Store, exempt []string, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	list := make([]string, 0, len(exempt))
	for _, e := range exempt {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			list = append(list, e)
		}
	}
	return &Resolver{store: s, exempt: list, now: now}
}

// Merge is the precedence rule between the two sources: the larger wait wins
// and an exempt action never waits.
func Merge(serverSeconds, persistedSeconds int64, exempt bool) int64 {
	if exempt {
		return 0
	}
	out := max(serverSeconds, persistedSeconds)
	if out < 0 {
		return 0
	}
	return out
}

// Exempt reports whether title or category hits a no-cooldown override.
func (r *Resolver) Exempt(title, category string) bool {
	t := strings.ToLower(title)
	c := strings.ToLower(strings.TrimSpace(category))
	for _, e := range r.exempt {
		if c == e || strings.Contains(t, e) {
			return true
		}
	}
	return false
}

// Remaining returns the persisted wait for questID in whole seconds, rounded up.
func (r *Resolver) Remaining(accountID, questID string) int64 {
	saved, ok := r.store.Quest(accountID, questID)
	if !ok {
		return 0
	}
	return remainingSeconds(saved.NextRunTime, r.now().UnixMilli())
}

func remainingSeconds(nextRunMs, nowMs int64) int64 {
	diff := nextRunMs - nowMs
	if diff <= 0 {
		return 0
	}
	return (diff + 999) / 1000
}

// Resolve computes the effective cooldown and, when it is positive and longer
// than what is stored, persists it so a restart keeps honouring it.
func (r *Resolver) Resolve(accountID string, key Key, serverSeconds int64) Effective {
	now := r.now()
	persisted := r.Remaining(accountID, key.QuestID)
	eff := Effective{
		Server:    serverSeconds,
		Persisted: persisted,
		Exempt:    r.Exempt(key.Title, key.Category),
	}
	eff.Seconds = Merge(serverSeconds, persisted, eff.Exempt)
	eff.ReadyAt = now.Add(time.Duration(eff.Seconds) * time.Second)
	if eff.Seconds <= 0 {
		return eff
	}

	if _, ok := r.store.Quest(accountID, key.QuestID); !ok || persisted < eff.Seconds {
		r.store.UpdateQuest(accountID, key.QuestID,
			store.Describe(key.Title, key.persistedCategory()).RunAt(eff.ReadyAt.UnixMilli()))
	}
	return eff
}

// Hold persists a fixed cooldown window for the action unless it is exempt.
// It reports the applied seconds.
func (r *Resolver) Hold(accountID string, key Key, window time.Duration) int64 {
	if r.Exempt(key.Title, key.Category) || window <= 0 {
		return 0
	}
	r.store.UpdateQuest(accountID, key.QuestID,
		store.Describe(key.Title, key.persistedCategory()).RunAt(r.now().Add(window).UnixMilli()))
	return int64(window / time.Second)
}
