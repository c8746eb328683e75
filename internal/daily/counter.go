package daily

import "strings"

// Store is the subset of the persisted store the counter needs. Rollover is
// applied by the store on every read.
type Store interface {
	DailyCount(id, category string) int
	IncrementDailyCount(id, category string)
}

// Counter caps repeatable categories per calendar day.
type Counter struct {
	store         Store
	targets       map[string]int
	defaultTarget int
	capped        map[string]bool
}

// New builds a counter. targets carries explicit per-category targets;
// cappedCategories lists categories subject to a cap, which fall back to
// defaultTarget when they have no explicit entry.
func New(store Store, targets map[string]int, cappedCategories []string, defaultTarget int) *Counter {
	if defaultTarget <= 0 {
		defaultTarget = 1
	}
	c := &Counter{
		store:         store,
		targets:       make(map[string]int, len(targets)),
		defaultTarget: defaultTarget,
		capped:        make(map[string]bool),
	}
	for k, v := range targets {
		key := normalize(k)
		c.targets[key] = v
		c.capped[key] = true
	}
	for _, cat := range cappedCategories {
		c.capped[normalize(cat)] = true
	}
	return c
}

func normalize(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

// Capped reports whether the category has a daily cap.
func (c *Counter) Capped(category string) bool {
	return c.capped[normalize(category)]
}

// Target is the daily target for category, 0 when uncapped.
func (c *Counter) Target(category string) int {
	key := normalize(category)
	if v, ok := c.targets[key]; ok {
		return v
	}
	if c.capped[key] {
		return c.defaultTarget
	}
	return 0
}

func (c *Counter) Count(accountID, category string) int {
	return c.store.DailyCount(accountID, normalize(category))
}

func (c *Counter) Increment(accountID, category string) {
	c.store.IncrementDailyCount(accountID, normalize(category))
}

// Remaining is how many more runs the category may do today.
func (c *Counter) Remaining(accountID, category string) int {
	target := c.Target(category)
	if target <= 0 {
		return 0
	}
	n := target - c.Count(accountID, category)
	if n < 0 {
		return 0
	}
	return n
}

// Needed reports whether the capped category is still below its target.
func (c *Counter) Needed(accountID, category string) bool {
	return c.Remaining(accountID, category) > 0
}
