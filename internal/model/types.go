package model

import "time"

const (
	GroupSocial  = "social"
	GroupOnChain = "onchain"
)

// Quest is one entry of the remote quest list.
type Quest struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Category          string `json:"category"`
	Type              string `json:"type,omitempty"`
	Status            string `json:"status,omitempty"`
	Completed         bool   `json:"completed"`
	CooldownRemaining int64  `json:"cooldownRemaining"`
	Points            int64  `json:"points,omitempty"`
}

// CompletedRemotely reports whether the server marks the quest done.
func (q Quest) CompletedRemotely() bool {
	return q.Completed || q.Status == "completed"
}

type User struct {
	Nickname    string     `json:"nickname"`
	Points      int64      `json:"points"`
	LastClaimAt *Timestamp `json:"lastClaimAt,omitempty"`
}

// ActionResult is the common body of complete/verify/claim responses.
type ActionResult struct {
	Success           bool   `json:"success"`
	Verified          bool   `json:"verified"`
	Completed         bool   `json:"completed"`
	Status            string `json:"status,omitempty"`
	Error             string `json:"error,omitempty"`
	CooldownRemaining int64  `json:"cooldownRemaining,omitempty"`
	Reward            any    `json:"reward,omitempty"`
	Streak            any    `json:"streak,omitempty"`
}

// Accepted reports an explicit success flag.
func (r ActionResult) Accepted() bool {
	return r.Success || r.Verified
}

type CategoryStats struct {
	Total            int `json:"total"`
	Success          int `json:"success"`
	Failed           int `json:"failed"`
	Cooldown         int `json:"cooldown"`
	CompletedAlready int `json:"completed_already"`
}

type DailyStatus struct {
	Status  string     `json:"status"`
	NextRun *time.Time `json:"next_run,omitempty"`
}

type RoutineStatus struct {
	Count  int `json:"count"`
	Target int `json:"target"`
}

const (
	AccountProcessing = "PROCESSING"
	AccountCompleted  = "COMPLETED"
	AccountFailed     = "FAILED"
	AccountExpired    = "EXPIRED"
)

// AccountStats is the per-account summary handed to the reporting sink.
type AccountStats struct {
	Index       int                      `json:"index"`
	Account     string                   `json:"account"`
	Wallet      string                   `json:"wallet"`
	IP          string                   `json:"ip"`
	CycleID     string                   `json:"cycle_id,omitempty"`
	Status      string                   `json:"status"`
	StartPoints int64                    `json:"start_points"`
	EndPoints   int64                    `json:"end_points"`
	Balance     string                   `json:"balance,omitempty"`
	Social      CategoryStats            `json:"social"`
	OnChain     CategoryStats            `json:"onchain"`
	Daily       DailyStatus              `json:"daily"`
	Routine     map[string]RoutineStatus `json:"routine,omitempty"`
	MinCooldown *int64                   `json:"min_cooldown_seconds,omitempty"`
	TokenExpiry *time.Time               `json:"token_expiry,omitempty"`
	Errors      []string                 `json:"errors,omitempty"`
	LastRun     time.Time                `json:"last_run"`
	NextRun     *time.Time               `json:"next_run,omitempty"`
}

// PointsDelta is the points gained during the pass.
func (s *AccountStats) PointsDelta() int64 {
	if s.EndPoints == 0 {
		return 0
	}
	return s.EndPoints - s.StartPoints
}

// Group returns the counters for a stats group.
func (s *AccountStats) Group(group string) *CategoryStats {
	if group == GroupOnChain {
		return &s.OnChain
	}
	return &s.Social
}

// ObserveCooldown lowers the minimum pending cooldown to seconds when smaller.
func (s *AccountStats) ObserveCooldown(seconds int64) {
	if seconds <= 0 {
		return
	}
	if s.MinCooldown == nil || seconds < *s.MinCooldown {
		v := seconds
		s.MinCooldown = &v
	}
}

func (s *AccountStats) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}
