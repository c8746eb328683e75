package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/ggonzalez94/questd/internal/accounts"
	"github.com/ggonzalez94/questd/internal/cooldown"
	"github.com/ggonzalez94/questd/internal/daily"
	"github.com/ggonzalez94/questd/internal/model"
	"github.com/ggonzalez94/questd/internal/outcome"
	"github.com/ggonzalez94/questd/internal/quest"
	"github.com/ggonzalez94/questd/internal/questapi"
	"github.com/ggonzalez94/questd/internal/retry"
	"github.com/ggonzalez94/questd/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// API is everything one account session needs from the quest service.
type API interface {
	quest.API
	Quests(ctx context.Context) ([]model.Quest, error)
	User(ctx context.Context, wallet string) (model.User, error)
	Claim(ctx context.Context) (model.ActionResult, error)
	RecordActivityBestEffort(ctx context.Context, req questapi.ActivityRequest) int64
}

// Session is an account's authenticated API client and optional wallet.
type Session struct {
	API    API
	Wallet quest.Wallet
	close  func()
}

func (s *Session) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

type Connector interface {
	Connect(ctx context.Context, acc accounts.Account) (*Session, error)
}

// Sink receives each account's summary as soon as its pass ends.
type Sink interface {
	Report(stats *model.AccountStats)
}

type SinkFunc func(stats *model.AccountStats)

func (f SinkFunc) Report(stats *model.AccountStats) { f(stats) }

type Store interface {
	UpdateQuest(id, questID string, patch store.QuestPatch)
}

type Config struct {
	AccountDelay       time.Duration
	RoutineDelay       time.Duration
	RoutineJitter      time.Duration
	CycleBuffer        time.Duration
	IdleInterval       time.Duration
	DailyClaim         bool
	DailyClaimCooldown time.Duration
	Routine            []string
	Quest              quest.Config
}

const (
	DefaultAccountDelay       = 5 * time.Second
	DefaultRoutineDelay       = 2 * time.Second
	DefaultRoutineJitter      = 1500 * time.Millisecond
	DefaultCycleBuffer        = 30 * time.Second
	DefaultIdleInterval       = 60 * time.Second
	DefaultDailyClaimCooldown = 24 * time.Hour
)

var DefaultRoutine = []string{"shield", "private_send", "unshield"}

func DefaultConfig() Config {
	return Config{
		AccountDelay:       DefaultAccountDelay,
		RoutineDelay:       DefaultRoutineDelay,
		RoutineJitter:      DefaultRoutineJitter,
		CycleBuffer:        DefaultCycleBuffer,
		IdleInterval:       DefaultIdleInterval,
		DailyClaim:         true,
		DailyClaimCooldown: DefaultDailyClaimCooldown,
		Routine:            append([]string(nil), DefaultRoutine...),
		Quest:              quest.DefaultConfig(),
	}
}

// Deps are the collaborators shared by every account.
type Deps struct {
	Store      Store
	Counter    *daily.Counter
	Resolver   *cooldown.Resolver
	Reconciler *quest.Reconciler
	Retry      *retry.Policy
	Table      *outcome.Table
	Connector  Connector
	Sink       Sink
	Log        *zap.Logger
}

// Orchestrator drives accounts strictly one after another.
type Orchestrator struct {
	cfg Config
	Deps

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
	rnd   *rand.Rand
	newID func() string
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

func WithRand(rnd *rand.Rand) Option {
	return func(o *Orchestrator) { o.rnd = rnd }
}

func New(cfg Config, deps Deps, opts ...Option) *Orchestrator {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Sink == nil {
		deps.Sink = SinkFunc(func(*model.AccountStats) {})
	}
	if deps.Table == nil {
		deps.Table = outcome.DefaultTable()
	}
	if deps.Retry == nil {
		deps.Retry = retry.New(retry.DefaultAttempts, retry.DefaultBaseDelay, retry.DefaultJitter, deps.Log)
	}
	o := &Orchestrator{
		cfg:   cfg,
		Deps:  deps,
		now:   time.Now,
		sleep: retry.Sleep,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run repeats cycles until ctx is cancelled, or once when once is set.
// Cancellation is a clean stop.
func (o *Orchestrator) Run(ctx context.Context, accts []accounts.Account, once bool) error {
	for {
		summaries, err := o.RunCycle(ctx, accts)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				o.Log.Info("shutdown requested, stopping")
				return nil
			}
			return err
		}
		if once {
			return nil
		}
		wait := o.NextWait(summaries)
		o.Log.Info("cycle complete", zap.Duration("next_cycle_in", wait))
		if err := o.sleep(ctx, wait); err != nil {
			o.Log.Info("shutdown requested, stopping")
			return nil
		}
	}
}

// RunCycle processes every account once and returns their summaries. It
// stops before the next account when ctx is cancelled.
func (o *Orchestrator) RunCycle(ctx context.Context, accts []accounts.Account) ([]*model.AccountStats, error) {
	cycleID := o.newID()
	o.Log.Info("starting cycle", zap.String("cycle", cycleID), zap.Int("accounts", len(accts)))
	out := make([]*model.AccountStats, 0, len(accts))
	for i, acc := range accts {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		stats := o.ProcessAccount(ctx, cycleID, acc)
		o.Sink.Report(stats)
		out = append(out, stats)
		if i < len(accts)-1 && o.cfg.AccountDelay > 0 {
			if err := o.sleep(ctx, o.cfg.AccountDelay); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

// NextWait is the pause before the next cycle: the smallest pending cooldown
// across accounts plus a buffer, or the idle interval when none is pending.
func (o *Orchestrator) NextWait(summaries []*model.AccountStats) time.Duration {
	var least *int64
	for _, s := range summaries {
		if s == nil || s.MinCooldown == nil {
			continue
		}
		if least == nil || *s.MinCooldown < *least {
			v := *s.MinCooldown
			least = &v
		}
	}
	if least == nil {
		return o.cfg.IdleInterval
	}
	return time.Duration(*least)*time.Second + o.cfg.CycleBuffer
}
