package quest

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/ggonzalez94/questd/internal/cooldown"
	"github.com/ggonzalez94/questd/internal/daily"
	clierr "github.com/ggonzalez94/questd/internal/errors"
	"github.com/ggonzalez94/questd/internal/model"
	"github.com/ggonzalez94/questd/internal/outcome"
	"github.com/ggonzalez94/questd/internal/retry"
	"github.com/ggonzalez94/questd/internal/store"
	"go.uber.org/zap"
)

type Store interface {
	UpdateQuest(id, questID string, patch store.QuestPatch)
}

// Reconciler runs the per-quest state machine: completion check, daily cap
// override, cooldown gate, attempt, interpretation.
type Reconciler struct {
	cfg      Config
	store    Store
	counter  *daily.Counter
	resolver *cooldown.Resolver
	retry    *retry.Policy
	table    *outcome.Table

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
	rnd   *rand.Rand
}

type Option func(*Reconciler)

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(r *Reconciler) { r.sleep = sleep }
}

func WithRand(rnd *rand.Rand) Option {
	return func(r *Reconciler) { r.rnd = rnd }
}

func New(cfg Config, s Store, counter *daily.Counter, resolver *cooldown.Resolver, policy *retry.Policy, table *outcome.Table, opts ...Option) *Reconciler {
	if table == nil {
		table = outcome.DefaultTable()
	}
	if policy == nil {
		policy = retry.New(retry.DefaultAttempts, retry.DefaultBaseDelay, retry.DefaultJitter, nil)
	}
	r := &Reconciler{
		cfg:      cfg,
		store:    s,
		counter:  counter,
		resolver: resolver,
		retry:    policy,
		table:    table,
		now:      time.Now,
		sleep:    retry.Sleep,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Group returns the stats group of q. Quests explicitly typed social stay
// social whatever their category.
func (r *Reconciler) Group(q model.Quest) string {
	if strings.EqualFold(q.Type, model.GroupSocial) {
		return model.GroupSocial
	}
	if r.counter.Capped(q.Category) || strings.EqualFold(q.Category, model.GroupOnChain) || strings.EqualFold(q.Type, model.GroupOnChain) {
		return model.GroupOnChain
	}
	return model.GroupSocial
}

// Reconcile walks every quest once. Per-quest failures are counted and the
// walk continues; an authentication failure or cancellation stops it and is
// returned.
func (r *Reconciler) Reconcile(ctx context.Context, scope *Scope, quests []model.Quest) error {
	scope.logger().Info("reconciling quests", zap.Int("count", len(quests)))
	for _, q := range quests {
		if _, err := r.Process(ctx, scope, q); err != nil {
			return err
		}
	}
	return nil
}

// Process evaluates one quest. The returned error is non-nil only when the
// account's pass must stop.
func (r *Reconciler) Process(ctx context.Context, scope *Scope, q model.Quest) (outcome.Outcome, error) {
	if scope.Stats == nil {
		scope.Stats = &model.AccountStats{Account: scope.AccountID}
	}
	log := scope.logger().With(zap.String("quest_id", q.ID), zap.String("quest", q.Title))
	group := r.Group(q)
	stats := scope.Stats.Group(group)
	stats.Total++

	capped := r.counter.Capped(q.Category)
	if capped {
		count, target := r.counter.Count(scope.AccountID, q.Category), r.counter.Target(q.Category)
		if count >= target {
			stats.CompletedAlready++
			return outcome.Outcome{Kind: outcome.AlreadyDone, Message: "daily target reached"}, nil
		}
		if q.CompletedRemotely() {
			log.Warn("daily target not reached, repeating despite completion", zap.Int("count", count), zap.Int("target", target))
		}
	} else if q.CompletedRemotely() {
		stats.CompletedAlready++
		return outcome.Outcome{Kind: outcome.AlreadyDone}, nil
	}

	key := cooldown.Key{QuestID: q.ID, Title: q.Title, Category: q.Category, Group: group}
	eff := r.resolver.Resolve(scope.AccountID, key, q.CooldownRemaining)
	if !eff.Ready() {
		stats.Cooldown++
		scope.Stats.ObserveCooldown(eff.Seconds)
		log.Debug("on cooldown", zap.Int64("seconds", eff.Seconds))
		return outcome.Outcome{Kind: outcome.Cooldown, CooldownSeconds: eff.Seconds}, nil
	}

	if err := ctx.Err(); err != nil {
		return outcome.Outcome{Kind: outcome.TerminalFailure, Message: "cancelled"}, err
	}
	// the attempt itself finishes even if shutdown is requested meanwhile
	attemptCtx := context.WithoutCancel(ctx)

	log.Info("attempting quest", zap.String("group", group))
	r.markInProgress(attemptCtx, scope, q, log)
	payload, submitted := r.Payload(attemptCtx, scope, q)
	result, err := retry.Do(attemptCtx, r.retry.WithLogger(log), "verify quest", func(ctx context.Context) (model.ActionResult, error) {
		return scope.API.Verify(ctx, q.ID, payload)
	})

	var out outcome.Outcome
	switch {
	case err != nil && clierr.IsCode(err, clierr.CodeAuth):
		stats.Failed++
		log.Error("session rejected, aborting remaining quests", zap.Error(err))
		scope.Stats.AddError("session rejected: " + clierr.RemoteMessage(err))
		return outcome.Outcome{Kind: outcome.TerminalFailure, Message: clierr.RemoteMessage(err)}, err
	case err != nil:
		out = r.table.Classify(err)
	case result.Accepted() || capped:
		out = outcome.Outcome{Kind: outcome.Success}
	case result.Error != "":
		out = r.table.ClassifyMessage(result.Error)
	default:
		out = outcome.Outcome{Kind: outcome.TerminalFailure, Message: "verification not accepted"}
	}
	return r.apply(scope, q, key, capped, submitted, out, log), nil
}

// markInProgress is advisory: its result is discarded.
func (r *Reconciler) markInProgress(ctx context.Context, scope *Scope, q model.Quest, log *zap.Logger) {
	if err := scope.API.Complete(ctx, q.ID); err != nil {
		log.Debug("mark in progress ignored", zap.Error(err))
	}
	if r.cfg.MarkDelay > 0 {
		_ = r.sleep(ctx, r.cfg.MarkDelay)
	}
}

func (r *Reconciler) apply(scope *Scope, q model.Quest, key cooldown.Key, capped, submitted bool, out outcome.Outcome, log *zap.Logger) outcome.Outcome {
	stats := scope.Stats.Group(key.Group)
	switch out.Kind {
	case outcome.Success, outcome.AlreadyDone:
		stats.Success++
		if capped && submitted {
			r.counter.Increment(scope.AccountID, q.Category)
			r.store.UpdateQuest(scope.AccountID, q.ID, store.RunAt(r.now().Add(r.cfg.OnChainSpacing).UnixMilli()))
		} else {
			r.store.UpdateQuest(scope.AccountID, q.ID, store.Ready())
		}
		log.Info("quest done", zap.Stringer("outcome", out.Kind), zap.String("message", out.Message))

	case outcome.Cooldown:
		stats.Failed++
		if r.resolver.Exempt(q.Title, q.Category) {
			log.Warn("limit reported for no-cooldown quest, not persisting", zap.String("message", out.Message))
			return out
		}
		window := r.cfg.SocialCooldown
		if key.Group == model.GroupOnChain {
			window = r.cfg.OnChainCooldown
		}
		out.CooldownSeconds = r.resolver.Hold(scope.AccountID, key, window)
		stats.Cooldown++
		scope.Stats.ObserveCooldown(out.CooldownSeconds)
		log.Warn("limit reached", zap.Duration("cooldown", window), zap.String("message", out.Message))

	default:
		stats.Failed++
		log.Error("quest failed", zap.Stringer("outcome", out.Kind), zap.String("message", out.Message))
	}
	return out
}
