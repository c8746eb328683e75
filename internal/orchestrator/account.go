package orchestrator

import (
	"context"
	"time"

	"github.com/ggonzalez94/questd/internal/accounts"
	clierr "github.com/ggonzalez94/questd/internal/errors"
	"github.com/ggonzalez94/questd/internal/model"
	"github.com/ggonzalez94/questd/internal/quest"
	"github.com/ggonzalez94/questd/internal/retry"
	"go.uber.org/zap"
)

// ProcessAccount runs one account's pass: session validation, daily claim,
// daily routine, quest reconciliation and a final snapshot. Failures stay
// inside the returned summary.
func (o *Orchestrator) ProcessAccount(ctx context.Context, cycleID string, acc accounts.Account) *model.AccountStats {
	stats := &model.AccountStats{
		Index:       acc.Index,
		Account:     acc.Short(),
		Wallet:      acc.WalletAddress,
		IP:          acc.IP(),
		CycleID:     cycleID,
		Status:      model.AccountProcessing,
		TokenExpiry: acc.TokenExpiry(),
		Daily:       model.DailyStatus{Status: "Skipped"},
		Routine:     map[string]model.RoutineStatus{},
	}
	log := o.Log.With(zap.Int("account", acc.Index), zap.String("wallet", acc.Short()), zap.String("cycle", cycleID))
	defer func() {
		now := o.now()
		stats.LastRun = now
		if stats.MinCooldown != nil {
			next := now.Add(time.Duration(*stats.MinCooldown) * time.Second)
			stats.NextRun = &next
		}
		log.Info("account pass finished", zap.String("status", stats.Status), zap.Int64("points_delta", stats.PointsDelta()))
	}()

	if acc.Invalid != "" {
		stats.Status = model.AccountFailed
		stats.AddError(acc.Invalid)
		log.Error("skipping account", zap.String("reason", acc.Invalid))
		return stats
	}

	sess, err := o.Connector.Connect(ctx, acc)
	if err != nil {
		stats.Status = model.AccountFailed
		stats.AddError("connect: " + err.Error())
		log.Error("session setup failed", zap.Error(err))
		return stats
	}
	defer sess.Close()
	if sess.Wallet != nil {
		log.Info("on-chain enabled", zap.String("address", sess.Wallet.Address()))
	}

	scope := &quest.Scope{
		AccountID: acc.ID(),
		Index:     acc.Index,
		Log:       log,
		Stats:     stats,
		API:       sess.API,
		Wallet:    sess.Wallet,
	}

	if err := o.login(ctx, scope, sess.API); err != nil {
		if clierr.IsCode(err, clierr.CodeAuth) {
			stats.Status = model.AccountExpired
		} else {
			stats.Status = model.AccountFailed
		}
		return stats
	}

	steps := []func(context.Context, *quest.Scope, API) error{
		o.claimStep,
		o.routine,
		o.quests,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			stats.Status = model.AccountFailed
			stats.AddError("interrupted")
			return stats
		}
		if err := step(ctx, scope, sess.API); err != nil {
			if clierr.IsCode(err, clierr.CodeAuth) {
				stats.Status = model.AccountExpired
				return stats
			}
			if ctx.Err() != nil {
				stats.Status = model.AccountFailed
				stats.AddError("interrupted")
				return stats
			}
		}
	}

	o.snapshot(context.WithoutCancel(ctx), scope, sess)
	stats.Status = model.AccountCompleted
	return stats
}

func (o *Orchestrator) login(ctx context.Context, scope *quest.Scope, api API) error {
	log := scope.Log
	log.Info("verifying session")
	policy := o.Retry.WithLogger(log)
	err := policy.Run(ctx, "login", func(ctx context.Context) error {
		_, err := api.Quests(ctx)
		return err
	})
	if err != nil {
		if clierr.IsCode(err, clierr.CodeAuth) {
			log.Error("login failed: session invalid or expired, update sessionToken", zap.Error(err))
			scope.Stats.AddError("session invalid or expired")
		} else {
			log.Error("login failed", zap.Error(err))
			scope.Stats.AddError("login failed: " + clierr.RemoteMessage(err))
		}
		return err
	}

	// profile lookup is optional once the session is known good
	user, err := retry.Do(ctx, policy, "user info", func(ctx context.Context) (model.User, error) {
		return api.User(ctx, scope.AccountID)
	})
	if err != nil {
		log.Debug("user info unavailable", zap.Error(err))
		return nil
	}
	scope.Stats.StartPoints = user.Points
	log.Info("login success", zap.String("user", user.Nickname), zap.Int64("points", user.Points))
	return nil
}

func (o *Orchestrator) claimStep(ctx context.Context, scope *quest.Scope, api API) error {
	if !o.cfg.DailyClaim {
		return nil
	}
	o.DailyClaim(ctx, scope, api)
	return nil
}

func (o *Orchestrator) quests(ctx context.Context, scope *quest.Scope, api API) error {
	list, err := retry.Do(ctx, o.Retry.WithLogger(scope.Log), "get quests", api.Quests)
	if err != nil {
		scope.Log.Error("fetch quests failed", zap.Error(err))
		scope.Stats.AddError("fetch failed: " + clierr.RemoteMessage(err))
		return err
	}
	return o.Reconciler.Reconcile(ctx, scope, list)
}

// snapshot records closing points and balance; both are best-effort.
func (o *Orchestrator) snapshot(ctx context.Context, scope *quest.Scope, sess *Session) {
	if user, err := sess.API.User(ctx, scope.AccountID); err == nil {
		scope.Stats.EndPoints = user.Points
	} else {
		scope.Log.Debug("final points unavailable", zap.Error(err))
	}
	if sess.Wallet != nil {
		if balance, err := sess.Wallet.Balance(ctx); err == nil {
			scope.Stats.Balance = balance
		}
	}
}
