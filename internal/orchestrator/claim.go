package orchestrator

import (
	"context"
	"time"

	"github.com/ggonzalez94/questd/internal/cooldown"
	clierr "github.com/ggonzalez94/questd/internal/errors"
	"github.com/ggonzalez94/questd/internal/model"
	"github.com/ggonzalez94/questd/internal/outcome"
	"github.com/ggonzalez94/questd/internal/quest"
	"github.com/ggonzalez94/questd/internal/retry"
	"github.com/ggonzalez94/questd/internal/store"
	"go.uber.org/zap"
)

const DailyClaimID = "daily_claim"

var dailyClaimKey = cooldown.Key{QuestID: DailyClaimID, Title: "Daily Claim", Category: "daily"}

// DailyClaim claims the daily reward once per window. A persisted future run
// time or a claim already made this UTC day skips the request.
func (o *Orchestrator) DailyClaim(ctx context.Context, scope *quest.Scope, api API) {
	log := scope.Log.With(zap.String("quest", dailyClaimKey.Title))
	stats := scope.Stats
	now := o.now()

	if remaining := o.Resolver.Remaining(scope.AccountID, DailyClaimID); remaining > 0 {
		next := now.Add(time.Duration(remaining) * time.Second)
		stats.Daily = model.DailyStatus{Status: "Cooldown", NextRun: &next}
		stats.ObserveCooldown(remaining)
		log.Info("daily claim on cooldown", zap.Duration("remaining", time.Duration(remaining)*time.Second))
		return
	}

	policy := o.Retry.WithLogger(log)
	user, err := retry.Do(ctx, policy, "claim status", func(ctx context.Context) (model.User, error) {
		return api.User(ctx, scope.AccountID)
	})
	switch {
	case err != nil:
		log.Warn("claim status unavailable, claiming anyway", zap.Error(err))
	case user.LastClaimAt != nil && !user.LastClaimAt.IsZero() && sameUTCDay(user.LastClaimAt.Time, now):
		next := nextUTCMidnight(now)
		o.Store.UpdateQuest(scope.AccountID, DailyClaimID,
			store.Describe(dailyClaimKey.Title, dailyClaimKey.Category).RunAt(next.UnixMilli()))
		stats.Daily = model.DailyStatus{Status: "Success", NextRun: &next}
		stats.ObserveCooldown(int64((next.Sub(now) + time.Second - 1) / time.Second))
		log.Info("daily claim already done today", zap.Time("last_claim", user.LastClaimAt.Time))
		return
	}

	res, err := retry.Do(ctx, policy, "daily claim", api.Claim)
	if err != nil {
		out := o.Table.Classify(err)
		// a limit counts as claimed only when the service says so in words;
		// a bare 429 is throttling and the claim is retried next cycle
		byMessage := o.Table.ClassifyMessage(clierr.RemoteMessage(err))
		if out.Failed() || (!out.Done() && byMessage.Kind != outcome.Cooldown) {
			stats.Daily = model.DailyStatus{Status: "Failed"}
			stats.AddError("daily claim: " + clierr.RemoteMessage(err))
			log.Error("daily claim failed", zap.Error(err))
			return
		}
		log.Info("daily claim already done", zap.String("message", out.Message))
	} else {
		log.Info("daily claim success", zap.Any("reward", res.Reward), zap.Any("streak", res.Streak))
	}

	seconds := o.Resolver.Hold(scope.AccountID, dailyClaimKey, o.cfg.DailyClaimCooldown)
	next := now.Add(o.cfg.DailyClaimCooldown)
	stats.Daily = model.DailyStatus{Status: "Success", NextRun: &next}
	stats.ObserveCooldown(seconds)
}

func sameUTCDay(a, b time.Time) bool {
	y1, m1, d1 := a.UTC().Date()
	y2, m2, d2 := b.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func nextUTCMidnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
