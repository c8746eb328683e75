package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/ggonzalez94/questd/internal/model"
	"github.com/ggonzalez94/questd/internal/quest"
	"github.com/ggonzalez94/questd/internal/questapi"
	"github.com/ggonzalez94/questd/internal/wallet"
	"go.uber.org/zap"
)

const privateSend = "private_send"

// routine tops every routine category up to its daily target, pausing a
// randomized interval between actions, then records the final counts.
func (o *Orchestrator) routine(ctx context.Context, scope *quest.Scope, api API) error {
	for _, category := range o.cfg.Routine {
		category = strings.ToLower(strings.TrimSpace(category))
		target := o.Counter.Target(category)
		count := o.Counter.Count(scope.AccountID, category)
		needed := target - count
		log := scope.Log.With(zap.String("routine", category))

		if needed <= 0 {
			log.Info("routine target met", zap.Int("count", count), zap.Int("target", target))
		} else {
			log.Info("running routine", zap.Int("needed", needed))
			for i := 0; i < needed; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				o.routineAction(context.WithoutCancel(ctx), scope, api, category, count+i+1, target, log)
				if i < needed-1 {
					if err := o.sleep(ctx, o.routineDelay()); err != nil {
						return err
					}
				}
			}
		}
		scope.Stats.Routine[category] = model.RoutineStatus{
			Count:  o.Counter.Count(scope.AccountID, category),
			Target: target,
		}
	}
	return nil
}

func (o *Orchestrator) routineDelay() time.Duration {
	d := o.cfg.RoutineDelay
	if o.cfg.RoutineJitter > 0 {
		d += time.Duration(o.rnd.Int63n(int64(o.cfg.RoutineJitter)))
	}
	return d
}

func (o *Orchestrator) routineAction(ctx context.Context, scope *quest.Scope, api API, category string, current, target int, log *zap.Logger) {
	log = log.With(zap.Int("step", current), zap.Int("target", target))
	if category == privateSend {
		o.privateSend(ctx, scope, category, log)
		return
	}

	// shield-style actions are bracketed by wallet activity records
	activityID := api.RecordActivityBestEffort(ctx, questapi.CreateActivity(category, scope.AccountID))
	hash := wallet.PlaceholderTxHash()
	if scope.Wallet != nil {
		amount, err := o.cfg.Quest.AmountFor(category).Pick(o.rnd)
		if err != nil {
			log.Error("invalid amount range", zap.Error(err))
			return
		}
		hash, err = scope.Wallet.SendTransfer(ctx, "", amount)
		if err != nil {
			scope.Stats.OnChain.Total++
			scope.Stats.OnChain.Failed++
			log.Error("routine transfer failed", zap.Error(err))
			return
		}
	}
	api.RecordActivityBestEffort(ctx, questapi.UpdateActivity(category, scope.AccountID, activityID, hash))
	o.routineDone(scope, category, hash, log)
}

func (o *Orchestrator) privateSend(ctx context.Context, scope *quest.Scope, category string, log *zap.Logger) {
	if scope.Wallet == nil {
		log.Warn("private send needs a wallet, skipping")
		return
	}
	targets := o.cfg.Quest.TransferTargets
	if len(targets) == 0 {
		log.Warn("no transfer targets configured, skipping")
		return
	}
	to := targets[o.rnd.Intn(len(targets))]
	amount, err := o.cfg.Quest.AmountFor(category).Pick(o.rnd)
	if err != nil {
		log.Error("invalid amount range", zap.Error(err))
		return
	}
	hash, err := scope.Wallet.SendTransfer(ctx, to, amount)
	if err != nil {
		scope.Stats.OnChain.Total++
		scope.Stats.OnChain.Failed++
		log.Error("private send failed", zap.Error(err))
		return
	}
	o.routineDone(scope, category, hash, log)
}

func (o *Orchestrator) routineDone(scope *quest.Scope, category, hash string, log *zap.Logger) {
	o.Counter.Increment(scope.AccountID, category)
	scope.Stats.OnChain.Total++
	scope.Stats.OnChain.Success++
	log.Info("routine action done", zap.String("tx", hash))
}
