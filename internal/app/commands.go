package app

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ggonzalez94/questd/internal/accounts"
	"github.com/ggonzalez94/questd/internal/cooldown"
	"github.com/ggonzalez94/questd/internal/daily"
	clierr "github.com/ggonzalez94/questd/internal/errors"
	"github.com/ggonzalez94/questd/internal/model"
	"github.com/ggonzalez94/questd/internal/orchestrator"
	"github.com/ggonzalez94/questd/internal/out"
	"github.com/ggonzalez94/questd/internal/outcome"
	"github.com/ggonzalez94/questd/internal/quest"
	"github.com/ggonzalez94/questd/internal/retry"
	"github.com/ggonzalez94/questd/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (s *runtimeState) newRunCommand() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every account, repeating until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accts, err := accounts.Load(s.settings.AccountsPath)
			if err != nil {
				return err
			}
			st, err := s.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			s.log.Info("loaded accounts", zap.Int("count", len(accts)), zap.String("store", s.settings.StorePath))
			return s.buildOrchestrator(st).Run(cmd.Context(), accts, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single cycle and exit")
	return cmd
}

func (s *runtimeState) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [account]",
		Short: "Show persisted quest cooldowns and daily counters",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := s.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ids := st.Accounts()
			if len(args) == 1 {
				id, err := s.resolveAccount(st, args[0])
				if err != nil {
					return err
				}
				ids = []string{id}
			}
			states := make([]model.AccountState, 0, len(ids))
			for _, id := range ids {
				states = append(states, accountState(id, st.Account(id), s.runner.now()))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), states)
		},
	}
}

func (s *runtimeState) newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <account> [quest-id]",
		Short: "Make a quest, or every quest of an account, ready now",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := s.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			id, err := s.resolveAccount(st, args[0])
			if err != nil {
				return err
			}
			result := map[string]any{"account": id}
			if len(args) == 2 {
				if !st.ResetQuest(id, args[1]) {
					return clierr.New(clierr.CodeUsage, "no stored quest "+args[1]+" for "+id)
				}
				result["quest_id"] = args[1]
				result["reset"] = 1
			} else {
				result["reset"] = st.ResetAccount(id)
			}
			s.log.Info("reset cooldowns", zap.String("account", id), zap.Any("reset", result["reset"]))
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), result)
		},
	}
}

func (s *runtimeState) openStore() (*store.Store, error) {
	st, err := store.Open(s.settings.StoreDriver, s.settings.StorePath, s.settings.StoreLockPath, s.log,
		store.WithClock(s.runner.now))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeStore, "open store", err)
	}
	return st, nil
}

// resolveAccount accepts a stored account id (case-insensitive) or a 1-based
// index into the accounts file.
func (s *runtimeState) resolveAccount(st *store.Store, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	for _, id := range st.Accounts() {
		if strings.EqualFold(id, arg) {
			return id, nil
		}
	}
	if n, err := strconv.Atoi(arg); err == nil {
		accts, err := accounts.Load(s.settings.AccountsPath)
		if err != nil {
			return "", err
		}
		if n < 1 || n > len(accts) {
			return "", clierr.New(clierr.CodeUsage, "account index out of range: "+arg)
		}
		return accts[n-1].ID(), nil
	}
	return "", clierr.New(clierr.CodeUsage, "unknown account: "+arg)
}

func accountState(id string, rec store.AccountRecord, now time.Time) model.AccountState {
	state := model.AccountState{
		Account:  id,
		Quests:   make([]model.QuestRecord, 0, len(rec.Quests)),
		Counters: make([]model.CounterRecord, 0, len(rec.DailyCounts)),
	}
	for qid, q := range rec.Quests {
		r := model.QuestRecord{
			Account:  id,
			QuestID:  qid,
			Title:    q.Title,
			Category: q.Category,
			Ready:    q.NextRunTime <= now.UnixMilli(),
		}
		if q.NextRunTime > 0 {
			t := time.UnixMilli(q.NextRunTime).UTC()
			r.NextRunTime = &t
		}
		state.Quests = append(state.Quests, r)
	}
	sort.Slice(state.Quests, func(i, j int) bool { return state.Quests[i].QuestID < state.Quests[j].QuestID })
	for cat, c := range rec.DailyCounts {
		state.Counters = append(state.Counters, model.CounterRecord{
			Account:    id,
			Category:   cat,
			Count:      c.Count,
			LastTxTime: time.UnixMilli(c.LastTxTime).UTC(),
		})
	}
	sort.Slice(state.Counters, func(i, j int) bool { return state.Counters[i].Category < state.Counters[j].Category })
	return state
}

// buildOrchestrator wires the engine from settings. Every component shares
// the one store so cooldowns and counters stay consistent within a process.
func (s *runtimeState) buildOrchestrator(st *store.Store) *orchestrator.Orchestrator {
	set := s.settings
	now := s.runner.now

	counter := daily.New(st, set.DailyTargets, set.OnChainCategories, 1)
	resolver := cooldown.New(st, set.NoCooldown, now)
	policy := retry.New(set.Retries, set.RetryBaseDelay, set.RetryJitter, s.log)
	table := outcome.Policy(set.AlreadyWords, set.AlreadyStatuses, set.CooldownWords)

	qcfg := quest.Config{
		SocialCooldown:  set.SocialCooldown,
		OnChainCooldown: set.OnChainCooldown,
		OnChainSpacing:  set.OnChainSpacing,
		MarkDelay:       set.MarkDelay,
		MinBalance:      set.MinBalance,
		TransferTargets: set.TransferTargets,
		Amounts:         set.Amounts,
		TwitterUsername: set.TwitterUsername,
		TweetURL:        set.TweetURL,
	}
	reconciler := quest.New(qcfg, st, counter, resolver, policy, table, quest.WithClock(now))

	connector := orchestrator.RemoteConnector{
		BaseURL:   set.BaseURL,
		WalletURL: set.WalletURL,
		RPCURL:    set.RPCURL,
		Timeout:   set.Timeout,
		Log:       s.log,
	}

	cfg := orchestrator.Config{
		AccountDelay:       set.AccountDelay,
		RoutineDelay:       set.RoutineDelay,
		RoutineJitter:      set.RoutineJitter,
		CycleBuffer:        set.CycleBuffer,
		IdleInterval:       set.IdleInterval,
		DailyClaim:         set.DailyClaim,
		DailyClaimCooldown: set.DailyClaimCooldown,
		Routine:            set.Routine,
		Quest:              qcfg,
	}
	return orchestrator.New(cfg, orchestrator.Deps{
		Store:      st,
		Counter:    counter,
		Resolver:   resolver,
		Reconciler: reconciler,
		Retry:      policy,
		Table:      table,
		Connector:  connector,
		Sink:       out.NewReporter(s.runner.stdout, set.OutputMode, now),
		Log:        s.log,
	}, orchestrator.WithClock(now))
}
