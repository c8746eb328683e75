package orchestrator

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/ggonzalez94/questd/internal/accounts"
	"github.com/ggonzalez94/questd/internal/cooldown"
	"github.com/ggonzalez94/questd/internal/daily"
	clierr "github.com/ggonzalez94/questd/internal/errors"
	"github.com/ggonzalez94/questd/internal/model"
	"github.com/ggonzalez94/questd/internal/outcome"
	"github.com/ggonzalez94/questd/internal/quest"
	"github.com/ggonzalez94/questd/internal/questapi"
	"github.com/ggonzalez94/questd/internal/retry"
	"github.com/ggonzalez94/questd/internal/store"
	"go.uber.org/zap/zaptest"
)

const wallet1 = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

type fakeAPI struct {
	quests     []model.Quest
	questsErr  error
	points     int64
	lastClaim  *time.Time
	claimErr   error
	userCalls  int
	claimCalls int
	verifies   int
	activities []questapi.ActivityRequest
}

func (f *fakeAPI) Complete(context.Context, string) error { return nil }

func (f *fakeAPI) Verify(context.Context, string, map[string]any) (model.ActionResult, error) {
	f.verifies++
	return model.ActionResult{Success: true}, nil
}

func (f *fakeAPI) Quests(context.Context) ([]model.Quest, error) {
	return f.quests, f.questsErr
}

func (f *fakeAPI) User(context.Context, string) (model.User, error) {
	f.userCalls++
	user := model.User{Nickname: "tester", Points: f.points}
	if f.lastClaim != nil {
		user.LastClaimAt = &model.Timestamp{Time: *f.lastClaim}
	}
	return user, nil
}

func (f *fakeAPI) Claim(context.Context) (model.ActionResult, error) {
	f.claimCalls++
	if f.claimErr != nil {
		return model.ActionResult{}, f.claimErr
	}
	f.points += 15
	return model.ActionResult{Success: true, Reward: 15}, nil
}

func (f *fakeAPI) RecordActivityBestEffort(_ context.Context, req questapi.ActivityRequest) int64 {
	f.activities = append(f.activities, req)
	return int64(len(f.activities))
}

type fakeWallet struct {
	sends [][2]string
}

func (w *fakeWallet) Address() string { return wallet1 }

func (w *fakeWallet) Balance(context.Context) (string, error) { return "3.5", nil }

func (w *fakeWallet) SendTransfer(_ context.Context, to, amount string) (string, error) {
	w.sends = append(w.sends, [2]string{to, amount})
	return "0xhash", nil
}

type connectorFunc func(ctx context.Context, acc accounts.Account) (*Session, error)

func (f connectorFunc) Connect(ctx context.Context, acc accounts.Account) (*Session, error) {
	return f(ctx, acc)
}

type harness struct {
	now      time.Time
	store    *store.Store
	counter  *daily.Counter
	api      *fakeAPI
	wallet   quest.Wallet
	connects int
	reports  []*model.AccountStats
	sleeps   []time.Duration
	orch     *Orchestrator
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), api: &fakeAPI{points: 10}}
	clock := func() time.Time { return h.now }
	noSleep := func(context.Context, time.Duration) error { return nil }
	log := zaptest.NewLogger(t)

	h.store = store.New(nil, log, store.WithClock(clock), store.WithLocation(time.UTC))
	h.counter = daily.New(h.store,
		map[string]int{"shield": 1, "private_send": 1, "unshield": 1},
		[]string{"shield", "unshield", "private_send", "faucet"}, 1)
	resolver := cooldown.New(h.store, []string{"shield", "unshield", "invite"}, clock)
	policy := retry.New(3, time.Second, time.Second, log).WithSleeper(noSleep)
	table := outcome.DefaultTable()
	rec := quest.New(cfg.Quest, h.store, h.counter, resolver, policy, table,
		quest.WithClock(clock), quest.WithSleeper(noSleep))

	h.orch = New(cfg, Deps{
		Store:      h.store,
		Counter:    h.counter,
		Resolver:   resolver,
		Reconciler: rec,
		Retry:      policy,
		Table:      table,
		Connector: connectorFunc(func(context.Context, accounts.Account) (*Session, error) {
			h.connects++
			return &Session{API: h.api, Wallet: h.wallet}, nil
		}),
		Sink: SinkFunc(func(s *model.AccountStats) { h.reports = append(h.reports, s) }),
		Log:  log,
	},
		WithClock(clock),
		WithRand(rand.New(rand.NewSource(3))),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		}),
	)
	return h
}

func testAccount(index int, addr string) accounts.Account {
	return accounts.Account{Index: index, WalletAddress: addr, SessionToken: "tok"}
}

func TestProcessAccountFullPass(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.api.quests = []model.Quest{{ID: "q1", Title: "Follow", Category: "follow"}}

	stats := h.orch.ProcessAccount(context.Background(), "cycle-1", testAccount(1, wallet1))

	if stats.Status != model.AccountCompleted {
		t.Fatalf("expected completed, got %s (%v)", stats.Status, stats.Errors)
	}
	if stats.StartPoints != 10 || stats.EndPoints != 25 || stats.PointsDelta() != 15 {
		t.Fatalf("unexpected points %d -> %d", stats.StartPoints, stats.EndPoints)
	}
	if stats.Daily.Status != "Success" || stats.MinCooldown == nil || *stats.MinCooldown != 86400 {
		t.Fatalf("unexpected daily claim state %+v min=%v", stats.Daily, stats.MinCooldown)
	}
	claim, ok := h.store.Quest(wallet1, DailyClaimID)
	if !ok || claim.NextRunTime != h.now.Add(24*time.Hour).UnixMilli() || claim.Category != "daily" {
		t.Fatalf("unexpected persisted claim %+v", claim)
	}
	if stats.Routine["shield"].Count != 1 || stats.Routine["unshield"].Count != 1 || stats.Routine["private_send"].Count != 0 {
		t.Fatalf("unexpected routine %+v", stats.Routine)
	}
	if len(h.api.activities) != 4 || h.api.activities[0].Action != "create" || h.api.activities[1].ActivityID != 1 {
		t.Fatalf("unexpected activity records %+v", h.api.activities)
	}
	if stats.OnChain.Success != 2 || stats.Social.Success != 1 || h.api.verifies != 1 {
		t.Fatalf("unexpected stats social=%+v onchain=%+v", stats.Social, stats.OnChain)
	}
	if stats.IP != "Direct" || stats.CycleID != "cycle-1" || stats.NextRun == nil {
		t.Fatalf("unexpected summary %+v", stats)
	}
	// routine delay only between actions of the same category
	if len(h.sleeps) != 0 {
		t.Fatalf("unexpected pacing sleeps %v", h.sleeps)
	}
}

func TestLoginRejectedMarksExpired(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.api.questsErr = clierr.HTTP(clierr.CodeAuth, 401, "unauthorized")

	stats := h.orch.ProcessAccount(context.Background(), "c", testAccount(1, wallet1))
	if stats.Status != model.AccountExpired {
		t.Fatalf("expected expired, got %s", stats.Status)
	}
	if h.api.claimCalls != 0 || h.api.verifies != 0 || len(h.api.activities) != 0 {
		t.Fatal("nothing may run after a rejected login")
	}
	if len(stats.Errors) != 1 {
		t.Fatalf("unexpected errors %v", stats.Errors)
	}
}

func TestInvalidAccountIsSkipped(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	acc := accounts.Account{Index: 2, Invalid: "invalid private key"}
	stats := h.orch.ProcessAccount(context.Background(), "c", acc)
	if stats.Status != model.AccountFailed || h.connects != 0 {
		t.Fatalf("expected failed without connecting, got %s (%d connects)", stats.Status, h.connects)
	}
}

func TestDailyClaimAlreadyDoneTodayUTC(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	earlier := h.now.Add(-3 * time.Hour)
	h.api.lastClaim = &earlier
	scope := &quest.Scope{AccountID: wallet1, Log: zaptest.NewLogger(t), Stats: &model.AccountStats{}}

	h.orch.DailyClaim(context.Background(), scope, h.api)

	if h.api.claimCalls != 0 {
		t.Fatal("claim must not be sent twice in one UTC day")
	}
	midnight := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	saved, _ := h.store.Quest(wallet1, DailyClaimID)
	if saved.NextRunTime != midnight.UnixMilli() {
		t.Fatalf("expected next midnight, got %d", saved.NextRunTime)
	}
	if *scope.Stats.MinCooldown != 12*3600 {
		t.Fatalf("unexpected min cooldown %d", *scope.Stats.MinCooldown)
	}

	// persisted window short-circuits the next pass
	h.api.userCalls = 0
	scope.Stats = &model.AccountStats{}
	h.orch.DailyClaim(context.Background(), scope, h.api)
	if h.api.userCalls != 0 || scope.Stats.Daily.Status != "Cooldown" {
		t.Fatalf("expected local cooldown skip, got %+v after %d user calls", scope.Stats.Daily, h.api.userCalls)
	}
}

func TestDailyClaimRejections(t *testing.T) {
	cases := []struct {
		err    error
		status string
	}{
		{clierr.HTTP(clierr.CodeRejected, 400, "already claimed"), "Success"},
		{clierr.HTTP(clierr.CodeRejected, 422, "daily limit"), "Success"},
		{clierr.HTTP(clierr.CodeRejected, 404, "not found"), "Failed"},
		{clierr.HTTP(clierr.CodeRateLimited, 429, "Too Many Requests"), "Failed"},
		{clierr.HTTP(clierr.CodeRateLimited, 429, "claim limit reached"), "Success"},
	}
	for _, tc := range cases {
		h := newHarness(t, DefaultConfig())
		h.api.claimErr = tc.err
		scope := &quest.Scope{AccountID: wallet1, Log: zaptest.NewLogger(t), Stats: &model.AccountStats{}}
		h.orch.DailyClaim(context.Background(), scope, h.api)
		if scope.Stats.Daily.Status != tc.status {
			t.Fatalf("%v: expected %s, got %s", tc.err, tc.status, scope.Stats.Daily.Status)
		}
		_, persisted := h.store.Quest(wallet1, DailyClaimID)
		if persisted != (tc.status == "Success") {
			t.Fatalf("%v: unexpected persistence %v", tc.err, persisted)
		}
	}
}

func TestRoutineWithWallet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quest.Amounts = nil
	h := newHarness(t, cfg)
	w := &fakeWallet{}
	h.wallet = w
	h.counter = daily.New(h.store, map[string]int{"shield": 2, "private_send": 1, "unshield": 0}, nil, 1)
	h.orch.Counter = h.counter

	scope := &quest.Scope{AccountID: wallet1, Log: zaptest.NewLogger(t), Stats: &model.AccountStats{Routine: map[string]model.RoutineStatus{}}, Wallet: w}
	if err := h.orch.routine(context.Background(), scope, h.api); err != nil {
		t.Fatalf("routine failed: %v", err)
	}
	if len(w.sends) != 3 {
		t.Fatalf("expected 3 transfers, got %v", w.sends)
	}
	if w.sends[0][0] != "" || w.sends[1][0] != "" {
		t.Fatalf("shield must self-transfer, got %v", w.sends)
	}
	found := false
	for _, target := range quest.DefaultTransferTargets {
		if w.sends[2][0] == target {
			found = true
		}
	}
	if !found {
		t.Fatalf("private send went to unknown target %s", w.sends[2][0])
	}
	if len(h.sleeps) != 1 {
		t.Fatalf("expected one pacing sleep between shield steps, got %v", h.sleeps)
	}
	if d := h.sleeps[0]; d < DefaultRoutineDelay || d >= DefaultRoutineDelay+DefaultRoutineJitter {
		t.Fatalf("pacing delay out of range: %s", d)
	}
	if scope.Stats.Routine["shield"] != (model.RoutineStatus{Count: 2, Target: 2}) {
		t.Fatalf("unexpected shield status %+v", scope.Stats.Routine["shield"])
	}
}

func TestRunOncePacesAccounts(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	accts := []accounts.Account{
		testAccount(1, wallet1),
		testAccount(2, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
	}
	if err := h.orch.Run(context.Background(), accts, true); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(h.reports) != 2 {
		t.Fatalf("expected two reports, got %d", len(h.reports))
	}
	if h.reports[0].CycleID == "" || h.reports[0].CycleID != h.reports[1].CycleID {
		t.Fatalf("accounts of one cycle must share its id")
	}
	if len(h.sleeps) != 1 || h.sleeps[0] != DefaultAccountDelay {
		t.Fatalf("expected one inter-account delay, got %v", h.sleeps)
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.orch.Run(ctx, []accounts.Account{testAccount(1, wallet1)}, false); err != nil {
		t.Fatalf("cancellation must be a clean stop, got %v", err)
	}
	if h.connects != 0 {
		t.Fatal("no account may start after cancellation")
	}
}

func TestNextWait(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	if got := h.orch.NextWait(nil); got != DefaultIdleInterval {
		t.Fatalf("expected idle interval, got %s", got)
	}
	a, b := int64(600), int64(120)
	got := h.orch.NextWait([]*model.AccountStats{{MinCooldown: &a}, {}, {MinCooldown: &b}})
	if got != 120*time.Second+DefaultCycleBuffer {
		t.Fatalf("unexpected wait %s", got)
	}
}
