package orchestrator

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"

	"lockup-ledger/internal/clock"
	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/lockup"
	"lockup-ledger/internal/observability"
	"lockup-ledger/internal/reward"
	"lockup-ledger/internal/storage/memory"
	"lockup-ledger/internal/token"
)

const (
	owner   domain.Address = "owner"
	alice   domain.Address = "alice"
	lockTok domain.Address = "LOCK"
	wrnTok  domain.Address = "WRN"
)

type testEnv struct {
	tokens    *token.MemoryLedger
	clock     *clock.Manual
	snapshots *memory.SnapshotStore
	events    *memory.EventStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		tokens:    token.NewMemoryLedger(),
		clock:     clock.NewManual(100, 1_700_000_000),
		snapshots: memory.NewSnapshotStore(),
		events:    memory.NewEventStore(),
	}
	if err := env.tokens.CreateAsset(lockTok, "LOCK", 18, alice, sdkmath.NewIntWithDecimal(1000, 18)); err != nil {
		t.Fatal(err)
	}
	if err := env.tokens.CreateAsset(wrnTok, "WRN", 18, owner, sdkmath.ZeroInt()); err != nil {
		t.Fatal(err)
	}
	if err := env.tokens.AddMinter(wrnTok, "minter"); err != nil {
		t.Fatal(err)
	}
	return env
}

func (env *testEnv) open(t *testing.T) (*Orchestrator, *OpenResult) {
	t.Helper()
	orch, err := New(Options{
		Tokens:    env.tokens,
		Clock:     env.clock,
		Owner:     owner,
		Fund:      "fund",
		Custody:   "custody",
		Minter:    "minter",
		Reward:    reward.DefaultConfig(wrnTok, 100),
		Snapshots: env.snapshots,
		Events:    env.events,
		StoreName: "memory",
		Metrics:   observability.NewMetricsWith(prometheus.NewRegistry(), "test"),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	result, err := orch.Open(context.Background(), []PoolSpec{
		{Token: lockTok, MaxLockUpLimit: sdkmath.NewIntWithDecimal(1_000_000, 18), Multiplier: 1},
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return orch, result
}

func TestOrchestrator_OpenBootstrapsPools(t *testing.T) {
	env := newTestEnv(t)
	orch, result := env.open(t)

	if result.Restored {
		t.Error("expected no checkpoint to restore")
	}
	if len(result.PoolsRegistered) != 1 || result.PoolsRegistered[0] != lockTok {
		t.Errorf("expected LOCK registered, got %v", result.PoolsRegistered)
	}

	pools, err := orch.Emitter.RewardPools(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pools) != 1 || pools[0].Multiplier != 1 {
		t.Errorf("unexpected reward pools: %+v", pools)
	}
}

func TestOrchestrator_ReopenRestoresCheckpoint(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	orch, _ := env.open(t)

	amount := sdkmath.NewIntWithDecimal(10, 18)
	if err := env.tokens.Approve(ctx, lockTok, alice, "custody", amount); err != nil {
		t.Fatal(err)
	}
	if _, err := orch.Ledger.Deposit(ctx, alice, lockTok, amount, 6); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if err := orch.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	again, result := env.open(t)
	if !result.Restored {
		t.Fatal("expected checkpoint to be restored")
	}
	if len(result.PoolsRegistered) != 0 {
		t.Errorf("expected no new pools, got %v", result.PoolsRegistered)
	}
	if result.LastEventSeq != orch.Ledger.LastEventSeq() {
		t.Errorf("LastEventSeq mismatch: got %d, want %d", result.LastEventSeq, orch.Ledger.LastEventSeq())
	}

	acct, err := again.Ledger.Account(ctx, lockTok, alice)
	if err != nil {
		t.Fatal(err)
	}
	if !acct.Total.Equal(amount) {
		t.Errorf("restored total %s, want %s", acct.Total, amount)
	}

	journaled, err := env.events.LastSeq(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if journaled != result.LastEventSeq {
		t.Errorf("journal at %d, ledger at %d", journaled, result.LastEventSeq)
	}
}

func TestOrchestrator_RestartWithFreshTokenLedger(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	orch, _ := env.open(t)

	amount := sdkmath.NewIntWithDecimal(10, 18)
	if err := env.tokens.Approve(ctx, lockTok, alice, "custody", amount); err != nil {
		t.Fatal(err)
	}
	if _, err := orch.Ledger.Deposit(ctx, alice, lockTok, amount, 6); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if err := orch.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A restarted process seeds its token ledger from config again.
	restarted := newTestEnv(t)
	restarted.snapshots = env.snapshots
	restarted.events = env.events
	again, result := restarted.open(t)
	if !result.Restored {
		t.Fatal("expected checkpoint to be restored")
	}

	custody, err := restarted.tokens.BalanceOf(ctx, lockTok, "custody")
	if err != nil {
		t.Fatal(err)
	}
	if !custody.Equal(amount) {
		t.Fatalf("custody holds %s after restart, want %s", custody, amount)
	}

	restarted.clock.AdvanceTime(6 * lockup.SecondsPerMonth * time.Second)
	res, err := again.Ledger.Exit(ctx, alice, lockTok, 0, false)
	if err != nil {
		t.Fatalf("Exit after restart failed: %v", err)
	}
	if !res.Net.Equal(amount) {
		t.Errorf("exit returned %s, want %s", res.Net, amount)
	}

	bal, err := restarted.tokens.BalanceOf(ctx, lockTok, alice)
	if err != nil {
		t.Fatal(err)
	}
	if want := sdkmath.NewIntWithDecimal(1000, 18); !bal.Equal(want) {
		t.Errorf("alice holds %s, want %s", bal, want)
	}
}

func TestOrchestrator_WithoutPersistence(t *testing.T) {
	env := newTestEnv(t)
	orch, err := New(Options{
		Tokens:  env.tokens,
		Clock:   env.clock,
		Owner:   owner,
		Fund:    "fund",
		Custody: "custody",
		Minter:  "minter",
		Reward:  reward.DefaultConfig(wrnTok, 100),
	})
	if err != nil {
		t.Fatal(err)
	}
	if orch.Checkpoints != nil {
		t.Error("expected no checkpoint manager")
	}
	if err := orch.Close(context.Background()); err != nil {
		t.Errorf("Close without persistence: %v", err)
	}
}

func TestOrchestrator_RejectsMissingOwner(t *testing.T) {
	env := newTestEnv(t)
	_, err := New(Options{
		Tokens:  env.tokens,
		Clock:   env.clock,
		Fund:    "fund",
		Custody: "custody",
		Minter:  "minter",
		Reward:  reward.DefaultConfig(wrnTok, 100),
	})
	if err == nil {
		t.Fatal("expected error for missing owner")
	}
}
