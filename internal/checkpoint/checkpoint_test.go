package checkpoint

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"lockup-ledger/internal/access"
	"lockup-ledger/internal/clock"
	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/lockup"
	"lockup-ledger/internal/reward"
	"lockup-ledger/internal/storage/memory"
	"lockup-ledger/internal/token"
)

const (
	owner   domain.Address = "owner"
	fund    domain.Address = "fund"
	custody domain.Address = "custody"
	minter  domain.Address = "minter"
	alice   domain.Address = "alice"
	lockTok domain.Address = "LOCK"
	wrnTok  domain.Address = "WRN"
)

func units(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 18)
}

type system struct {
	ledger  *lockup.Ledger
	emitter *reward.Emitter
}

// newSystem builds a ledger with an attached emitter over shared tokens and clock.
func newSystem(t *testing.T, tokens *token.MemoryLedger, clk clock.Clock) system {
	t.Helper()

	ac, err := access.NewController(owner)
	require.NoError(t, err)
	l, err := lockup.NewLedger(lockup.Options{
		Token: tokens, Access: ac, Clock: clk, Custody: custody, Fund: fund,
	})
	require.NoError(t, err)
	e, err := reward.NewEmitter(l, reward.Options{
		Config: reward.DefaultConfig(wrnTok, 100),
		Minter: minter,
	})
	require.NoError(t, err)
	return system{ledger: l, emitter: e}
}

func newTokens(t *testing.T) *token.MemoryLedger {
	t.Helper()
	tokens := token.NewMemoryLedger()
	require.NoError(t, tokens.CreateAsset(lockTok, "LOCK", 18, alice, units(1000)))
	require.NoError(t, tokens.CreateAsset(wrnTok, "WRN", 18, owner, sdkmath.ZeroInt()))
	require.NoError(t, tokens.AddMinter(wrnTok, minter))
	require.NoError(t, tokens.Approve(context.Background(), lockTok, alice, custody, units(1000)))
	return tokens
}

func TestManager_SaveAndRestore(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(100, 1_700_000_000)
	tokens := newTokens(t)
	src := newSystem(t, tokens, clk)

	require.NoError(t, src.emitter.RegisterRewardPool(ctx, owner, lockTok, 2, units(1_000_000), false))
	clk.AdvanceBlocks(1)
	_, err := src.ledger.Deposit(ctx, alice, lockTok, units(100), 12)
	require.NoError(t, err)
	clk.AdvanceBlocks(4)

	store := memory.NewSnapshotStore()
	mgr, err := NewManager(src.ledger, Options{Snapshots: store})
	require.NoError(t, err)

	info, err := mgr.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.ID)
	assert.Equal(t, 1, info.Pools)
	assert.Equal(t, 1, info.Accounts)
	assert.Equal(t, src.ledger.LastEventSeq(), info.LastEventSeq)

	dst := newSystem(t, tokens, clk)
	restorer, err := NewManager(dst.ledger, Options{Snapshots: store})
	require.NoError(t, err)
	ok, err := restorer.RestoreLatest(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	wantPool, err := src.ledger.Pool(ctx, lockTok)
	require.NoError(t, err)
	gotPool, err := dst.ledger.Pool(ctx, lockTok)
	require.NoError(t, err)
	assert.Equal(t, wantPool.TotalLockUp.String(), gotPool.TotalLockUp.String())
	assert.Equal(t, wantPool.EffectiveTotalLockUp.String(), gotPool.EffectiveTotalLockUp.String())

	wantReward, err := src.emitter.PendingReward(ctx, lockTok, alice)
	require.NoError(t, err)
	gotReward, err := dst.emitter.PendingReward(ctx, lockTok, alice)
	require.NoError(t, err)
	assert.True(t, wantReward.IsPositive())
	assert.Equal(t, wantReward.String(), gotReward.String())
	assert.Equal(t, src.ledger.LastEventSeq(), dst.ledger.LastEventSeq())

	infos, err := restorer.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestManager_RestoreLatestEmpty(t *testing.T) {
	ctx := context.Background()
	sys := newSystem(t, newTokens(t), clock.NewManual(100, 1_700_000_000))

	mgr, err := NewManager(sys.ledger, Options{Snapshots: memory.NewSnapshotStore()})
	require.NoError(t, err)

	ok, err := mgr.RestoreLatest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, mgr.Restore(ctx, 7))
}

func TestManager_WarnsWhenJournalIsAhead(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(100, 1_700_000_000)
	tokens := newTokens(t)
	src := newSystem(t, tokens, clk)

	events := memory.NewEventStore()
	src.ledger.AddSink(NewJournal(events, "memory", nil))
	snapshots := memory.NewSnapshotStore()
	mgr, err := NewManager(src.ledger, Options{Snapshots: snapshots, Events: events})
	require.NoError(t, err)

	require.NoError(t, src.emitter.RegisterRewardPool(ctx, owner, lockTok, 1, units(1_000_000), false))
	_, err = mgr.Save(ctx)
	require.NoError(t, err)
	_, err = src.ledger.Deposit(ctx, alice, lockTok, units(1), 3)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.WarnLevel)
	dst := newSystem(t, tokens, clk)
	restorer, err := NewManager(dst.ledger, Options{Snapshots: snapshots, Events: events, Logger: zap.New(core)})
	require.NoError(t, err)

	ok, err := restorer.RestoreLatest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("journal is ahead of the restored checkpoint").Len())
}

func TestJournal_AppendsCommittedEvents(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(100, 1_700_000_000)
	sys := newSystem(t, newTokens(t), clk)

	events := memory.NewEventStore()
	sys.ledger.AddSink(NewJournal(events, "memory", nil))

	require.NoError(t, sys.emitter.RegisterRewardPool(ctx, owner, lockTok, 1, units(1_000_000), false))
	_, err := sys.ledger.Deposit(ctx, alice, lockTok, units(10), 6)
	require.NoError(t, err)

	// Rejected operations journal nothing.
	_, err = sys.ledger.Deposit(ctx, alice, lockTok, units(10), 1)
	require.Error(t, err)

	last, err := events.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, sys.ledger.LastEventSeq(), last)

	stored, err := events.GetBySeqRange(ctx, 1, last)
	require.NoError(t, err)
	require.Len(t, stored, int(last))
	for i, ev := range stored {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}

	byAlice, err := events.GetByAccount(ctx, alice)
	require.NoError(t, err)
	require.NotEmpty(t, byAlice)
	assert.Equal(t, domain.EventDeposited, byAlice[len(byAlice)-1].Kind)
}
