package lockup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"lockup-ledger/internal/access"
	"lockup-ledger/internal/clock"
	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/storage"
	"lockup-ledger/internal/token"
)

const (
	owner   domain.Address = "owner"
	fund    domain.Address = "fund"
	custody domain.Address = "custody"
	alice   domain.Address = "alice"
	bob     domain.Address = "bob"
	carol   domain.Address = "carol"
	dave    domain.Address = "dave"
	lockTok domain.Address = "LOCK"

	genesisTime = int64(1_700_000_000)
	month       = SecondsPerMonth * time.Second
)

func units(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 18)
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	clock  *clock.Manual
	tokens *token.MemoryLedger
	ledger *Ledger
	events []domain.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureAt(t, genesisTime)
}

func newFixtureAt(t *testing.T, now int64) *fixture {
	t.Helper()

	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		clock:  clock.NewManual(100, now),
		tokens: token.NewMemoryLedger(),
	}
	require.NoError(t, f.tokens.CreateAsset(lockTok, "LOCK", 18, owner, units(10_000_000)))

	ac, err := access.NewController(owner)
	require.NoError(t, err)

	f.ledger, err = NewLedger(Options{
		Token:   f.tokens,
		Access:  ac,
		Clock:   f.clock,
		Custody: custody,
		Fund:    fund,
	})
	require.NoError(t, err)
	f.ledger.AddSink(SinkFunc(func(_ context.Context, evs []domain.Event) error {
		f.events = append(f.events, evs...)
		return nil
	}))

	require.NoError(t, f.ledger.RegisterPool(f.ctx, owner, lockTok, units(1_000_000)))
	f.events = nil
	return f
}

// give funds user and approves the custody account for the same amount.
func (f *fixture) give(user domain.Address, amount sdkmath.Int) {
	f.t.Helper()
	require.NoError(f.t, f.tokens.Transfer(f.ctx, lockTok, owner, user, amount))
	allowed, err := f.tokens.Allowance(f.ctx, lockTok, user, custody)
	require.NoError(f.t, err)
	require.NoError(f.t, f.tokens.Approve(f.ctx, lockTok, user, custody, allowed.Add(amount)))
}

func (f *fixture) deposit(user domain.Address, amount sdkmath.Int, months uint64) uint64 {
	f.t.Helper()
	f.give(user, amount)
	idx, err := f.ledger.Deposit(f.ctx, user, lockTok, amount, months)
	require.NoError(f.t, err)
	return idx
}

func (f *fixture) balance(who domain.Address) sdkmath.Int {
	f.t.Helper()
	b, err := f.tokens.BalanceOf(f.ctx, lockTok, who)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) earned(user domain.Address) sdkmath.Int {
	f.t.Helper()
	b, err := f.ledger.EarnedBonus(f.ctx, lockTok, user)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) pool() domain.TokenPool {
	f.t.Helper()
	p, err := f.ledger.Pool(f.ctx, lockTok)
	require.NoError(f.t, err)
	return p
}

// requireCustodyReconciles checks that custody holds exactly the locked
// principal plus penalties not yet paid out as bonus.
func (f *fixture) requireCustodyReconciles() {
	f.t.Helper()
	p := f.pool()
	want := p.TotalLockUp.Add(p.TotalPenaltyCollected).Sub(p.TotalBonusClaimed)
	require.Equal(f.t, want.String(), f.balance(custody).String())
}

func requireIntEqual(t *testing.T, want, got sdkmath.Int) {
	t.Helper()
	require.Equal(t, want.String(), got.String())
}

func TestBoost(t *testing.T) {
	tests := []struct {
		months uint64
		want   uint64
	}{
		{0, 0},
		{2, 0},
		{3, 1},
		{5, 1},
		{6, 2},
		{12, 4},
		{119, 39},
		{120, 40},
	}
	for _, tt := range tests {
		if got := Boost(tt.months); got != tt.want {
			t.Errorf("Boost(%d) = %d, want %d", tt.months, got, tt.want)
		}
	}
}

func TestValidateDuration(t *testing.T) {
	for _, months := range []uint64{0, 1, 2, 121, 1000} {
		if err := ValidateDuration(months); !errors.Is(err, domain.ErrInvalidDuration) {
			t.Errorf("ValidateDuration(%d) = %v, want ErrInvalidDuration", months, err)
		}
	}
	for _, months := range []uint64{3, 4, 60, 120} {
		if err := ValidateDuration(months); err != nil {
			t.Errorf("ValidateDuration(%d) = %v, want nil", months, err)
		}
	}
}

func TestEarlyExitCut(t *testing.T) {
	penalty, fee := EarlyExitCut(sdkmath.NewInt(1000))
	if penalty.Int64() != 100 || fee.Int64() != 30 {
		t.Errorf("EarlyExitCut(1000) = %s, %s, want 100, 30", penalty, fee)
	}

	penalty, fee = EarlyExitCut(sdkmath.NewInt(9))
	if !penalty.IsZero() || !fee.IsZero() {
		t.Errorf("EarlyExitCut(9) = %s, %s, want 0, 0", penalty, fee)
	}
}

func TestRegisterPool(t *testing.T) {
	f := newFixture(t)

	err := f.ledger.RegisterPool(f.ctx, alice, "OTHER", units(10))
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	err = f.ledger.RegisterPool(f.ctx, owner, lockTok, units(10))
	require.ErrorIs(t, err, domain.ErrPoolAlreadyExists)

	require.NoError(t, f.ledger.RegisterPool(f.ctx, owner, "OTHER", units(10)))
	pools, err := f.ledger.Pools(f.ctx)
	require.NoError(t, err)
	require.Len(t, pools, 2)
	require.Equal(t, lockTok, pools[0].Token)
	require.Equal(t, domain.Address("OTHER"), pools[1].Token)
	require.True(t, pools[1].TotalLockUp.IsZero())
	require.Equal(t, genesisTime, pools[1].CreatedAt)
}

func TestUpdateMaxLimit(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.ledger.UpdateMaxLimit(f.ctx, alice, lockTok, units(1)), domain.ErrUnauthorized)
	require.ErrorIs(t, f.ledger.UpdateMaxLimit(f.ctx, owner, "NOPE", units(1)), domain.ErrPoolNotFound)

	require.NoError(t, f.ledger.UpdateMaxLimit(f.ctx, owner, lockTok, units(150)))
	requireIntEqual(t, units(150), f.pool().MaxLockUpLimit)

	f.deposit(alice, units(100), 3)

	f.give(bob, units(51))
	_, err := f.ledger.Deposit(f.ctx, bob, lockTok, units(51), 3)
	require.ErrorIs(t, err, domain.ErrMaxLimitExceeded)

	_, err = f.ledger.Deposit(f.ctx, bob, lockTok, units(50), 3)
	require.NoError(t, err)
}

func TestDeposit(t *testing.T) {
	f := newFixture(t)

	idx := f.deposit(alice, units(100), 12)
	require.Equal(t, uint64(0), idx)

	pos, err := f.ledger.Position(f.ctx, lockTok, alice, 0)
	require.NoError(t, err)
	requireIntEqual(t, units(100), pos.Amount)
	requireIntEqual(t, units(400), pos.EffectiveAmount)
	require.Equal(t, genesisTime, pos.LockedUpAt)
	require.Equal(t, genesisTime+12*SecondsPerMonth, pos.UnlockedAt)
	require.Equal(t, domain.PositionActive, pos.State(f.clock.Now()))

	p := f.pool()
	requireIntEqual(t, units(100), p.TotalLockUp)
	requireIntEqual(t, units(400), p.EffectiveTotalLockUp)
	requireIntEqual(t, units(100), p.AccTotalLockUp)
	require.Equal(t, uint64(1), p.LockUpCount)
	require.Equal(t, uint64(1), p.ActiveLockUpCount)

	requireIntEqual(t, units(100), f.balance(custody))
	require.True(t, f.balance(alice).IsZero())

	idx = f.deposit(alice, units(50), 3)
	require.Equal(t, uint64(1), idx)

	acct, err := f.ledger.Account(f.ctx, lockTok, alice)
	require.NoError(t, err)
	requireIntEqual(t, units(150), acct.Total)
	requireIntEqual(t, units(450), acct.EffectiveTotal)
	require.Len(t, acct.Positions, 2)

	require.Len(t, f.events, 2)
	require.Equal(t, domain.EventDeposited, f.events[1].Kind)
	require.Equal(t, uint64(1), f.events[1].PositionIndex)
	require.Equal(t, f.events[0].Seq+1, f.events[1].Seq)
}

func TestDeposit_Rejections(t *testing.T) {
	f := newFixture(t)
	f.give(alice, units(100))

	_, err := f.ledger.Deposit(f.ctx, alice, "NOPE", units(1), 3)
	require.ErrorIs(t, err, domain.ErrPoolNotFound)

	_, err = f.ledger.Deposit(f.ctx, alice, lockTok, sdkmath.ZeroInt(), 3)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	for _, months := range []uint64{0, 2, 121} {
		_, err = f.ledger.Deposit(f.ctx, alice, lockTok, units(1), months)
		require.ErrorIs(t, err, domain.ErrInvalidDuration, "months=%d", months)
	}

	_, err = f.ledger.Deposit(f.ctx, alice, lockTok, units(101), 3)
	require.ErrorIs(t, err, domain.ErrInsufficientBalanceOrAllowance)

	require.NoError(t, f.tokens.Transfer(f.ctx, lockTok, owner, bob, units(10)))
	_, err = f.ledger.Deposit(f.ctx, bob, lockTok, units(10), 3)
	require.ErrorIs(t, err, domain.ErrInsufficientBalanceOrAllowance)

	p := f.pool()
	require.True(t, p.TotalLockUp.IsZero())
	require.Zero(t, p.LockUpCount)
	require.True(t, f.balance(custody).IsZero())
	require.Empty(t, f.events)
}

func TestExit_ForcedChargesPenaltyAndFee(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(100), 6)

	res, err := f.ledger.Exit(f.ctx, alice, lockTok, 0, true)
	require.NoError(t, err)
	require.True(t, res.Forced)
	requireIntEqual(t, units(87), res.Net)
	requireIntEqual(t, units(10), res.Penalty)
	requireIntEqual(t, units(3), res.Fee)

	requireIntEqual(t, units(87), f.balance(alice))
	requireIntEqual(t, units(3), f.balance(fund))
	requireIntEqual(t, units(10), f.balance(custody))

	p := f.pool()
	require.True(t, p.TotalLockUp.IsZero())
	require.True(t, p.EffectiveTotalLockUp.IsZero())
	requireIntEqual(t, units(10), p.UndistributedPenalty)
	require.True(t, p.AccBonusPerShare.IsZero())
	require.Equal(t, uint64(0), p.ActiveLockUpCount)
	require.Equal(t, uint64(1), p.ExitedLockUpCount)
	requireIntEqual(t, units(100), p.AccTotalLockUp)

	pos, err := f.ledger.Position(f.ctx, lockTok, alice, 0)
	require.NoError(t, err)
	require.Equal(t, genesisTime, pos.ExitedAt)
	require.Equal(t, domain.PositionExited, pos.State(f.clock.Now()))
	requireIntEqual(t, units(10), pos.Penalty)
	f.requireCustodyReconciles()
}

func TestExit_Matured(t *testing.T) {
	for _, force := range []bool{false, true} {
		f := newFixture(t)
		f.deposit(alice, units(100), 3)
		f.clock.AdvanceTime(3 * month)

		pos, err := f.ledger.Position(f.ctx, lockTok, alice, 0)
		require.NoError(t, err)
		require.Equal(t, domain.PositionMatured, pos.State(f.clock.Now()))

		res, err := f.ledger.Exit(f.ctx, alice, lockTok, 0, force)
		require.NoError(t, err)
		require.False(t, res.Forced)
		requireIntEqual(t, units(100), res.Net)
		require.True(t, res.Fee.IsZero())
		requireIntEqual(t, units(100), f.balance(alice))
		require.True(t, f.balance(fund).IsZero())
	}
}

func TestExit_Rejections(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(100), 3)

	_, err := f.ledger.Exit(f.ctx, alice, lockTok, 0, false)
	require.ErrorIs(t, err, domain.ErrNotMaturedAndNotForced)

	_, err = f.ledger.Exit(f.ctx, alice, lockTok, 1, true)
	require.ErrorIs(t, err, domain.ErrPositionNotFound)

	_, err = f.ledger.Exit(f.ctx, bob, lockTok, 0, true)
	require.ErrorIs(t, err, domain.ErrPositionNotFound)

	_, err = f.ledger.Exit(f.ctx, alice, "NOPE", 0, true)
	require.ErrorIs(t, err, domain.ErrPoolNotFound)

	_, err = f.ledger.Exit(f.ctx, alice, lockTok, 0, true)
	require.NoError(t, err)

	f.clock.AdvanceTime(12 * month)
	_, err = f.ledger.Exit(f.ctx, alice, lockTok, 0, true)
	require.ErrorIs(t, err, domain.ErrAlreadyExited)
	_, err = f.ledger.Exit(f.ctx, alice, lockTok, 0, false)
	require.ErrorIs(t, err, domain.ErrAlreadyExited)
}

func TestExit_PenaltyGoesToRemainingHolder(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(1000), 3)
	f.deposit(bob, units(1000), 12)

	requireIntEqual(t, units(5000), f.pool().EffectiveTotalLockUp)

	res, err := f.ledger.Exit(f.ctx, bob, lockTok, 0, true)
	require.NoError(t, err)
	require.True(t, res.Bonus.IsZero())
	requireIntEqual(t, units(870), f.balance(bob))

	requireIntEqual(t, units(100), f.earned(alice))
	require.True(t, f.earned(bob).IsZero())
	f.requireCustodyReconciles()
}

func TestExit_PenaltySplitsByEffectiveStake(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(400), 3) // effective 400
	f.deposit(bob, units(200), 9)   // effective 600
	f.deposit(carol, units(1000), 3)

	_, err := f.ledger.Exit(f.ctx, carol, lockTok, 0, true)
	require.NoError(t, err)

	requireIntEqual(t, units(40), f.earned(alice))
	requireIntEqual(t, units(60), f.earned(bob))
	require.True(t, f.earned(carol).IsZero())
}

func TestExit_OwnRemainingPositionsShareInPenalty(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(1000), 3)
	f.deposit(bob, units(1000), 3)
	f.deposit(bob, units(1000), 3)

	_, err := f.ledger.Exit(f.ctx, bob, lockTok, 0, true)
	require.NoError(t, err)

	requireIntEqual(t, units(50), f.earned(alice))
	requireIntEqual(t, units(50), f.earned(bob))

	bonus, err := f.ledger.ClaimBonus(f.ctx, bob, lockTok)
	require.NoError(t, err)
	requireIntEqual(t, units(50), bonus)
	f.requireCustodyReconciles()
}

func TestExit_PaysBonusEarnedBeforeOwnPenalty(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(1000), 3)
	f.deposit(bob, units(1000), 3)
	f.deposit(carol, units(1000), 3)

	_, err := f.ledger.Exit(f.ctx, carol, lockTok, 0, true)
	require.NoError(t, err)
	requireIntEqual(t, units(50), f.earned(bob))

	res, err := f.ledger.Exit(f.ctx, bob, lockTok, 0, true)
	require.NoError(t, err)
	requireIntEqual(t, units(50), res.Bonus)
	requireIntEqual(t, units(870+50), f.balance(bob))

	// alice alone receives bob's penalty on top of her share of carol's.
	requireIntEqual(t, units(150), f.earned(alice))
	f.requireCustodyReconciles()
}

func TestClaimBonus_Twice(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(1000), 3)
	f.deposit(bob, units(1000), 12)
	_, err := f.ledger.Exit(f.ctx, bob, lockTok, 0, true)
	require.NoError(t, err)

	bonus, err := f.ledger.ClaimBonus(f.ctx, alice, lockTok)
	require.NoError(t, err)
	requireIntEqual(t, units(100), bonus)
	requireIntEqual(t, units(100), f.balance(alice))

	bonus, err = f.ledger.ClaimBonus(f.ctx, alice, lockTok)
	require.NoError(t, err)
	require.True(t, bonus.IsZero())

	acct, err := f.ledger.Account(f.ctx, lockTok, alice)
	require.NoError(t, err)
	requireIntEqual(t, units(100), acct.BonusClaimed)
	requireIntEqual(t, units(100), f.pool().TotalBonusClaimed)
	f.requireCustodyReconciles()
}

func TestDeposit_PaysPendingBonus(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(1000), 3)
	f.deposit(bob, units(1000), 12)
	_, err := f.ledger.Exit(f.ctx, bob, lockTok, 0, true)
	require.NoError(t, err)

	f.deposit(alice, units(500), 6)

	requireIntEqual(t, units(100), f.balance(alice))
	require.True(t, f.earned(alice).IsZero())

	last := f.events[len(f.events)-1]
	require.Equal(t, domain.EventDeposited, last.Kind)
	requireIntEqual(t, units(100), last.Bonus)

	// Re-entering at a higher stake does not resurrect paid bonus.
	f.deposit(carol, units(1000), 3)
	_, err = f.ledger.Exit(f.ctx, carol, lockTok, 0, true)
	require.NoError(t, err)
	requireIntEqual(t, units(100), f.earned(alice))
	f.requireCustodyReconciles()
}

func TestBonusDust(t *testing.T) {
	f := newFixture(t)
	for _, user := range []domain.Address{alice, bob, carol} {
		f.deposit(user, sdkmath.NewInt(1), 3)
	}
	f.deposit(dave, sdkmath.NewInt(100), 3)

	_, err := f.ledger.Exit(f.ctx, dave, lockTok, 0, true)
	require.NoError(t, err)

	total := sdkmath.ZeroInt()
	for _, user := range []domain.Address{alice, bob, carol} {
		e := f.earned(user)
		require.Equal(t, int64(3), e.Int64())
		total = total.Add(e)
	}
	require.True(t, total.LTE(sdkmath.NewInt(10)))
}

func TestEmergencyMode(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(100), 3)
	f.give(alice, units(100))

	require.ErrorIs(t, f.ledger.SetEmergencyMode(f.ctx, alice, true), domain.ErrUnauthorized)
	require.NoError(t, f.ledger.SetEmergencyMode(f.ctx, owner, true))
	require.True(t, f.ledger.EmergencyMode())

	_, err := f.ledger.Deposit(f.ctx, alice, lockTok, units(100), 3)
	require.ErrorIs(t, err, domain.ErrNotAllowedInEmergency)
	_, err = f.ledger.Exit(f.ctx, alice, lockTok, 0, true)
	require.ErrorIs(t, err, domain.ErrNotAllowedInEmergency)
	_, err = f.ledger.ClaimBonus(f.ctx, alice, lockTok)
	require.ErrorIs(t, err, domain.ErrNotAllowedInEmergency)

	require.NoError(t, f.ledger.SetEmergencyMode(f.ctx, owner, false))
	_, err = f.ledger.Exit(f.ctx, alice, lockTok, 0, true)
	require.NoError(t, err)
}

func TestSetFundAddress(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(100), 3)

	require.ErrorIs(t, f.ledger.SetFundAddress(f.ctx, alice, alice), domain.ErrUnauthorized)
	require.ErrorIs(t, f.ledger.SetFundAddress(f.ctx, owner, ""), domain.ErrInvalidAddress)
	require.NoError(t, f.ledger.SetFundAddress(f.ctx, owner, "treasury"))
	require.Equal(t, domain.Address("treasury"), f.ledger.FundAddress())

	_, err := f.ledger.Exit(f.ctx, alice, lockTok, 0, true)
	require.NoError(t, err)
	requireIntEqual(t, units(3), f.balance("treasury"))
	require.True(t, f.balance(fund).IsZero())
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.ledger.TransferOwnership(f.ctx, alice, alice), domain.ErrUnauthorized)
	require.NoError(t, f.ledger.TransferOwnership(f.ctx, owner, alice))
	require.Equal(t, alice, f.ledger.Owner())

	require.ErrorIs(t, f.ledger.RegisterPool(f.ctx, owner, "NEW", units(1)), domain.ErrUnauthorized)
	require.NoError(t, f.ledger.RegisterPool(f.ctx, alice, "NEW", units(1)))
}

func TestUpdate_AbortLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(100), 3)
	f.give(bob, units(100))
	before := len(f.events)

	boom := errors.New("boom")
	err := f.ledger.Update(f.ctx, func(tx *Tx) error {
		if _, err := tx.Deposit(bob, lockTok, units(100), 3); err != nil {
			return err
		}
		if err := tx.SetEmergencyMode(owner, true); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.False(t, f.ledger.EmergencyMode())
	requireIntEqual(t, units(100), f.pool().TotalLockUp)
	requireIntEqual(t, units(100), f.balance(bob))
	require.Len(t, f.events, before)
}

type failingHooks struct{ err error }

func (h failingHooks) BeforeStakeChange(*Tx, domain.Address, domain.Address) error { return nil }
func (h failingHooks) AfterStakeChange(*Tx, domain.Address, domain.Address) error  { return h.err }

func TestHooks_FailureAbortsDeposit(t *testing.T) {
	f := newFixture(t)
	hookErr := errors.New("hook failed")
	f.ledger.Use(failingHooks{err: hookErr})

	f.give(alice, units(100))
	_, err := f.ledger.Deposit(f.ctx, alice, lockTok, units(100), 3)
	require.ErrorIs(t, err, hookErr)
	require.True(t, f.pool().TotalLockUp.IsZero())
	requireIntEqual(t, units(100), f.balance(alice))
}

func TestSinkFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.ledger.AddSink(SinkFunc(func(context.Context, []domain.Event) error {
		return errors.New("sink down")
	}))

	f.deposit(alice, units(100), 3)
	requireIntEqual(t, units(100), f.pool().TotalLockUp)
	require.Len(t, f.events, 1)
}

func TestSinkRunsOutsideWriteLock(t *testing.T) {
	f := newFixture(t)
	f.give(alice, units(100))

	entered := make(chan context.Context, 1)
	release := make(chan struct{})
	f.ledger.AddSink(SinkFunc(func(ctx context.Context, _ []domain.Event) error {
		entered <- ctx
		<-release
		return nil
	}))

	ctx, cancel := context.WithCancel(f.ctx)
	done := make(chan error, 1)
	go func() {
		_, err := f.ledger.Deposit(ctx, alice, lockTok, units(100), 3)
		done <- err
	}()

	var sinkCtx context.Context
	select {
	case sinkCtx = <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("sink never called")
	}
	cancel()

	// Committed state is readable while the sink is still blocked.
	requireIntEqual(t, units(100), f.pool().TotalLockUp)
	require.NoError(t, sinkCtx.Err())

	close(release)
	require.NoError(t, <-done)
}

func TestSinksSeeCommitOrderUnderConcurrentWriters(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tokens.Approve(f.ctx, lockTok, owner, custody, units(1000)))

	var mu sync.Mutex
	var seqs []uint64
	f.ledger.AddSink(SinkFunc(func(_ context.Context, evs []domain.Event) error {
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range evs {
			seqs = append(seqs, ev.Seq)
		}
		return nil
	}))

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Deposit(f.ctx, owner, lockTok, units(10), 3)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seqs, writers)
	for i := 1; i < len(seqs); i++ {
		require.Equal(t, seqs[i-1]+1, seqs[i], "events out of order: %v", seqs)
	}
	require.Equal(t, f.ledger.LastEventSeq(), seqs[len(seqs)-1])
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(1000), 3)
	f.deposit(bob, units(1000), 12)
	_, err := f.ledger.Exit(f.ctx, bob, lockTok, 0, true)
	require.NoError(t, err)
	require.NoError(t, f.ledger.SetFundAddress(f.ctx, owner, "treasury"))

	snap, err := f.ledger.Snapshot(f.ctx)
	require.NoError(t, err)
	require.Equal(t, domain.SnapshotSchemaVersion, snap.SchemaVersion)
	require.Len(t, snap.Pools, 1)
	require.Len(t, snap.Accounts, 2)
	require.Equal(t, f.ledger.LastEventSeq(), snap.LastEventSeq)

	ac, err := access.NewController("someone")
	require.NoError(t, err)
	restored, err := NewLedger(Options{
		Token:   f.tokens,
		Access:  ac,
		Clock:   f.clock,
		Custody: custody,
		Fund:    fund,
	})
	require.NoError(t, err)
	require.NoError(t, restored.Restore(f.ctx, snap))

	require.Equal(t, owner, restored.Owner())
	require.Equal(t, domain.Address("treasury"), restored.FundAddress())

	want, err := f.ledger.EarnedBonus(f.ctx, lockTok, alice)
	require.NoError(t, err)
	got, err := restored.EarnedBonus(f.ctx, lockTok, alice)
	require.NoError(t, err)
	requireIntEqual(t, want, got)

	wantPool := f.pool()
	gotPool, err := restored.Pool(f.ctx, lockTok)
	require.NoError(t, err)
	requireIntEqual(t, wantPool.AccBonusPerShare, gotPool.AccBonusPerShare)
	requireIntEqual(t, wantPool.TotalLockUp, gotPool.TotalLockUp)
	require.Equal(t, wantPool.ExitedLockUpCount, gotPool.ExitedLockUpCount)
}

func TestRestore_RejectsInconsistentTotals(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(100), 3)

	snap, err := f.ledger.Snapshot(f.ctx)
	require.NoError(t, err)
	snap.Pools[0].TotalLockUp = units(99)

	require.Error(t, f.ledger.Restore(f.ctx, snap))
	requireIntEqual(t, units(100), f.pool().TotalLockUp)
}

func TestRestore_RejectsNewerSchema(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(100), 3)

	snap, err := f.ledger.Snapshot(f.ctx)
	require.NoError(t, err)
	snap.SchemaVersion = domain.SnapshotSchemaVersion + 1

	require.ErrorIs(t, f.ledger.Restore(f.ctx, snap), storage.ErrUnsupportedSchema)
}

func TestExit_AtClockZero(t *testing.T) {
	f := newFixtureAt(t, 0)
	f.deposit(alice, units(1000), 3)
	f.deposit(bob, units(1000), 3)

	pos, err := f.ledger.Position(f.ctx, lockTok, alice, 0)
	require.NoError(t, err)
	require.Equal(t, domain.PositionActive, pos.State(f.clock.Now()))

	_, err = f.ledger.Exit(f.ctx, alice, lockTok, 0, true)
	require.NoError(t, err)

	pos, err = f.ledger.Position(f.ctx, lockTok, alice, 0)
	require.NoError(t, err)
	require.True(t, pos.Exited)
	require.Equal(t, int64(0), pos.ExitedAt)
	require.Equal(t, domain.PositionExited, pos.State(f.clock.Now()))

	_, err = f.ledger.Exit(f.ctx, alice, lockTok, 0, true)
	require.ErrorIs(t, err, domain.ErrAlreadyExited)

	p := f.pool()
	requireIntEqual(t, units(1000), p.TotalLockUp)
	require.Equal(t, uint64(1), p.ActiveLockUpCount)
	f.requireCustodyReconciles()

	f.clock.AdvanceTime(3 * month)
	pos, err = f.ledger.Position(f.ctx, lockTok, bob, 0)
	require.NoError(t, err)
	require.Equal(t, domain.PositionMatured, pos.State(f.clock.Now()))
}

func TestSnapshotRestore_CarriesTokenBalances(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(1000), 3)
	f.deposit(bob, units(500), 3)

	snap, err := f.ledger.Snapshot(f.ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Tokens)

	// A restarted process seeds its token ledger from scratch.
	tokens := token.NewMemoryLedger()
	require.NoError(t, tokens.CreateAsset(lockTok, "LOCK", 18, owner, units(10_000_000)))
	ac, err := access.NewController(owner)
	require.NoError(t, err)
	restored, err := NewLedger(Options{
		Token:   tokens,
		Access:  ac,
		Clock:   f.clock,
		Custody: custody,
		Fund:    fund,
	})
	require.NoError(t, err)
	require.NoError(t, restored.Restore(f.ctx, snap))

	custodyBal, err := tokens.BalanceOf(f.ctx, lockTok, custody)
	require.NoError(t, err)
	requireIntEqual(t, units(1500), custodyBal)

	f.clock.AdvanceTime(3 * month)
	res, err := restored.Exit(f.ctx, alice, lockTok, 0, false)
	require.NoError(t, err)
	requireIntEqual(t, units(1000), res.Net)

	aliceBal, err := tokens.BalanceOf(f.ctx, lockTok, alice)
	require.NoError(t, err)
	requireIntEqual(t, units(1000), aliceBal)
}

func TestRestore_RefusesLockedStakeWithoutTokenState(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(100), 3)

	snap, err := f.ledger.Snapshot(f.ctx)
	require.NoError(t, err)
	snap.Tokens = nil

	require.Error(t, f.ledger.Restore(f.ctx, snap))
}

func TestRestore_Version1ExitMarker(t *testing.T) {
	f := newFixture(t)
	f.deposit(alice, units(100), 3)
	f.deposit(alice, units(100), 3)
	_, err := f.ledger.Exit(f.ctx, alice, lockTok, 0, true)
	require.NoError(t, err)

	snap, err := f.ledger.Snapshot(f.ctx)
	require.NoError(t, err)
	snap.SchemaVersion = 1
	snap.Accounts[0].Positions[0].Exited = false

	require.NoError(t, f.ledger.Restore(f.ctx, snap))
	pos, err := f.ledger.Position(f.ctx, lockTok, alice, 0)
	require.NoError(t, err)
	require.True(t, pos.IsExited())
}
