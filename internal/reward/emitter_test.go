package reward

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"lockup-ledger/internal/access"
	"lockup-ledger/internal/clock"
	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/lockup"
	"lockup-ledger/internal/token"
)

const (
	owner   domain.Address = "owner"
	fund    domain.Address = "fund"
	custody domain.Address = "custody"
	minter  domain.Address = "minter"
	alice   domain.Address = "alice"
	bob     domain.Address = "bob"

	hunt domain.Address = "HUNT"
	weth domain.Address = "WETH"
	wrn  domain.Address = "WRN"

	startBlock = uint64(100)
)

// milli returns n/10000 of a whole 18-decimal token.
func milli(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 14)
}

func units(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 18)
}

type EmitterSuite struct {
	suite.Suite

	ctx     context.Context
	clock   *clock.Manual
	tokens  *token.MemoryLedger
	ledger  *lockup.Ledger
	emitter *Emitter
}

func TestEmitterSuite(t *testing.T) {
	suite.Run(t, new(EmitterSuite))
}

func (s *EmitterSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clock.NewManual(startBlock, 1_700_000_000)
	s.tokens = token.NewMemoryLedger()

	s.Require().NoError(s.tokens.CreateAsset(hunt, "HUNT", 18, owner, units(1000)))
	s.Require().NoError(s.tokens.CreateAsset(weth, "WETH", 18, owner, units(1000)))
	s.Require().NoError(s.tokens.CreateAsset(wrn, "WRN", 18, "", sdkmath.ZeroInt()))
	s.Require().NoError(s.tokens.AddMinter(wrn, minter))

	s.newLedger(DefaultConfig(wrn, startBlock))
	s.Require().NoError(s.emitter.RegisterRewardPool(s.ctx, owner, hunt, 2, units(1000), false))
}

func (s *EmitterSuite) newLedger(cfg domain.RewardConfig) {
	ac, err := access.NewController(owner)
	s.Require().NoError(err)
	s.ledger, err = lockup.NewLedger(lockup.Options{
		Token:   s.tokens,
		Access:  ac,
		Clock:   s.clock,
		Custody: custody,
		Fund:    fund,
	})
	s.Require().NoError(err)
	s.emitter, err = NewEmitter(s.ledger, Options{Config: cfg, Minter: minter})
	s.Require().NoError(err)
}

// mine advances one block, as every submitted operation does on chain.
func (s *EmitterSuite) mine() {
	s.clock.AdvanceBlocks(1)
}

func (s *EmitterSuite) deposit(user, tok domain.Address, amount sdkmath.Int, months uint64) {
	s.Require().NoError(s.tokens.Transfer(s.ctx, tok, owner, user, amount))
	s.Require().NoError(s.tokens.Approve(s.ctx, tok, user, custody, amount))
	s.mine()
	_, err := s.ledger.Deposit(s.ctx, user, tok, amount, months)
	s.Require().NoError(err)
}

func (s *EmitterSuite) requirePending(tok, user domain.Address, want sdkmath.Int) {
	got, err := s.emitter.PendingReward(s.ctx, tok, user)
	s.Require().NoError(err)
	s.Require().Equal(want.String(), got.String(), "pending reward of %s in %s", user, tok)
}

func (s *EmitterSuite) rewardBalance(user domain.Address) sdkmath.Int {
	b, err := s.tokens.BalanceOf(s.ctx, wrn, user)
	s.Require().NoError(err)
	return b
}

func (s *EmitterSuite) TestPendingGrowsPerBlock() {
	s.requirePending(hunt, alice, sdkmath.ZeroInt())

	s.deposit(alice, hunt, units(1), 3)
	s.requirePending(hunt, alice, sdkmath.ZeroInt())

	s.mine()
	s.requirePending(hunt, alice, milli(5000))
}

func (s *EmitterSuite) TestPendingSplitsAcrossAccounts() {
	s.deposit(alice, hunt, units(1), 3)
	s.deposit(bob, hunt, units(1), 3)

	s.requirePending(hunt, alice, milli(5000))
	s.requirePending(hunt, bob, sdkmath.ZeroInt())

	s.mine()
	s.requirePending(hunt, alice, milli(7500))
	s.requirePending(hunt, bob, milli(2500))
}

func (s *EmitterSuite) TestPendingFollowsLockedAmount() {
	s.deposit(alice, hunt, units(3), 3)
	s.deposit(bob, hunt, units(1), 3)
	s.mine()

	s.requirePending(hunt, alice, milli(8750))
	s.requirePending(hunt, bob, milli(1250))
}

func (s *EmitterSuite) TestPendingFollowsDurationBoost() {
	s.deposit(alice, hunt, units(1), 30) // effective 10
	s.deposit(bob, hunt, units(2), 11)   // effective 6
	s.mine()

	s.requirePending(hunt, alice, milli(8125))
	s.requirePending(hunt, bob, milli(1875))
}

func (s *EmitterSuite) TestPoolMultiplierWeighting() {
	s.mine()
	s.Require().NoError(s.emitter.RegisterRewardPool(s.ctx, owner, weth, 3, units(1000), false))
	s.Require().Equal(uint64(5), s.emitter.TotalMultiplier(s.ctx))

	s.deposit(alice, hunt, units(1), 3)
	s.deposit(bob, weth, units(1), 3)
	s.requirePending(hunt, alice, milli(2000))
	s.requirePending(weth, bob, sdkmath.ZeroInt())

	s.mine()
	s.requirePending(weth, alice, sdkmath.ZeroInt())
	s.requirePending(hunt, bob, sdkmath.ZeroInt())
	s.requirePending(hunt, alice, milli(4000))
	s.requirePending(weth, bob, milli(3000))
}

func (s *EmitterSuite) TestRegisterPoolMidwayWithSettleAll() {
	s.deposit(alice, hunt, units(1), 3)

	s.mine()
	s.Require().NoError(s.emitter.RegisterRewardPool(s.ctx, owner, weth, 3, units(1000), true))

	hp, err := s.emitter.RewardPool(s.ctx, hunt)
	s.Require().NoError(err)
	s.Require().Equal(s.clock.Block(), hp.LastRewardBlock)
	s.Require().Equal(milli(5000).String(), hp.TotalRewardAccrued.String())

	s.deposit(bob, weth, units(1), 3)
	s.requirePending(hunt, alice, milli(7000))

	s.mine()
	s.requirePending(hunt, alice, milli(9000))
	s.requirePending(weth, bob, milli(3000))
}

func (s *EmitterSuite) TestRegisterPoolMidwayWithoutSettleAll() {
	s.deposit(alice, hunt, units(1), 3)

	s.mine()
	s.Require().NoError(s.emitter.RegisterRewardPool(s.ctx, owner, weth, 3, units(1000), false))

	// The unsettled block is weighted by the new total: 0.5 * 2/5.
	s.requirePending(hunt, alice, milli(2000))
}

func (s *EmitterSuite) TestNoRewardBeforeStart() {
	s.clock = clock.NewManual(10, 1_700_000_000)
	s.newLedger(DefaultConfig(wrn, 20))
	s.Require().NoError(s.emitter.RegisterRewardPool(s.ctx, owner, hunt, 2, units(1000), false))

	s.deposit(alice, hunt, units(100), 3)
	s.requirePending(hunt, alice, sdkmath.ZeroInt())
	s.mine()
	s.requirePending(hunt, alice, sdkmath.ZeroInt())

	s.clock.Set(25, s.clock.Now())
	s.requirePending(hunt, alice, milli(25000))
}

func (s *EmitterSuite) TestPendingAcrossBonusBoundary() {
	cfg := DefaultConfig(wrn, startBlock)
	cfg.BonusBlocks = 5
	cfg.RewardBlocks = 10
	s.newLedger(cfg)
	s.Require().NoError(s.emitter.RegisterRewardPool(s.ctx, owner, hunt, 2, units(1000), false))

	s.deposit(alice, hunt, units(1), 3) // block 101
	s.clock.Set(108, s.clock.Now())
	// 4 bonus blocks at 0.5 and 3 main blocks at 0.25.
	s.requirePending(hunt, alice, milli(27500))

	s.clock.Set(200, s.clock.Now())
	s.requirePending(hunt, alice, milli(32500))
}

func (s *EmitterSuite) TestNothingAccruesWithoutStake() {
	s.clock.AdvanceBlocks(10)
	credited, err := s.emitter.UpdatePool(s.ctx, hunt)
	s.Require().NoError(err)
	s.Require().True(credited.IsZero())

	p, err := s.emitter.RewardPool(s.ctx, hunt)
	s.Require().NoError(err)
	s.Require().Equal(s.clock.Block(), p.LastRewardBlock)
	s.Require().True(p.AccRewardPerShare.IsZero())

	s.deposit(alice, hunt, units(1), 3)
	s.mine()
	s.requirePending(hunt, alice, milli(5000))
}

func (s *EmitterSuite) TestUpdatePoolIdempotentWithinBlock() {
	s.deposit(alice, hunt, units(1), 3)
	s.clock.AdvanceBlocks(2)

	credited, err := s.emitter.UpdatePool(s.ctx, hunt)
	s.Require().NoError(err)
	s.Require().Equal(units(1).String(), credited.String())

	credited, err = s.emitter.UpdatePool(s.ctx, hunt)
	s.Require().NoError(err)
	s.Require().True(credited.IsZero())
	s.requirePending(hunt, alice, units(1))
}

func (s *EmitterSuite) TestClaimRewardTwice() {
	s.deposit(alice, hunt, units(1), 3)
	s.clock.AdvanceBlocks(2)

	amount, err := s.emitter.ClaimReward(s.ctx, alice, hunt)
	s.Require().NoError(err)
	s.Require().Equal(units(1).String(), amount.String())
	s.Require().Equal(units(1).String(), s.rewardBalance(alice).String())

	amount, err = s.emitter.ClaimReward(s.ctx, alice, hunt)
	s.Require().NoError(err)
	s.Require().True(amount.IsZero())

	ra, err := s.emitter.RewardAccount(s.ctx, hunt, alice)
	s.Require().NoError(err)
	s.Require().Equal(units(1).String(), ra.RewardClaimed.String())

	supply, err := s.tokens.TotalSupply(s.ctx, wrn)
	s.Require().NoError(err)
	s.Require().Equal(units(1).String(), supply.String())
}

func (s *EmitterSuite) TestDepositPaysPendingReward() {
	s.deposit(alice, hunt, units(1), 3)
	s.mine()
	s.deposit(alice, hunt, units(1), 3)

	s.Require().Equal(units(1).String(), s.rewardBalance(alice).String())
	s.requirePending(hunt, alice, sdkmath.ZeroInt())

	s.mine()
	s.requirePending(hunt, alice, milli(5000))
}

func (s *EmitterSuite) TestExitPaysPendingReward() {
	s.deposit(alice, hunt, units(1), 3)
	s.deposit(bob, hunt, units(1), 3)

	s.mine()
	res, err := s.ledger.Exit(s.ctx, alice, hunt, 0, true)
	s.Require().NoError(err)
	s.Require().True(res.Forced)
	s.Require().Equal(milli(7500).String(), s.rewardBalance(alice).String())

	s.requirePending(hunt, alice, sdkmath.ZeroInt())
	s.mine()
	s.requirePending(hunt, alice, sdkmath.ZeroInt())
	s.requirePending(hunt, bob, milli(7500))
}

func (s *EmitterSuite) TestClaimRewardAndBonus() {
	s.deposit(alice, hunt, units(100), 3)
	s.deposit(bob, hunt, units(100), 12)

	s.mine()
	_, err := s.ledger.Exit(s.ctx, bob, hunt, 0, true)
	s.Require().NoError(err)

	s.mine()
	rewardAmt, bonus, err := s.emitter.ClaimRewardAndBonus(s.ctx, alice, hunt)
	s.Require().NoError(err)
	s.Require().Equal(units(10).String(), bonus.String())
	// 0.5 alone, 0.1 at 100/500 of the stake, then 0.5 alone again.
	s.Require().Equal(milli(11000).String(), rewardAmt.String())

	rewardAmt, bonus, err = s.emitter.ClaimRewardAndBonus(s.ctx, alice, hunt)
	s.Require().NoError(err)
	s.Require().True(rewardAmt.IsZero())
	s.Require().True(bonus.IsZero())
}

func (s *EmitterSuite) TestEmergencyBlocksClaims() {
	s.deposit(alice, hunt, units(1), 3)
	s.mine()
	s.Require().NoError(s.ledger.SetEmergencyMode(s.ctx, owner, true))

	_, err := s.emitter.ClaimReward(s.ctx, alice, hunt)
	s.Require().ErrorIs(err, domain.ErrNotAllowedInEmergency)
	_, _, err = s.emitter.ClaimRewardAndBonus(s.ctx, alice, hunt)
	s.Require().ErrorIs(err, domain.ErrNotAllowedInEmergency)
}

func (s *EmitterSuite) TestRegisterRewardPoolRejections() {
	err := s.emitter.RegisterRewardPool(s.ctx, alice, weth, 1, units(1), false)
	s.Require().ErrorIs(err, domain.ErrUnauthorized)

	err = s.emitter.RegisterRewardPool(s.ctx, owner, weth, 0, units(1), false)
	s.Require().ErrorIs(err, domain.ErrInvalidMultiplier)

	err = s.emitter.RegisterRewardPool(s.ctx, owner, hunt, 1, units(1), false)
	s.Require().ErrorIs(err, domain.ErrPoolAlreadyExists)

	// A ledger pool registered without the emitter cannot be registered again.
	s.Require().NoError(s.ledger.RegisterPool(s.ctx, owner, weth, units(1)))
	err = s.emitter.RegisterRewardPool(s.ctx, owner, weth, 3, units(1), true)
	s.Require().ErrorIs(err, domain.ErrPoolAlreadyExists)
	s.Require().Equal(uint64(2), s.emitter.TotalMultiplier(s.ctx))

	_, err = s.emitter.RewardPool(s.ctx, weth)
	s.Require().ErrorIs(err, domain.ErrPoolNotFound)
}

func (s *EmitterSuite) TestUpdatePoolMultiplier() {
	s.mine()
	s.Require().NoError(s.emitter.RegisterRewardPool(s.ctx, owner, weth, 3, units(1000), false))
	s.deposit(alice, hunt, units(1), 3)
	s.deposit(bob, weth, units(1), 3)
	s.clock.AdvanceBlocks(3)

	before, err := s.emitter.RewardPool(s.ctx, weth)
	s.Require().NoError(err)

	err = s.emitter.UpdatePoolMultiplier(s.ctx, alice, hunt, 5, false)
	s.Require().ErrorIs(err, domain.ErrUnauthorized)
	err = s.emitter.UpdatePoolMultiplier(s.ctx, owner, hunt, 0, false)
	s.Require().ErrorIs(err, domain.ErrInvalidMultiplier)
	err = s.emitter.UpdatePoolMultiplier(s.ctx, owner, hunt, 1, false)
	s.Require().ErrorIs(err, domain.ErrMultiplierDecreaseRequiresSettleAll)

	s.Require().NoError(s.emitter.UpdatePoolMultiplier(s.ctx, owner, hunt, 5, false))
	s.Require().Equal(uint64(8), s.emitter.TotalMultiplier(s.ctx))

	hp, err := s.emitter.RewardPool(s.ctx, hunt)
	s.Require().NoError(err)
	s.Require().Equal(s.clock.Block(), hp.LastRewardBlock)
	s.Require().Equal(uint64(5), hp.Multiplier)

	after, err := s.emitter.RewardPool(s.ctx, weth)
	s.Require().NoError(err)
	s.Require().Equal(before.AccRewardPerShare.String(), after.AccRewardPerShare.String())
	s.Require().Equal(before.LastRewardBlock, after.LastRewardBlock)

	s.Require().NoError(s.emitter.UpdatePoolMultiplier(s.ctx, owner, hunt, 1, true))
	s.Require().Equal(uint64(4), s.emitter.TotalMultiplier(s.ctx))
	after, err = s.emitter.RewardPool(s.ctx, weth)
	s.Require().NoError(err)
	s.Require().Equal(s.clock.Block(), after.LastRewardBlock)
}

func (s *EmitterSuite) TestMissingMinterRoleAbortsDeposit() {
	s.Require().NoError(s.tokens.CreateAsset("NOMINT", "NM", 18, "", sdkmath.ZeroInt()))
	cfg := DefaultConfig("NOMINT", startBlock)
	s.newLedger(cfg)
	s.Require().NoError(s.emitter.RegisterRewardPool(s.ctx, owner, hunt, 2, units(1000), false))

	s.deposit(alice, hunt, units(1), 3)
	s.mine()

	s.Require().NoError(s.tokens.Transfer(s.ctx, hunt, owner, alice, units(1)))
	s.Require().NoError(s.tokens.Approve(s.ctx, hunt, alice, custody, units(1)))
	_, err := s.ledger.Deposit(s.ctx, alice, hunt, units(1), 3)
	s.Require().ErrorIs(err, domain.ErrMintNotAllowed)

	p, err := s.ledger.Pool(s.ctx, hunt)
	s.Require().NoError(err)
	s.Require().Equal(units(1).String(), p.TotalLockUp.String())
	s.requirePending(hunt, alice, milli(5000))
}

func (s *EmitterSuite) TestSnapshotRoundTrip() {
	s.deposit(alice, hunt, units(1), 3)
	s.deposit(bob, hunt, units(3), 3)
	s.mine()
	_, err := s.emitter.ClaimReward(s.ctx, alice, hunt)
	s.Require().NoError(err)

	snap, err := s.ledger.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(snap.Rewards)
	s.Require().Len(snap.Rewards.Pools, 1)

	s.mine()
	wantAlice, err := s.emitter.PendingReward(s.ctx, hunt, alice)
	s.Require().NoError(err)
	wantBob, err := s.emitter.PendingReward(s.ctx, hunt, bob)
	s.Require().NoError(err)

	oldLedger := s.ledger
	s.newLedger(DefaultConfig(wrn, 0))
	s.Require().NotSame(oldLedger, s.ledger)
	s.Require().NoError(s.ledger.Restore(s.ctx, snap))

	s.Require().Equal(startBlock, s.emitter.Config(s.ctx).StartBlock)
	s.Require().Equal(uint64(2), s.emitter.TotalMultiplier(s.ctx))
	s.requirePending(hunt, bob, wantBob)
	s.requirePending(hunt, alice, wantAlice)
}

func TestNewEmitter_Validation(t *testing.T) {
	ac, err := access.NewController(owner)
	require.NoError(t, err)
	l, err := lockup.NewLedger(lockup.Options{
		Token:   token.NewMemoryLedger(),
		Access:  ac,
		Clock:   clock.NewManual(0, 1),
		Custody: custody,
		Fund:    fund,
	})
	require.NoError(t, err)

	_, err = NewEmitter(nil, Options{Config: DefaultConfig(wrn, 0), Minter: minter})
	require.Error(t, err)

	_, err = NewEmitter(l, Options{Config: DefaultConfig(wrn, 0)})
	require.ErrorIs(t, err, domain.ErrInvalidAddress)

	cfg := DefaultConfig(wrn, 0)
	cfg.BonusMultiplier = 0
	_, err = NewEmitter(l, Options{Config: cfg, Minter: minter})
	require.ErrorIs(t, err, domain.ErrInvalidMultiplier)
}
