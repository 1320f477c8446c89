// Package storagetest provides fixtures shared by store implementation tests.
package storagetest

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"lockup-ledger/internal/domain"
)

// Big returns an amount larger than uint64, exercising 256-bit columns.
func Big(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 30)
}

// SampleSnapshot returns a snapshot with one pool, two accounts (one with an
// exited position) and reward state.
func SampleSnapshot(seq uint64) *domain.Snapshot {
	pool := domain.NewTokenPool("HUNT", Big(1000), 1_700_000_000)
	pool.TotalLockUp = Big(3)
	pool.EffectiveTotalLockUp = Big(12)
	pool.AccBonusPerShare = sdkmath.NewInt(100_000_000_000)
	pool.TotalPenaltyCollected = Big(1)
	pool.TotalPlatformFee = sdkmath.NewInt(3)
	pool.AccTotalLockUp = Big(13)
	pool.LockUpCount = 3
	pool.ActiveLockUpCount = 2
	pool.ExitedLockUpCount = 1

	alice := domain.NewUserAccount("HUNT", "alice")
	alice.Total = Big(3)
	alice.EffectiveTotal = Big(12)
	alice.BonusDebt = sdkmath.NewInt(7)
	alice.Positions = []domain.LockUpPosition{
		{
			Index: 0, DurationInMonths: 12, Amount: Big(2), EffectiveAmount: Big(8),
			LockedUpAt: 1_700_000_100, UnlockedAt: 1_700_000_100 + 12*2_592_000,
			Penalty: sdkmath.ZeroInt(), Fee: sdkmath.ZeroInt(),
		},
		{
			Index: 1, DurationInMonths: 12, Amount: Big(1), EffectiveAmount: Big(4),
			LockedUpAt: 1_700_000_200, UnlockedAt: 1_700_000_200 + 12*2_592_000,
			Penalty: sdkmath.ZeroInt(), Fee: sdkmath.ZeroInt(),
		},
	}

	bob := domain.NewUserAccount("HUNT", "bob")
	bob.BonusClaimed = sdkmath.NewInt(5)
	bob.Positions = []domain.LockUpPosition{
		{
			Index: 0, DurationInMonths: 3, Amount: Big(10), EffectiveAmount: Big(10),
			LockedUpAt: 1_700_000_000, UnlockedAt: 1_700_000_000 + 3*2_592_000,
			Exited: true, ExitedAt: 1_700_000_300, Penalty: Big(1), Fee: sdkmath.NewInt(3),
		},
	}

	return &domain.Snapshot{
		SchemaVersion: domain.SnapshotSchemaVersion,
		Owner:         "owner",
		FundAddress:   "fund",
		EmergencyMode: true,
		LastEventSeq:  seq,
		Block:         seq * 10,
		TakenAt:       1_700_000_400,
		Pools:         []domain.TokenPool{pool},
		Accounts:      []domain.UserAccount{alice, bob},
		Rewards: &domain.RewardSnapshot{
			Config: domain.RewardConfig{
				RewardToken:     "WRN",
				StartBlock:      100,
				RewardBlocks:    1000,
				BonusBlocks:     100,
				RatePerBlock:    sdkmath.NewIntWithDecimal(25, 16),
				BonusMultiplier: 2,
			},
			Pools: []domain.RewardPoolState{{
				Token:              "HUNT",
				Multiplier:         2,
				AccRewardPerShare:  Big(4),
				LastRewardBlock:    150,
				TotalRewardAccrued: Big(9),
				TotalRewardClaimed: Big(2),
			}},
			Accounts: []domain.RewardAccount{{
				Token:         "HUNT",
				Owner:         "alice",
				RewardDebt:    Big(6),
				RewardClaimed: Big(2),
			}},
		},
		Tokens: &domain.TokenSnapshot{
			Assets: []domain.AssetState{
				{
					ID: "HUNT", Symbol: "HUNT", Decimals: 18, Supply: Big(1000),
					Balances: []domain.Holding{
						{Owner: "alice", Amount: Big(300)},
						{Owner: "custody", Amount: Big(101)},
						{Owner: "owner", Amount: Big(599)},
					},
					Allowances: []domain.Allowance{
						{Owner: "alice", Spender: "custody", Amount: Big(50)},
					},
				},
				{
					ID: "WRN", Symbol: "WRN", Decimals: 18, Supply: Big(2),
					Minters:  []domain.Address{"minter"},
					Balances: []domain.Holding{{Owner: "alice", Amount: Big(2)}},
				},
			},
		},
	}
}

// SampleEvents returns n events with seq first..first+n-1, alternating
// between two tokens and two accounts.
func SampleEvents(first uint64, n int) []*domain.Event {
	tokens := []domain.Address{"HUNT", "WETH"}
	accounts := []domain.Address{"alice", "bob"}

	out := make([]*domain.Event, 0, n)
	for i := 0; i < n; i++ {
		ev := domain.NewEvent(domain.EventDeposited, tokens[i%2], accounts[(i/2)%2])
		ev.Seq = first + uint64(i)
		ev.PositionIndex = uint64(i)
		ev.Amount = Big(int64(i + 1))
		ev.Bonus = sdkmath.NewInt(int64(i))
		ev.Block = 100 + uint64(i)
		ev.Timestamp = 1_700_000_000 + int64(i)
		if i%3 == 2 {
			ev.Kind = domain.EventExited
			ev.Penalty = sdkmath.NewInt(10)
			ev.Fee = sdkmath.NewInt(3)
			ev.Forced = true
		}
		out = append(out, &ev)
	}
	return out
}

// DescribeDiff returns a readable difference between two snapshots, or "".
func DescribeDiff(want, got *domain.Snapshot) string {
	w, g := describe(want), describe(got)
	if w == g {
		return ""
	}
	return fmt.Sprintf("want %s\n got %s", w, g)
}

func describe(s *domain.Snapshot) string {
	c := *s
	rewards, tokens := c.Rewards, c.Tokens
	c.Rewards, c.Tokens = nil, nil
	out := fmt.Sprintf("%+v", c)
	if rewards != nil {
		out += fmt.Sprintf(" rewards=%+v", *rewards)
	}
	if tokens != nil {
		out += fmt.Sprintf(" tokens=%+v", *tokens)
	}
	return out
}
