package domain

import (
	sdkmath "cosmossdk.io/math"
)

// RewardConfig is the global emission schedule.
type RewardConfig struct {
	RewardToken     Address     // minted reward token
	StartBlock      uint64      // first emitting block
	RewardBlocks    uint64      // emission window length, counted from StartBlock
	BonusBlocks     uint64      // bonus sub-window length, counted from StartBlock
	RatePerBlock    sdkmath.Int // main-window emission per block, across all pools
	BonusMultiplier uint64      // rate factor inside the bonus window
}

// EndBlock returns the first block without emission.
func (c RewardConfig) EndBlock() uint64 {
	return c.StartBlock + c.RewardBlocks
}

// BonusEndBlock returns the first block after the bonus window.
func (c RewardConfig) BonusEndBlock() uint64 {
	return c.StartBlock + c.BonusBlocks
}

// RewardPoolState is the emitter's per-pool accumulator.
// Corresponds to reward_pools table in PostgreSQL.
type RewardPoolState struct {
	Token              Address
	Multiplier         uint64      // relative emission weight
	AccRewardPerShare  sdkmath.Int // scaled by Precision
	LastRewardBlock    uint64      // block up to which AccRewardPerShare is settled
	TotalRewardAccrued sdkmath.Int // emission credited to the accumulator
	TotalRewardClaimed sdkmath.Int // reward minted to holders
}

// RewardAccount tracks one owner's reward debt in one pool.
// Corresponds to reward_accounts table in PostgreSQL.
type RewardAccount struct {
	Token         Address
	Owner         Address
	RewardDebt    sdkmath.Int
	RewardClaimed sdkmath.Int
}

// NewRewardAccount returns an empty reward account.
func NewRewardAccount(token, owner Address) RewardAccount {
	return RewardAccount{
		Token:         token,
		Owner:         owner,
		RewardDebt:    sdkmath.ZeroInt(),
		RewardClaimed: sdkmath.ZeroInt(),
	}
}
