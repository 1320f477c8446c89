package reward

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"lockup-ledger/internal/domain"
)

// Default schedule parameters.
const (
	DefaultBonusMultiplier = 2
	DefaultRewardBlocks    = 10_000_000
	DefaultBonusBlocks     = 500_000
)

// DefaultRatePerBlock is 0.25 reward tokens (18 decimals) per block across
// all pools, doubled inside the bonus window.
var DefaultRatePerBlock = sdkmath.NewIntWithDecimal(25, 16)

// DefaultConfig returns the default schedule starting at startBlock.
func DefaultConfig(rewardToken domain.Address, startBlock uint64) domain.RewardConfig {
	return domain.RewardConfig{
		RewardToken:     rewardToken,
		StartBlock:      startBlock,
		RewardBlocks:    DefaultRewardBlocks,
		BonusBlocks:     DefaultBonusBlocks,
		RatePerBlock:    DefaultRatePerBlock,
		BonusMultiplier: DefaultBonusMultiplier,
	}
}

// ValidateConfig checks a schedule for internal consistency.
func ValidateConfig(cfg domain.RewardConfig) error {
	if cfg.RewardToken.IsZero() {
		return domain.ErrInvalidAddress.Wrap("reward token must be set")
	}
	if cfg.RatePerBlock.IsNil() || cfg.RatePerBlock.IsNegative() {
		return domain.ErrInvalidAmount.Wrapf("rate per block %s", cfg.RatePerBlock)
	}
	if cfg.BonusMultiplier == 0 {
		return domain.ErrInvalidMultiplier.Wrap("bonus multiplier must be at least 1")
	}
	if cfg.BonusBlocks > cfg.RewardBlocks {
		return fmt.Errorf("bonus window (%d blocks) exceeds reward window (%d blocks)", cfg.BonusBlocks, cfg.RewardBlocks)
	}
	return nil
}

// Emission returns the total reward emitted across all pools over the block
// range [from, to). Each window contributes its overlap with the range.
func Emission(cfg domain.RewardConfig, from, to uint64) sdkmath.Int {
	total := sdkmath.ZeroInt()
	if to <= from {
		return total
	}

	bonusEnd := cfg.BonusEndBlock()
	if bonusEnd > cfg.EndBlock() {
		bonusEnd = cfg.EndBlock()
	}

	if n := overlap(from, to, cfg.StartBlock, bonusEnd); n > 0 {
		rate := cfg.RatePerBlock.Mul(sdkmath.NewIntFromUint64(cfg.BonusMultiplier))
		total = total.Add(rate.Mul(sdkmath.NewIntFromUint64(n)))
	}
	if n := overlap(from, to, bonusEnd, cfg.EndBlock()); n > 0 {
		total = total.Add(cfg.RatePerBlock.Mul(sdkmath.NewIntFromUint64(n)))
	}
	return total
}

// PoolEmission returns the part of Emission(from, to) weighted to one pool.
func PoolEmission(cfg domain.RewardConfig, from, to, multiplier, totalMultiplier uint64) sdkmath.Int {
	if totalMultiplier == 0 || multiplier == 0 {
		return sdkmath.ZeroInt()
	}
	return Emission(cfg, from, to).
		Mul(sdkmath.NewIntFromUint64(multiplier)).
		Quo(sdkmath.NewIntFromUint64(totalMultiplier))
}

// overlap returns the length of [a, b) ∩ [c, d).
func overlap(a, b, c, d uint64) uint64 {
	lo, hi := a, b
	if c > lo {
		lo = c
	}
	if d < hi {
		hi = d
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}
