// Package reporting renders pool and holder reports from ledger snapshots.
package reporting

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"lockup-ledger/internal/domain"
)

// Report describes ledger state at one point in time.
type Report struct {
	// Metadata
	GeneratedAt   time.Time
	Block         uint64
	LastEventSeq  uint64
	Owner         domain.Address
	FundAddress   domain.Address
	EmergencyMode bool

	// Reward emission; RewardToken is empty when no emitter is attached
	RewardToken     domain.Address
	RewardSymbol    string
	RewardDecimals  uint8
	TotalMultiplier uint64

	// Pools sorted by token
	Pools []PoolRow

	// Holders sorted by token, then effective stake descending
	Holders []HolderRow
}

// PoolRow summarizes one pool.
type PoolRow struct {
	Token    domain.Address
	Symbol   string
	Decimals uint8

	MaxLockUpLimit        sdkmath.Int
	TotalLockUp           sdkmath.Int
	EffectiveTotalLockUp  sdkmath.Int
	AccTotalLockUp        sdkmath.Int
	TotalPenaltyCollected sdkmath.Int
	TotalPlatformFee      sdkmath.Int
	TotalBonusClaimed     sdkmath.Int
	UndistributedPenalty  sdkmath.Int

	Utilization  decimal.Decimal // TotalLockUp / MaxLockUpLimit
	AverageBoost decimal.Decimal // EffectiveTotalLockUp / TotalLockUp

	TotalPositions  uint64
	ActivePositions uint64
	ExitedPositions uint64
	Holders         int // accounts with active stake

	RewardMultiplier uint64
	RewardShare      decimal.Decimal // RewardMultiplier / TotalMultiplier
	RewardAccrued    sdkmath.Int
	RewardClaimed    sdkmath.Int
}

// HolderRow summarizes one account.
type HolderRow struct {
	Token    domain.Address
	Owner    domain.Address
	Symbol   string
	Decimals uint8

	Total           sdkmath.Int
	EffectiveTotal  sdkmath.Int
	Share           decimal.Decimal // EffectiveTotal / pool EffectiveTotalLockUp
	ActivePositions int
	ExitedPositions int
	BonusClaimed    sdkmath.Int
	RewardClaimed   sdkmath.Int
}

// FormatUnits renders a base-unit amount in whole tokens.
func FormatUnits(v sdkmath.Int, decimals uint8) string {
	if v.IsNil() {
		return "0"
	}
	return decimal.NewFromBigInt(v.BigInt(), -int32(decimals)).String()
}

// FormatPercent renders a ratio as a percentage with two decimals.
func FormatPercent(ratio decimal.Decimal) string {
	return ratio.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

func ratio(num, den sdkmath.Int) decimal.Decimal {
	if num.IsNil() || den.IsNil() || den.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(num.BigInt(), 0).DivRound(decimal.NewFromBigInt(den.BigInt(), 0), 8)
}
