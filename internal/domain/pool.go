package domain

import (
	sdkmath "cosmossdk.io/math"
)

// TokenPool is the lock-up pool registered for one token.
// Corresponds to lockup_pools table in PostgreSQL.
type TokenPool struct {
	Token                 Address     // PRIMARY KEY, token mint
	MaxLockUpLimit        sdkmath.Int // cap on TotalLockUp
	TotalLockUp           sdkmath.Int // sum of principal of active positions
	EffectiveTotalLockUp  sdkmath.Int // sum of boosted principal of active positions
	AccBonusPerShare      sdkmath.Int // penalty bonus per effective unit, scaled by Precision
	TotalPenaltyCollected sdkmath.Int // lifetime penalties
	TotalPlatformFee      sdkmath.Int // lifetime fees sent to the fund
	TotalBonusClaimed     sdkmath.Int // lifetime bonus paid out
	UndistributedPenalty  sdkmath.Int // penalty received while no other stake existed
	AccTotalLockUp        sdkmath.Int // lifetime deposits, never decremented
	LockUpCount           uint64      // positions ever created
	ActiveLockUpCount     uint64      // positions not yet exited
	ExitedLockUpCount     uint64      // positions exited
	CreatedAt             int64       // Unix seconds
}

// NewTokenPool returns a zeroed pool for token.
func NewTokenPool(token Address, maxLimit sdkmath.Int, createdAt int64) TokenPool {
	return TokenPool{
		Token:                 token,
		MaxLockUpLimit:        maxLimit,
		TotalLockUp:           sdkmath.ZeroInt(),
		EffectiveTotalLockUp:  sdkmath.ZeroInt(),
		AccBonusPerShare:      sdkmath.ZeroInt(),
		TotalPenaltyCollected: sdkmath.ZeroInt(),
		TotalPlatformFee:      sdkmath.ZeroInt(),
		TotalBonusClaimed:     sdkmath.ZeroInt(),
		UndistributedPenalty:  sdkmath.ZeroInt(),
		AccTotalLockUp:        sdkmath.ZeroInt(),
		CreatedAt:             createdAt,
	}
}
