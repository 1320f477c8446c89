package reward

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"lockup-ledger/internal/domain"
)

// RegisterRewardPool registers a ledger pool with a reward multiplier.
func (e *Emitter) RegisterRewardPool(ctx context.Context, caller, tok domain.Address, multiplier uint64, maxLimit sdkmath.Int, settleAll bool) error {
	return e.Update(ctx, func(tx *Tx) error {
		return tx.RegisterRewardPool(caller, tok, multiplier, maxLimit, settleAll)
	})
}

// UpdatePool settles one pool and returns the reward credited.
func (e *Emitter) UpdatePool(ctx context.Context, tok domain.Address) (sdkmath.Int, error) {
	var credited sdkmath.Int
	err := e.Update(ctx, func(tx *Tx) error {
		var err error
		credited, err = tx.UpdatePool(tok)
		return err
	})
	return credited, err
}

// UpdateAllPools settles every pool.
func (e *Emitter) UpdateAllPools(ctx context.Context) error {
	return e.Update(ctx, func(tx *Tx) error {
		return tx.UpdateAllPools()
	})
}

// ClaimReward mints caller's pending reward.
func (e *Emitter) ClaimReward(ctx context.Context, caller, tok domain.Address) (sdkmath.Int, error) {
	var amount sdkmath.Int
	err := e.Update(ctx, func(tx *Tx) error {
		var err error
		amount, err = tx.ClaimReward(caller, tok)
		return err
	})
	return amount, err
}

// ClaimRewardAndBonus mints pending reward and pays earned bonus.
func (e *Emitter) ClaimRewardAndBonus(ctx context.Context, caller, tok domain.Address) (rewardAmt, bonus sdkmath.Int, err error) {
	err = e.Update(ctx, func(tx *Tx) error {
		var err error
		rewardAmt, bonus, err = tx.ClaimRewardAndBonus(caller, tok)
		return err
	})
	return rewardAmt, bonus, err
}

// UpdatePoolMultiplier changes a pool's emission weight.
func (e *Emitter) UpdatePoolMultiplier(ctx context.Context, caller, tok domain.Address, multiplier uint64, settleAll bool) error {
	return e.Update(ctx, func(tx *Tx) error {
		return tx.UpdatePoolMultiplier(caller, tok, multiplier, settleAll)
	})
}
