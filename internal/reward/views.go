package reward

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/lockup"
)

// PendingReward returns what owner could claim in tok at the current block.
func (tx *Tx) PendingReward(tok, owner domain.Address) (sdkmath.Int, error) {
	s := tx.e.state(tx.Tx)
	rp, err := s.pool(tok)
	if err != nil {
		return sdkmath.Int{}, err
	}
	acc := rp.AccRewardPerShare
	if tx.Block() > rp.LastRewardBlock {
		lp, err := tx.Pool(tok)
		if err != nil {
			return sdkmath.Int{}, err
		}
		if lp.EffectiveTotalLockUp.IsPositive() {
			credited := PoolEmission(tx.e.config, rp.LastRewardBlock, tx.Block(), rp.Multiplier, s.totalMultiplier)
			acc = acc.Add(lockup.PerShare(credited, lp.EffectiveTotalLockUp))
		}
	}
	stake := tx.Account(tok, owner).EffectiveTotal
	return lockup.Pending(stake, acc, s.account(tok, owner).RewardDebt), nil
}

// PendingReward returns what owner could claim in tok at the current block.
func (e *Emitter) PendingReward(ctx context.Context, tok, owner domain.Address) (sdkmath.Int, error) {
	var amount sdkmath.Int
	err := e.View(ctx, func(tx *Tx) error {
		var err error
		amount, err = tx.PendingReward(tok, owner)
		return err
	})
	return amount, err
}

// RewardPool returns the emitter state of one pool.
func (e *Emitter) RewardPool(ctx context.Context, tok domain.Address) (domain.RewardPoolState, error) {
	var p domain.RewardPoolState
	err := e.View(ctx, func(tx *Tx) error {
		rp, err := tx.e.state(tx.Tx).pool(tok)
		if err != nil {
			return err
		}
		p = *rp
		return nil
	})
	return p, err
}

// RewardPools returns every reward pool ordered by token.
func (e *Emitter) RewardPools(ctx context.Context) ([]domain.RewardPoolState, error) {
	var pools []domain.RewardPoolState
	err := e.View(ctx, func(tx *Tx) error {
		s := tx.e.state(tx.Tx)
		for _, tok := range s.tokens() {
			rp, err := s.pool(tok)
			if err != nil {
				return err
			}
			pools = append(pools, *rp)
		}
		return nil
	})
	return pools, err
}

// RewardAccount returns owner's reward account in tok.
func (e *Emitter) RewardAccount(ctx context.Context, tok, owner domain.Address) (domain.RewardAccount, error) {
	var a domain.RewardAccount
	err := e.View(ctx, func(tx *Tx) error {
		s := tx.e.state(tx.Tx)
		if !s.has(tok) {
			return domain.ErrPoolNotFound.Wrapf("no reward pool for token %s", tok)
		}
		a = *s.account(tok, owner)
		return nil
	})
	return a, err
}

// Config returns the emission schedule.
func (e *Emitter) Config(ctx context.Context) domain.RewardConfig {
	var cfg domain.RewardConfig
	_ = e.View(ctx, func(tx *Tx) error {
		cfg = tx.e.config
		return nil
	})
	return cfg
}

// TotalMultiplier returns the sum of all pool multipliers.
func (e *Emitter) TotalMultiplier(ctx context.Context) uint64 {
	var total uint64
	_ = e.View(ctx, func(tx *Tx) error {
		total = tx.e.totalMultiplier
		return nil
	})
	return total
}
