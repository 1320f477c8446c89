package reward

import (
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	"go.uber.org/zap"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/lockup"
)

// SnapshotInto implements lockup.Snapshotter.
func (e *Emitter) SnapshotInto(_ *lockup.Tx, snap *domain.Snapshot) {
	rs := &domain.RewardSnapshot{Config: e.config}

	tokens := make([]domain.Address, 0, len(e.pools))
	for tok := range e.pools {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	for _, tok := range tokens {
		rs.Pools = append(rs.Pools, *e.pools[tok])
	}

	keys := make([]accountKey, 0, len(e.accounts))
	for key := range e.accounts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].token != keys[j].token {
			return keys[i].token < keys[j].token
		}
		return keys[i].owner < keys[j].owner
	})
	for _, key := range keys {
		rs.Accounts = append(rs.Accounts, *e.accounts[key])
	}

	snap.Rewards = rs
}

// RestoreFrom implements lockup.Snapshotter. A snapshot without reward
// state leaves the emitter with its configured schedule and no pools.
func (e *Emitter) RestoreFrom(snap domain.Snapshot) error {
	config := e.config
	pools := make(map[domain.Address]*domain.RewardPoolState)
	accounts := make(map[accountKey]*domain.RewardAccount)
	var total uint64

	if rs := snap.Rewards; rs != nil {
		if err := ValidateConfig(rs.Config); err != nil {
			return fmt.Errorf("snapshot reward config: %w", err)
		}
		config = rs.Config

		known := make(map[domain.Address]bool, len(snap.Pools))
		for _, p := range snap.Pools {
			known[p.Token] = true
		}
		for _, p := range rs.Pools {
			if !known[p.Token] {
				return fmt.Errorf("snapshot reward pool %s has no ledger pool", p.Token)
			}
			if p.Multiplier == 0 {
				return domain.ErrInvalidMultiplier.Wrapf("snapshot reward pool %s", p.Token)
			}
			cp := p
			cp.AccRewardPerShare = zeroIfNil(cp.AccRewardPerShare)
			cp.TotalRewardAccrued = zeroIfNil(cp.TotalRewardAccrued)
			cp.TotalRewardClaimed = zeroIfNil(cp.TotalRewardClaimed)
			pools[p.Token] = &cp
			total += p.Multiplier
		}
		for _, a := range rs.Accounts {
			if _, ok := pools[a.Token]; !ok {
				return fmt.Errorf("snapshot reward account %s references unknown pool %s", a.Owner, a.Token)
			}
			ca := a
			ca.RewardDebt = zeroIfNil(ca.RewardDebt)
			ca.RewardClaimed = zeroIfNil(ca.RewardClaimed)
			accounts[accountKey{a.Token, a.Owner}] = &ca
		}
	}

	e.config = config
	e.pools = pools
	e.accounts = accounts
	e.totalMultiplier = total

	e.logger.Info("restored",
		zap.Int("pools", len(pools)),
		zap.Int("accounts", len(accounts)),
		zap.Uint64("total_multiplier", total),
	)
	return nil
}

func zeroIfNil(v sdkmath.Int) sdkmath.Int {
	if v.IsNil() {
		return sdkmath.ZeroInt()
	}
	return v
}

var (
	_ lockup.Hooks       = (*Emitter)(nil)
	_ lockup.Snapshotter = (*Emitter)(nil)
	_ lockup.Extension   = (*state)(nil)
)
