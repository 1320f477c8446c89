package lockup

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/storage"
	"lockup-ledger/internal/token"
)

// Snapshot captures the complete ledger state, including the state of
// attached hooks that implement Snapshotter.
func (l *Ledger) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := l.View(ctx, func(tx *Tx) error {
		snap = domain.Snapshot{
			SchemaVersion: domain.SnapshotSchemaVersion,
			Owner:         tx.Owner(),
			FundAddress:   tx.FundAddress(),
			EmergencyMode: tx.EmergencyMode(),
			LastEventSeq:  l.lastSeq,
			Block:         tx.Block(),
			TakenAt:       tx.Now(),
		}

		tokens := tx.Tokens()
		sortAddresses(tokens)
		for _, tok := range tokens {
			p, err := tx.Pool(tok)
			if err != nil {
				return err
			}
			snap.Pools = append(snap.Pools, p)
		}

		keys := make([]accountKey, 0, len(l.accounts))
		for key := range l.accounts {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].token != keys[j].token {
				return keys[i].token < keys[j].token
			}
			return keys[i].owner < keys[j].owner
		})
		for _, key := range keys {
			snap.Accounts = append(snap.Accounts, l.accounts[key].Clone())
		}

		for _, h := range l.hooks {
			if s, ok := h.(Snapshotter); ok {
				s.SnapshotInto(tx, &snap)
			}
		}
		if st, ok := l.token.(token.Stateful); ok {
			ts := st.ExportState()
			snap.Tokens = &ts
		}
		return nil
	})
	return snap, err
}

// Restore replaces the ledger state with snap. Attached Snapshotters restore
// first; if any of them fails the ledger is left unchanged. A token ledger
// implementing token.Stateful is restored from snap.Tokens in the same step,
// and a snapshot without token state is refused for it while stake is locked.
func (l *Ledger) Restore(ctx context.Context, snap domain.Snapshot) error {
	if snap.SchemaVersion > domain.SnapshotSchemaVersion {
		return fmt.Errorf("%w: version %d, supported %d", storage.ErrUnsupportedSchema, snap.SchemaVersion, domain.SnapshotSchemaVersion)
	}
	if snap.Owner.IsZero() {
		return domain.ErrInvalidAddress.Wrap("snapshot has no owner")
	}
	if snap.FundAddress.IsZero() {
		return domain.ErrInvalidAddress.Wrap("snapshot has no fund address")
	}

	pools := make(map[domain.Address]*domain.TokenPool, len(snap.Pools))
	for _, p := range snap.Pools {
		if _, dup := pools[p.Token]; dup {
			return fmt.Errorf("snapshot has duplicate pool %s", p.Token)
		}
		cp := normalizePool(p)
		pools[p.Token] = &cp
	}
	accounts := make(map[accountKey]*domain.UserAccount, len(snap.Accounts))
	for _, a := range snap.Accounts {
		if _, ok := pools[a.Token]; !ok {
			return fmt.Errorf("snapshot account %s references unknown pool %s", a.Owner, a.Token)
		}
		ca := normalizeAccount(a)
		if snap.SchemaVersion < 2 {
			for i := range ca.Positions {
				ca.Positions[i].Exited = ca.Positions[i].ExitedAt != 0
			}
		}
		accounts[accountKey{a.Token, a.Owner}] = &ca
	}
	if err := reconcile(pools, accounts); err != nil {
		return err
	}

	commitTokens := func() {}
	if st, ok := l.token.(token.Stateful); ok {
		if snap.Tokens == nil {
			for _, p := range pools {
				if p.TotalLockUp.IsPositive() {
					return fmt.Errorf("snapshot has locked stake in %s but no token balances", p.Token)
				}
			}
		} else {
			commit, err := st.PrepareRestore(*snap.Tokens)
			if err != nil {
				return fmt.Errorf("restore tokens: %w", err)
			}
			commitTokens = commit
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	for _, h := range l.hooks {
		if s, ok := h.(Snapshotter); ok {
			if err := s.RestoreFrom(snap); err != nil {
				return fmt.Errorf("restore hooks: %w", err)
			}
		}
	}
	if err := l.access.Restore(snap.Owner); err != nil {
		return err
	}
	commitTokens()

	l.pools = pools
	l.accounts = accounts
	l.fund = snap.FundAddress
	l.emergency = snap.EmergencyMode
	l.lastSeq = snap.LastEventSeq

	l.logger.Info("restored",
		zap.Int("pools", len(pools)),
		zap.Int("accounts", len(accounts)),
		zap.Uint64("last_seq", snap.LastEventSeq),
		zap.Uint64("block", snap.Block),
	)
	return nil
}

// reconcile checks that pool totals equal the sum of their active positions.
func reconcile(pools map[domain.Address]*domain.TokenPool, accounts map[accountKey]*domain.UserAccount) error {
	sums := make(map[domain.Address]*domain.TokenPool, len(pools))
	for tok := range pools {
		p := domain.NewTokenPool(tok, pools[tok].MaxLockUpLimit, 0)
		sums[tok] = &p
	}
	for key, a := range accounts {
		sum := sums[key.token]
		for _, pos := range a.Positions {
			if pos.IsExited() {
				continue
			}
			sum.TotalLockUp = sum.TotalLockUp.Add(pos.Amount)
			sum.EffectiveTotalLockUp = sum.EffectiveTotalLockUp.Add(pos.EffectiveAmount)
		}
	}
	for tok, p := range pools {
		s := sums[tok]
		if !p.TotalLockUp.Equal(s.TotalLockUp) || !p.EffectiveTotalLockUp.Equal(s.EffectiveTotalLockUp) {
			return fmt.Errorf("snapshot pool %s totals %s/%s do not match positions %s/%s",
				tok, p.TotalLockUp, p.EffectiveTotalLockUp, s.TotalLockUp, s.EffectiveTotalLockUp)
		}
	}
	return nil
}

func normalizePool(p domain.TokenPool) domain.TokenPool {
	p.MaxLockUpLimit = zeroIfNil(p.MaxLockUpLimit)
	p.TotalLockUp = zeroIfNil(p.TotalLockUp)
	p.EffectiveTotalLockUp = zeroIfNil(p.EffectiveTotalLockUp)
	p.AccBonusPerShare = zeroIfNil(p.AccBonusPerShare)
	p.TotalPenaltyCollected = zeroIfNil(p.TotalPenaltyCollected)
	p.TotalPlatformFee = zeroIfNil(p.TotalPlatformFee)
	p.TotalBonusClaimed = zeroIfNil(p.TotalBonusClaimed)
	p.UndistributedPenalty = zeroIfNil(p.UndistributedPenalty)
	p.AccTotalLockUp = zeroIfNil(p.AccTotalLockUp)
	return p
}

func normalizeAccount(a domain.UserAccount) domain.UserAccount {
	a = a.Clone()
	a.Total = zeroIfNil(a.Total)
	a.EffectiveTotal = zeroIfNil(a.EffectiveTotal)
	a.BonusClaimed = zeroIfNil(a.BonusClaimed)
	a.BonusDebt = zeroIfNil(a.BonusDebt)
	for i := range a.Positions {
		a.Positions[i].Amount = zeroIfNil(a.Positions[i].Amount)
		a.Positions[i].EffectiveAmount = zeroIfNil(a.Positions[i].EffectiveAmount)
		a.Positions[i].Penalty = zeroIfNil(a.Positions[i].Penalty)
		a.Positions[i].Fee = zeroIfNil(a.Positions[i].Fee)
	}
	return a
}
