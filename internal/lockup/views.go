package lockup

import (
	"context"
	"sort"

	sdkmath "cosmossdk.io/math"

	"lockup-ledger/internal/domain"
)

// Pool returns the pool for tok.
func (l *Ledger) Pool(ctx context.Context, tok domain.Address) (domain.TokenPool, error) {
	var p domain.TokenPool
	err := l.View(ctx, func(tx *Tx) error {
		var err error
		p, err = tx.Pool(tok)
		return err
	})
	return p, err
}

// Pools returns every registered pool ordered by token.
func (l *Ledger) Pools(ctx context.Context) ([]domain.TokenPool, error) {
	var pools []domain.TokenPool
	err := l.View(ctx, func(tx *Tx) error {
		tokens := tx.Tokens()
		sortAddresses(tokens)
		pools = make([]domain.TokenPool, 0, len(tokens))
		for _, tok := range tokens {
			p, err := tx.Pool(tok)
			if err != nil {
				return err
			}
			pools = append(pools, p)
		}
		return nil
	})
	return pools, err
}

// Account returns owner's account in tok. Unknown owners get a zeroed account.
func (l *Ledger) Account(ctx context.Context, tok, owner domain.Address) (domain.UserAccount, error) {
	var a domain.UserAccount
	err := l.View(ctx, func(tx *Tx) error {
		if !tx.HasPool(tok) {
			return domain.ErrPoolNotFound.Wrapf("token %s", tok)
		}
		a = tx.Account(tok, owner)
		return nil
	})
	return a, err
}

// Position returns one position of owner in tok.
func (l *Ledger) Position(ctx context.Context, tok, owner domain.Address, index uint64) (domain.LockUpPosition, error) {
	a, err := l.Account(ctx, tok, owner)
	if err != nil {
		return domain.LockUpPosition{}, err
	}
	if index >= uint64(len(a.Positions)) {
		return domain.LockUpPosition{}, domain.ErrPositionNotFound.Wrapf("token %s owner %s index %d", tok, owner, index)
	}
	return a.Positions[index], nil
}

// EarnedBonus returns owner's unclaimed penalty bonus in tok.
func (l *Ledger) EarnedBonus(ctx context.Context, tok, owner domain.Address) (sdkmath.Int, error) {
	var bonus sdkmath.Int
	err := l.View(ctx, func(tx *Tx) error {
		var err error
		bonus, err = tx.EarnedBonus(tok, owner)
		return err
	})
	return bonus, err
}

// Owners returns the owners holding an account in tok, ordered.
func (l *Ledger) Owners(ctx context.Context, tok domain.Address) ([]domain.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.pools[tok]; !ok {
		return nil, domain.ErrPoolNotFound.Wrapf("token %s", tok)
	}
	var owners []domain.Address
	for key := range l.accounts {
		if key.token == tok {
			owners = append(owners, key.owner)
		}
	}
	sortAddresses(owners)
	return owners, nil
}

// Owner returns the current owner.
func (l *Ledger) Owner() domain.Address {
	return l.access.Owner()
}

// FundAddress returns the fee recipient.
func (l *Ledger) FundAddress() domain.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fund
}

// EmergencyMode reports whether emergency mode is on.
func (l *Ledger) EmergencyMode() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.emergency
}

// LastEventSeq returns the sequence number of the last committed event.
func (l *Ledger) LastEventSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastSeq
}

func sortAddresses(addrs []domain.Address) {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
}
