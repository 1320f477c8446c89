package token

import (
	"context"
	"fmt"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"

	"lockup-ledger/internal/domain"
)

type allowanceKey struct {
	owner   domain.Address
	spender domain.Address
}

type asset struct {
	symbol     string
	decimals   uint8
	supply     sdkmath.Int
	balances   map[domain.Address]sdkmath.Int
	allowances map[allowanceKey]sdkmath.Int
	minters    map[domain.Address]bool
}

func (a *asset) balance(owner domain.Address) sdkmath.Int {
	if b, ok := a.balances[owner]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

func (a *asset) allowance(owner, spender domain.Address) sdkmath.Int {
	if v, ok := a.allowances[allowanceKey{owner, spender}]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

// MemoryLedger is an in-memory implementation of Ledger with ERC20-like
// semantics: balances, allowances and a minter role per asset.
type MemoryLedger struct {
	mu     sync.RWMutex
	assets map[domain.Address]*asset
}

// NewMemoryLedger creates an empty token ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		assets: make(map[domain.Address]*asset),
	}
}

// CreateAsset registers a token and credits the initial supply to holder.
func (l *MemoryLedger) CreateAsset(id domain.Address, symbol string, decimals uint8, holder domain.Address, supply sdkmath.Int) error {
	if id.IsZero() {
		return domain.ErrInvalidAddress.Wrap("empty asset id")
	}
	if supply.IsNil() || supply.IsNegative() {
		return domain.ErrInvalidAmount.Wrapf("initial supply %s", supply)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.assets[id]; exists {
		return fmt.Errorf("asset %s already exists", id)
	}

	a := &asset{
		symbol:     symbol,
		decimals:   decimals,
		supply:     supply,
		balances:   make(map[domain.Address]sdkmath.Int),
		allowances: make(map[allowanceKey]sdkmath.Int),
		minters:    make(map[domain.Address]bool),
	}
	if supply.IsPositive() {
		a.balances[holder] = supply
	}
	l.assets[id] = a
	return nil
}

// AddMinter grants the minter role on an asset.
func (l *MemoryLedger) AddMinter(id, minter domain.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	a.minters[minter] = true
	return nil
}

// Symbol returns the ticker of an asset.
func (l *MemoryLedger) Symbol(id domain.Address) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.assets[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	return a.symbol, nil
}

// Decimals returns the display decimals of an asset.
func (l *MemoryLedger) Decimals(id domain.Address) (uint8, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.assets[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	return a.decimals, nil
}

// TotalSupply returns the circulating supply of an asset.
func (l *MemoryLedger) TotalSupply(_ context.Context, id domain.Address) (sdkmath.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.assets[id]
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	return a.supply, nil
}

// BalanceOf returns owner's balance of an asset.
func (l *MemoryLedger) BalanceOf(_ context.Context, id, owner domain.Address) (sdkmath.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.assets[id]
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	return a.balance(owner), nil
}

// Allowance returns how much spender may pull from owner.
func (l *MemoryLedger) Allowance(_ context.Context, id, owner, spender domain.Address) (sdkmath.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.assets[id]
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	return a.allowance(owner, spender), nil
}

// Approve sets spender's allowance over owner's funds.
func (l *MemoryLedger) Approve(_ context.Context, id, owner, spender domain.Address, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return domain.ErrInvalidAmount.Wrapf("allowance %s", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	a.allowances[allowanceKey{owner, spender}] = amount
	return nil
}

// Transfer moves owner's funds to another account.
func (l *MemoryLedger) Transfer(ctx context.Context, id, from, to domain.Address, amount sdkmath.Int) error {
	return l.Settle(ctx, []Movement{Transfer(id, from, to, amount)})
}

// TransferFrom moves owner's funds on behalf of spender.
func (l *MemoryLedger) TransferFrom(ctx context.Context, id, spender, from, to domain.Address, amount sdkmath.Int) error {
	return l.Settle(ctx, []Movement{Pull(id, spender, from, to, amount)})
}

// Mint creates new supply for to. minter must hold the minter role.
func (l *MemoryLedger) Mint(ctx context.Context, id, minter, to domain.Address, amount sdkmath.Int) error {
	return l.Settle(ctx, []Movement{Mint(id, minter, to, amount)})
}

// Settle applies all movements atomically.
// Movements are validated in order against the running result of the
// previous ones, so a batch may spend funds it receives earlier in the batch.
func (l *MemoryLedger) Settle(_ context.Context, moves []Movement) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	type balanceKey struct {
		asset domain.Address
		owner domain.Address
	}
	type allowKey struct {
		asset domain.Address
		key   allowanceKey
	}

	balances := make(map[balanceKey]sdkmath.Int)
	allowances := make(map[allowKey]sdkmath.Int)
	supplies := make(map[domain.Address]sdkmath.Int)

	balanceOf := func(a *asset, k balanceKey) sdkmath.Int {
		if v, ok := balances[k]; ok {
			return v
		}
		return a.balance(k.owner)
	}

	for i, m := range moves {
		if m.Amount.IsNil() || m.Amount.IsNegative() {
			return domain.ErrInvalidAmount.Wrapf("movement %d: amount %s", i, m.Amount)
		}
		if m.Amount.IsZero() {
			continue
		}

		a, ok := l.assets[m.Asset]
		if !ok {
			return fmt.Errorf("movement %d: %w: %s", i, ErrUnknownAsset, m.Asset)
		}

		switch m.Kind {
		case MoveMint:
			if !a.minters[m.Spender] {
				return domain.ErrMintNotAllowed.Wrapf("%s is not a minter of %s", m.Spender, m.Asset)
			}
			supply, ok := supplies[m.Asset]
			if !ok {
				supply = a.supply
			}
			supplies[m.Asset] = supply.Add(m.Amount)

		case MoveTransfer, MovePull:
			from := balanceKey{m.Asset, m.From}
			bal := balanceOf(a, from)
			if bal.LT(m.Amount) {
				return domain.ErrInsufficientBalanceOrAllowance.Wrapf("not enough balance: %s has %s, needs %s", m.From, bal, m.Amount)
			}
			if m.Kind == MovePull {
				ak := allowKey{m.Asset, allowanceKey{m.From, m.Spender}}
				allowed, ok := allowances[ak]
				if !ok {
					allowed = a.allowance(m.From, m.Spender)
				}
				if allowed.LT(m.Amount) {
					return domain.ErrInsufficientBalanceOrAllowance.Wrapf("not enough allowance: %s allows %s, needs %s", m.From, allowed, m.Amount)
				}
				allowances[ak] = allowed.Sub(m.Amount)
			}
			balances[from] = bal.Sub(m.Amount)

		default:
			return fmt.Errorf("movement %d: unknown kind %q", i, m.Kind)
		}

		to := balanceKey{m.Asset, m.To}
		balances[to] = balanceOf(a, to).Add(m.Amount)
	}

	for k, v := range balances {
		l.assets[k.asset].balances[k.owner] = v
	}
	for k, v := range allowances {
		l.assets[k.asset].allowances[k.key] = v
	}
	for id, v := range supplies {
		l.assets[id].supply = v
	}
	return nil
}

// ExportState implements Stateful. Zero balances and allowances are omitted.
func (l *MemoryLedger) ExportState() domain.TokenSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]domain.Address, 0, len(l.assets))
	for id := range l.assets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var state domain.TokenSnapshot
	for _, id := range ids {
		a := l.assets[id]
		as := domain.AssetState{
			ID:       id,
			Symbol:   a.symbol,
			Decimals: a.decimals,
			Supply:   a.supply,
		}
		for m, ok := range a.minters {
			if ok {
				as.Minters = append(as.Minters, m)
			}
		}
		sort.Slice(as.Minters, func(i, j int) bool { return as.Minters[i] < as.Minters[j] })

		for owner, v := range a.balances {
			if v.IsPositive() {
				as.Balances = append(as.Balances, domain.Holding{Owner: owner, Amount: v})
			}
		}
		sort.Slice(as.Balances, func(i, j int) bool { return as.Balances[i].Owner < as.Balances[j].Owner })

		for k, v := range a.allowances {
			if v.IsPositive() {
				as.Allowances = append(as.Allowances, domain.Allowance{Owner: k.owner, Spender: k.spender, Amount: v})
			}
		}
		sort.Slice(as.Allowances, func(i, j int) bool {
			x, y := as.Allowances[i], as.Allowances[j]
			if x.Owner != y.Owner {
				return x.Owner < y.Owner
			}
			return x.Spender < y.Spender
		})

		state.Assets = append(state.Assets, as)
	}
	return state
}

// PrepareRestore implements Stateful. Assets in state replace the live ones
// with the same id; assets the state does not mention are kept.
func (l *MemoryLedger) PrepareRestore(state domain.TokenSnapshot) (func(), error) {
	restored := make(map[domain.Address]*asset, len(state.Assets))
	for _, as := range state.Assets {
		if as.ID.IsZero() {
			return nil, domain.ErrInvalidAddress.Wrap("snapshot asset without id")
		}
		if _, dup := restored[as.ID]; dup {
			return nil, fmt.Errorf("snapshot has duplicate asset %s", as.ID)
		}
		if as.Supply.IsNil() || as.Supply.IsNegative() {
			return nil, domain.ErrInvalidAmount.Wrapf("asset %s supply %s", as.ID, as.Supply)
		}

		a := &asset{
			symbol:     as.Symbol,
			decimals:   as.Decimals,
			supply:     as.Supply,
			balances:   make(map[domain.Address]sdkmath.Int, len(as.Balances)),
			allowances: make(map[allowanceKey]sdkmath.Int, len(as.Allowances)),
			minters:    make(map[domain.Address]bool, len(as.Minters)),
		}
		sum := sdkmath.ZeroInt()
		for _, h := range as.Balances {
			if h.Amount.IsNil() || h.Amount.IsNegative() {
				return nil, domain.ErrInvalidAmount.Wrapf("asset %s balance of %s: %s", as.ID, h.Owner, h.Amount)
			}
			a.balances[h.Owner] = h.Amount
			sum = sum.Add(h.Amount)
		}
		if !sum.Equal(as.Supply) {
			return nil, fmt.Errorf("asset %s balances sum to %s, supply is %s", as.ID, sum, as.Supply)
		}
		for _, al := range as.Allowances {
			if al.Amount.IsNil() || al.Amount.IsNegative() {
				return nil, domain.ErrInvalidAmount.Wrapf("asset %s allowance %s->%s: %s", as.ID, al.Owner, al.Spender, al.Amount)
			}
			a.allowances[allowanceKey{al.Owner, al.Spender}] = al.Amount
		}
		for _, m := range as.Minters {
			a.minters[m] = true
		}
		restored[as.ID] = a
	}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for id, a := range restored {
			l.assets[id] = a
		}
	}, nil
}

// Compile-time interface checks.
var (
	_ Ledger   = (*MemoryLedger)(nil)
	_ Stateful = (*MemoryLedger)(nil)
)
