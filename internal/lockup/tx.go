package lockup

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"go.uber.org/zap"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/token"
)

type accountKey struct {
	token domain.Address
	owner domain.Address
}

// Extension is per-transaction state staged by a component plugged into the
// ledger. Commit is called only after the transaction's token movements
// settled.
type Extension interface {
	Commit()
}

// Tx is a ledger transaction. Reads see the committed state plus the
// transaction's own staged writes; nothing becomes visible to other callers
// until the transaction commits.
type Tx struct {
	l        *Ledger
	ctx      context.Context
	readOnly bool

	block uint64
	now   int64

	pools     map[domain.Address]*domain.TokenPool
	accounts  map[accountKey]*domain.UserAccount
	fund      *domain.Address
	emergency *bool
	newOwner  *domain.Address
	ownerBy   domain.Address

	moves      []token.Movement
	events     []domain.Event
	extensions map[string]Extension
	extOrder   []string
}

func newTx(ctx context.Context, l *Ledger, readOnly bool) *Tx {
	return &Tx{
		l:          l,
		ctx:        ctx,
		readOnly:   readOnly,
		block:      l.clock.Block(),
		now:        l.clock.Now(),
		pools:      make(map[domain.Address]*domain.TokenPool),
		accounts:   make(map[accountKey]*domain.UserAccount),
		extensions: make(map[string]Extension),
	}
}

// Context returns the context the transaction runs under.
func (tx *Tx) Context() context.Context {
	return tx.ctx
}

// Block returns the block height observed when the transaction began.
func (tx *Tx) Block() uint64 {
	return tx.block
}

// Now returns the timestamp observed when the transaction began.
func (tx *Tx) Now() int64 {
	return tx.now
}

// ReadOnly reports whether the transaction is a view.
func (tx *Tx) ReadOnly() bool {
	return tx.readOnly
}

// Owner returns the current owner.
func (tx *Tx) Owner() domain.Address {
	if tx.newOwner != nil {
		return *tx.newOwner
	}
	return tx.l.access.Owner()
}

// RequireOwner fails with ErrUnauthorized unless caller is the current owner.
func (tx *Tx) RequireOwner(caller domain.Address) error {
	if caller.IsZero() || caller != tx.Owner() {
		return domain.ErrUnauthorized.Wrapf("caller %s is not the owner", caller)
	}
	return nil
}

// EmergencyMode reports the emergency flag as seen by the transaction.
func (tx *Tx) EmergencyMode() bool {
	if tx.emergency != nil {
		return *tx.emergency
	}
	return tx.l.emergency
}

// RequireNotEmergency fails with ErrNotAllowedInEmergency when the flag is set.
func (tx *Tx) RequireNotEmergency() error {
	if tx.EmergencyMode() {
		return domain.ErrNotAllowedInEmergency
	}
	return nil
}

// FundAddress returns the fee recipient.
func (tx *Tx) FundAddress() domain.Address {
	if tx.fund != nil {
		return *tx.fund
	}
	return tx.l.fund
}

// Custody returns the account holding locked principal and penalties.
func (tx *Tx) Custody() domain.Address {
	return tx.l.custody
}

// HasPool reports whether a pool is registered for tok.
func (tx *Tx) HasPool(tok domain.Address) bool {
	if _, ok := tx.pools[tok]; ok {
		return true
	}
	_, ok := tx.l.pools[tok]
	return ok
}

// Pool returns a copy of the pool for tok.
func (tx *Tx) Pool(tok domain.Address) (domain.TokenPool, error) {
	p, err := tx.pool(tok)
	if err != nil {
		return domain.TokenPool{}, err
	}
	return *p, nil
}

// Tokens returns every registered token, committed or staged, in no
// particular order.
func (tx *Tx) Tokens() []domain.Address {
	out := make([]domain.Address, 0, len(tx.l.pools)+len(tx.pools))
	for tok := range tx.l.pools {
		out = append(out, tok)
	}
	for tok := range tx.pools {
		if _, ok := tx.l.pools[tok]; !ok {
			out = append(out, tok)
		}
	}
	return out
}

// Account returns a copy of owner's account in tok. Missing accounts are
// returned zeroed.
func (tx *Tx) Account(tok, owner domain.Address) domain.UserAccount {
	return tx.account(tok, owner).Clone()
}

// Move queues a token movement for the commit batch.
func (tx *Tx) Move(m token.Movement) {
	if m.Amount.IsNil() || m.Amount.IsZero() {
		return
	}
	tx.moves = append(tx.moves, m)
}

// Emit queues an event published after commit.
func (tx *Tx) Emit(ev domain.Event) {
	ev.Block = tx.block
	ev.Timestamp = tx.now
	tx.events = append(tx.events, ev)
}

// Extension returns the extension staged under name, creating it with open on
// first use within the transaction.
func (tx *Tx) Extension(name string, open func() Extension) Extension {
	if ext, ok := tx.extensions[name]; ok {
		return ext
	}
	ext := open()
	tx.extensions[name] = ext
	tx.extOrder = append(tx.extOrder, name)
	return ext
}

func (tx *Tx) pool(tok domain.Address) (*domain.TokenPool, error) {
	if p, ok := tx.pools[tok]; ok {
		return p, nil
	}
	committed, ok := tx.l.pools[tok]
	if !ok {
		return nil, domain.ErrPoolNotFound.Wrapf("token %s", tok)
	}
	p := *committed
	tx.pools[tok] = &p
	return &p, nil
}

func (tx *Tx) account(tok, owner domain.Address) *domain.UserAccount {
	key := accountKey{tok, owner}
	if a, ok := tx.accounts[key]; ok {
		return a
	}
	var a domain.UserAccount
	if committed, ok := tx.l.accounts[key]; ok {
		a = committed.Clone()
	} else {
		a = domain.NewUserAccount(tok, owner)
	}
	tx.accounts[key] = &a
	return &a
}

// commit publishes staged state into the ledger. Caller holds the write lock.
func (tx *Tx) commit() {
	l := tx.l
	for tok, p := range tx.pools {
		cp := *p
		l.pools[tok] = &cp
	}
	for key, a := range tx.accounts {
		if a.Positions == nil && a.BonusClaimed.IsZero() && a.BonusDebt.IsZero() {
			continue
		}
		ca := a.Clone()
		l.accounts[key] = &ca
	}
	if tx.fund != nil {
		l.fund = *tx.fund
	}
	if tx.emergency != nil {
		l.emergency = *tx.emergency
	}
	if tx.newOwner != nil {
		if err := l.access.TransferOwnership(tx.ownerBy, *tx.newOwner); err != nil {
			l.logger.Error("ownership transfer rejected at commit", zap.Error(err))
		}
	}
	for _, name := range tx.extOrder {
		tx.extensions[name].Commit()
	}
	for i := range tx.events {
		l.lastSeq++
		tx.events[i].Seq = l.lastSeq
	}
}

func zeroIfNil(v sdkmath.Int) sdkmath.Int {
	if v.IsNil() {
		return sdkmath.ZeroInt()
	}
	return v
}
