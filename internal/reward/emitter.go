// Package reward implements the block-driven reward emitter. It plugs into
// the lock-up ledger as stake hooks, so reward debt is settled inside the
// same transaction as every deposit and exit.
package reward

import (
	"context"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	"go.uber.org/zap"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/lockup"
	"lockup-ledger/internal/token"
)

const extensionName = "reward"

type accountKey struct {
	token domain.Address
	owner domain.Address
}

// Options configures an Emitter.
type Options struct {
	Config domain.RewardConfig
	Minter domain.Address // account holding the minter role on the reward token
	Logger *zap.Logger
}

// Emitter distributes the reward token across ledger pools by multiplier.
// Its state is guarded by the ledger's lock and changed only inside ledger
// transactions.
type Emitter struct {
	ledger *lockup.Ledger
	minter domain.Address
	logger *zap.Logger

	config          domain.RewardConfig
	pools           map[domain.Address]*domain.RewardPoolState
	accounts        map[accountKey]*domain.RewardAccount
	totalMultiplier uint64
}

// NewEmitter creates an emitter and attaches it to ledger.
func NewEmitter(ledger *lockup.Ledger, opts Options) (*Emitter, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if err := ValidateConfig(opts.Config); err != nil {
		return nil, err
	}
	if opts.Minter.IsZero() {
		return nil, domain.ErrInvalidAddress.Wrap("minter must be set")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Emitter{
		ledger:   ledger,
		minter:   opts.Minter,
		logger:   logger.Named("emitter"),
		config:   opts.Config,
		pools:    make(map[domain.Address]*domain.RewardPoolState),
		accounts: make(map[accountKey]*domain.RewardAccount),
	}
	ledger.Use(e)
	return e, nil
}

// Ledger returns the ledger the emitter is attached to.
func (e *Emitter) Ledger() *lockup.Ledger {
	return e.ledger
}

// state is the emitter's staged view within one ledger transaction.
type state struct {
	e               *Emitter
	pools           map[domain.Address]*domain.RewardPoolState
	accounts        map[accountKey]*domain.RewardAccount
	totalMultiplier uint64
}

func (e *Emitter) state(tx *lockup.Tx) *state {
	return tx.Extension(extensionName, func() lockup.Extension {
		return &state{
			e:               e,
			pools:           make(map[domain.Address]*domain.RewardPoolState),
			accounts:        make(map[accountKey]*domain.RewardAccount),
			totalMultiplier: e.totalMultiplier,
		}
	}).(*state)
}

// Commit implements lockup.Extension.
func (s *state) Commit() {
	for tok, p := range s.pools {
		cp := *p
		s.e.pools[tok] = &cp
	}
	for key, a := range s.accounts {
		ca := *a
		s.e.accounts[key] = &ca
	}
	s.e.totalMultiplier = s.totalMultiplier
}

func (s *state) has(tok domain.Address) bool {
	if _, ok := s.pools[tok]; ok {
		return true
	}
	_, ok := s.e.pools[tok]
	return ok
}

func (s *state) pool(tok domain.Address) (*domain.RewardPoolState, error) {
	if p, ok := s.pools[tok]; ok {
		return p, nil
	}
	committed, ok := s.e.pools[tok]
	if !ok {
		return nil, domain.ErrPoolNotFound.Wrapf("no reward pool for token %s", tok)
	}
	p := *committed
	s.pools[tok] = &p
	return &p, nil
}

func (s *state) account(tok, owner domain.Address) *domain.RewardAccount {
	key := accountKey{tok, owner}
	if a, ok := s.accounts[key]; ok {
		return a
	}
	var a domain.RewardAccount
	if committed, ok := s.e.accounts[key]; ok {
		a = *committed
	} else {
		a = domain.NewRewardAccount(tok, owner)
	}
	s.accounts[key] = &a
	return &a
}

func (s *state) tokens() []domain.Address {
	out := make([]domain.Address, 0, len(s.e.pools)+len(s.pools))
	for tok := range s.e.pools {
		out = append(out, tok)
	}
	for tok := range s.pools {
		if _, ok := s.e.pools[tok]; !ok {
			out = append(out, tok)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// settle advances the pool accumulator to the transaction's block and
// returns the reward credited.
func (e *Emitter) settle(tx *lockup.Tx, s *state, tok domain.Address) (sdkmath.Int, error) {
	rp, err := s.pool(tok)
	if err != nil {
		return sdkmath.Int{}, err
	}
	credited := sdkmath.ZeroInt()
	block := tx.Block()
	if block <= rp.LastRewardBlock {
		return credited, nil
	}

	lp, err := tx.Pool(tok)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if lp.EffectiveTotalLockUp.IsPositive() {
		credited = PoolEmission(e.config, rp.LastRewardBlock, block, rp.Multiplier, s.totalMultiplier)
		rp.AccRewardPerShare = rp.AccRewardPerShare.Add(lockup.PerShare(credited, lp.EffectiveTotalLockUp))
		rp.TotalRewardAccrued = rp.TotalRewardAccrued.Add(credited)
	}
	rp.LastRewardBlock = block
	return credited, nil
}

func (e *Emitter) settleAll(tx *lockup.Tx, s *state) error {
	for _, tok := range s.tokens() {
		if _, err := e.settle(tx, s, tok); err != nil {
			return err
		}
	}
	return nil
}

// pay mints owner's pending reward at the pool's current accumulator.
// The caller rebases the debt afterwards.
func (e *Emitter) pay(tx *lockup.Tx, s *state, tok, owner domain.Address) (sdkmath.Int, error) {
	rp, err := s.pool(tok)
	if err != nil {
		return sdkmath.Int{}, err
	}
	stake := tx.Account(tok, owner).EffectiveTotal
	ra := s.account(tok, owner)

	amount := lockup.Pending(stake, rp.AccRewardPerShare, ra.RewardDebt)
	if !amount.IsPositive() {
		return amount, nil
	}
	ra.RewardClaimed = ra.RewardClaimed.Add(amount)
	rp.TotalRewardClaimed = rp.TotalRewardClaimed.Add(amount)
	tx.Move(token.Mint(e.config.RewardToken, e.minter, owner, amount))

	ev := domain.NewEvent(domain.EventRewardClaimed, tok, owner)
	ev.Reward = amount
	tx.Emit(ev)
	return amount, nil
}

func (e *Emitter) rebase(tx *lockup.Tx, s *state, tok, owner domain.Address) error {
	rp, err := s.pool(tok)
	if err != nil {
		return err
	}
	ra := s.account(tok, owner)
	ra.RewardDebt = lockup.Accumulated(tx.Account(tok, owner).EffectiveTotal, rp.AccRewardPerShare)
	return nil
}

// BeforeStakeChange implements lockup.Hooks: it settles the pool and pays
// reward earned at the owner's current stake.
func (e *Emitter) BeforeStakeChange(tx *lockup.Tx, tok, owner domain.Address) error {
	s := e.state(tx)
	if !s.has(tok) {
		return nil
	}
	if _, err := e.settle(tx, s, tok); err != nil {
		return err
	}
	_, err := e.pay(tx, s, tok, owner)
	return err
}

// AfterStakeChange implements lockup.Hooks: it rebases reward debt to the
// owner's new stake.
func (e *Emitter) AfterStakeChange(tx *lockup.Tx, tok, owner domain.Address) error {
	s := e.state(tx)
	if !s.has(tok) {
		return nil
	}
	return e.rebase(tx, s, tok, owner)
}

// RegisterRewardPool registers a ledger pool for tok and gives it a share
// of emission weighted by multiplier. With settleAll every existing pool is
// settled at the old weighting first; without it their unsettled blocks
// are later weighted by the new total.
func (tx *Tx) RegisterRewardPool(caller, tok domain.Address, multiplier uint64, maxLimit sdkmath.Int, settleAll bool) error {
	if err := tx.RequireOwner(caller); err != nil {
		return err
	}
	if multiplier == 0 {
		return domain.ErrInvalidMultiplier.Wrap("multiplier must be positive")
	}
	s := tx.e.state(tx.Tx)
	if s.has(tok) {
		return domain.ErrPoolAlreadyExists.Wrapf("reward pool for token %s", tok)
	}
	if settleAll {
		if err := tx.e.settleAll(tx.Tx, s); err != nil {
			return err
		}
	}
	if err := tx.Tx.RegisterPool(caller, tok, maxLimit); err != nil {
		return err
	}

	last := tx.Block()
	if last < tx.e.config.StartBlock {
		last = tx.e.config.StartBlock
	}
	s.pools[tok] = &domain.RewardPoolState{
		Token:              tok,
		Multiplier:         multiplier,
		AccRewardPerShare:  sdkmath.ZeroInt(),
		LastRewardBlock:    last,
		TotalRewardAccrued: sdkmath.ZeroInt(),
		TotalRewardClaimed: sdkmath.ZeroInt(),
	}
	s.totalMultiplier += multiplier

	ev := domain.NewEvent(domain.EventRewardPoolAdded, tok, caller)
	ev.Amount = sdkmath.NewIntFromUint64(multiplier)
	tx.Emit(ev)
	return nil
}

// UpdatePool settles one pool to the current block.
func (tx *Tx) UpdatePool(tok domain.Address) (sdkmath.Int, error) {
	s := tx.e.state(tx.Tx)
	rp, err := s.pool(tok)
	if err != nil {
		return sdkmath.Int{}, err
	}
	from := rp.LastRewardBlock
	credited, err := tx.e.settle(tx.Tx, s, tok)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if rp.LastRewardBlock > from {
		ev := domain.NewEvent(domain.EventPoolSettled, tok, "")
		ev.Reward = credited
		tx.Emit(ev)
	}
	return credited, nil
}

// UpdateAllPools settles every pool to the current block.
func (tx *Tx) UpdateAllPools() error {
	for _, tok := range tx.e.state(tx.Tx).tokens() {
		if _, err := tx.UpdatePool(tok); err != nil {
			return err
		}
	}
	return nil
}

// ClaimReward mints caller's pending reward in tok.
func (tx *Tx) ClaimReward(caller, tok domain.Address) (sdkmath.Int, error) {
	if err := tx.RequireNotEmergency(); err != nil {
		return sdkmath.Int{}, err
	}
	s := tx.e.state(tx.Tx)
	if _, err := tx.e.settle(tx.Tx, s, tok); err != nil {
		return sdkmath.Int{}, err
	}
	amount, err := tx.e.pay(tx.Tx, s, tok, caller)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if err := tx.e.rebase(tx.Tx, s, tok, caller); err != nil {
		return sdkmath.Int{}, err
	}
	return amount, nil
}

// ClaimRewardAndBonus mints pending reward and pays earned bonus in one step.
func (tx *Tx) ClaimRewardAndBonus(caller, tok domain.Address) (rewardAmt, bonus sdkmath.Int, err error) {
	rewardAmt, err = tx.ClaimReward(caller, tok)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	bonus, err = tx.Tx.ClaimBonus(caller, tok)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	return rewardAmt, bonus, nil
}

// UpdatePoolMultiplier changes a pool's emission weight. The pool itself is
// always settled first. Decreasing requires settleAll, since it would shift
// other pools' unsettled blocks to a smaller total.
func (tx *Tx) UpdatePoolMultiplier(caller, tok domain.Address, multiplier uint64, settleAll bool) error {
	if err := tx.RequireOwner(caller); err != nil {
		return err
	}
	if multiplier == 0 {
		return domain.ErrInvalidMultiplier.Wrap("multiplier must be positive")
	}
	s := tx.e.state(tx.Tx)
	rp, err := s.pool(tok)
	if err != nil {
		return err
	}
	if multiplier < rp.Multiplier && !settleAll {
		return domain.ErrMultiplierDecreaseRequiresSettleAll.Wrapf("%d -> %d", rp.Multiplier, multiplier)
	}

	if _, err := tx.e.settle(tx.Tx, s, tok); err != nil {
		return err
	}
	if settleAll {
		if err := tx.e.settleAll(tx.Tx, s); err != nil {
			return err
		}
	}

	s.totalMultiplier = s.totalMultiplier - rp.Multiplier + multiplier
	rp.Multiplier = multiplier

	ev := domain.NewEvent(domain.EventMultiplierUpdated, tok, caller)
	ev.Amount = sdkmath.NewIntFromUint64(multiplier)
	tx.Emit(ev)
	return nil
}

// Tx binds a ledger transaction to the emitter.
type Tx struct {
	*lockup.Tx
	e *Emitter
}

// Bind returns the emitter's operations within a ledger transaction.
func (e *Emitter) Bind(tx *lockup.Tx) *Tx {
	return &Tx{Tx: tx, e: e}
}

// Update runs fn as a ledger write transaction with emitter operations available.
func (e *Emitter) Update(ctx context.Context, fn func(tx *Tx) error) error {
	return e.ledger.Update(ctx, func(ltx *lockup.Tx) error {
		return fn(e.Bind(ltx))
	})
}

// View runs fn against committed ledger and emitter state.
func (e *Emitter) View(ctx context.Context, fn func(tx *Tx) error) error {
	return e.ledger.View(ctx, func(ltx *lockup.Tx) error {
		return fn(e.Bind(ltx))
	})
}
