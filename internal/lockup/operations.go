package lockup

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/token"
)

// ExitResult describes a completed exit.
type ExitResult struct {
	Index   uint64
	Forced  bool
	Net     sdkmath.Int // principal returned
	Penalty sdkmath.Int
	Fee     sdkmath.Int
	Bonus   sdkmath.Int // bonus paid with the exit
}

// RegisterPool creates a zeroed pool for tok.
func (tx *Tx) RegisterPool(caller, tok domain.Address, maxLimit sdkmath.Int) error {
	if err := tx.RequireOwner(caller); err != nil {
		return err
	}
	if tok.IsZero() {
		return domain.ErrInvalidAddress.Wrap("token must be set")
	}
	if maxLimit.IsNil() || maxLimit.IsNegative() {
		return domain.ErrInvalidAmount.Wrapf("max limit %s", maxLimit)
	}
	if tx.HasPool(tok) {
		return domain.ErrPoolAlreadyExists.Wrapf("token %s", tok)
	}

	p := domain.NewTokenPool(tok, maxLimit, tx.now)
	tx.pools[tok] = &p

	ev := domain.NewEvent(domain.EventPoolRegistered, tok, caller)
	ev.Amount = maxLimit
	tx.Emit(ev)
	return nil
}

// UpdateMaxLimit replaces the pool's deposit cap. Lowering it below the
// current total only blocks further deposits.
func (tx *Tx) UpdateMaxLimit(caller, tok domain.Address, newLimit sdkmath.Int) error {
	if err := tx.RequireOwner(caller); err != nil {
		return err
	}
	if newLimit.IsNil() || newLimit.IsNegative() {
		return domain.ErrInvalidAmount.Wrapf("max limit %s", newLimit)
	}
	p, err := tx.pool(tok)
	if err != nil {
		return err
	}
	p.MaxLockUpLimit = newLimit

	ev := domain.NewEvent(domain.EventMaxLimitUpdated, tok, caller)
	ev.Amount = newLimit
	tx.Emit(ev)
	return nil
}

// Deposit locks amount of tok for months and returns the new position index.
// Pending bonus is paid at the pre-deposit stake.
func (tx *Tx) Deposit(caller, tok domain.Address, amount sdkmath.Int, months uint64) (uint64, error) {
	p, err := tx.pool(tok)
	if err != nil {
		return 0, err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return 0, domain.ErrInvalidAmount.Wrapf("deposit %s", amount)
	}
	if caller.IsZero() {
		return 0, domain.ErrInvalidAddress.Wrap("caller must be set")
	}
	if err := tx.RequireNotEmergency(); err != nil {
		return 0, err
	}
	if err := ValidateDuration(months); err != nil {
		return 0, err
	}
	if p.TotalLockUp.Add(amount).GT(p.MaxLockUpLimit) {
		return 0, domain.ErrMaxLimitExceeded.Wrapf("total %s + %s > limit %s", p.TotalLockUp, amount, p.MaxLockUpLimit)
	}

	if err := tx.l.beforeStakeChange(tx, tok, caller); err != nil {
		return 0, err
	}

	a := tx.account(tok, caller)
	bonus := Pending(a.EffectiveTotal, p.AccBonusPerShare, a.BonusDebt)

	effective := EffectiveAmount(amount, months)
	pos := domain.LockUpPosition{
		Index:            uint64(len(a.Positions)),
		DurationInMonths: months,
		Amount:           amount,
		EffectiveAmount:  effective,
		LockedUpAt:       tx.now,
		UnlockedAt:       tx.now + int64(months)*SecondsPerMonth,
		Penalty:          sdkmath.ZeroInt(),
		Fee:              sdkmath.ZeroInt(),
	}
	a.Positions = append(a.Positions, pos)
	a.Total = a.Total.Add(amount)
	a.EffectiveTotal = a.EffectiveTotal.Add(effective)

	p.TotalLockUp = p.TotalLockUp.Add(amount)
	p.EffectiveTotalLockUp = p.EffectiveTotalLockUp.Add(effective)
	p.AccTotalLockUp = p.AccTotalLockUp.Add(amount)
	p.LockUpCount++
	p.ActiveLockUpCount++

	custody := tx.Custody()
	tx.Move(token.Pull(tok, custody, caller, custody, amount))
	tx.payBonus(p, a, bonus)
	a.BonusDebt = Accumulated(a.EffectiveTotal, p.AccBonusPerShare)

	if err := tx.l.afterStakeChange(tx, tok, caller); err != nil {
		return 0, err
	}

	ev := domain.NewEvent(domain.EventDeposited, tok, caller)
	ev.PositionIndex = pos.Index
	ev.Amount = amount
	ev.Bonus = bonus
	tx.Emit(ev)
	return pos.Index, nil
}

// Exit closes a position. A matured position returns its full principal.
// An unmatured one requires force and is charged the penalty, which is
// spread over the stake that remains, and the fee, which goes to the fund.
func (tx *Tx) Exit(caller, tok domain.Address, index uint64, force bool) (ExitResult, error) {
	p, err := tx.pool(tok)
	if err != nil {
		return ExitResult{}, err
	}
	a := tx.account(tok, caller)
	if index >= uint64(len(a.Positions)) {
		return ExitResult{}, domain.ErrPositionNotFound.Wrapf("token %s owner %s index %d", tok, caller, index)
	}
	pos := &a.Positions[index]
	if pos.IsExited() {
		return ExitResult{}, domain.ErrAlreadyExited.Wrapf("position %d exited at %d", index, pos.ExitedAt)
	}
	if err := tx.RequireNotEmergency(); err != nil {
		return ExitResult{}, err
	}
	matured := pos.IsMatured(tx.now)
	if !matured && !force {
		return ExitResult{}, domain.ErrNotMaturedAndNotForced.Wrapf("position %d unlocks at %d", index, pos.UnlockedAt)
	}

	if err := tx.l.beforeStakeChange(tx, tok, caller); err != nil {
		return ExitResult{}, err
	}

	acc := p.AccBonusPerShare
	bonus := Pending(a.EffectiveTotal, acc, a.BonusDebt)

	p.TotalLockUp = p.TotalLockUp.Sub(pos.Amount)
	p.EffectiveTotalLockUp = p.EffectiveTotalLockUp.Sub(pos.EffectiveAmount)
	p.ActiveLockUpCount--
	p.ExitedLockUpCount++
	a.Total = a.Total.Sub(pos.Amount)
	a.EffectiveTotal = a.EffectiveTotal.Sub(pos.EffectiveAmount)

	penalty, fee := sdkmath.ZeroInt(), sdkmath.ZeroInt()
	if !matured {
		penalty, fee = EarlyExitCut(pos.Amount)
	}
	if penalty.IsPositive() {
		p.TotalPenaltyCollected = p.TotalPenaltyCollected.Add(penalty)
		if p.EffectiveTotalLockUp.IsPositive() {
			p.AccBonusPerShare = p.AccBonusPerShare.Add(PerShare(penalty, p.EffectiveTotalLockUp))
		} else {
			p.UndistributedPenalty = p.UndistributedPenalty.Add(penalty)
		}
	}
	p.TotalPlatformFee = p.TotalPlatformFee.Add(fee)

	pos.Exited = true
	pos.ExitedAt = tx.now
	pos.Penalty = penalty
	pos.Fee = fee

	// The remaining stake is rebased at the pre-penalty accumulator, so the
	// caller's other positions share in this penalty and the exiting one does not.
	tx.payBonus(p, a, bonus)
	a.BonusDebt = Accumulated(a.EffectiveTotal, acc)

	net := pos.Amount.Sub(penalty).Sub(fee)
	custody := tx.Custody()
	tx.Move(token.Transfer(tok, custody, caller, net))
	tx.Move(token.Transfer(tok, custody, tx.FundAddress(), fee))

	if err := tx.l.afterStakeChange(tx, tok, caller); err != nil {
		return ExitResult{}, err
	}

	ev := domain.NewEvent(domain.EventExited, tok, caller)
	ev.PositionIndex = index
	ev.Amount = net
	ev.Penalty = penalty
	ev.Fee = fee
	ev.Bonus = bonus
	ev.Forced = !matured
	tx.Emit(ev)

	return ExitResult{
		Index:   index,
		Forced:  !matured,
		Net:     net,
		Penalty: penalty,
		Fee:     fee,
		Bonus:   bonus,
	}, nil
}

// EarnedBonus returns owner's unclaimed penalty bonus in tok.
func (tx *Tx) EarnedBonus(tok, owner domain.Address) (sdkmath.Int, error) {
	p, err := tx.pool(tok)
	if err != nil {
		return sdkmath.Int{}, err
	}
	a := tx.account(tok, owner)
	return Pending(a.EffectiveTotal, p.AccBonusPerShare, a.BonusDebt), nil
}

// ClaimBonus pays caller's earned bonus and rebases the debt.
func (tx *Tx) ClaimBonus(caller, tok domain.Address) (sdkmath.Int, error) {
	p, err := tx.pool(tok)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if err := tx.RequireNotEmergency(); err != nil {
		return sdkmath.Int{}, err
	}

	a := tx.account(tok, caller)
	bonus := Pending(a.EffectiveTotal, p.AccBonusPerShare, a.BonusDebt)
	tx.payBonus(p, a, bonus)
	a.BonusDebt = Accumulated(a.EffectiveTotal, p.AccBonusPerShare)

	if bonus.IsPositive() {
		ev := domain.NewEvent(domain.EventBonusClaimed, tok, caller)
		ev.Bonus = bonus
		tx.Emit(ev)
	}
	return bonus, nil
}

// SetEmergencyMode toggles emergency mode.
func (tx *Tx) SetEmergencyMode(caller domain.Address, on bool) error {
	if err := tx.RequireOwner(caller); err != nil {
		return err
	}
	tx.emergency = &on

	ev := domain.NewEvent(domain.EventEmergencyMode, "", caller)
	if on {
		ev.Amount = sdkmath.OneInt()
	}
	tx.Emit(ev)
	return nil
}

// SetFundAddress changes the fee recipient.
func (tx *Tx) SetFundAddress(caller, fund domain.Address) error {
	if err := tx.RequireOwner(caller); err != nil {
		return err
	}
	if fund.IsZero() {
		return domain.ErrInvalidAddress.Wrap("fund address must be set")
	}
	tx.fund = &fund
	tx.Emit(domain.NewEvent(domain.EventFundChanged, "", fund))
	return nil
}

// TransferOwnership hands the owner role to newOwner.
func (tx *Tx) TransferOwnership(caller, newOwner domain.Address) error {
	if err := tx.RequireOwner(caller); err != nil {
		return err
	}
	if newOwner.IsZero() {
		return domain.ErrInvalidAddress.Wrap("new owner must be set")
	}
	if tx.newOwner == nil {
		tx.ownerBy = caller
	}
	tx.newOwner = &newOwner
	tx.Emit(domain.NewEvent(domain.EventOwnerChanged, "", newOwner))
	return nil
}

func (tx *Tx) payBonus(p *domain.TokenPool, a *domain.UserAccount, bonus sdkmath.Int) {
	if !bonus.IsPositive() {
		return
	}
	a.BonusClaimed = a.BonusClaimed.Add(bonus)
	p.TotalBonusClaimed = p.TotalBonusClaimed.Add(bonus)
	tx.Move(token.Transfer(p.Token, tx.Custody(), a.Owner, bonus))
}

// RegisterPool creates a pool for tok.
func (l *Ledger) RegisterPool(ctx context.Context, caller, tok domain.Address, maxLimit sdkmath.Int) error {
	return l.Update(ctx, func(tx *Tx) error {
		return tx.RegisterPool(caller, tok, maxLimit)
	})
}

// UpdateMaxLimit replaces the pool's deposit cap.
func (l *Ledger) UpdateMaxLimit(ctx context.Context, caller, tok domain.Address, newLimit sdkmath.Int) error {
	return l.Update(ctx, func(tx *Tx) error {
		return tx.UpdateMaxLimit(caller, tok, newLimit)
	})
}

// Deposit locks amount of tok for months.
func (l *Ledger) Deposit(ctx context.Context, caller, tok domain.Address, amount sdkmath.Int, months uint64) (uint64, error) {
	var index uint64
	err := l.Update(ctx, func(tx *Tx) error {
		var err error
		index, err = tx.Deposit(caller, tok, amount, months)
		return err
	})
	return index, err
}

// Exit closes the position at index.
func (l *Ledger) Exit(ctx context.Context, caller, tok domain.Address, index uint64, force bool) (ExitResult, error) {
	var res ExitResult
	err := l.Update(ctx, func(tx *Tx) error {
		var err error
		res, err = tx.Exit(caller, tok, index, force)
		return err
	})
	return res, err
}

// ClaimBonus pays caller's earned bonus.
func (l *Ledger) ClaimBonus(ctx context.Context, caller, tok domain.Address) (sdkmath.Int, error) {
	var bonus sdkmath.Int
	err := l.Update(ctx, func(tx *Tx) error {
		var err error
		bonus, err = tx.ClaimBonus(caller, tok)
		return err
	})
	return bonus, err
}

// SetEmergencyMode toggles emergency mode.
func (l *Ledger) SetEmergencyMode(ctx context.Context, caller domain.Address, on bool) error {
	return l.Update(ctx, func(tx *Tx) error {
		return tx.SetEmergencyMode(caller, on)
	})
}

// SetFundAddress changes the fee recipient.
func (l *Ledger) SetFundAddress(ctx context.Context, caller, fund domain.Address) error {
	return l.Update(ctx, func(tx *Tx) error {
		return tx.SetFundAddress(caller, fund)
	})
}

// TransferOwnership hands the owner role to newOwner.
func (l *Ledger) TransferOwnership(ctx context.Context, caller, newOwner domain.Address) error {
	return l.Update(ctx, func(tx *Tx) error {
		return tx.TransferOwnership(caller, newOwner)
	})
}
