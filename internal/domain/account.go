package domain

import (
	sdkmath "cosmossdk.io/math"
)

// UserAccount aggregates one owner's positions in one pool.
// Corresponds to lockup_accounts table in PostgreSQL.
type UserAccount struct {
	Token          Address
	Owner          Address
	Total          sdkmath.Int // principal of active positions
	EffectiveTotal sdkmath.Int // effective amount of active positions
	BonusClaimed   sdkmath.Int // lifetime bonus paid
	BonusDebt      sdkmath.Int // EffectiveTotal * AccBonusPerShare / Precision at last settlement
	Positions      []LockUpPosition
}

// NewUserAccount returns an empty account.
func NewUserAccount(token, owner Address) UserAccount {
	return UserAccount{
		Token:          token,
		Owner:          owner,
		Total:          sdkmath.ZeroInt(),
		EffectiveTotal: sdkmath.ZeroInt(),
		BonusClaimed:   sdkmath.ZeroInt(),
		BonusDebt:      sdkmath.ZeroInt(),
	}
}

// Clone returns a deep copy; positions are not shared with the original.
func (a UserAccount) Clone() UserAccount {
	c := a
	if a.Positions != nil {
		c.Positions = make([]LockUpPosition, len(a.Positions))
		copy(c.Positions, a.Positions)
	}
	return c
}
