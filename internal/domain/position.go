package domain

import (
	sdkmath "cosmossdk.io/math"
)

// PositionState is the lifecycle state of a lock-up position.
type PositionState string

const (
	PositionActive  PositionState = "ACTIVE"
	PositionMatured PositionState = "MATURED"
	PositionExited  PositionState = "EXITED"
)

// String returns the string representation of PositionState.
func (s PositionState) String() string {
	return string(s)
}

// LockUpPosition is a single deposit. Positions are never deleted.
// Corresponds to lockup_positions table in PostgreSQL.
type LockUpPosition struct {
	Index            uint64      // append-only per (token, owner)
	DurationInMonths uint64      // 3..120
	Amount           sdkmath.Int // principal
	EffectiveAmount  sdkmath.Int // Amount * boost(DurationInMonths)
	LockedUpAt       int64       // Unix seconds
	UnlockedAt       int64       // LockedUpAt + DurationInMonths * SecondsPerMonth
	Exited           bool        // set once by exit, never cleared
	ExitedAt         int64       // Unix seconds of the exit; meaningful only when Exited
	Penalty          sdkmath.Int // set on forced exit
	Fee              sdkmath.Int // set on forced exit
}

// IsExited reports whether the position has been exited.
func (p LockUpPosition) IsExited() bool {
	return p.Exited
}

// IsMatured reports whether the lock-up period has elapsed at now.
func (p LockUpPosition) IsMatured(now int64) bool {
	return now >= p.UnlockedAt
}

// State derives the lifecycle state at now.
func (p LockUpPosition) State(now int64) PositionState {
	switch {
	case p.IsExited():
		return PositionExited
	case p.IsMatured(now):
		return PositionMatured
	default:
		return PositionActive
	}
}
