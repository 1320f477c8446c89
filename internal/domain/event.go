package domain

import (
	sdkmath "cosmossdk.io/math"
)

// EventKind classifies a committed ledger change.
type EventKind string

const (
	EventPoolRegistered    EventKind = "POOL_REGISTERED"
	EventMaxLimitUpdated   EventKind = "MAX_LIMIT_UPDATED"
	EventDeposited         EventKind = "DEPOSITED"
	EventExited            EventKind = "EXITED"
	EventBonusClaimed      EventKind = "BONUS_CLAIMED"
	EventRewardClaimed     EventKind = "REWARD_CLAIMED"
	EventRewardPoolAdded   EventKind = "REWARD_POOL_ADDED"
	EventPoolSettled       EventKind = "POOL_SETTLED"
	EventMultiplierUpdated EventKind = "MULTIPLIER_UPDATED"
	EventEmergencyMode     EventKind = "EMERGENCY_MODE"
	EventFundChanged       EventKind = "FUND_CHANGED"
	EventOwnerChanged      EventKind = "OWNER_CHANGED"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is an append-only record of a committed change.
// Corresponds to ledger_events table in ClickHouse.
type Event struct {
	Seq           uint64      // PRIMARY KEY, monotonic per ledger
	Kind          EventKind   // what happened
	Token         Address     // empty for ledger-wide events
	Account       Address     // owner/caller/new principal, when relevant
	PositionIndex uint64      // DEPOSITED / EXITED only
	Amount        sdkmath.Int // principal, limit, net payout or multiplier depending on Kind
	Penalty       sdkmath.Int // EXITED only
	Fee           sdkmath.Int // EXITED only
	Bonus         sdkmath.Int // bonus paid within the operation
	Reward        sdkmath.Int // reward minted within the operation
	Forced        bool        // EXITED before maturity
	Block         uint64      // logical block height
	Timestamp     int64       // Unix seconds
}

// NewEvent returns an event with all amounts zeroed.
func NewEvent(kind EventKind, token, account Address) Event {
	return Event{
		Kind:    kind,
		Token:   token,
		Account: account,
		Amount:  sdkmath.ZeroInt(),
		Penalty: sdkmath.ZeroInt(),
		Fee:     sdkmath.ZeroInt(),
		Bonus:   sdkmath.ZeroInt(),
		Reward:  sdkmath.ZeroInt(),
	}
}
