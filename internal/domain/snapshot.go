package domain

import sdkmath "cosmossdk.io/math"

// SnapshotSchemaVersion is bumped whenever Snapshot gains or changes fields.
// Stores refuse to load snapshots written by a newer schema.
//
// Version 2 added LockUpPosition.Exited and Snapshot.Tokens. Version 1
// positions are exited iff ExitedAt != 0.
const SnapshotSchemaVersion = 2

// Snapshot is the complete persisted state of a ledger and its emitter.
type Snapshot struct {
	SchemaVersion int
	Owner         Address
	FundAddress   Address
	EmergencyMode bool
	LastEventSeq  uint64
	Block         uint64 // block height when taken
	TakenAt       int64  // Unix seconds
	Pools         []TokenPool
	Accounts      []UserAccount
	Rewards       *RewardSnapshot // nil when no emitter is attached
	Tokens        *TokenSnapshot  // nil when the token ledger keeps its own state
}

// TokenSnapshot is the state of an in-process token ledger, saved with the
// ledger so custody balances restore together with positions.
type TokenSnapshot struct {
	Assets []AssetState
}

// AssetState is one asset of a TokenSnapshot. Slices are sorted by address.
type AssetState struct {
	ID         Address
	Symbol     string
	Decimals   uint8
	Supply     sdkmath.Int
	Minters    []Address
	Balances   []Holding
	Allowances []Allowance
}

// Holding is a non-zero balance.
type Holding struct {
	Owner  Address
	Amount sdkmath.Int
}

// Allowance is a non-zero spending allowance.
type Allowance struct {
	Owner   Address
	Spender Address
	Amount  sdkmath.Int
}

// RewardSnapshot is the emitter part of a Snapshot.
type RewardSnapshot struct {
	Config   RewardConfig
	Pools    []RewardPoolState
	Accounts []RewardAccount
}

// Clone returns a deep copy; no slice is shared with the original.
func (s Snapshot) Clone() Snapshot {
	c := s
	if s.Pools != nil {
		c.Pools = append([]TokenPool(nil), s.Pools...)
	}
	if s.Accounts != nil {
		c.Accounts = make([]UserAccount, len(s.Accounts))
		for i, a := range s.Accounts {
			c.Accounts[i] = a.Clone()
		}
	}
	if s.Rewards != nil {
		r := *s.Rewards
		r.Pools = append([]RewardPoolState(nil), s.Rewards.Pools...)
		r.Accounts = append([]RewardAccount(nil), s.Rewards.Accounts...)
		c.Rewards = &r
	}
	if s.Tokens != nil {
		t := TokenSnapshot{Assets: make([]AssetState, len(s.Tokens.Assets))}
		for i, a := range s.Tokens.Assets {
			a.Minters = append([]Address(nil), a.Minters...)
			a.Balances = append([]Holding(nil), a.Balances...)
			a.Allowances = append([]Allowance(nil), a.Allowances...)
			t.Assets[i] = a
		}
		c.Tokens = &t
	}
	return c
}
