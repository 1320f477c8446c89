// Package token defines the fungible-token capability the ledger settles
// against, and an in-memory implementation of it.
package token

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"

	"lockup-ledger/internal/domain"
)

// ErrUnknownAsset is returned for movements of an asset the ledger does not know.
var ErrUnknownAsset = errors.New("unknown asset")

// MovementKind selects the transfer semantics of a Movement.
type MovementKind string

const (
	// MoveTransfer moves From's own funds.
	MoveTransfer MovementKind = "TRANSFER"
	// MovePull moves From's funds on behalf of Spender, consuming allowance.
	MovePull MovementKind = "TRANSFER_FROM"
	// MoveMint creates new supply; Spender must hold the minter role.
	MoveMint MovementKind = "MINT"
)

// Movement is one balance change requested by the ledger.
type Movement struct {
	Kind    MovementKind
	Asset   domain.Address
	From    domain.Address // empty for MoveMint
	To      domain.Address
	Spender domain.Address // allowance holder for MovePull, minter for MoveMint
	Amount  sdkmath.Int
}

// Transfer builds a MoveTransfer.
func Transfer(asset, from, to domain.Address, amount sdkmath.Int) Movement {
	return Movement{Kind: MoveTransfer, Asset: asset, From: from, To: to, Amount: amount}
}

// Pull builds a MovePull.
func Pull(asset, spender, from, to domain.Address, amount sdkmath.Int) Movement {
	return Movement{Kind: MovePull, Asset: asset, From: from, To: to, Spender: spender, Amount: amount}
}

// Mint builds a MoveMint.
func Mint(asset, minter, to domain.Address, amount sdkmath.Int) Movement {
	return Movement{Kind: MoveMint, Asset: asset, To: to, Spender: minter, Amount: amount}
}

// Ledger is the token capability used by the lock-up ledger.
type Ledger interface {
	// BalanceOf returns owner's balance of asset.
	BalanceOf(ctx context.Context, asset, owner domain.Address) (sdkmath.Int, error)

	// Allowance returns how much spender may pull from owner.
	Allowance(ctx context.Context, asset, owner, spender domain.Address) (sdkmath.Int, error)

	// Settle applies all movements atomically: either every movement
	// succeeds or none is applied. Insufficient funds or allowance fail with
	// domain.ErrInsufficientBalanceOrAllowance, a mint by a non-minter with
	// domain.ErrMintNotAllowed.
	Settle(ctx context.Context, moves []Movement) error
}

// Stateful is implemented by token ledgers that live in-process and must
// be saved with the lock-up ledger's snapshots.
type Stateful interface {
	// ExportState returns a deep copy of every asset.
	ExportState() domain.TokenSnapshot

	// PrepareRestore validates state and returns a function that installs
	// it. Nothing changes until commit is called.
	PrepareRestore(state domain.TokenSnapshot) (commit func(), err error)
}
