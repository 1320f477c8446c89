package domain

import (
	errorsmod "cosmossdk.io/errors"
)

// Codespace groups the ledger error kinds.
const Codespace = "lockup"

// Ledger error kinds. Operations fail fast with exactly one of these,
// wrapped with detail; match with errors.Is.
var (
	ErrPoolNotFound                        = errorsmod.Register(Codespace, 1100, "token pool does not exist")
	ErrPoolAlreadyExists                   = errorsmod.Register(Codespace, 1101, "token pool already exists")
	ErrInsufficientBalanceOrAllowance      = errorsmod.Register(Codespace, 1102, "insufficient balance or allowance")
	ErrInvalidDuration                     = errorsmod.Register(Codespace, 1103, "invalid lock-up duration")
	ErrMaxLimitExceeded                    = errorsmod.Register(Codespace, 1104, "max lock-up limit exceeded")
	ErrAlreadyExited                       = errorsmod.Register(Codespace, 1105, "already exited")
	ErrNotMaturedAndNotForced              = errorsmod.Register(Codespace, 1106, "lock-up has not matured yet")
	ErrNotAllowedInEmergency               = errorsmod.Register(Codespace, 1107, "not allowed in emergency mode")
	ErrMultiplierDecreaseRequiresSettleAll = errorsmod.Register(Codespace, 1108, "must settle all pools first to decrease multiplier")
	ErrUnauthorized                        = errorsmod.Register(Codespace, 1109, "unauthorized")
	ErrInvalidAmount                       = errorsmod.Register(Codespace, 1110, "invalid amount")
	ErrPositionNotFound                    = errorsmod.Register(Codespace, 1111, "lock-up position does not exist")
	ErrInvalidMultiplier                   = errorsmod.Register(Codespace, 1112, "invalid multiplier")
	ErrInvalidAddress                      = errorsmod.Register(Codespace, 1113, "invalid address")
	ErrMintNotAllowed                      = errorsmod.Register(Codespace, 1114, "minter role required")
)
