// Package address validates and derives base58 account identifiers.
//
// Wallet accounts (owners, the fund, depositors) are ed25519 public keys and
// therefore lie on the curve. Custody and minter accounts are derived from a
// seed and are guaranteed off-curve, so no private key can sign for them.
package address

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"lockup-ledger/internal/domain"
)

// Size is the decoded length of an address.
const Size = 32

const derivationMarker = "LockUpDerivedAddress"

// Decode returns the raw bytes of a base58 address.
func Decode(s string) ([]byte, error) {
	if s == "" {
		return nil, domain.ErrInvalidAddress.Wrap("empty address")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, domain.ErrInvalidAddress.Wrapf("%q: %v", s, err)
	}
	if len(raw) != Size {
		return nil, domain.ErrInvalidAddress.Wrapf("%q: decoded length %d, want %d", s, len(raw), Size)
	}
	return raw, nil
}

// Parse validates s as any 32-byte address (wallet, token or derived).
func Parse(s string) (domain.Address, error) {
	if _, err := Decode(s); err != nil {
		return "", err
	}
	return domain.Address(s), nil
}

// ParseWallet validates s as a wallet address: it must be a point on the ed25519 curve.
func ParseWallet(s string) (domain.Address, error) {
	raw, err := Decode(s)
	if err != nil {
		return "", err
	}
	if !IsOnCurve(raw) {
		return "", domain.ErrInvalidAddress.Wrapf("%q: not an ed25519 public key", s)
	}
	return domain.Address(s), nil
}

// FromPublicKey encodes a raw 32-byte key.
func FromPublicKey(key []byte) (domain.Address, error) {
	if len(key) != Size {
		return "", domain.ErrInvalidAddress.Wrapf("key length %d, want %d", len(key), Size)
	}
	return domain.Address(base58.Encode(key)), nil
}

// IsOnCurve reports whether point decodes to a valid ed25519 point.
func IsOnCurve(point []byte) bool {
	if len(point) != Size {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// Derive returns an off-curve address for the given seeds.
// The bump is searched downwards from 255; the first off-curve hash wins.
func Derive(seeds ...[]byte) (domain.Address, error) {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, 64)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, []byte(derivationMarker)...)

		hash := sha256.Sum256(data)
		if !IsOnCurve(hash[:]) {
			return domain.Address(base58.Encode(hash[:])), nil
		}
	}
	return "", fmt.Errorf("derive address: no off-curve bump for seeds")
}

// MustDerive is Derive for static seeds; it panics on failure.
func MustDerive(seeds ...string) domain.Address {
	raw := make([][]byte, len(seeds))
	for i, s := range seeds {
		raw[i] = []byte(s)
	}
	addr, err := Derive(raw...)
	if err != nil {
		panic(err)
	}
	return addr
}
