package domain

// Address identifies an account, a token (mint) or a custody account.
// Canonical form is base58 of 32 bytes; see internal/address for validation.
type Address string

// String returns the string representation of Address.
func (a Address) String() string {
	return string(a)
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ""
}
