// Package access holds the owner principal that guards administrative
// ledger operations.
package access

import (
	"sync"

	"lockup-ledger/internal/domain"
)

// Controller tracks the current owner.
type Controller struct {
	mu    sync.RWMutex
	owner domain.Address
}

// NewController creates a controller owned by owner.
func NewController(owner domain.Address) (*Controller, error) {
	if owner.IsZero() {
		return nil, domain.ErrInvalidAddress.Wrap("owner must be set")
	}
	return &Controller{owner: owner}, nil
}

// Owner returns the current owner.
func (c *Controller) Owner() domain.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner
}

// IsOwner reports whether caller is the owner.
func (c *Controller) IsOwner(caller domain.Address) bool {
	return !caller.IsZero() && caller == c.Owner()
}

// RequireOwner fails with ErrUnauthorized unless caller is the owner.
func (c *Controller) RequireOwner(caller domain.Address) error {
	if !c.IsOwner(caller) {
		return domain.ErrUnauthorized.Wrapf("caller %s is not the owner", caller)
	}
	return nil
}

// TransferOwnership hands the owner role to newOwner. Only the current owner may call it.
func (c *Controller) TransferOwnership(caller, newOwner domain.Address) error {
	if newOwner.IsZero() {
		return domain.ErrInvalidAddress.Wrap("new owner must be set")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if caller.IsZero() || caller != c.owner {
		return domain.ErrUnauthorized.Wrapf("caller %s is not the owner", caller)
	}
	c.owner = newOwner
	return nil
}

// Restore sets the owner unconditionally. Used when loading a checkpoint.
func (c *Controller) Restore(owner domain.Address) error {
	if owner.IsZero() {
		return domain.ErrInvalidAddress.Wrap("owner must be set")
	}
	c.mu.Lock()
	c.owner = owner
	c.mu.Unlock()
	return nil
}
