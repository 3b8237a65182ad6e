package users

import (
	"errors"
	"fmt"
	"slices"

	"github.com/delegate-rewards/referral-payout/internal/types"
)

var (
	ErrAddressTaken   = errors.New("address already registered")
	ErrUnknownUser    = errors.New("unknown user")
	ErrUnknownAddress = errors.New("unknown address")
)

// AddAddresses returns a copy of r with addrs appended to user name, creating
// the user when it does not exist yet. Any address already registered, to
// name or to another user, fails the whole call.
func (r *Registry) AddAddresses(name string, addrs ...string) (*Registry, error) {
	if name == "" {
		return nil, errors.New("user name must not be empty")
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no address given for user %q", name)
	}

	acc, _ := r.Lookup(name)
	added := slices.Clone(acc.Addresses)
	for _, addr := range addrs {
		if !IsValidAddress(addr) {
			return nil, fmt.Errorf("%w: %q", types.ErrInvalidAddress, addr)
		}
		if owner, ok := r.OwnerOf(addr); ok {
			return nil, fmt.Errorf("%w: %s belongs to %q", ErrAddressTaken, addr, owner)
		}
		if slices.Contains(added, addr) {
			return nil, fmt.Errorf("address %s given twice", addr)
		}
		added = append(added, addr)
	}

	return r.with(types.UserAccount{Name: name, Addresses: added})
}

// RemoveAddress returns a copy of r without address. Removing the last
// address of a user removes the user, reported by userRemoved.
func (r *Registry) RemoveAddress(name, address string) (_ *Registry, userRemoved bool, _ error) {
	acc, ok := r.Lookup(name)
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownUser, name)
	}
	if owner, ok := r.OwnerOf(address); !ok || owner != name {
		return nil, false, fmt.Errorf("%w: %s is not an address of %q", ErrUnknownAddress, address, name)
	}

	remaining := slices.DeleteFunc(slices.Clone(acc.Addresses), func(a string) bool { return a == address })
	if len(remaining) == 0 {
		next, err := r.without(name)
		return next, true, err
	}

	next, err := r.with(types.UserAccount{Name: name, Addresses: remaining})
	return next, false, err
}

// with rebuilds the registry with acc replacing or adding the account of the same name
func (r *Registry) with(acc types.UserAccount) (*Registry, error) {
	accounts := make([]types.UserAccount, 0, r.Len()+1)
	for _, existing := range r.Accounts() {
		if existing.Name != acc.Name {
			accounts = append(accounts, existing)
		}
	}
	return New(append(accounts, acc))
}

func (r *Registry) without(name string) (*Registry, error) {
	accounts := slices.DeleteFunc(r.Accounts(), func(acc types.UserAccount) bool { return acc.Name == name })
	return New(accounts)
}
