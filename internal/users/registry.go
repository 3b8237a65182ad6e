package users

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"sort"

	"github.com/delegate-rewards/referral-payout/internal/types"
)

var addressPattern = regexp.MustCompile(`^[A-Za-z0-9]{48}$`)

// IsValidAddress reports whether address is a 48 character alphanumeric string
func IsValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// Registry maps user names to their addresses. An address belongs to at most one user.
type Registry struct {
	accounts map[string]types.UserAccount
	owners   map[string]string
}

// New builds a registry, rejecting invalid addresses and addresses claimed by two users
func New(accounts []types.UserAccount) (*Registry, error) {
	r := &Registry{
		accounts: make(map[string]types.UserAccount, len(accounts)),
		owners:   make(map[string]string),
	}

	for _, acc := range accounts {
		if acc.Name == "" {
			return nil, errors.New("user name must not be empty")
		}
		if _, ok := r.accounts[acc.Name]; ok {
			return nil, fmt.Errorf("duplicate user %q", acc.Name)
		}
		for _, addr := range acc.Addresses {
			if !IsValidAddress(addr) {
				return nil, fmt.Errorf("%w: %q of user %q", types.ErrInvalidAddress, addr, acc.Name)
			}
			if owner, ok := r.owners[addr]; ok && owner != acc.Name {
				return nil, fmt.Errorf("address %s belongs to both %q and %q", addr, owner, acc.Name)
			}
			r.owners[addr] = acc.Name
		}
		r.accounts[acc.Name] = types.UserAccount{
			Name:      acc.Name,
			Addresses: slices.Clone(acc.Addresses),
		}
	}

	return r, nil
}

// Load reads the json registry at path. A missing file yields an empty registry.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: user registry %s: %w", types.ErrSourceUnavailable, path, err)
	}

	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid user registry %s: %w", path, err)
	}

	return New(fromMap(raw))
}

// Save writes the registry as indented json
func (r *Registry) Save(path string) error {
	raw := make(map[string][]string, len(r.accounts))
	for name, acc := range r.accounts {
		raw[name] = acc.Addresses
	}

	data, err := json.MarshalIndent(raw, "", "    ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Accounts returns every user sorted by name
func (r *Registry) Accounts() []types.UserAccount {
	out := make([]types.UserAccount, 0, len(r.accounts))
	for _, acc := range r.accounts {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Lookup(name string) (types.UserAccount, bool) {
	acc, ok := r.accounts[name]
	return acc, ok
}

// OwnerOf returns the user holding address
func (r *Registry) OwnerOf(address string) (string, bool) {
	name, ok := r.owners[address]
	return name, ok
}

func (r *Registry) Len() int {
	return len(r.accounts)
}

func fromMap(raw map[string][]string) []types.UserAccount {
	accounts := make([]types.UserAccount, 0, len(raw))
	for name, addrs := range raw {
		accounts = append(accounts, types.UserAccount{Name: name, Addresses: addrs})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return accounts
}
