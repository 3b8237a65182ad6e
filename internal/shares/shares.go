package shares

import (
	"maps"
	"slices"

	sdkmath "cosmossdk.io/math"
)

// Shares maps a user name to a fraction of the pool. It is used both for the
// baseline (averaged stake share) and for the shares adjusted by referral tax.
type Shares map[string]sdkmath.LegacyDec

// Get returns the share of user, zero when absent
func (s Shares) Get(user string) sdkmath.LegacyDec {
	v, ok := s[user]
	if !ok {
		return sdkmath.LegacyZeroDec()
	}
	return v
}

func (s Shares) Has(user string) bool {
	_, ok := s[user]
	return ok
}

// Sum is the total share mass
func (s Shares) Sum() sdkmath.LegacyDec {
	total := sdkmath.LegacyZeroDec()
	for _, v := range s {
		total = total.Add(v)
	}
	return total
}

func (s Shares) Clone() Shares {
	out := make(Shares, len(s))
	for k, v := range s {
		out[k] = v.Clone()
	}
	return out
}

// Names returns the users sorted by name
func (s Shares) Names() []string {
	return slices.Sorted(maps.Keys(s))
}
