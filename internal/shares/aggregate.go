package shares

import (
	"iter"

	sdkmath "cosmossdk.io/math"
	"github.com/delegate-rewards/referral-payout/internal/types"
)

// Aggregate averages each user's stake share over the snapshots with a block in
// [start, end]. A user's share in one snapshot is the sum of the percents of all of
// their addresses. Every user is present in the result, with zero when the window
// is empty. The second result is the number of snapshots that fell in the window.
func Aggregate(
	users []types.UserAccount,
	snapshots iter.Seq[types.StakeSnapshot],
	start, end uint64,
) (Shares, int) {
	owners := make(map[string]string)
	sums := make(Shares, len(users))
	for _, u := range users {
		sums[u.Name] = sdkmath.LegacyZeroDec()
		for _, addr := range u.Addresses {
			owners[addr] = u.Name
		}
	}

	count := 0
	for snap := range snapshots {
		if !snap.InWindow(start, end) {
			continue
		}
		count++
		for _, share := range snap.NominatorShares {
			// nominators that are not tracked users, the delegate owner included, are not attributed
			user, ok := owners[share.Address]
			if !ok {
				continue
			}
			sums[user] = sums[user].Add(share.Percent)
		}
	}

	if count == 0 {
		return sums, 0
	}

	for user, sum := range sums {
		sums[user] = sum.QuoInt64(int64(count))
	}
	return sums, count
}
