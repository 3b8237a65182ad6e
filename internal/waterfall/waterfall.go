package waterfall

import (
	sdkmath "cosmossdk.io/math"
	"github.com/delegate-rewards/referral-payout/internal/referral"
	"github.com/delegate-rewards/referral-payout/internal/shares"
)

// Redistribute moves referral tax up the graph, one layer at a time from the
// highest layer down to layer 1. When a referrer collects from a referee, the
// referee's balance already includes everything it collected from its own
// referees, so tax cascades upward. Users absent from baseline neither pay nor
// collect. Tax amounts are never rounded on their own, and the total mass of the
// result equals the total mass of baseline. baseline is not modified.
func Redistribute(baseline shares.Shares, graph *referral.Graph) shares.Shares {
	working := baseline.Clone()

	for _, layer := range graph.LayersDescending() {
		for _, edge := range graph.ReferrersAt(layer) {
			if !working.Has(edge.Referrer) {
				continue
			}

			collected := sdkmath.LegacyZeroDec()
			for _, referee := range edge.Referees {
				balance, ok := working[referee]
				if !ok {
					continue
				}
				tax := balance.Mul(edge.TaxRate)
				working[referee] = balance.Sub(tax)
				collected = collected.Add(tax)
			}

			working[edge.Referrer] = working[edge.Referrer].Add(collected)
		}
	}

	return working
}
