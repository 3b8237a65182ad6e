package waterfall

import (
	"fmt"
	"math/rand"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/davecgh/go-spew/spew"
	"github.com/delegate-rewards/referral-payout/internal/referral"
	"github.com/delegate-rewards/referral-payout/internal/shares"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

func mustGraph(t *testing.T, edges ...referral.Edge) *referral.Graph {
	t.Helper()
	g, err := referral.New(edges)
	require.NoError(t, err)
	return g
}

func assertShare(t *testing.T, expected string, got shares.Shares, user string) {
	t.Helper()
	assert.True(t, got.Get(user).Equal(dec(expected)), "%s: expected %s, got %s", user, expected, got.Get(user))
}

func TestRedistribute_SingleLayer(t *testing.T) {
	baseline := shares.Shares{"A": dec("0.10"), "B": dec("0.05")}
	graph := mustGraph(t, referral.Edge{Layer: 1, Referrer: "A", TaxRate: dec("0.20"), Referees: []string{"B"}})

	adjusted := Redistribute(baseline, graph)

	assertShare(t, "0.11", adjusted, "A")
	assertShare(t, "0.04", adjusted, "B")
	// input untouched
	assertShare(t, "0.10", baseline, "A")
	assertShare(t, "0.05", baseline, "B")
}

func TestRedistribute_CascadesFromHighestLayer(t *testing.T) {
	baseline := shares.Shares{"A": dec("0"), "B": dec("0"), "C": dec("1")}
	graph := mustGraph(t,
		referral.Edge{Layer: 1, Referrer: "A", TaxRate: dec("0.5"), Referees: []string{"B"}},
		referral.Edge{Layer: 2, Referrer: "B", TaxRate: dec("0.5"), Referees: []string{"C"}},
	)

	adjusted := Redistribute(baseline, graph)

	// C pays B first, then B pays A out of what it collected
	assertShare(t, "0.25", adjusted, "A")
	assertShare(t, "0.25", adjusted, "B")
	assertShare(t, "0.5", adjusted, "C")

	ascending := redistributeAscending(baseline, graph)
	assert.False(t, ascending.Get("A").Equal(adjusted.Get("A")),
		"processing layers upward must differ from the cascade:\n%s", spew.Sdump(ascending))
}

// redistributeAscending applies the same tax rule walking layers from lowest to highest
func redistributeAscending(baseline shares.Shares, graph *referral.Graph) shares.Shares {
	working := baseline.Clone()
	layers := graph.LayersDescending()
	for i := len(layers) - 1; i >= 0; i-- {
		for _, edge := range graph.ReferrersAt(layers[i]) {
			if !working.Has(edge.Referrer) {
				continue
			}
			collected := sdkmath.LegacyZeroDec()
			for _, referee := range edge.Referees {
				if !working.Has(referee) {
					continue
				}
				tax := working[referee].Mul(edge.TaxRate)
				working[referee] = working[referee].Sub(tax)
				collected = collected.Add(tax)
			}
			working[edge.Referrer] = working[edge.Referrer].Add(collected)
		}
	}
	return working
}

func TestRedistribute_ThreeLayers(t *testing.T) {
	baseline := shares.Shares{
		"alice": dec("0.10"),
		"bob":   dec("0.20"),
		"carol": dec("0.05"),
		"dave":  dec("0.40"),
		"erin":  dec("0.25"),
	}
	graph := mustGraph(t,
		referral.Edge{Layer: 1, Referrer: "alice", TaxRate: dec("0.10"), Referees: []string{"bob", "carol"}},
		referral.Edge{Layer: 2, Referrer: "bob", TaxRate: dec("0.20"), Referees: []string{"dave"}},
		referral.Edge{Layer: 3, Referrer: "dave", TaxRate: dec("0.50"), Referees: []string{"erin"}},
	)

	adjusted := Redistribute(baseline, graph)

	// L3: erin pays 0.125 -> dave 0.525, erin 0.125
	// L2: dave pays 0.105 -> bob 0.305, dave 0.42
	// L1: bob pays 0.0305, carol pays 0.005 -> alice 0.1355
	assertShare(t, "0.1355", adjusted, "alice")
	assertShare(t, "0.2745", adjusted, "bob")
	assertShare(t, "0.045", adjusted, "carol")
	assertShare(t, "0.42", adjusted, "dave")
	assertShare(t, "0.125", adjusted, "erin")
	assert.True(t, adjusted.Sum().Equal(baseline.Sum()))
}

func TestRedistribute_AbsentUsers(t *testing.T) {
	t.Run("absent referrer collects nothing", func(t *testing.T) {
		baseline := shares.Shares{"B": dec("0.3")}
		graph := mustGraph(t, referral.Edge{Layer: 1, Referrer: "A", TaxRate: dec("0.5"), Referees: []string{"B"}})

		adjusted := Redistribute(baseline, graph)
		assertShare(t, "0.3", adjusted, "B")
		assert.False(t, adjusted.Has("A"))
	})

	t.Run("absent referee pays nothing", func(t *testing.T) {
		baseline := shares.Shares{"A": dec("0.3"), "C": dec("0.1")}
		graph := mustGraph(t, referral.Edge{Layer: 1, Referrer: "A", TaxRate: dec("0.5"), Referees: []string{"B", "C"}})

		adjusted := Redistribute(baseline, graph)
		assertShare(t, "0.35", adjusted, "A")
		assertShare(t, "0.05", adjusted, "C")
		assert.False(t, adjusted.Has("B"))
	})

	t.Run("empty graph is identity", func(t *testing.T) {
		baseline := shares.Shares{"A": dec("0.3")}
		adjusted := Redistribute(baseline, mustGraph(t))
		assertShare(t, "0.3", adjusted, "A")
	})
}

func TestRedistribute_FullTax(t *testing.T) {
	baseline := shares.Shares{"A": dec("0.1"), "B": dec("0.2"), "C": dec("0.3")}
	graph := mustGraph(t,
		referral.Edge{Layer: 1, Referrer: "A", TaxRate: dec("1"), Referees: []string{"B"}},
		referral.Edge{Layer: 2, Referrer: "B", TaxRate: dec("0"), Referees: []string{"C"}},
	)

	adjusted := Redistribute(baseline, graph)
	assertShare(t, "0.3", adjusted, "A")
	assertShare(t, "0", adjusted, "B")
	assertShare(t, "0.3", adjusted, "C")
}

// randomScenario builds a layered tree of n users with random shares and tax rates
func randomScenario(r *rand.Rand, n int) (shares.Shares, []referral.Edge) {
	baseline := make(shares.Shares, n)
	layerOf := make(map[string]int, n)
	var edges []referral.Edge
	byReferrer := make(map[string]int)

	for i := 0; i < n; i++ {
		name := fmt.Sprintf("user%03d", i)
		// roughly 10% of users have no observed stake
		if r.Intn(10) > 0 {
			baseline[name] = sdkmath.LegacyNewDecWithPrec(r.Int63n(1_000_000_000), 9)
		}
		if i == 0 {
			continue
		}

		parent := fmt.Sprintf("user%03d", r.Intn(i))
		idx, ok := byReferrer[parent]
		if !ok {
			// referees of a layer L referrer refer at layer L+1
			layer, ok := layerOf[parent]
			if !ok {
				layer = 1
			}
			edges = append(edges, referral.Edge{
				Layer:    layer,
				Referrer: parent,
				TaxRate:  sdkmath.LegacyNewDecWithPrec(r.Int63n(1001), 3),
			})
			idx = len(edges) - 1
			byReferrer[parent] = idx
		}
		edges[idx].Referees = append(edges[idx].Referees, name)
		layerOf[name] = edges[idx].Layer + 1
	}

	return baseline, edges
}

func TestRedistribute_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		baseline, edges := randomScenario(r, 2+r.Intn(60))
		graph, err := referral.New(edges)
		require.NoError(t, err, spew.Sdump(edges))

		adjusted := Redistribute(baseline, graph)

		require.True(t, adjusted.Sum().Equal(baseline.Sum()),
			"mass not conserved: %s vs %s", adjusted.Sum(), baseline.Sum())
		require.Len(t, adjusted, len(baseline))
		for user, v := range adjusted {
			require.False(t, v.IsNegative(), "%s went negative: %s", user, v)
		}
	}
}
