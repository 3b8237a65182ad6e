package referral

import (
	"fmt"
	"slices"

	sdkmath "cosmossdk.io/math"
	"github.com/delegate-rewards/referral-payout/internal/types"
)

// Edge is one row of the referral table: a referrer at a layer taxing its referees
type Edge struct {
	Layer    int
	Referrer string
	TaxRate  sdkmath.LegacyDec
	Referees []string
}

type parent struct {
	referrer string
	taxRate  sdkmath.LegacyDec
}

// Graph is a validated, layered referrer -> referees structure. Every referee that is
// itself a referrer sits at a strictly higher layer than its own referrer, so walking
// layers from highest to lowest visits every user's downstream before the user itself.
type Graph struct {
	edges      []Edge
	byReferrer map[string]int
	parents    map[string]parent
	layers     []int
}

// New validates edges and builds the graph. Edge order is kept within a layer.
func New(edges []Edge) (*Graph, error) {
	g := &Graph{
		edges:      make([]Edge, 0, len(edges)),
		byReferrer: make(map[string]int, len(edges)),
		parents:    make(map[string]parent),
	}

	for _, e := range edges {
		if e.Referrer == "" {
			return nil, invalid("empty referrer at layer %d", e.Layer)
		}
		if e.Layer < 1 {
			return nil, invalid("referrer %q has layer %d, layers start at 1", e.Referrer, e.Layer)
		}
		if e.TaxRate.IsNil() || e.TaxRate.IsNegative() || e.TaxRate.GT(sdkmath.LegacyOneDec()) {
			return nil, invalid("referrer %q has tax rate outside [0, 1]", e.Referrer)
		}
		if _, ok := g.byReferrer[e.Referrer]; ok {
			return nil, invalid("referrer %q is defined more than once", e.Referrer)
		}

		referees := make([]string, 0, len(e.Referees))
		for _, referee := range e.Referees {
			if referee == "" {
				continue
			}
			if referee == e.Referrer {
				return nil, invalid("referrer %q refers itself", e.Referrer)
			}
			if slices.Contains(referees, referee) {
				return nil, invalid("referee %q listed twice by %q", referee, e.Referrer)
			}
			if p, ok := g.parents[referee]; ok {
				return nil, invalid("referee %q is referred by both %q and %q", referee, p.referrer, e.Referrer)
			}
			g.parents[referee] = parent{referrer: e.Referrer, taxRate: e.TaxRate}
			referees = append(referees, referee)
		}

		g.byReferrer[e.Referrer] = len(g.edges)
		g.edges = append(g.edges, Edge{
			Layer:    e.Layer,
			Referrer: e.Referrer,
			TaxRate:  e.TaxRate,
			Referees: referees,
		})
		if !slices.Contains(g.layers, e.Layer) {
			g.layers = append(g.layers, e.Layer)
		}
	}

	// a referee that also refers others must sit strictly below its referrer
	for _, e := range g.edges {
		for _, referee := range e.Referees {
			idx, ok := g.byReferrer[referee]
			if !ok {
				continue
			}
			if own := g.edges[idx].Layer; own <= e.Layer {
				return nil, invalid("referee %q is a referrer at layer %d, not above its referrer %q at layer %d",
					referee, own, e.Referrer, e.Layer)
			}
		}
	}

	slices.Sort(g.layers)
	slices.Reverse(g.layers)

	return g, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrInvalidReferralStructure, fmt.Sprintf(format, args...))
}

// ReferrerOf returns the referrer directly referring user and its tax rate
func (g *Graph) ReferrerOf(user string) (string, sdkmath.LegacyDec, bool) {
	p, ok := g.parents[user]
	if !ok {
		return "", sdkmath.LegacyDec{}, false
	}
	return p.referrer, p.taxRate, true
}

// RefereesOf returns the direct referees of user, empty if user refers nobody
func (g *Graph) RefereesOf(user string) []string {
	idx, ok := g.byReferrer[user]
	if !ok {
		return nil
	}
	return slices.Clone(g.edges[idx].Referees)
}

// LayersDescending returns the distinct layer numbers from highest to lowest
func (g *Graph) LayersDescending() []int {
	return slices.Clone(g.layers)
}

// ReferrersAt returns the edges defined at layer in table order
func (g *Graph) ReferrersAt(layer int) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Layer == layer {
			out = append(out, e)
		}
	}
	return out
}

// Edges returns every edge in table order
func (g *Graph) Edges() []Edge {
	return slices.Clone(g.edges)
}
