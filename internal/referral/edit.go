package referral

import (
	"errors"
	"fmt"
	"slices"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrUnknownReferrer = errors.New("unknown referrer")
	ErrAlreadyReferred = errors.New("referee already referred")
	ErrNotReferee      = errors.New("not a referee of referrer")
	ErrTaxRequired     = errors.New("tax rate required for a new referrer")
)

// AddReferee returns a copy of g with referee referred by referrer. An existing
// referrer row keeps its layer and tax rate and tax is ignored. A new row needs
// tax and sits one layer below the referrer's own referrer, or at layer 1 when
// nobody refers the referrer.
func (g *Graph) AddReferee(referrer, referee string, tax *sdkmath.LegacyDec) (*Graph, error) {
	if by, _, ok := g.ReferrerOf(referee); ok {
		return nil, fmt.Errorf("%w: %q is referred by %q", ErrAlreadyReferred, referee, by)
	}

	edges := g.cloneEdges()
	if idx, ok := g.byReferrer[referrer]; ok {
		edges[idx].Referees = append(edges[idx].Referees, referee)
		return New(edges)
	}

	if tax == nil {
		return nil, fmt.Errorf("%w: %q", ErrTaxRequired, referrer)
	}
	edges = append(edges, Edge{
		Layer:    g.layerFor(referrer),
		Referrer: referrer,
		TaxRate:  *tax,
		Referees: []string{referee},
	})
	return New(edges)
}

// SetTax returns a copy of g with the tax rate of referrer replaced
func (g *Graph) SetTax(referrer string, tax sdkmath.LegacyDec) (*Graph, error) {
	idx, ok := g.byReferrer[referrer]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReferrer, referrer)
	}

	edges := g.cloneEdges()
	edges[idx].TaxRate = tax
	return New(edges)
}

// RemoveReferee returns a copy of g without the referral of referee by referrer.
// The referrer row is dropped once it has no referee left, reported by rowDropped.
func (g *Graph) RemoveReferee(referrer, referee string) (_ *Graph, rowDropped bool, _ error) {
	idx, ok := g.byReferrer[referrer]
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownReferrer, referrer)
	}
	if !slices.Contains(g.edges[idx].Referees, referee) {
		return nil, false, fmt.Errorf("%w: %q is not referred by %q", ErrNotReferee, referee, referrer)
	}

	edges := g.cloneEdges()
	edges[idx].Referees = slices.DeleteFunc(edges[idx].Referees, func(r string) bool { return r == referee })
	if len(edges[idx].Referees) == 0 {
		edges = slices.Delete(edges, idx, idx+1)
		rowDropped = true
	}

	next, err := New(edges)
	return next, rowDropped, err
}

func (g *Graph) layerFor(referrer string) int {
	p, ok := g.parents[referrer]
	if !ok {
		return 1
	}
	if idx, ok := g.byReferrer[p.referrer]; ok {
		return g.edges[idx].Layer + 1
	}
	return 1
}

func (g *Graph) cloneEdges() []Edge {
	edges := g.Edges()
	for i := range edges {
		edges[i].Referees = slices.Clone(edges[i].Referees)
	}
	return edges
}
