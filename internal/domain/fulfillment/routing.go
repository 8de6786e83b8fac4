package fulfillment

import (
	"sort"

	"github.com/shopspring/decimal"
)

// RouteCandidate is a provider able to provision a given bundle.
type RouteCandidate struct {
	ProviderSlug string
	ProductID    string
	Priority     int
	Reliability  float64
	Cost         decimal.Decimal
}

// OrderCandidates returns the failover order for one unit. Each provider
// appears at most once, keeping the product whose id equals sku when it has
// one and its cheapest product otherwise. The hinted provider goes first
// when it is among the candidates; the rest follow by priority desc,
// reliability desc, cost asc, slug asc.
func OrderCandidates(hint, sku string, candidates []RouteCandidate) []RouteCandidate {
	bySlug := make(map[string]RouteCandidate, len(candidates))
	for _, c := range candidates {
		cur, ok := bySlug[c.ProviderSlug]
		if !ok || preferProduct(c, cur, sku) {
			bySlug[c.ProviderSlug] = c
		}
	}

	out := make([]RouteCandidate, 0, len(bySlug))
	var hinted *RouteCandidate
	for slug, c := range bySlug {
		if hint != "" && slug == hint {
			c := c
			hinted = &c
			continue
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Reliability != b.Reliability {
			return a.Reliability > b.Reliability
		}
		if !a.Cost.Equal(b.Cost) {
			return a.Cost.LessThan(b.Cost)
		}
		return a.ProviderSlug < b.ProviderSlug
	})

	if hinted != nil {
		out = append([]RouteCandidate{*hinted}, out...)
	}
	return out
}

// preferProduct reports whether c should replace cur for the same provider
func preferProduct(c, cur RouteCandidate, sku string) bool {
	if sku != "" && (c.ProductID == sku) != (cur.ProductID == sku) {
		return c.ProductID == sku
	}
	if !c.Cost.Equal(cur.Cost) {
		return c.Cost.LessThan(cur.Cost)
	}
	return c.ProductID < cur.ProductID
}
