package pricing

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// ScoringWeights are the coefficients of the offer score. Lower scores win.
type ScoringWeights struct {
	Cost        float64 `json:"cost"`
	Reliability float64 `json:"reliability"`
	Priority    float64 `json:"priority"`
}

// DefaultScoringWeights rewards cheap, reliable, high-priority carriers
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{Cost: 1.0, Reliability: -5.0, Priority: -2.0}
}

// Settings is the pricing configuration applied by one recompute.
type Settings struct {
	GlobalMarginPercent   decimal.Decimal `json:"globalMarginPercent"`
	GlobalMarginFixed     decimal.Decimal `json:"globalMarginFixed"`
	AutoDiscountEnabled   bool            `json:"autoDiscountEnabled"`
	AutoDiscountPercent   decimal.Decimal `json:"autoDiscountPercent"`
	AutoDiscountThreshold decimal.Decimal `json:"autoDiscountThreshold"`
	MinMarginFixed        decimal.Decimal `json:"minMarginFixed"`
	MinMarginPercent      decimal.Decimal `json:"minMarginPercent"`
	Weights               ScoringWeights  `json:"weights"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// DefaultSettings is used when no settings row exists or the stored one is invalid.
func DefaultSettings() Settings {
	return Settings{
		GlobalMarginPercent:   decimal.NewFromInt(20),
		GlobalMarginFixed:     decimal.Zero,
		AutoDiscountEnabled:   false,
		AutoDiscountPercent:   decimal.Zero,
		AutoDiscountThreshold: decimal.Zero,
		MinMarginFixed:        decimal.NewFromInt(1),
		MinMarginPercent:      decimal.NewFromInt(5),
		Weights:               DefaultScoringWeights(),
	}
}

// Validate rejects settings a recompute must not apply
func (s Settings) Validate() error {
	checks := []struct {
		name  string
		value decimal.Decimal
		max   decimal.Decimal
	}{
		{"globalMarginPercent", s.GlobalMarginPercent, decimal.NewFromInt(1000)},
		{"globalMarginFixed", s.GlobalMarginFixed, decimal.Decimal{}},
		{"autoDiscountPercent", s.AutoDiscountPercent, hundred},
		{"autoDiscountThreshold", s.AutoDiscountThreshold, decimal.Decimal{}},
		{"minMarginFixed", s.MinMarginFixed, decimal.Decimal{}},
		{"minMarginPercent", s.MinMarginPercent, decimal.NewFromInt(1000)},
	}
	for _, c := range checks {
		if c.value.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidSettings, c.name)
		}
		if !c.max.IsZero() && c.value.GreaterThanOrEqual(c.max) {
			return fmt.Errorf("%w: %s must be below %s", ErrInvalidSettings, c.name, c.max)
		}
	}
	return nil
}

// Candidate is one (provider, product) pair eligible for scoring.
type Candidate struct {
	ProviderSlug string
	ProductID    string
	Key          OfferKey
	Cost         decimal.Decimal
	Currency     string
	Reliability  float64
	Priority     int
}

// Selection is the winning candidate of a group together with its score
type Selection struct {
	Candidate
	Score decimal.Decimal
}

// Score computes cost*w.Cost + reliability*w.Reliability + priority*w.Priority.
func Score(cost decimal.Decimal, reliability float64, priority int, w ScoringWeights) decimal.Decimal {
	return cost.Mul(decimal.NewFromFloat(w.Cost)).
		Add(decimal.NewFromFloat(reliability).Mul(decimal.NewFromFloat(w.Reliability))).
		Add(decimal.NewFromInt(int64(priority)).Mul(decimal.NewFromFloat(w.Priority)))
}

// beats reports whether a should win over b. Ties on score fall back to
// provider slug, then product id, so selection does not depend on input order.
func beats(a, b Selection) bool {
	if c := a.Score.Cmp(b.Score); c != 0 {
		return c < 0
	}
	if a.ProviderSlug != b.ProviderSlug {
		return a.ProviderSlug < b.ProviderSlug
	}
	return a.ProductID < b.ProductID
}

// SelectBestOffers groups candidates by OfferKey and keeps the lowest score
// per group. The result is sorted by key.
func SelectBestOffers(candidates []Candidate, w ScoringWeights) []Selection {
	winners := make(map[OfferKey]Selection, len(candidates))
	for _, c := range candidates {
		s := Selection{Candidate: c, Score: Score(c.Cost, c.Reliability, c.Priority, w)}
		if cur, ok := winners[c.Key]; !ok || beats(s, cur) {
			winners[c.Key] = s
		}
	}

	out := make([]Selection, 0, len(winners))
	for _, s := range winners {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

// ComputeSellPrice applies margin, auto-discount and the price guard.
//
//	standard   = cost*(1+marginPercent/100) + marginFixed
//	discounted = standard*(1-discountPercent/100) when enabled and standard >= threshold
//	final      = max(discounted, cost+minMarginFixed, cost*(1+minMarginPercent/100))
//
// The final price is rounded up to cents so the floor survives rounding.
func ComputeSellPrice(cost decimal.Decimal, s Settings) decimal.Decimal {
	standard := cost.Mul(one.Add(s.GlobalMarginPercent.Div(hundred))).Add(s.GlobalMarginFixed)

	discounted := standard
	if s.AutoDiscountEnabled && standard.GreaterThanOrEqual(s.AutoDiscountThreshold) {
		discounted = standard.Mul(one.Sub(s.AutoDiscountPercent.Div(hundred)))
	}

	floorFixed := cost.Add(s.MinMarginFixed)
	floorPercent := cost.Mul(one.Add(s.MinMarginPercent.Div(hundred)))

	return decimal.Max(discounted, floorFixed, floorPercent).RoundCeil(2)
}

// BuildBestOffers runs selection and pricing for one recompute cycle.
func BuildBestOffers(candidates []Candidate, s Settings, now time.Time) []BestOffer {
	selections := SelectBestOffers(candidates, s.Weights)
	offers := make([]BestOffer, 0, len(selections))
	for _, sel := range selections {
		sell := ComputeSellPrice(sel.Cost, s)
		offers = append(offers, BestOffer{
			Key:               sel.Key,
			ProviderSlug:      sel.ProviderSlug,
			ProviderProductID: sel.ProductID,
			CostPrice:         sel.Cost,
			SellPrice:         sell,
			Margin:            sell.Sub(sel.Cost),
			Currency:          sel.Currency,
			Score:             sel.Score,
			UpdatedAt:         now,
		})
	}
	return offers
}
