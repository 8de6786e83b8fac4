package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ---------------------------------------------------------------------------
// Score / Selection Tests
// ---------------------------------------------------------------------------

func TestScore_DefaultWeights(t *testing.T) {
	w := DefaultScoringWeights()

	a := Score(d("10"), 0.5, 10, w)
	b := Score(d("10.5"), 0.95, 10, w)

	assert.True(t, a.Equal(d("-12.5")), "got %s", a)
	assert.True(t, b.Equal(d("-14.25")), "got %s", b)
	assert.True(t, b.LessThan(a))
}

func TestSelectBestOffers_ReliabilityOutweighsCost(t *testing.T) {
	key := OfferKey{CountryCode: "FR", DataAmountMB: 3072, ValidityDays: 30}
	cands := []Candidate{
		{ProviderSlug: "alpha", ProductID: "a-fr-3", Key: key, Cost: d("10"), Reliability: 0.5, Priority: 10},
		{ProviderSlug: "bravo", ProductID: "b-fr-3", Key: key, Cost: d("10.5"), Reliability: 0.95, Priority: 10},
	}

	got := SelectBestOffers(cands, DefaultScoringWeights())
	require.Len(t, got, 1)
	assert.Equal(t, "bravo", got[0].ProviderSlug)
}

func TestSelectBestOffers_OnePerTupleSorted(t *testing.T) {
	de1 := OfferKey{CountryCode: "DE", DataAmountMB: 1024, ValidityDays: 7}
	de5 := OfferKey{CountryCode: "DE", DataAmountMB: 5120, ValidityDays: 30}
	at1 := OfferKey{CountryCode: "AT", DataAmountMB: 1024, ValidityDays: 7}

	cands := []Candidate{
		{ProviderSlug: "x", ProductID: "1", Key: de5, Cost: d("8"), Reliability: 1, Priority: 0},
		{ProviderSlug: "y", ProductID: "2", Key: de1, Cost: d("2"), Reliability: 1, Priority: 0},
		{ProviderSlug: "x", ProductID: "3", Key: de1, Cost: d("1.5"), Reliability: 1, Priority: 0},
		{ProviderSlug: "y", ProductID: "4", Key: at1, Cost: d("2"), Reliability: 1, Priority: 0},
	}

	got := SelectBestOffers(cands, DefaultScoringWeights())
	require.Len(t, got, 3)
	assert.Equal(t, at1, got[0].Key)
	assert.Equal(t, de1, got[1].Key)
	assert.Equal(t, "3", got[1].ProductID)
	assert.Equal(t, de5, got[2].Key)
}

func TestSelectBestOffers_TieBreakIndependentOfOrder(t *testing.T) {
	key := OfferKey{CountryCode: "US", DataAmountMB: -1, ValidityDays: 30}
	a := Candidate{ProviderSlug: "zeta", ProductID: "z", Key: key, Cost: d("20"), Reliability: 1, Priority: 1}
	b := Candidate{ProviderSlug: "alpha", ProductID: "a", Key: key, Cost: d("20"), Reliability: 1, Priority: 1}

	first := SelectBestOffers([]Candidate{a, b}, DefaultScoringWeights())
	second := SelectBestOffers([]Candidate{b, a}, DefaultScoringWeights())

	assert.Equal(t, "alpha", first[0].ProviderSlug)
	assert.Equal(t, first, second)
}

// ---------------------------------------------------------------------------
// Sell price Tests
// ---------------------------------------------------------------------------

func TestComputeSellPrice(t *testing.T) {
	tests := []struct {
		name     string
		cost     string
		settings func(s *Settings)
		expected string
	}{
		{
			name:     "default margin",
			cost:     "10",
			settings: func(s *Settings) {},
			expected: "12",
		},
		{
			name: "fixed margin on top",
			cost: "10",
			settings: func(s *Settings) {
				s.GlobalMarginFixed = d("0.99")
			},
			expected: "12.99",
		},
		{
			name: "auto discount above threshold",
			cost: "20",
			settings: func(s *Settings) {
				s.AutoDiscountEnabled = true
				s.AutoDiscountPercent = d("10")
				s.AutoDiscountThreshold = d("15")
			},
			expected: "21.6",
		},
		{
			name: "auto discount below threshold is ignored",
			cost: "5",
			settings: func(s *Settings) {
				s.AutoDiscountEnabled = true
				s.AutoDiscountPercent = d("10")
				s.AutoDiscountThreshold = d("15")
			},
			expected: "6",
		},
		{
			name: "guard fixed floor wins over aggressive discount",
			cost: "10",
			settings: func(s *Settings) {
				s.GlobalMarginPercent = decimal.Zero
				s.AutoDiscountEnabled = true
				s.AutoDiscountPercent = d("10")
				s.AutoDiscountThreshold = decimal.Zero
			},
			expected: "11",
		},
		{
			name: "guard percent floor wins for expensive bundles",
			cost: "100",
			settings: func(s *Settings) {
				s.GlobalMarginPercent = decimal.Zero
			},
			expected: "105",
		},
		{
			name: "rounded up to cents",
			cost: "1.333",
			settings: func(s *Settings) {
				s.GlobalMarginPercent = decimal.Zero
				s.MinMarginFixed = d("0.001")
				s.MinMarginPercent = decimal.Zero
			},
			expected: "1.34",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.settings(&s)
			got := ComputeSellPrice(d(tt.cost), s)
			assert.True(t, got.Equal(d(tt.expected)), "expected %s, got %s", tt.expected, got)
		})
	}
}

func TestComputeSellPrice_GuardInvariant(t *testing.T) {
	s := DefaultSettings()
	s.GlobalMarginPercent = decimal.Zero
	s.AutoDiscountEnabled = true
	s.AutoDiscountPercent = d("10")

	cost := d("10")
	got := ComputeSellPrice(cost, s)

	assert.True(t, got.GreaterThanOrEqual(cost.Add(s.MinMarginFixed)))
	assert.True(t, got.GreaterThanOrEqual(d("10.50")))
}

func TestBuildBestOffers_Idempotent(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	key := OfferKey{CountryCode: "JP", DataAmountMB: 2048, ValidityDays: 15}
	cands := []Candidate{
		{ProviderSlug: "esimgo", ProductID: "jp2", Key: key, Cost: d("4.2"), Currency: "USD", Reliability: 0.9, Priority: 5},
		{ProviderSlug: "esimaccess", ProductID: "JP-2G", Key: key, Cost: d("4.0"), Currency: "USD", Reliability: 1, Priority: 5},
	}

	first := BuildBestOffers(cands, DefaultSettings(), now)
	second := BuildBestOffers(cands, DefaultSettings(), now)

	require.Len(t, first, 1)
	assert.Equal(t, first, second)
	offer := first[0]
	assert.Equal(t, "esimaccess", offer.ProviderSlug)
	assert.True(t, offer.Margin.Equal(offer.SellPrice.Sub(offer.CostPrice)))
	// 4.0*1.2 = 4.80 sits under the 1.00 fixed floor
	assert.True(t, offer.SellPrice.Equal(d("5")))
}

// ---------------------------------------------------------------------------
// Settings Tests
// ---------------------------------------------------------------------------

func TestSettings_Validate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())

	s := DefaultSettings()
	s.AutoDiscountPercent = d("100")
	assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)

	s = DefaultSettings()
	s.MinMarginFixed = d("-1")
	assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)

	assert.NoError(t, Settings{}.Validate())
}

// ---------------------------------------------------------------------------
// OfferKey Tests
// ---------------------------------------------------------------------------

func TestOfferKey_RoundTrip(t *testing.T) {
	keys := []OfferKey{
		{CountryCode: "DE", DataAmountMB: 1024, ValidityDays: 7},
		{CountryCode: "GLOBAL", DataAmountMB: -1, ValidityDays: 30},
		{CountryCode: "US", DataAmountMB: 0, ValidityDays: 0},
	}
	for _, k := range keys {
		parsed, err := ParseOfferKey(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	assert.Equal(t, "GLOBAL-UNL-30D", keys[1].String())
}

func TestParseOfferKey_Invalid(t *testing.T) {
	for _, s := range []string{"", "DE", "DE-1024-7D", "DE-1024MB-7", "DE-xMB-7D", "-1024MB-7D", "DE-1024MB-7D-X"} {
		_, err := ParseOfferKey(s)
		assert.ErrorIs(t, err, ErrInvalidOfferKey, s)
	}
}

func TestBestOffer_PublicHidesCost(t *testing.T) {
	o := BestOffer{
		Key:          OfferKey{CountryCode: "IT", DataAmountMB: -1, ValidityDays: 10},
		ProviderSlug: "esimgo",
		CostPrice:    d("9"),
		SellPrice:    d("12"),
		Currency:     "USD",
	}
	p := o.Public()
	assert.Equal(t, "IT-UNL-10D", p.BundleID)
	assert.True(t, p.IsUnlimited)
	assert.True(t, p.SellPrice.Equal(d("12")))
}
