package handler

import (
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/domain/pricing"
)

// OfferQuery is the storefront offer lookup
type OfferQuery struct {
	Country string `form:"country" binding:"required,max=8"`
}

// BestOfferResponse is a winning offer with its cost side, for admins only
type BestOfferResponse struct {
	BundleID          string    `json:"bundleId"`
	CountryCode       string    `json:"countryCode"`
	DataAmountMB      int       `json:"dataAmountMB"`
	ValidityDays      int       `json:"validityDays"`
	ProviderSlug      string    `json:"providerSlug"`
	ProviderProductID string    `json:"providerProductId"`
	CostPrice         string    `json:"costPrice"`
	SellPrice         string    `json:"sellPrice"`
	Margin            string    `json:"margin"`
	Currency          string    `json:"currency"`
	Score             string    `json:"score"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ToBestOfferResponses converts the best-offer table for the admin API
func ToBestOfferResponses(offers []pricing.BestOffer) []BestOfferResponse {
	out := make([]BestOfferResponse, len(offers))
	for i, o := range offers {
		out[i] = BestOfferResponse{
			BundleID:          o.Key.String(),
			CountryCode:       o.Key.CountryCode,
			DataAmountMB:      o.Key.DataAmountMB,
			ValidityDays:      o.Key.ValidityDays,
			ProviderSlug:      o.ProviderSlug,
			ProviderProductID: o.ProviderProductID,
			CostPrice:         o.CostPrice.StringFixed(2),
			SellPrice:         o.SellPrice.StringFixed(2),
			Margin:            o.Margin.StringFixed(2),
			Currency:          o.Currency,
			Score:             o.Score.StringFixed(4),
			UpdatedAt:         o.UpdatedAt,
		}
	}
	return out
}
