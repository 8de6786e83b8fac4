package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apppricing "github.com/Memoya/simfly.me-sub000/internal/application/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/domain/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/dto"
)

func TestOfferHandler_ListOffers(t *testing.T) {
	svc := new(MockPricingService)
	svc.On("ListOffersByCountry", mock.Anything, "de").Return([]pricing.PublicOffer{
		{BundleID: "DE-1024MB-7D", CountryCode: "DE", DataAmountMB: 1024, ValidityDays: 7, SellPrice: decimal.RequireFromString("4.99"), Currency: "EUR"},
	}, nil)
	svc.On("ListOffersByCountry", mock.Anything, "D1").
		Return(nil, fmt.Errorf("%w: %q", apppricing.ErrInvalidCountry, "D1"))

	h := NewOfferHandler(svc)
	r := newTestRouter()
	r.GET("/offers", h.ListOffers)

	w := doRequest(t, r, http.MethodGet, "/offers?country=de", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[[]pricing.PublicOffer](t, w)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "DE-1024MB-7D", resp.Data[0].BundleID)
	assert.True(t, decimal.RequireFromString("4.99").Equal(resp.Data[0].SellPrice))
	// the storefront payload never carries cost or carrier identity
	assert.NotContains(t, w.Body.String(), "costPrice")
	assert.NotContains(t, w.Body.String(), "providerSlug")

	w = doRequest(t, r, http.MethodGet, "/offers?country=D1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeValidation, decodeError(t, w).Code)

	w = doRequest(t, r, http.MethodGet, "/offers", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func newPricingRouter(svc *MockPricingService) http.Handler {
	h := NewPricingHandler(svc)
	r := newTestRouter()
	r.POST("/admin/pricing/recompute", h.Recompute)
	r.GET("/admin/pricing/offers", h.ListOffers)
	r.GET("/admin/pricing/settings", h.GetSettings)
	r.PUT("/admin/pricing/settings", h.UpdateSettings)
	return r
}

func TestPricingHandler_Recompute(t *testing.T) {
	svc := new(MockPricingService)
	svc.On("Recompute", mock.Anything).Return(&apppricing.RecomputeResult{Candidates: 12, Offers: 4}, nil).Once()
	svc.On("Recompute", mock.Anything).Return(nil, pricing.ErrRecomputeRunning).Once()
	r := newPricingRouter(svc)

	w := doRequest(t, r, http.MethodPost, "/admin/pricing/recompute", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[apppricing.RecomputeResult](t, w)
	assert.Equal(t, 4, resp.Data.Offers)

	w = doRequest(t, r, http.MethodPost, "/admin/pricing/recompute", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, dto.ErrCodeInProgress, decodeError(t, w).Code)
}

func TestPricingHandler_ListOffers(t *testing.T) {
	svc := new(MockPricingService)
	svc.On("ListAllOffers", mock.Anything).Return([]pricing.BestOffer{{
		Key:               pricing.OfferKey{CountryCode: "FR", DataAmountMB: 3072, ValidityDays: 30},
		ProviderSlug:      "esimaccess",
		ProviderProductID: "P-FR-3",
		CostPrice:         decimal.RequireFromString("6.2"),
		SellPrice:         decimal.RequireFromString("9.99"),
		Margin:            decimal.RequireFromString("3.79"),
		Currency:          "EUR",
		Score:             decimal.RequireFromString("1.25"),
		UpdatedAt:         time.Now(),
	}}, nil)

	w := doRequest(t, newPricingRouter(svc), http.MethodGet, "/admin/pricing/offers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[[]BestOfferResponse](t, w)
	require.Len(t, resp.Data, 1)
	o := resp.Data[0]
	assert.Equal(t, "FR-3072MB-30D", o.BundleID)
	assert.Equal(t, "esimaccess", o.ProviderSlug)
	assert.Equal(t, "6.20", o.CostPrice)
	assert.Equal(t, "3.79", o.Margin)
}

func TestPricingHandler_Settings(t *testing.T) {
	svc := new(MockPricingService)
	current := pricing.DefaultSettings()
	svc.On("GetSettings", mock.Anything).Return(&current, nil)
	svc.On("UpdateSettings", mock.Anything, mock.MatchedBy(func(s pricing.Settings) bool {
		return s.GlobalMarginPercent.Equal(decimal.NewFromInt(25))
	})).Return(&pricing.Settings{GlobalMarginPercent: decimal.NewFromInt(25)}, nil)
	svc.On("UpdateSettings", mock.Anything, mock.MatchedBy(func(s pricing.Settings) bool {
		return s.GlobalMarginPercent.IsNegative()
	})).Return(nil, fmt.Errorf("%w: globalMarginPercent must be >= 0", pricing.ErrInvalidSettings))
	r := newPricingRouter(svc)

	w := doRequest(t, r, http.MethodGet, "/admin/pricing/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, r, http.MethodPut, "/admin/pricing/settings", `{"globalMarginPercent":"25","globalMarginFixed":"0.5"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[json.RawMessage](t, w)
	assert.Contains(t, string(resp.Data), `"globalMarginPercent":"25"`)

	w = doRequest(t, r, http.MethodPut, "/admin/pricing/settings", `{"globalMarginPercent":"-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeValidation, decodeError(t, w).Code)

	w = doRequest(t, r, http.MethodPut, "/admin/pricing/settings", `{"globalMarginPercent":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidJSON, decodeError(t, w).Code)
}
