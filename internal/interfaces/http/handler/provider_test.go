package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Memoya/simfly.me-sub000/internal/application/health"
	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/dto"
)

func newProviderRouter(store *MockProviderStore, prober *MockHealthProber) http.Handler {
	h := NewProviderHandler(store, prober)
	r := newTestRouter()
	r.GET("/admin/providers", h.List)
	r.GET("/admin/providers/health", h.CheckAll)
	r.GET("/admin/providers/:slug/balance", h.Balance)
	r.POST("/admin/providers/:slug/activate", h.Activate)
	r.POST("/admin/providers/:slug/deactivate", h.Deactivate)
	return r
}

func TestProviderHandler_List(t *testing.T) {
	store := new(MockProviderStore)
	prober := new(MockHealthProber)
	checked := time.Now().UTC()

	store.On("FindAll", mock.Anything).Return([]provider.Provider{
		{Slug: "esimaccess", Name: "eSIM Access", IsActive: false, Priority: 5, ReliabilityScore: 0.4, FailedOrders: 6, LastError: "timeout"},
		{Slug: "esimgo", Name: "eSIM Go", IsActive: true, Priority: 10, ReliabilityScore: 1, Balance: decimal.RequireFromString("812.4"), BalanceCurrency: "USD"},
	}, nil)
	prober.On("Last", "esimaccess").Return(health.ProviderHealth{}, false)
	prober.On("Last", "esimgo").Return(health.ProviderHealth{Slug: "esimgo", Healthy: true, CheckedAt: checked}, true)

	w := doRequest(t, newProviderRouter(store, prober), http.MethodGet, "/admin/providers", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[[]ProviderResponse](t, w)
	require.Len(t, resp.Data, 2)
	assert.False(t, resp.Data[0].IsActive)
	assert.Equal(t, "timeout", resp.Data[0].LastError)
	assert.Nil(t, resp.Data[0].Health)
	assert.Equal(t, "812.40", resp.Data[1].Balance)
	require.NotNil(t, resp.Data[1].Health)
	assert.True(t, resp.Data[1].Health.Healthy)
}

func TestProviderHandler_Balance(t *testing.T) {
	store := new(MockProviderStore)
	prober := new(MockHealthProber)
	prober.On("CheckProvider", mock.Anything, "esimgo").Return(&health.ProviderHealth{
		Slug: "esimgo", Healthy: true, Balance: decimal.NewFromInt(40), Currency: "USD", LowBalance: true,
	}, nil)
	prober.On("CheckProvider", mock.Anything, "ghost").Return(nil, provider.ErrProviderNotFound)
	r := newProviderRouter(store, prober)

	w := doRequest(t, r, http.MethodGet, "/admin/providers/esimgo/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[health.ProviderHealth](t, w)
	assert.True(t, resp.Data.LowBalance)
	assert.True(t, decimal.NewFromInt(40).Equal(resp.Data.Balance))

	w = doRequest(t, r, http.MethodGet, "/admin/providers/ghost/balance", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.ErrCodeNotFound, decodeError(t, w).Code)
}

func TestProviderHandler_CheckAll(t *testing.T) {
	prober := new(MockHealthProber)
	prober.On("CheckAll", mock.Anything).Return([]health.ProviderHealth{
		{Slug: "esimaccess", Healthy: false, Error: "provider: carrier temporarily unavailable"},
		{Slug: "esimgo", Healthy: true},
	})

	w := doRequest(t, newProviderRouter(new(MockProviderStore), prober), http.MethodGet, "/admin/providers/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[[]health.ProviderHealth](t, w)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, 2, resp.Meta.Total)
}

func TestProviderHandler_SetActive(t *testing.T) {
	store := new(MockProviderStore)
	store.On("SetActive", mock.Anything, "esimaccess", true).Return(nil)
	store.On("SetActive", mock.Anything, "esimgo", false).Return(nil)
	store.On("SetActive", mock.Anything, "ghost", true).Return(provider.ErrProviderNotFound)
	r := newProviderRouter(store, new(MockHealthProber))

	w := doRequest(t, r, http.MethodPost, "/admin/providers/esimaccess/activate", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, r, http.MethodPost, "/admin/providers/esimgo/deactivate", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, r, http.MethodPost, "/admin/providers/ghost/activate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	store.AssertExpectations(t)
}
