package carrier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
)

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestEsimGoConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *EsimGoConfig
		wantErr error
	}{
		{
			name:    "valid config",
			config:  &EsimGoConfig{APIKey: "key", BaseURL: "http://localhost"},
			wantErr: nil,
		},
		{
			name:    "missing api key",
			config:  &EsimGoConfig{BaseURL: "http://localhost"},
			wantErr: ErrEsimGoConfigMissingAPIKey,
		},
		{
			name:    "missing base url",
			config:  &EsimGoConfig{APIKey: "key"},
			wantErr: ErrEsimGoConfigMissingBaseURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 30*time.Second, tt.config.Timeout)
			assert.Equal(t, float64(5), tt.config.RateLimit)
			assert.Equal(t, esimGoDefaultPerPage, tt.config.PerPage)
		})
	}
}

func TestNewEsimGoAdapter(t *testing.T) {
	_, err := NewEsimGoAdapter(nil)
	assert.ErrorIs(t, err, provider.ErrProviderNotConfigured)

	a, err := NewEsimGoAdapter(NewEsimGoConfig("key"))
	require.NoError(t, err)
	assert.Equal(t, "esimgo", a.Slug())
	assert.Equal(t, "eSIM Go", a.Name())
	assert.ElementsMatch(t, []string{"topup", "esim_details", "usage"}, provider.Capabilities(a))
}

// ---------------------------------------------------------------------------
// Adapter Tests
// ---------------------------------------------------------------------------

func newEsimGoTestAdapter(t *testing.T, handler http.HandlerFunc) *EsimGoAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := NewEsimGoAdapter(&EsimGoConfig{
		APIKey:    "test-key",
		BaseURL:   srv.URL,
		Timeout:   5 * time.Second,
		RateLimit: 1000,
		PerPage:   2,
	})
	require.NoError(t, err)
	return a
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestEsimGoAdapter_FetchCatalog_Paginates(t *testing.T) {
	f := gofakeit.New(42)
	prices := []float64{f.Float64Range(1, 40), f.Float64Range(1, 40), f.Float64Range(1, 40)}

	pages := map[string][]map[string]any{
		"1": {
			{"name": "esim_1GB_7D_DE_V2", "description": "Germany 1GB 7 Days", "countries": []map[string]string{{"iso": "de"}},
				"dataAmount": 1024, "duration": 7, "speed": []string{"4G", "5G"}, "price": prices[0]},
			{"name": "esim_UL_30D_FR_V2", "countries": []map[string]string{{"iso": "FR"}},
				"dataAmount": -1, "duration": 30, "unlimited": true, "price": prices[1]},
		},
		"2": {
			{"name": "esim_5GB_15D_EU_V2", "description": "Europe 5GB", "countries": []map[string]string{{"iso": "DE"}, {"iso": "FR"}},
				"dataAmount": 5120, "duration": 15, "price": prices[2], "currency": "eur"},
		},
	}

	var calls int
	a := newEsimGoTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/catalogue", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "2", r.URL.Query().Get("perPage"))
		writeJSON(t, w, map[string]any{"bundles": pages[r.URL.Query().Get("page")], "pageCount": 2})
	})

	products, err := a.FetchCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, 2, calls)

	de := products[0]
	assert.Equal(t, "esim_1GB_7D_DE_V2", de.ID)
	assert.Equal(t, "Germany 1GB 7 Days", de.Name)
	assert.Equal(t, "DE", de.CountryCode)
	assert.Equal(t, 1024, de.DataAmountMB)
	assert.Equal(t, 7, de.ValidityDays)
	assert.Equal(t, "5G", de.NetworkType)
	assert.Equal(t, "USD", de.Currency)
	assert.True(t, decimal.NewFromFloat(prices[0]).Equal(de.Price))
	assert.NotEmpty(t, de.OriginalData)
	assert.NoError(t, de.Validate())

	fr := products[1]
	assert.True(t, fr.IsUnlimited)
	assert.Equal(t, provider.UnlimitedDataMB, fr.DataAmountMB)
	assert.Equal(t, "esim_UL_30D_FR_V2", fr.Name)

	eu := products[2]
	assert.Equal(t, provider.GlobalCountryCode, eu.CountryCode)
	assert.Equal(t, "EUR", eu.Currency)
}

func TestEsimGoAdapter_Order(t *testing.T) {
	f := gofakeit.New(7)
	iccid := f.Numerify("8944##############")
	matching := f.UUID()

	t.Run("completed order resolves credential", func(t *testing.T) {
		a := newEsimGoTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/orders":
				assert.Equal(t, http.MethodPost, r.Method)
				var req EsimGoOrderRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "transaction", req.Type)
				assert.True(t, req.Assign)
				if assert.Len(t, req.Order, 1) {
					assert.Equal(t, "esim_1GB_7D_DE_V2", req.Order[0].Item)
					assert.Equal(t, 1, req.Order[0].Quantity)
				}
				writeJSON(t, w, map[string]any{"status": "Completed", "orderReference": "ref-123", "total": 1.5})
			case "/esims/assignments":
				assert.Equal(t, "ref-123", r.URL.Query().Get("reference"))
				writeJSON(t, w, []map[string]string{{"iccid": iccid, "matchingCode": matching, "smdpAddress": "rsp.esim-go.com"}})
			default:
				http.NotFound(w, r)
			}
		})

		res, err := a.Order(context.Background(), "esim_1GB_7D_DE_V2")
		require.NoError(t, err)
		require.NoError(t, res.Err())
		assert.Equal(t, "ref-123", res.ProviderOrderRef)
		assert.Equal(t, iccid, res.Esim.ICCID)
		assert.Equal(t, "LPA:1$rsp.esim-go.com$"+matching, res.Esim.ActivationCode())
	})

	t.Run("refused order is not an error", func(t *testing.T) {
		a := newEsimGoTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"status": "Failed", "statusMessage": "insufficient balance"})
		})

		res, err := a.Order(context.Background(), "esim_1GB_7D_DE_V2")
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.ErrorIs(t, res.Err(), provider.ErrOrderRejected)
		assert.Contains(t, res.Error, "insufficient balance")
	})

	t.Run("missing assignment is incomplete", func(t *testing.T) {
		a := newEsimGoTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/orders" {
				writeJSON(t, w, map[string]any{"status": "completed", "orderReference": "ref-9"})
				return
			}
			writeJSON(t, w, []map[string]string{{"iccid": iccid, "smdpAddress": "rsp.esim-go.com"}})
		})

		_, err := a.Order(context.Background(), "esim_1GB_7D_DE_V2")
		assert.ErrorIs(t, err, provider.ErrIncompleteCredential)
	})
}

func TestEsimGoAdapter_HTTPErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr []error
	}{
		{"bad request", http.StatusBadRequest, []error{provider.ErrProviderRequestFailed}},
		{"unauthorized", http.StatusUnauthorized, []error{provider.ErrProviderRequestFailed, provider.ErrProviderAuthFailed}},
		{"throttled", http.StatusTooManyRequests, []error{provider.ErrProviderRequestFailed, provider.ErrProviderRateLimited}},
		{"server error", http.StatusBadGateway, []error{provider.ErrProviderRequestFailed, provider.ErrProviderUnavailable}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newEsimGoTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			})

			_, err := a.FetchCatalog(context.Background())
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}
			assert.Contains(t, err.Error(), strconv.Itoa(tt.status))
		})
	}

	t.Run("unreachable carrier", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close()
		a, err := NewEsimGoAdapter(&EsimGoConfig{APIKey: "k", BaseURL: srv.URL, RateLimit: 1000})
		require.NoError(t, err)

		_, err = a.Order(context.Background(), "x")
		assert.ErrorIs(t, err, provider.ErrProviderUnavailable)
	})

	t.Run("malformed body", func(t *testing.T) {
		a := newEsimGoTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"bundles":`))
		})
		_, err := a.FetchCatalog(context.Background())
		assert.ErrorIs(t, err, provider.ErrProviderInvalidResponse)
	})
}

func TestEsimGoAdapter_BalanceAndHealth(t *testing.T) {
	balance := 125.5
	a := newEsimGoTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/organisation", r.URL.Path)
		writeJSON(t, w, map[string]any{"organisations": []map[string]any{{"name": "simfly", "balance": balance, "currency": "usd"}}})
	})

	got, currency, err := a.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "125.5", got.String())
	assert.Equal(t, "USD", currency)
	assert.True(t, a.CheckHealth(context.Background()))

	balance = -3
	assert.False(t, a.CheckHealth(context.Background()))
}

func TestEsimGoAdapter_DetailsAndUsage(t *testing.T) {
	const gb = int64(1024 * 1024 * 1024)
	a := newEsimGoTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/esims/8944000000000000001":
			writeJSON(t, w, map[string]any{
				"iccid": "8944000000000000001", "matchingId": "M-1", "smdpAddress": "rsp.esim-go.com",
				"profileStatus": "Installed", "firstInstalledDateTime": "2026-02-01T10:00:00Z",
			})
		case "/esims/8944000000000000001/bundles":
			writeJSON(t, w, map[string]any{"bundles": []map[string]any{{
				"name": "esim_5GB_15D_EU_V2",
				"assignments": []map[string]any{
					{"initialQuantity": 5 * gb, "remainingQuantity": 3 * gb, "endTime": "2026-03-01T00:00:00Z"},
				},
			}}})
		default:
			http.NotFound(w, r)
		}
	})
	fixed := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	details, err := a.GetEsimDetails(context.Background(), "8944000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "Installed", details.Status)
	assert.Equal(t, "M-1", details.MatchingID)
	require.NotNil(t, details.InstalledAt)
	assert.Equal(t, 2026, details.InstalledAt.Year())

	usage, err := a.GetUsage(context.Background(), "8944000000000000001")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), usage.UsedMB)
	assert.Equal(t, int64(3072), usage.RemainingMB)
	assert.False(t, usage.IsUnlimited)
	assert.Equal(t, fixed, usage.LastUpdatedAt)
	require.NotNil(t, usage.ExpiresAt)
	assert.Equal(t, time.March, usage.ExpiresAt.Month())
}

func TestEsimGoAdapter_TopUp(t *testing.T) {
	const iccid = "8944000000000000002"
	a := newEsimGoTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders":
			var req EsimGoOrderRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if assert.Len(t, req.Order, 1) {
				assert.Equal(t, []string{iccid}, req.Order[0].ICCIDs)
			}
			writeJSON(t, w, map[string]any{"status": "completed", "orderReference": "top-1"})
		case "/esims/assignments":
			writeJSON(t, w, []map[string]string{})
		case "/esims/" + iccid:
			writeJSON(t, w, map[string]any{"iccid": iccid, "matchingId": "M-2", "smdpAddress": "rsp.esim-go.com"})
		default:
			http.NotFound(w, r)
		}
	})

	res, err := a.TopUp(context.Background(), iccid, "esim_1GB_7D_DE_V2")
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, iccid, res.Esim.ICCID)
	assert.Equal(t, "M-2", res.Esim.MatchingID)

	_, err = a.TopUp(context.Background(), " ", "esim_1GB_7D_DE_V2")
	assert.ErrorIs(t, err, provider.ErrProviderRequestFailed)
}
