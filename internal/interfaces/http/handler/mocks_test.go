package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appcatalog "github.com/Memoya/simfly.me-sub000/internal/application/catalog"
	appfulfillment "github.com/Memoya/simfly.me-sub000/internal/application/fulfillment"
	"github.com/Memoya/simfly.me-sub000/internal/application/health"
	apppricing "github.com/Memoya/simfly.me-sub000/internal/application/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/domain/fulfillment"
	"github.com/Memoya/simfly.me-sub000/internal/domain/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/scheduler"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/dto"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// newTestRouter returns an engine with request ids, like production
func newTestRouter() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	return r
}

func doRequest(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) APIResponse[T] {
	t.Helper()
	var resp APIResponse[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	resp := decode[json.RawMessage](t, w)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error
}

// MockPricingService is a mock implementation of PricingService and OfferReader
type MockPricingService struct {
	mock.Mock
}

func (m *MockPricingService) Recompute(ctx context.Context) (*apppricing.RecomputeResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apppricing.RecomputeResult), args.Error(1)
}

func (m *MockPricingService) ListAllOffers(ctx context.Context) ([]pricing.BestOffer, error) {
	args := m.Called(ctx)
	return args.Get(0).([]pricing.BestOffer), args.Error(1)
}

func (m *MockPricingService) ListOffersByCountry(ctx context.Context, country string) ([]pricing.PublicOffer, error) {
	args := m.Called(ctx, country)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]pricing.PublicOffer), args.Error(1)
}

func (m *MockPricingService) GetSettings(ctx context.Context) (*pricing.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pricing.Settings), args.Error(1)
}

func (m *MockPricingService) UpdateSettings(ctx context.Context, settings pricing.Settings) (*pricing.Settings, error) {
	args := m.Called(ctx, settings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pricing.Settings), args.Error(1)
}

// MockOrderService is a mock implementation of OrderService and PaymentFulfiller
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*fulfillment.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.Order), args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context, status fulfillment.SyncStatus, limit int) ([]fulfillment.Order, error) {
	args := m.Called(ctx, status, limit)
	return args.Get(0).([]fulfillment.Order), args.Error(1)
}

func (m *MockOrderService) RetryFailedItems(ctx context.Context, orderID uuid.UUID) (*appfulfillment.FulfillmentResult, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appfulfillment.FulfillmentResult), args.Error(1)
}

func (m *MockOrderService) HandlePaymentConfirmed(ctx context.Context, evt fulfillment.PaymentConfirmedEvent) (*appfulfillment.FulfillmentResult, error) {
	args := m.Called(ctx, evt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appfulfillment.FulfillmentResult), args.Error(1)
}

// MockJobSubmitter is a mock implementation of JobSubmitter
type MockJobSubmitter struct {
	mock.Mock
}

func (m *MockJobSubmitter) SubmitJob(job *scheduler.Job) error {
	return m.Called(job).Error(0)
}

// MockCatalogSyncer is a mock implementation of CatalogSyncer
type MockCatalogSyncer struct {
	mock.Mock
}

func (m *MockCatalogSyncer) Run(ctx context.Context) (*appcatalog.SyncReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appcatalog.SyncReport), args.Error(1)
}

// MockProviderStore is a mock implementation of ProviderStore
type MockProviderStore struct {
	mock.Mock
}

func (m *MockProviderStore) FindAll(ctx context.Context) ([]provider.Provider, error) {
	args := m.Called(ctx)
	return args.Get(0).([]provider.Provider), args.Error(1)
}

func (m *MockProviderStore) SetActive(ctx context.Context, slug string, active bool) error {
	return m.Called(ctx, slug, active).Error(0)
}

// MockHealthProber is a mock implementation of HealthProber
type MockHealthProber struct {
	mock.Mock
}

func (m *MockHealthProber) CheckAll(ctx context.Context) []health.ProviderHealth {
	return m.Called(ctx).Get(0).([]health.ProviderHealth)
}

func (m *MockHealthProber) CheckProvider(ctx context.Context, slug string) (*health.ProviderHealth, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*health.ProviderHealth), args.Error(1)
}

func (m *MockHealthProber) Last(slug string) (health.ProviderHealth, bool) {
	args := m.Called(slug)
	return args.Get(0).(health.ProviderHealth), args.Bool(1)
}
