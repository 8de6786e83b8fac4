package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	appcatalog "github.com/Memoya/simfly.me-sub000/internal/application/catalog"
	"github.com/Memoya/simfly.me-sub000/internal/domain/fulfillment"
	"github.com/Memoya/simfly.me-sub000/internal/domain/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/Memoya/simfly.me-sub000/internal/domain/shared"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/scheduler"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/dto"
)

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "wrapped order not found",
			err:        fmt.Errorf("load order: %w", fulfillment.ErrOrderNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   dto.ErrCodeNotFound,
			wantMsg:    "Order not found",
		},
		{
			name:       "invalid settings exposes detail",
			err:        fmt.Errorf("%w: margin percent must be >= 0", pricing.ErrInvalidSettings),
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeValidation,
			wantMsg:    "pricing: invalid settings: margin percent must be >= 0",
		},
		{
			name:       "sync overlap",
			err:        appcatalog.ErrSyncInProgress,
			wantStatus: http.StatusConflict,
			wantCode:   dto.ErrCodeInProgress,
		},
		{
			name:       "nothing to retry",
			err:        fulfillment.ErrNothingToRetry,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   dto.ErrCodeInvalidState,
		},
		{
			name:       "order run in flight",
			err:        fulfillment.ErrOrderInProgress,
			wantStatus: http.StatusConflict,
			wantCode:   dto.ErrCodeInProgress,
		},
		{
			name:       "carrier failure",
			err:        fmt.Errorf("esimgo: %w", provider.ErrProviderUnavailable),
			wantStatus: http.StatusBadGateway,
			wantCode:   dto.ErrCodeProvider,
		},
		{
			name:       "queue full",
			err:        scheduler.ErrJobQueueFull,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   dto.ErrCodeQueueFull,
		},
		{
			name:       "domain error keeps legacy code",
			err:        shared.NewDomainError("CONFLICT", "session already fulfilled"),
			wantStatus: http.StatusConflict,
			wantCode:   dto.ErrCodeConflict,
			wantMsg:    "session already fulfilled",
		},
		{
			name:       "unknown error is hidden",
			err:        errors.New("pq: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   dto.ErrCodeInternal,
			wantMsg:    "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			r := newTestRouter()
			r.GET("/x", func(c *gin.Context) { h.HandleError(c, tt.err) })

			w := doRequest(t, r, http.MethodGet, "/x", nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			info := decodeError(t, w)
			assert.Equal(t, tt.wantCode, info.Code)
			assert.NotEmpty(t, info.RequestID)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, info.Message)
			}
		})
	}
}

func TestBaseHandler_HandleError_Nil(t *testing.T) {
	h := &BaseHandler{}
	r := newTestRouter()
	r.GET("/x", func(c *gin.Context) {
		h.HandleError(c, nil)
		c.Status(http.StatusTeapot)
	})

	w := doRequest(t, r, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestSentinelMappings_CodesHaveStatus(t *testing.T) {
	for _, m := range sentinelMappings {
		_, ok := dto.ErrorCodeHTTPStatus[m.code]
		assert.True(t, ok, "code %s for %v has no HTTP status", m.code, m.err)
	}
}
