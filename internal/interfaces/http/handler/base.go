package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appcatalog "github.com/Memoya/simfly.me-sub000/internal/application/catalog"
	apppricing "github.com/Memoya/simfly.me-sub000/internal/application/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/domain/fulfillment"
	"github.com/Memoya/simfly.me-sub000/internal/domain/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/Memoya/simfly.me-sub000/internal/domain/shared"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/auth"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/logger"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/payment"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/scheduler"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/dto"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// errorMapping binds a sentinel error to an API error code
type errorMapping struct {
	err     error
	code    string
	message string
}

// sentinelMappings is checked in order; the first errors.Is match wins.
// An empty message exposes err.Error() to the client.
var sentinelMappings = []errorMapping{
	// input
	{fulfillment.ErrInvalidEvent, dto.ErrCodeValidation, ""},
	{pricing.ErrInvalidOfferKey, dto.ErrCodeValidation, ""},
	{pricing.ErrInvalidSettings, dto.ErrCodeValidation, ""},
	{apppricing.ErrInvalidCountry, dto.ErrCodeValidation, ""},
	{scheduler.ErrUnknownJobKind, dto.ErrCodeValidation, ""},
	{payment.ErrInvalidSignature, dto.ErrCodeInvalidSignature, "Webhook signature verification failed"},
	{payment.ErrInvalidPayload, dto.ErrCodeInvalidInput, ""},

	// auth
	{auth.ErrInvalidCredentials, dto.ErrCodeUnauthorized, "Invalid username or password"},
	{auth.ErrAdminNotConfigured, dto.ErrCodeUnavailable, "Admin login is not configured"},

	// lookups
	{fulfillment.ErrOrderNotFound, dto.ErrCodeNotFound, "Order not found"},
	{fulfillment.ErrBundleNotFound, dto.ErrCodeNotFound, ""},
	{provider.ErrProviderNotFound, dto.ErrCodeNotFound, "Provider not found"},
	{provider.ErrProductNotFound, dto.ErrCodeNotFound, "Product not found"},
	{pricing.ErrOfferNotFound, dto.ErrCodeNotFound, "Offer not found"},
	{scheduler.ErrJobNotFound, dto.ErrCodeNotFound, "Job not found"},

	// state
	{appcatalog.ErrSyncInProgress, dto.ErrCodeInProgress, "Catalog sync already in progress"},
	{pricing.ErrRecomputeRunning, dto.ErrCodeInProgress, "Price recompute already in progress"},
	{fulfillment.ErrNothingToRetry, dto.ErrCodeInvalidState, "Order has no pending or failed items"},
	{fulfillment.ErrOrderInProgress, dto.ErrCodeInProgress, "Order is already being fulfilled"},
	{fulfillment.ErrNoCandidates, dto.ErrCodeNoCandidates, ""},
	{pricing.ErrNoActiveCandidate, dto.ErrCodeNoCandidates, ""},
	{provider.ErrCapabilityUnsupported, dto.ErrCodeInvalidState, ""},

	// carriers
	{fulfillment.ErrCandidatesExhausted, dto.ErrCodeProvider, "All provider candidates failed"},
	{provider.ErrProviderUnavailable, dto.ErrCodeProvider, "Provider temporarily unavailable"},
	{provider.ErrProviderRequestFailed, dto.ErrCodeProvider, "Provider request failed"},
	{provider.ErrProviderInvalidResponse, dto.ErrCodeProvider, "Provider returned an invalid response"},
	{provider.ErrProviderAuthFailed, dto.ErrCodeProvider, "Provider authentication failed"},
	{provider.ErrProviderRateLimited, dto.ErrCodeProvider, "Provider rate limited"},
	{provider.ErrProviderNotConfigured, dto.ErrCodeUnavailable, "Provider is not configured"},

	// throttling
	{scheduler.ErrJobQueueFull, dto.ErrCodeQueueFull, "Job queue is full, try again later"},
	{scheduler.ErrSchedulerNotRunning, dto.ErrCodeUnavailable, "Scheduler is not running"},
	{payment.ErrWebhookNotConfigured, dto.ErrCodeUnavailable, "Webhook is not configured"},
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessList sends a list response with its size and the applied limit
func (h *BaseHandler) SuccessList(c *gin.Context, data any, total, limit int) {
	c.JSON(http.StatusOK, dto.NewListResponse(data, total, limit))
}

// Accepted sends a 202 response for work handed to the scheduler
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleError maps service errors to HTTP responses. Known sentinels keep
// their code, DomainErrors keep theirs, everything else is a logged 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	for _, m := range sentinelMappings {
		if errors.Is(err, m.err) {
			message := m.message
			if message == "" {
				message = err.Error()
			}
			h.ErrorWithCode(c, m.code, message)
			return
		}
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.ErrorWithCode(c, dto.NormalizeErrorCode(domainErr.Code), domainErr.Message)
		return
	}

	logger.L(c.Request.Context()).Error("Unhandled request error",
		zap.String("route", c.FullPath()),
		zap.Error(err),
	)
	h.InternalError(c, "An unexpected error occurred")
}
