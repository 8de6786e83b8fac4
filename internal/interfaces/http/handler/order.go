package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appfulfillment "github.com/Memoya/simfly.me-sub000/internal/application/fulfillment"
	"github.com/Memoya/simfly.me-sub000/internal/domain/fulfillment"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/scheduler"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/middleware"
)

const defaultOrderListLimit = 50

// OrderService reads orders and re-runs failover for failed units
type OrderService interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*fulfillment.Order, error)
	ListOrders(ctx context.Context, status fulfillment.SyncStatus, limit int) ([]fulfillment.Order, error)
	RetryFailedItems(ctx context.Context, orderID uuid.UUID) (*appfulfillment.FulfillmentResult, error)
}

// OrderHandler serves fulfilled orders to operators
type OrderHandler struct {
	BaseHandler
	orders OrderService
	jobs   JobSubmitter
}

// NewOrderHandler creates a new order handler. jobs may be nil.
func NewOrderHandler(orders OrderService, jobs JobSubmitter) *OrderHandler {
	return &OrderHandler{orders: orders, jobs: jobs}
}

func (h *OrderHandler) List(c *gin.Context) {
	var req OrderListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultOrderListLimit
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), fulfillment.SyncStatus(req.Status), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, ToOrderListResponse(orders), len(orders), limit)
}

// Get returns an order with its units.
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ToOrderResponse(order))
}

// Retry re-runs failover for every pending or failed unit of an order.
// With async=true the retry is queued.
func (h *OrderHandler) Retry(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	var q RetryOrderRequest
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, "async must be a boolean")
		return
	}

	if q.Async && h.jobs != nil {
		job := scheduler.NewOrderRetryJob(id, adminTrigger, 0)
		if err := h.jobs.SubmitJob(job); err != nil {
			h.HandleError(c, err)
			return
		}
		h.Accepted(c, job)
		return
	}

	result, err := h.orders.RetryFailedItems(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

func (h *OrderHandler) orderID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order id")
		return uuid.Nil, false
	}
	return id, true
}
