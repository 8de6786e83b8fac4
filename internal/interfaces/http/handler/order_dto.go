package handler

import (
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/domain/fulfillment"
)

// OrderItemResponse is one eSIM unit of an order in admin responses
type OrderItemResponse struct {
	ID                string     `json:"id"`
	Position          int        `json:"position"`
	ProductName       string     `json:"productName"`
	Price             string     `json:"price"`
	CostPrice         string     `json:"costPrice"`
	ProviderHint      string     `json:"providerHint,omitempty"`
	ProviderSlug      string     `json:"providerSlug,omitempty"`
	ProviderProductID string     `json:"providerProductId,omitempty"`
	ProviderOrderRef  string     `json:"providerOrderRef,omitempty"`
	ICCID             string     `json:"iccid,omitempty"`
	ActivationCode    string     `json:"activationCode,omitempty"`
	Status            string     `json:"status"`
	EmailStatus       string     `json:"emailStatus"`
	LastError         string     `json:"lastError,omitempty"`
	Attempts          int        `json:"attempts"`
	FulfilledAt       *time.Time `json:"fulfilledAt,omitempty"`
}

// OrderSyncResponse is the aggregate fulfillment state of an order
type OrderSyncResponse struct {
	SyncStatus     string    `json:"syncStatus"`
	EmailStatus    string    `json:"emailStatus"`
	FulfilledCount int       `json:"fulfilledCount"`
	FailedCount    int       `json:"failedCount"`
	LastError      string    `json:"lastError,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// OrderResponse represents an order in admin responses
type OrderResponse struct {
	ID            string              `json:"id"`
	SessionID     string              `json:"sessionId"`
	CustomerEmail string              `json:"customerEmail"`
	Amount        string              `json:"amount"`
	Currency      string              `json:"currency"`
	Status        string              `json:"status"`
	Sync          OrderSyncResponse   `json:"sync"`
	Items         []OrderItemResponse `json:"items,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// OrderListRequest filters the admin order list
type OrderListRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=PENDING COMPLETED PARTIAL_FAILURE"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// RetryOrderRequest selects how a retry is run
type RetryOrderRequest struct {
	Async bool `form:"async"`
}

// ToOrderResponse converts a domain order, including its items
func ToOrderResponse(o *fulfillment.Order) OrderResponse {
	resp := toOrderSummary(o)
	resp.Items = make([]OrderItemResponse, len(o.Items))
	for i := range o.Items {
		resp.Items[i] = toOrderItemResponse(&o.Items[i])
	}
	return resp
}

// ToOrderListResponse converts orders without their items
func ToOrderListResponse(orders []fulfillment.Order) []OrderResponse {
	out := make([]OrderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderSummary(&orders[i])
	}
	return out
}

func toOrderSummary(o *fulfillment.Order) OrderResponse {
	return OrderResponse{
		ID:            o.ID.String(),
		SessionID:     o.SessionID,
		CustomerEmail: o.CustomerEmail,
		Amount:        o.Amount.StringFixed(2),
		Currency:      o.Currency,
		Status:        string(o.Status),
		Sync: OrderSyncResponse{
			SyncStatus:     string(o.Sync.SyncStatus),
			EmailStatus:    string(o.Sync.EmailStatus),
			FulfilledCount: o.Sync.FulfilledCount,
			FailedCount:    o.Sync.FailedCount,
			LastError:      o.Sync.LastError,
			UpdatedAt:      o.Sync.UpdatedAt,
		},
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func toOrderItemResponse(it *fulfillment.OrderItem) OrderItemResponse {
	resp := OrderItemResponse{
		ID:                it.ID.String(),
		Position:          it.Position,
		ProductName:       it.ProductName,
		Price:             it.Price.StringFixed(2),
		CostPrice:         it.CostPrice.StringFixed(2),
		ProviderHint:      it.ProviderHint,
		ProviderSlug:      it.ProviderSlug,
		ProviderProductID: it.ProviderProductID,
		ProviderOrderRef:  it.ProviderOrderRef,
		ICCID:             it.ICCID,
		Status:            string(it.Status),
		EmailStatus:       string(it.EmailStatus),
		LastError:         it.LastError,
		Attempts:          it.Attempts,
		FulfilledAt:       it.FulfilledAt,
	}
	if cred := it.Credential(); cred != nil {
		resp.ActivationCode = cred.ActivationCode()
	}
	return resp
}
