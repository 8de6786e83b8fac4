package handler

import (
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/application/health"
	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
)

// ProviderResponse represents a carrier in admin responses
type ProviderResponse struct {
	Slug             string          `json:"slug"`
	Name             string          `json:"name"`
	IsActive         bool            `json:"isActive"`
	Priority         int             `json:"priority"`
	ReliabilityScore float64         `json:"reliabilityScore"`
	FailedOrders     int64           `json:"failedOrders"`
	LastSync         *time.Time      `json:"lastSync,omitempty"`
	LastError        string          `json:"lastError,omitempty"`
	Balance          string          `json:"balance"`
	BalanceCurrency  string          `json:"balanceCurrency,omitempty"`
	BalanceCheckedAt *time.Time      `json:"balanceCheckedAt,omitempty"`
	Health           *health.ProviderHealth `json:"health,omitempty"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// ToProviderResponse converts a domain provider and its last probe, if any
func ToProviderResponse(p *provider.Provider, last *health.ProviderHealth) ProviderResponse {
	return ProviderResponse{
		Slug:             p.Slug,
		Name:             p.Name,
		IsActive:         p.IsActive,
		Priority:         p.Priority,
		ReliabilityScore: p.ReliabilityScore,
		FailedOrders:     p.FailedOrders,
		LastSync:         p.LastSync,
		LastError:        p.LastError,
		Balance:          p.Balance.StringFixed(2),
		BalanceCurrency:  p.BalanceCurrency,
		BalanceCheckedAt: p.BalanceCheckedAt,
		Health:           last,
		UpdatedAt:        p.UpdatedAt,
	}
}
