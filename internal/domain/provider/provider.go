package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InitialReliability is the score a provider starts with
const InitialReliability = 1.0

// scoreEpsilon absorbs float drift from repeated 0.1 decrements
const scoreEpsilon = 1e-9

// Provider is the operational record of a registered carrier.
type Provider struct {
	Slug             string
	Name             string
	IsActive         bool
	Priority         int
	ReliabilityScore float64
	FailedOrders     int64
	LastSync         *time.Time
	LastError        string
	Balance          decimal.Decimal
	BalanceCurrency  string
	BalanceCheckedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewProvider creates an active provider with full reliability
func NewProvider(slug, name string, priority int) *Provider {
	return &Provider{
		Slug:             slug,
		Name:             name,
		IsActive:         true,
		Priority:         priority,
		ReliabilityScore: InitialReliability,
	}
}

// HealthPolicy holds the reliability circuit-breaker parameters.
type HealthPolicy struct {
	// FailureStep is subtracted from the reliability score per failed sync
	FailureStep float64
	// WarningThreshold triggers an admin alert when the score drops below it
	WarningThreshold float64
	// CriticalThreshold deactivates the provider when the score drops below it
	CriticalThreshold float64
}

// DefaultHealthPolicy returns 0.1 / 0.7 / 0.5
func DefaultHealthPolicy() HealthPolicy {
	return HealthPolicy{
		FailureStep:       0.1,
		WarningThreshold:  0.7,
		CriticalThreshold: 0.5,
	}
}

// BelowWarning reports whether score has dropped below the warning threshold
func (p HealthPolicy) BelowWarning(score float64) bool {
	return score < p.WarningThreshold-scoreEpsilon
}

// BelowCritical reports whether score has dropped below the critical threshold
func (p HealthPolicy) BelowCritical(score float64) bool {
	return score < p.CriticalThreshold-scoreEpsilon
}

// DeactivationBound is the strict upper bound used by the atomic deactivate
// statement.
func (p HealthPolicy) DeactivationBound() float64 {
	return p.CriticalThreshold - scoreEpsilon
}

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

// ProviderRepository persists operational records. Every counter mutation
// is a single atomic statement.
type ProviderRepository interface {
	// EnsureAndTouch inserts seed if the slug is unknown and stamps last_sync
	EnsureAndTouch(ctx context.Context, seed *Provider, now time.Time) (*Provider, error)
	FindBySlug(ctx context.Context, slug string) (*Provider, error)
	FindAll(ctx context.Context) ([]Provider, error)
	FindActive(ctx context.Context) ([]Provider, error)

	// RecordSyncFailure increments failed_orders, lowers the score by step
	// clamped at zero and returns the updated record
	RecordSyncFailure(ctx context.Context, slug string, step float64, errMsg string) (*Provider, error)

	// RecordSyncSuccess clears the last recorded sync error
	RecordSyncSuccess(ctx context.Context, slug string) error

	// DeactivateIfBelow flips is_active to false only when the provider is
	// active and its score is below bound. It reports whether this call
	// performed the transition.
	DeactivateIfBelow(ctx context.Context, slug string, bound float64) (bool, error)

	// IncrementFailedOrders records a failed fulfillment attempt
	IncrementFailedOrders(ctx context.Context, slug string) error

	// UpdateBalance stores the latest wholesale balance
	UpdateBalance(ctx context.Context, slug string, balance decimal.Decimal, currency string, at time.Time) error

	// SetActive is the manual admin override for is_active
	SetActive(ctx context.Context, slug string, active bool) error
}

// ProductRepository persists provider catalogs.
type ProductRepository interface {
	// Upsert replaces the row for (ProviderSlug, ID) and clears is_stale
	Upsert(ctx context.Context, product *ProviderProduct) error

	// MarkStale flags rows of slug not seen since before and returns the count
	MarkStale(ctx context.Context, slug string, before time.Time) (int64, error)

	FindBySKU(ctx context.Context, slug, sku string) (*ProviderProduct, error)

	// FindBySKUAnyProvider returns every fresh row whose SKU matches
	FindBySKUAnyProvider(ctx context.Context, sku string) ([]ProviderProduct, error)

	// FindByTuple returns fresh rows of active providers for the tuple
	FindByTuple(ctx context.Context, countryCode string, dataAmountMB, validityDays int) ([]ProviderProduct, error)

	CountByProvider(ctx context.Context, slug string, includeStale bool) (int64, error)
}

// CatalogArchiver stores the raw catalog returned by a sync for later audit.
type CatalogArchiver interface {
	// ArchiveCatalog stores products and returns the object key
	ArchiveCatalog(ctx context.Context, slug string, takenAt time.Time, products []NormalizedProduct) (string, error)
}
