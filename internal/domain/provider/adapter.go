package provider

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Provider Errors
// ---------------------------------------------------------------------------

var (
	// Adapter errors
	ErrProviderNotConfigured   = errors.New("provider: adapter not configured")
	ErrProviderUnavailable     = errors.New("provider: carrier temporarily unavailable")
	ErrProviderRequestFailed   = errors.New("provider: carrier request failed")
	ErrProviderInvalidResponse = errors.New("provider: invalid carrier response")
	ErrProviderAuthFailed      = errors.New("provider: carrier authentication failed")
	ErrProviderRateLimited     = errors.New("provider: carrier rate limited")
	ErrIncompleteCredential    = errors.New("provider: order accepted without a complete eSIM credential")
	ErrOrderRejected           = errors.New("provider: order rejected by carrier")
	ErrCapabilityUnsupported   = errors.New("provider: capability not supported by carrier")

	// Registry and repository errors
	ErrProviderNotFound = errors.New("provider: provider not found")
	ErrProductNotFound  = errors.New("provider: product not found")
	ErrInvalidProduct   = errors.New("provider: invalid normalized product")
)

// ---------------------------------------------------------------------------
// Adapter contract
// ---------------------------------------------------------------------------

// Adapter is the capability set every carrier integration satisfies.
// Implementations translate the carrier's wire format into NormalizedProduct
// and OrderResult and must honor ctx deadlines on every outbound call.
type Adapter interface {
	// Slug returns the stable provider identifier (e.g. "esimgo")
	Slug() string

	// Name returns a human readable carrier name
	Name() string

	// FetchCatalog returns the carrier's complete current offer list
	FetchCatalog(ctx context.Context) ([]NormalizedProduct, error)

	// Order purchases one unit of productID. A nil error with Success=false
	// means the carrier answered but refused the order.
	Order(ctx context.Context, productID string) (*OrderResult, error)

	// GetBalance returns the wholesale account balance and its currency
	GetBalance(ctx context.Context) (decimal.Decimal, string, error)

	// CheckHealth is a cheap liveness probe
	CheckHealth(ctx context.Context) bool
}

// TopUpper is implemented by carriers that can add data to an existing eSIM.
type TopUpper interface {
	TopUp(ctx context.Context, iccid, productID string) (*OrderResult, error)
}

// EsimDetailer is implemented by carriers exposing per-eSIM profile details.
type EsimDetailer interface {
	GetEsimDetails(ctx context.Context, iccid string) (*EsimDetails, error)
}

// UsageReporter is implemented by carriers exposing data usage.
type UsageReporter interface {
	GetUsage(ctx context.Context, iccid string) (*Usage, error)
}

// AsTopUpper probes the adapter for top-up support.
func AsTopUpper(a Adapter) (TopUpper, error) {
	if t, ok := a.(TopUpper); ok {
		return t, nil
	}
	return nil, ErrCapabilityUnsupported
}

// AsEsimDetailer probes the adapter for eSIM detail support.
func AsEsimDetailer(a Adapter) (EsimDetailer, error) {
	if d, ok := a.(EsimDetailer); ok {
		return d, nil
	}
	return nil, ErrCapabilityUnsupported
}

// AsUsageReporter probes the adapter for usage reporting support.
func AsUsageReporter(a Adapter) (UsageReporter, error) {
	if u, ok := a.(UsageReporter); ok {
		return u, nil
	}
	return nil, ErrCapabilityUnsupported
}

// Capabilities lists the optional capabilities an adapter supports
func Capabilities(a Adapter) []string {
	caps := make([]string, 0, 3)
	if _, err := AsTopUpper(a); err == nil {
		caps = append(caps, "topup")
	}
	if _, err := AsEsimDetailer(a); err == nil {
		caps = append(caps, "esim_details")
	}
	if _, err := AsUsageReporter(a); err == nil {
		caps = append(caps, "usage")
	}
	return caps
}

// HealthFromBalance is the default CheckHealth policy: the balance call must
// succeed and report a non-negative amount.
func HealthFromBalance(ctx context.Context, a Adapter) bool {
	balance, _, err := a.GetBalance(ctx)
	if err != nil {
		return false
	}
	return !balance.IsNegative()
}

// Registry is a static lookup of adapters by slug.
type Registry interface {
	// Get returns the adapter for slug or ErrProviderNotFound
	Get(slug string) (Adapter, error)

	// ListAll returns every registered adapter ordered by slug
	ListAll() []Adapter
}
