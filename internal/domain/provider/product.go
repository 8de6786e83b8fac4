package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// UnlimitedDataMB is the DataAmountMB sentinel for unlimited bundles
	UnlimitedDataMB = -1

	// GlobalCountryCode marks multi-country and global bundles
	GlobalCountryCode = "GLOBAL"
)

// NormalizedProduct is a carrier offer expressed in carrier-agnostic terms.
type NormalizedProduct struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	CountryCode  string          `json:"countryCode"`
	DataAmountMB int             `json:"dataAmountMB"`
	ValidityDays int             `json:"validityDays"`
	IsUnlimited  bool            `json:"isUnlimited"`
	NetworkType  string          `json:"networkType,omitempty"`
	OriginalData json.RawMessage `json:"originalData,omitempty"`
}

// Validate checks the invariants every adapter must produce
func (p NormalizedProduct) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidProduct)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: %s has negative price", ErrInvalidProduct, p.ID)
	}
	if p.DataAmountMB < UnlimitedDataMB {
		return fmt.Errorf("%w: %s has data amount %d", ErrInvalidProduct, p.ID, p.DataAmountMB)
	}
	if p.ValidityDays < 0 {
		return fmt.Errorf("%w: %s has negative validity", ErrInvalidProduct, p.ID)
	}
	if p.IsUnlimited != (p.DataAmountMB == UnlimitedDataMB) {
		return fmt.Errorf("%w: %s unlimited flag disagrees with data amount", ErrInvalidProduct, p.ID)
	}
	if strings.TrimSpace(p.CountryCode) == "" {
		return fmt.Errorf("%w: %s has no country", ErrInvalidProduct, p.ID)
	}
	return nil
}

// NormalizeCountryCode upper-cases ISO codes and folds multi-country
// identifiers into GlobalCountryCode.
func NormalizeCountryCode(code string, countryCount int) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if countryCount > 1 || len(code) != 2 {
		return GlobalCountryCode
	}
	return code
}

// DataMBFromGB converts a carrier's GB figure into MB, honoring the
// unlimited sentinel.
func DataMBFromGB(gb float64, unlimited bool) int {
	if unlimited {
		return UnlimitedDataMB
	}
	return int(gb * 1024)
}

// ProviderProduct is the persisted form of a NormalizedProduct, keyed by
// (ProviderSlug, ProviderProductID).
type ProviderProduct struct {
	ProviderSlug string
	NormalizedProduct
	LastSeenAt time.Time
	IsStale    bool
	UpdatedAt  time.Time
}

// NewProviderProduct stamps a freshly fetched product with the sync time
func NewProviderProduct(slug string, p NormalizedProduct, seenAt time.Time) ProviderProduct {
	p.Currency = strings.ToUpper(p.Currency)
	return ProviderProduct{
		ProviderSlug:      slug,
		NormalizedProduct: p,
		LastSeenAt:        seenAt,
		IsStale:           false,
	}
}
