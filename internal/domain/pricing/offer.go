package pricing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidOfferKey   = errors.New("pricing: invalid offer key")
	ErrOfferNotFound     = errors.New("pricing: best offer not found")
	ErrSettingsNotFound  = errors.New("pricing: settings not found")
	ErrInvalidSettings   = errors.New("pricing: invalid settings")
	ErrRecomputeRunning  = errors.New("pricing: recompute already running")
	ErrNoActiveCandidate = errors.New("pricing: no active candidate")
)

// unlimitedToken is the data segment of an OfferKey for unlimited bundles
const unlimitedToken = "UNL"

// OfferKey identifies a sellable (country, data, validity) tuple.
type OfferKey struct {
	CountryCode  string `json:"countryCode"`
	DataAmountMB int    `json:"dataAmountMB"`
	ValidityDays int    `json:"validityDays"`
}

// String renders the bundle identifier, e.g. "DE-1024MB-7D" or "US-UNL-30D".
func (k OfferKey) String() string {
	data := strconv.Itoa(k.DataAmountMB) + "MB"
	if k.DataAmountMB < 0 {
		data = unlimitedToken
	}
	return fmt.Sprintf("%s-%s-%dD", k.CountryCode, data, k.ValidityDays)
}

// Less orders keys by country, data, validity
func (k OfferKey) Less(o OfferKey) bool {
	if k.CountryCode != o.CountryCode {
		return k.CountryCode < o.CountryCode
	}
	if k.DataAmountMB != o.DataAmountMB {
		return k.DataAmountMB < o.DataAmountMB
	}
	return k.ValidityDays < o.ValidityDays
}

// ParseOfferKey is the inverse of OfferKey.String.
func ParseOfferKey(s string) (OfferKey, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 || parts[0] == "" {
		return OfferKey{}, fmt.Errorf("%w: %q", ErrInvalidOfferKey, s)
	}

	key := OfferKey{CountryCode: strings.ToUpper(parts[0])}

	data := strings.ToUpper(parts[1])
	if data == unlimitedToken {
		key.DataAmountMB = -1
	} else {
		mb, err := strconv.Atoi(strings.TrimSuffix(data, "MB"))
		if err != nil || !strings.HasSuffix(data, "MB") || mb < 0 {
			return OfferKey{}, fmt.Errorf("%w: %q", ErrInvalidOfferKey, s)
		}
		key.DataAmountMB = mb
	}

	days := strings.ToUpper(parts[2])
	d, err := strconv.Atoi(strings.TrimSuffix(days, "D"))
	if err != nil || !strings.HasSuffix(days, "D") || d < 0 {
		return OfferKey{}, fmt.Errorf("%w: %q", ErrInvalidOfferKey, s)
	}
	key.ValidityDays = d

	return key, nil
}

// BestOffer is the materialized winner for one OfferKey.
type BestOffer struct {
	Key               OfferKey
	ProviderSlug      string
	ProviderProductID string
	CostPrice         decimal.Decimal
	SellPrice         decimal.Decimal
	Margin            decimal.Decimal
	Currency          string
	Score             decimal.Decimal
	UpdatedAt         time.Time
}

// PublicOffer is the storefront projection of a BestOffer. It never carries
// cost or provider identity.
type PublicOffer struct {
	BundleID     string          `json:"bundleId"`
	CountryCode  string          `json:"countryCode"`
	DataAmountMB int             `json:"dataAmountMB"`
	IsUnlimited  bool            `json:"isUnlimited"`
	ValidityDays int             `json:"validityDays"`
	SellPrice    decimal.Decimal `json:"sellPrice"`
	Currency     string          `json:"currency"`
}

// Public projects the offer for storefront consumption
func (o BestOffer) Public() PublicOffer {
	return PublicOffer{
		BundleID:     o.Key.String(),
		CountryCode:  o.Key.CountryCode,
		DataAmountMB: o.Key.DataAmountMB,
		IsUnlimited:  o.Key.DataAmountMB < 0,
		ValidityDays: o.Key.ValidityDays,
		SellPrice:    o.SellPrice,
		Currency:     o.Currency,
	}
}

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

// CandidateReader loads every fresh product of every active provider.
type CandidateReader interface {
	FindPricingCandidates(ctx context.Context) ([]Candidate, error)
}

// OfferRepository stores the materialized best-offer table.
type OfferRepository interface {
	// ReplaceAll upserts every offer on its key and deletes rows for keys not
	// present in offers, atomically. It returns the number of removed rows.
	ReplaceAll(ctx context.Context, offers []BestOffer) (int64, error)
	FindByCountry(ctx context.Context, countryCode string) ([]BestOffer, error)
	FindByKey(ctx context.Context, key OfferKey) (*BestOffer, error)
	FindAll(ctx context.Context) ([]BestOffer, error)
}

// SettingsRepository stores the admin-editable pricing configuration.
type SettingsRepository interface {
	// Get returns ErrSettingsNotFound when no settings row exists
	Get(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, settings *Settings) error
}

// OfferCache is the read-through cache in front of FindByCountry.
type OfferCache interface {
	// Get returns ok=false on a miss
	Get(ctx context.Context, countryCode string) (offers []PublicOffer, ok bool, err error)
	Set(ctx context.Context, countryCode string, offers []PublicOffer) error
	// InvalidateAll drops every cached country after a recompute
	InvalidateAll(ctx context.Context) error
}
