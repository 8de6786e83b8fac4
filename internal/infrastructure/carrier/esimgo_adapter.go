package carrier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/shopspring/decimal"
)

const bytesPerMB = 1024 * 1024

// EsimGoAdapter implements provider.Adapter, TopUpper, EsimDetailer and
// UsageReporter for eSIM Go.
type EsimGoAdapter struct {
	config *EsimGoConfig
	client *apiClient
	now    func() time.Time
}

// NewEsimGoAdapter creates a new eSIM Go adapter
func NewEsimGoAdapter(config *EsimGoConfig) (*EsimGoAdapter, error) {
	if config == nil {
		return nil, provider.ErrProviderNotConfigured
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &EsimGoAdapter{
		config: config,
		client: newAPIClient(EsimGoSlug, config.BaseURL, config.Timeout, config.RateLimit),
		now:    time.Now,
	}, nil
}

var (
	_ provider.Adapter       = (*EsimGoAdapter)(nil)
	_ provider.TopUpper      = (*EsimGoAdapter)(nil)
	_ provider.EsimDetailer  = (*EsimGoAdapter)(nil)
	_ provider.UsageReporter = (*EsimGoAdapter)(nil)
)

// Slug returns the provider identifier
func (a *EsimGoAdapter) Slug() string {
	return EsimGoSlug
}

// Name returns the carrier display name
func (a *EsimGoAdapter) Name() string {
	return "eSIM Go"
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// FetchCatalog walks every catalogue page and normalizes each bundle
func (a *EsimGoAdapter) FetchCatalog(ctx context.Context) ([]provider.NormalizedProduct, error) {
	var products []provider.NormalizedProduct
	for page := 1; page <= esimGoMaxPages; page++ {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("perPage", strconv.Itoa(a.config.PerPage))

		body, err := a.client.do(ctx, http.MethodGet, "/catalogue", query, nil, a.sign)
		if err != nil {
			return nil, err
		}
		var resp EsimGoCatalogueResponse
		if err := decode(EsimGoSlug, body, &resp); err != nil {
			return nil, err
		}

		for _, raw := range resp.Bundles {
			var bundle EsimGoBundle
			if err := decode(EsimGoSlug, raw, &bundle); err != nil {
				return nil, err
			}
			products = append(products, a.normalize(bundle, raw))
		}

		if len(resp.Bundles) == 0 || page >= resp.PageCount {
			break
		}
	}
	return products, nil
}

func (a *EsimGoAdapter) normalize(b EsimGoBundle, raw []byte) provider.NormalizedProduct {
	unlimited := b.Unlimited || b.DataAmount < 0
	dataMB := b.DataAmount
	if unlimited {
		dataMB = provider.UnlimitedDataMB
	}
	country := ""
	if len(b.Countries) > 0 {
		country = b.Countries[0].ISO
	}
	currency := b.Currency
	if currency == "" {
		currency = "USD"
	}
	name := strings.TrimSpace(b.Description)
	if name == "" {
		name = b.Name
	}
	return provider.NormalizedProduct{
		ID:           b.Name,
		Name:         name,
		Price:        decimal.NewFromFloat(b.Price),
		Currency:     strings.ToUpper(currency),
		CountryCode:  provider.NormalizeCountryCode(country, len(b.Countries)),
		DataAmountMB: dataMB,
		ValidityDays: b.Duration,
		IsUnlimited:  unlimited,
		NetworkType:  b.NetworkType(),
		OriginalData: append([]byte(nil), raw...),
	}
}

// ---------------------------------------------------------------------------
// Ordering
// ---------------------------------------------------------------------------

// Order buys one bundle and resolves the assigned eSIM credential
func (a *EsimGoAdapter) Order(ctx context.Context, productID string) (*provider.OrderResult, error) {
	return a.placeOrder(ctx, EsimGoOrderLine{Type: "bundle", Quantity: 1, Item: productID})
}

// TopUp applies a bundle to an existing eSIM
func (a *EsimGoAdapter) TopUp(ctx context.Context, iccid, productID string) (*provider.OrderResult, error) {
	if strings.TrimSpace(iccid) == "" {
		return nil, fmt.Errorf("%w: iccid is required", provider.ErrProviderRequestFailed)
	}
	result, err := a.placeOrder(ctx, EsimGoOrderLine{Type: "bundle", Quantity: 1, Item: productID, ICCIDs: []string{iccid}})
	if err != nil || !result.Success {
		return result, err
	}
	if result.Esim == nil || result.Esim.ICCID != iccid {
		details, derr := a.GetEsimDetails(ctx, iccid)
		if derr != nil {
			return nil, derr
		}
		result.Esim = &provider.EsimCredential{ICCID: iccid, SmdpAddress: details.SmdpAddress, MatchingID: details.MatchingID}
	}
	return result, nil
}

func (a *EsimGoAdapter) placeOrder(ctx context.Context, line EsimGoOrderLine) (*provider.OrderResult, error) {
	req := EsimGoOrderRequest{Type: "transaction", Assign: true, Order: []EsimGoOrderLine{line}}
	body, err := a.client.do(ctx, http.MethodPost, "/orders", nil, req, a.sign)
	if err != nil {
		return nil, err
	}
	var resp EsimGoOrderResponse
	if err := decode(EsimGoSlug, body, &resp); err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		msg := resp.StatusMessage
		if msg == "" {
			msg = "order status " + resp.Status
		}
		return &provider.OrderResult{Success: false, ProviderOrderRef: resp.OrderReference, Error: msg}, nil
	}

	esim, err := a.assignment(ctx, resp.OrderReference)
	if err != nil {
		return nil, err
	}
	result := &provider.OrderResult{Success: true, ProviderOrderRef: resp.OrderReference, Esim: esim}
	if len(line.ICCIDs) == 0 && !esim.Complete() {
		return nil, fmt.Errorf("%w: esimgo order %s", provider.ErrIncompleteCredential, resp.OrderReference)
	}
	return result, nil
}

// assignment resolves the eSIM allocated to an order reference
func (a *EsimGoAdapter) assignment(ctx context.Context, reference string) (*provider.EsimCredential, error) {
	query := url.Values{}
	query.Set("reference", reference)
	body, err := a.client.do(ctx, http.MethodGet, "/esims/assignments", query, nil, a.sign)
	if err != nil {
		return nil, err
	}
	var assignments []EsimGoAssignment
	if err := decode(EsimGoSlug, body, &assignments); err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return &provider.EsimCredential{}, nil
	}
	first := assignments[0]
	return &provider.EsimCredential{
		ICCID:       strings.TrimSpace(first.ICCID),
		SmdpAddress: strings.TrimSpace(first.SmdpAddress),
		MatchingID:  strings.TrimSpace(first.MatchingCode),
	}, nil
}

// ---------------------------------------------------------------------------
// Account and eSIM queries
// ---------------------------------------------------------------------------

// GetBalance returns the organisation prepaid balance
func (a *EsimGoAdapter) GetBalance(ctx context.Context) (decimal.Decimal, string, error) {
	body, err := a.client.do(ctx, http.MethodGet, "/organisation", nil, nil, a.sign)
	if err != nil {
		return decimal.Zero, "", err
	}
	var resp EsimGoOrganisationResponse
	if err := decode(EsimGoSlug, body, &resp); err != nil {
		return decimal.Zero, "", err
	}
	if len(resp.Organisations) == 0 {
		return decimal.Zero, "", fmt.Errorf("%w: esimgo: no organisation in response", provider.ErrProviderInvalidResponse)
	}
	org := resp.Organisations[0]
	currency := strings.ToUpper(org.Currency)
	if currency == "" {
		currency = "USD"
	}
	return decimal.NewFromFloat(org.Balance), currency, nil
}

// CheckHealth reports whether the balance endpoint answers with a
// non-negative balance
func (a *EsimGoAdapter) CheckHealth(ctx context.Context) bool {
	return provider.HealthFromBalance(ctx, a)
}

// GetEsimDetails returns the profile state of an eSIM
func (a *EsimGoAdapter) GetEsimDetails(ctx context.Context, iccid string) (*provider.EsimDetails, error) {
	body, err := a.client.do(ctx, http.MethodGet, "/esims/"+url.PathEscape(iccid), nil, nil, a.sign)
	if err != nil {
		return nil, err
	}
	var resp EsimGoEsim
	if err := decode(EsimGoSlug, body, &resp); err != nil {
		return nil, err
	}
	return &provider.EsimDetails{
		ICCID:       resp.ICCID,
		Status:      resp.ProfileStatus,
		SmdpAddress: resp.SmdpAddress,
		MatchingID:  resp.MatchingID,
		InstalledAt: parseTime(resp.FirstInstalledDateTime),
	}, nil
}

// GetUsage sums the data usage across every bundle applied to an eSIM
func (a *EsimGoAdapter) GetUsage(ctx context.Context, iccid string) (*provider.Usage, error) {
	body, err := a.client.do(ctx, http.MethodGet, "/esims/"+url.PathEscape(iccid)+"/bundles", nil, nil, a.sign)
	if err != nil {
		return nil, err
	}
	var resp EsimGoBundlesResponse
	if err := decode(EsimGoSlug, body, &resp); err != nil {
		return nil, err
	}

	usage := &provider.Usage{ICCID: iccid, LastUpdatedAt: a.now().UTC()}
	var initial, remaining int64
	for _, b := range resp.Bundles {
		for _, as := range b.Assignments {
			if as.Unlimited {
				usage.IsUnlimited = true
			}
			initial += as.InitialQuantity
			remaining += as.RemainingQuantity
			if end := parseTime(as.EndTime); end != nil && (usage.ExpiresAt == nil || end.After(*usage.ExpiresAt)) {
				usage.ExpiresAt = end
			}
		}
	}
	usage.UsedMB = (initial - remaining) / bytesPerMB
	if usage.UsedMB < 0 {
		usage.UsedMB = 0
	}
	if usage.IsUnlimited {
		usage.RemainingMB = provider.UnlimitedDataMB
	} else {
		usage.RemainingMB = remaining / bytesPerMB
	}
	return usage, nil
}

// sign adds the API key header
func (a *EsimGoAdapter) sign(req *http.Request, _ []byte) {
	req.Header.Set("X-API-Key", a.config.APIKey)
}
