package carrier

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// EsimAccessAdapter implements provider.Adapter, EsimDetailer and
// UsageReporter for eSIM Access. Top-ups are not offered by this carrier.
type EsimAccessAdapter struct {
	config *EsimAccessConfig
	client *apiClient
	now    func() time.Time
	newID  func() string
}

// NewEsimAccessAdapter creates a new eSIM Access adapter
func NewEsimAccessAdapter(config *EsimAccessConfig) (*EsimAccessAdapter, error) {
	if config == nil {
		return nil, provider.ErrProviderNotConfigured
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &EsimAccessAdapter{
		config: config,
		client: newAPIClient(EsimAccessSlug, config.BaseURL, config.Timeout, config.RateLimit),
		now:    time.Now,
		newID:  func() string { return ulid.Make().String() },
	}, nil
}

var (
	_ provider.Adapter       = (*EsimAccessAdapter)(nil)
	_ provider.EsimDetailer  = (*EsimAccessAdapter)(nil)
	_ provider.UsageReporter = (*EsimAccessAdapter)(nil)
)

// Slug returns the provider identifier
func (a *EsimAccessAdapter) Slug() string {
	return EsimAccessSlug
}

// Name returns the carrier display name
func (a *EsimAccessAdapter) Name() string {
	return "eSIM Access"
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// FetchCatalog lists every package and normalizes it
func (a *EsimAccessAdapter) FetchCatalog(ctx context.Context) ([]provider.NormalizedProduct, error) {
	var list EsimAccessPackageList
	req := map[string]string{"locationCode": "", "type": "", "packageCode": ""}
	if err := a.call(ctx, "/package/list", req, &list); err != nil {
		return nil, err
	}

	products := make([]provider.NormalizedProduct, 0, len(list.PackageList))
	for _, raw := range list.PackageList {
		var pkg EsimAccessPackage
		if err := decode(EsimAccessSlug, raw, &pkg); err != nil {
			return nil, err
		}
		products = append(products, a.normalize(pkg, raw))
	}
	return products, nil
}

func (a *EsimAccessAdapter) normalize(p EsimAccessPackage, raw []byte) provider.NormalizedProduct {
	locations := splitLocations(p.Location)
	country := ""
	if len(locations) > 0 {
		country = locations[0]
	}
	unlimited := p.Volume <= 0
	dataMB := int(p.Volume / bytesPerMB)
	if unlimited {
		dataMB = provider.UnlimitedDataMB
	}
	currency := p.CurrencyCode
	if currency == "" {
		currency = "USD"
	}
	return provider.NormalizedProduct{
		ID:           p.PackageCode,
		Name:         strings.TrimSpace(p.Name),
		Price:        EsimAccessPrice(p.Price),
		Currency:     strings.ToUpper(currency),
		CountryCode:  provider.NormalizeCountryCode(country, len(locations)),
		DataAmountMB: dataMB,
		ValidityDays: validityDays(p.Duration, p.DurationUnit),
		IsUnlimited:  unlimited,
		NetworkType:  strings.ToUpper(strings.TrimSpace(p.Speed)),
		OriginalData: append([]byte(nil), raw...),
	}
}

func splitLocations(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validityDays(duration int, unit string) int {
	switch strings.ToUpper(unit) {
	case "MONTH":
		return duration * 30
	default:
		return duration
	}
}

// ---------------------------------------------------------------------------
// Ordering
// ---------------------------------------------------------------------------

// Order places an order and polls the profile query until the credential is
// allocated
func (a *EsimAccessAdapter) Order(ctx context.Context, productID string) (*provider.OrderResult, error) {
	req := EsimAccessOrderRequest{
		TransactionID:   a.newID(),
		PackageInfoList: []EsimAccessPackageInfo{{PackageCode: productID, Count: 1}},
	}
	env, err := a.send(ctx, "/esim/order", req)
	if err != nil {
		return nil, err
	}
	if !env.IsSuccess() {
		return &provider.OrderResult{Success: false, Error: envelopeMessage(env)}, nil
	}
	var placed EsimAccessOrderResult
	if err := decode(EsimAccessSlug, env.Obj, &placed); err != nil {
		return nil, err
	}
	if placed.OrderNo == "" {
		return nil, fmt.Errorf("%w: esimaccess: order accepted without orderNo", provider.ErrProviderInvalidResponse)
	}

	profile, err := a.awaitProfile(ctx, placed.OrderNo)
	if err != nil {
		return nil, err
	}
	cred, err := credentialFromProfile(profile)
	if err != nil {
		return nil, fmt.Errorf("%w: esimaccess order %s: %v", provider.ErrIncompleteCredential, placed.OrderNo, err)
	}
	return &provider.OrderResult{Success: true, ProviderOrderRef: placed.OrderNo, Esim: cred}, nil
}

// awaitProfile queries the order until a profile with an activation code
// appears or the poll budget runs out
func (a *EsimAccessAdapter) awaitProfile(ctx context.Context, orderNo string) (*EsimAccessProfile, error) {
	var lastErr error
	for attempt := 1; attempt <= a.config.ProfilePollAttempts; attempt++ {
		profile, err := a.queryProfile(ctx, EsimAccessQueryRequest{OrderNo: orderNo})
		if err == nil && profile.AC != "" && profile.ICCID != "" {
			return profile, nil
		}
		if err != nil {
			lastErr = err
		}
		if attempt == a.config.ProfilePollAttempts {
			break
		}
		timer := time.NewTimer(a.config.ProfilePollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: esimaccess: %v", provider.ErrProviderUnavailable, ctx.Err())
		case <-timer.C:
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: esimaccess order %s: %v", provider.ErrIncompleteCredential, orderNo, lastErr)
	}
	return nil, fmt.Errorf("%w: esimaccess order %s: profile not allocated", provider.ErrIncompleteCredential, orderNo)
}

func credentialFromProfile(p *EsimAccessProfile) (*provider.EsimCredential, error) {
	smdp, matching, err := provider.ParseActivationCode(p.AC)
	if err != nil {
		return nil, err
	}
	return &provider.EsimCredential{ICCID: strings.TrimSpace(p.ICCID), SmdpAddress: smdp, MatchingID: matching}, nil
}

// ---------------------------------------------------------------------------
// Account and eSIM queries
// ---------------------------------------------------------------------------

// GetBalance returns the merchant balance in USD
func (a *EsimAccessAdapter) GetBalance(ctx context.Context) (decimal.Decimal, string, error) {
	var bal EsimAccessBalance
	if err := a.call(ctx, "/merchant/balance/query", struct{}{}, &bal); err != nil {
		return decimal.Zero, "", err
	}
	return EsimAccessPrice(bal.Balance), "USD", nil
}

// CheckHealth reports whether the balance endpoint answers with a
// non-negative balance
func (a *EsimAccessAdapter) CheckHealth(ctx context.Context) bool {
	return provider.HealthFromBalance(ctx, a)
}

// GetEsimDetails returns the profile state of an eSIM
func (a *EsimAccessAdapter) GetEsimDetails(ctx context.Context, iccid string) (*provider.EsimDetails, error) {
	profile, err := a.queryProfile(ctx, EsimAccessQueryRequest{ICCID: iccid})
	if err != nil {
		return nil, err
	}
	details := &provider.EsimDetails{
		ICCID:       profile.ICCID,
		Status:      profile.EsimStatus,
		InstalledAt: parseTime(profile.InstallationTime),
	}
	if smdp, matching, err := provider.ParseActivationCode(profile.AC); err == nil {
		details.SmdpAddress = smdp
		details.MatchingID = matching
	}
	return details, nil
}

// GetUsage reports volume consumption from the profile query
func (a *EsimAccessAdapter) GetUsage(ctx context.Context, iccid string) (*provider.Usage, error) {
	profile, err := a.queryProfile(ctx, EsimAccessQueryRequest{ICCID: iccid})
	if err != nil {
		return nil, err
	}
	usage := &provider.Usage{
		ICCID:         profile.ICCID,
		UsedMB:        profile.OrderUsage / bytesPerMB,
		IsUnlimited:   profile.TotalVolume <= 0,
		ExpiresAt:     parseTime(profile.ExpiredTime),
		LastUpdatedAt: a.now().UTC(),
	}
	if usage.IsUnlimited {
		usage.RemainingMB = provider.UnlimitedDataMB
	} else {
		usage.RemainingMB = (profile.TotalVolume - profile.OrderUsage) / bytesPerMB
		if usage.RemainingMB < 0 {
			usage.RemainingMB = 0
		}
	}
	return usage, nil
}

func (a *EsimAccessAdapter) queryProfile(ctx context.Context, req EsimAccessQueryRequest) (*EsimAccessProfile, error) {
	req.Pager = EsimAccessQueryPager{PageNum: 1, PageSize: 20}
	var result EsimAccessQueryResult
	if err := a.call(ctx, "/esim/query", req, &result); err != nil {
		return nil, err
	}
	if len(result.EsimList) == 0 {
		return nil, fmt.Errorf("%w: esimaccess: no profile found", provider.ErrProviderInvalidResponse)
	}
	return &result.EsimList[0], nil
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// call sends a request and decodes obj, treating a refused envelope as a
// request failure
func (a *EsimAccessAdapter) call(ctx context.Context, path string, payload, out any) error {
	env, err := a.send(ctx, path, payload)
	if err != nil {
		return err
	}
	if !env.IsSuccess() {
		return fmt.Errorf("%w: esimaccess %s: %s", provider.ErrProviderRequestFailed, path, envelopeMessage(env))
	}
	return decode(EsimAccessSlug, env.Obj, out)
}

func (a *EsimAccessAdapter) send(ctx context.Context, path string, payload any) (*EsimAccessResponse, error) {
	body, err := a.client.do(ctx, http.MethodPost, path, nil, payload, a.sign)
	if err != nil {
		return nil, err
	}
	var env EsimAccessResponse
	if err := decode(EsimAccessSlug, body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// sign adds the RT-* authentication headers
func (a *EsimAccessAdapter) sign(req *http.Request, body []byte) {
	timestamp := strconv.FormatInt(a.now().UnixMilli(), 10)
	requestID := a.newID()
	req.Header.Set("RT-AccessCode", a.config.AccessCode)
	req.Header.Set("RT-Timestamp", timestamp)
	req.Header.Set("RT-RequestID", requestID)
	req.Header.Set("RT-Signature", a.config.Sign(timestamp, requestID, body))
}

func envelopeMessage(env *EsimAccessResponse) string {
	if env.ErrorMsg != "" {
		return fmt.Sprintf("%s (code %s)", env.ErrorMsg, env.ErrorCode)
	}
	return "error code " + env.ErrorCode
}
