// Package carrier implements provider.Adapter for the wholesale eSIM
// carriers and the static registry that exposes them.
package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"golang.org/x/time/rate"
)

// maxResponseSize bounds how much of a carrier response body is read (10MB)
const maxResponseSize = 10 * 1024 * 1024

// maxErrorSnippet bounds the response excerpt kept in error messages
const maxErrorSnippet = 256

// signFunc decorates an outbound request once its body is final
type signFunc func(req *http.Request, body []byte)

// apiClient is the HTTP plumbing shared by carrier adapters: JSON encoding,
// outbound throttling, size-limited reads and status code mapping.
type apiClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newAPIClient(name, baseURL string, timeout time.Duration, ratePerSecond float64) *apiClient {
	burst := int(ratePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &apiClient{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// do sends one request and returns the raw response body.
// A nil payload sends no body.
func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, payload any, sign signFunc) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s throttle: %v", provider.ErrProviderUnavailable, c.name, err)
	}

	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to marshal request: %w", c.name, err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if bodyBytes != nil {
		reader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", c.name, err)
	}
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if sign != nil {
		sign(req, bodyBytes)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", provider.ErrProviderUnavailable, c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: failed to read response: %v", provider.ErrProviderUnavailable, c.name, err)
	}

	if err := statusError(c.name, resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// statusError maps an HTTP status to the provider error taxonomy.
// Auth and throttling failures also match ErrProviderRequestFailed.
func statusError(name string, code int, body []byte) error {
	if code < 400 {
		return nil
	}
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrorSnippet {
		snippet = snippet[:maxErrorSnippet]
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %w: %s HTTP %d", provider.ErrProviderRequestFailed, provider.ErrProviderAuthFailed, name, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %s HTTP %d", provider.ErrProviderRequestFailed, provider.ErrProviderRateLimited, name, code)
	case code >= 500:
		return fmt.Errorf("%w: %w: %s HTTP %d: %s", provider.ErrProviderRequestFailed, provider.ErrProviderUnavailable, name, code, snippet)
	default:
		return fmt.Errorf("%w: %s HTTP %d: %s", provider.ErrProviderRequestFailed, name, code, snippet)
	}
}

// decode unmarshals a carrier response into out
func decode(name string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: %v", provider.ErrProviderInvalidResponse, name, err)
	}
	return nil
}

// carrierTimeLayouts lists the timestamp formats seen in carrier payloads
var carrierTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTime parses a carrier timestamp, returning nil for empty or unknown
// formats. Zone-less values are taken as UTC.
func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range carrierTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
