package carrier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

const (
	// EsimAccessSlug is the provider identifier of eSIM Access
	EsimAccessSlug = "esimaccess"
	// EsimAccessProductionAPIURL is the production API endpoint
	EsimAccessProductionAPIURL = "https://api.esimaccess.com/api/v1/open"
)

// Errors for eSIM Access configuration
var (
	ErrEsimAccessConfigMissingAccessCode = errors.New("esimaccess: access code is required")
	ErrEsimAccessConfigMissingSecretKey  = errors.New("esimaccess: secret key is required")
	ErrEsimAccessConfigMissingBaseURL    = errors.New("esimaccess: base url is required")
)

// EsimAccessConfig holds configuration for the eSIM Access API integration
type EsimAccessConfig struct {
	// AccessCode identifies the merchant account
	AccessCode string
	// SecretKey signs every request
	SecretKey string
	// BaseURL is the open API root
	BaseURL string
	// Timeout is the HTTP request timeout
	Timeout time.Duration
	// RateLimit is the outbound request budget per second
	RateLimit float64
	// ProfilePollAttempts bounds how often an order is queried for its profile
	ProfilePollAttempts int
	// ProfilePollInterval is the wait between profile queries
	ProfilePollInterval time.Duration
}

// NewEsimAccessConfig creates a new eSIM Access configuration with defaults
func NewEsimAccessConfig(accessCode, secretKey string) *EsimAccessConfig {
	return &EsimAccessConfig{
		AccessCode:          accessCode,
		SecretKey:           secretKey,
		BaseURL:             EsimAccessProductionAPIURL,
		Timeout:             30 * time.Second,
		RateLimit:           8,
		ProfilePollAttempts: 5,
		ProfilePollInterval: 2 * time.Second,
	}
}

// Validate validates the configuration and fills defaults
func (c *EsimAccessConfig) Validate() error {
	if c.AccessCode == "" {
		return ErrEsimAccessConfigMissingAccessCode
	}
	if c.SecretKey == "" {
		return ErrEsimAccessConfigMissingSecretKey
	}
	if c.BaseURL == "" {
		return ErrEsimAccessConfigMissingBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 8
	}
	if c.ProfilePollAttempts <= 0 {
		c.ProfilePollAttempts = 5
	}
	if c.ProfilePollInterval <= 0 {
		c.ProfilePollInterval = 2 * time.Second
	}
	return nil
}

// Sign computes the RT-Signature header value:
// hex(HMAC-SHA256(secret, timestamp + requestID + accessCode + body)).
func (c *EsimAccessConfig) Sign(timestamp, requestID string, body []byte) string {
	h := hmac.New(sha256.New, []byte(c.SecretKey))
	h.Write([]byte(timestamp))
	h.Write([]byte(requestID))
	h.Write([]byte(c.AccessCode))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
