package carrier

import (
	"errors"
	"time"
)

const (
	// EsimGoSlug is the provider identifier of eSIM Go
	EsimGoSlug = "esimgo"
	// EsimGoProductionAPIURL is the production API endpoint
	EsimGoProductionAPIURL = "https://api.esim-go.com/v2.4"

	esimGoDefaultPerPage = 100
	esimGoMaxPages       = 200
)

// Errors for eSIM Go configuration
var (
	ErrEsimGoConfigMissingAPIKey  = errors.New("esimgo: api key is required")
	ErrEsimGoConfigMissingBaseURL = errors.New("esimgo: base url is required")
)

// EsimGoConfig holds configuration for the eSIM Go API integration
type EsimGoConfig struct {
	// APIKey is sent in the X-API-Key header
	APIKey string
	// BaseURL is the versioned API root
	BaseURL string
	// Timeout is the HTTP request timeout
	Timeout time.Duration
	// RateLimit is the outbound request budget per second
	RateLimit float64
	// PerPage is the catalog page size
	PerPage int
}

// NewEsimGoConfig creates a new eSIM Go configuration with defaults
func NewEsimGoConfig(apiKey string) *EsimGoConfig {
	return &EsimGoConfig{
		APIKey:    apiKey,
		BaseURL:   EsimGoProductionAPIURL,
		Timeout:   30 * time.Second,
		RateLimit: 5,
		PerPage:   esimGoDefaultPerPage,
	}
}

// Validate validates the configuration and fills defaults
func (c *EsimGoConfig) Validate() error {
	if c.APIKey == "" {
		return ErrEsimGoConfigMissingAPIKey
	}
	if c.BaseURL == "" {
		return ErrEsimGoConfigMissingBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 5
	}
	if c.PerPage <= 0 {
		c.PerPage = esimGoDefaultPerPage
	}
	return nil
}
