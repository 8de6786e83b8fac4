package provider

import (
	"fmt"
	"strings"
	"time"
)

// activationPrefix is the LPA activation code scheme and version
const activationPrefix = "LPA:1"

// EsimCredential holds the three identifiers needed to install an eSIM.
type EsimCredential struct {
	ICCID       string `json:"iccid"`
	SmdpAddress string `json:"smdpAddress"`
	MatchingID  string `json:"matchingId"`
}

// Complete reports whether every identifier is present
func (c *EsimCredential) Complete() bool {
	if c == nil {
		return false
	}
	return strings.TrimSpace(c.ICCID) != "" &&
		strings.TrimSpace(c.SmdpAddress) != "" &&
		strings.TrimSpace(c.MatchingID) != ""
}

// ActivationCode returns the QR payload LPA:1$<smdp>$<matchingId>.
func (c *EsimCredential) ActivationCode() string {
	return ActivationCode(c.SmdpAddress, c.MatchingID)
}

// ActivationCode builds the standard eSIM activation string
func ActivationCode(smdpAddress, matchingID string) string {
	return activationPrefix + "$" + smdpAddress + "$" + matchingID
}

// ParseActivationCode splits an LPA:1 activation string into SM-DP+ address
// and matching id.
func ParseActivationCode(code string) (smdpAddress, matchingID string, err error) {
	parts := strings.Split(strings.TrimSpace(code), "$")
	if len(parts) < 3 || parts[0] != activationPrefix {
		return "", "", fmt.Errorf("%w: malformed activation code", ErrProviderInvalidResponse)
	}
	if parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("%w: activation code missing fields", ErrProviderInvalidResponse)
	}
	return parts[1], parts[2], nil
}

// OrderResult is the carrier-agnostic outcome of an order call.
type OrderResult struct {
	Success          bool            `json:"success"`
	ProviderOrderRef string          `json:"providerOrderRef,omitempty"`
	Esim             *EsimCredential `json:"esim,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// Err converts an unsuccessful or credential-less result into an error.
// An accepted order without a full credential is not a success.
func (r *OrderResult) Err() error {
	if r == nil {
		return fmt.Errorf("%w: empty result", ErrProviderInvalidResponse)
	}
	if !r.Success {
		if r.Error != "" {
			return fmt.Errorf("%w: %s", ErrOrderRejected, r.Error)
		}
		return ErrOrderRejected
	}
	if !r.Esim.Complete() {
		return ErrIncompleteCredential
	}
	return nil
}

// EsimDetails is the profile state reported by a carrier
type EsimDetails struct {
	ICCID       string
	Status      string
	SmdpAddress string
	MatchingID  string
	InstalledAt *time.Time
}

// Usage is the data consumption reported by a carrier
type Usage struct {
	ICCID         string
	UsedMB        int64
	RemainingMB   int64
	IsUnlimited   bool
	ExpiresAt     *time.Time
	LastUpdatedAt time.Time
}
