// Package notification defines the outbound customer email and admin alert
// ports used by the sync and fulfillment flows.
package notification

import (
	"context"
	"errors"

	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/shopspring/decimal"
)

var (
	ErrSendFailed    = errors.New("notification: send failed")
	ErrInvalidInput  = errors.New("notification: invalid message")
	ErrQueueFull     = errors.New("notification: alert queue full")
	ErrNotConfigured = errors.New("notification: mailer not configured")
)

// Alert severities used in subjects
const (
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

// OrderConfirmation carries one activation credential to the customer.
type OrderConfirmation struct {
	CustomerEmail string
	OrderID       string
	ProductName   string
	ICCID         string
	MatchingID    string
	SmdpAddress   string
	DataAmountMB  int
	DurationDays  int
	Price         decimal.Decimal
	Currency      string
}

// ActivationCode returns the LPA:1 QR payload for the credential
func (m OrderConfirmation) ActivationCode() string {
	return provider.ActivationCode(m.SmdpAddress, m.MatchingID)
}

// FailureNotification tells the customer a unit could not be provisioned yet
type FailureNotification struct {
	CustomerEmail string
	OrderID       string
	ProductName   string
	Error         string
}

// SendResult is the outcome of one email send.
type SendResult struct {
	Success bool
	ID      string
	Error   string
}

// Failed builds an unsuccessful SendResult from err
func Failed(err error) SendResult {
	return SendResult{Success: false, Error: err.Error()}
}

// Mailer delivers customer emails. Failures are reported in SendResult and
// never roll back fulfillment.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, msg OrderConfirmation) SendResult
	SendFailureNotification(ctx context.Context, msg FailureNotification) SendResult
}

// Alerter delivers admin alerts. Implementations must not block the caller.
type Alerter interface {
	SendAdminAlert(ctx context.Context, subject, message string)
}
