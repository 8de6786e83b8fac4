package notification

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Memoya/simfly.me-sub000/internal/domain/notification"
)

func TestTemplateEngine_OrderConfirmation(t *testing.T) {
	e := NewTemplateEngine()

	out, err := e.Render(TemplateOrderConfirmation, orderConfirmationView{
		OrderConfirmation: notification.OrderConfirmation{
			OrderID:      "ord-1",
			ProductName:  "Germany 5GB",
			ICCID:        "8944000000000000001",
			MatchingID:   "MATCH-1",
			SmdpAddress:  "rsp.example.com",
			DataAmountMB: 5120,
			DurationDays: 15,
			Price:        decimal.RequireFromString("12.5"),
			Currency:     "EUR",
		},
		ShowPrice:    true,
		SupportEmail: "help@simfly.me",
	})
	require.NoError(t, err)

	assert.Equal(t, "Your eSIM for Germany 5GB is ready", out.Subject)
	assert.Contains(t, out.HTML, "<h1>Your eSIM is ready</h1>")
	assert.Contains(t, out.HTML, "<code>MATCH-1</code>")
	assert.Contains(t, out.HTML, "5 GB")
	assert.Contains(t, out.HTML, "12.50")
	assert.Contains(t, out.Text, "help@simfly.me")
}

func TestTemplateEngine_SanitizesUserContent(t *testing.T) {
	e := NewTemplateEngine()

	out, err := e.Render(TemplateFailureNotification, failureView{
		FailureNotification: notification.FailureNotification{
			OrderID:     "ord-2",
			ProductName: `<script>alert(1)</script>France`,
		},
	})
	require.NoError(t, err)
	assert.NotContains(t, out.HTML, "<script>")
	assert.Contains(t, out.HTML, "France")
}

func TestTemplateEngine_AdminAlertSubject(t *testing.T) {
	out, err := NewTemplateEngine().Render(TemplateAdminAlert, alertView{
		Severity: notification.SeverityCritical,
		Subject:  "[CRITICAL] esimgo deactivated",
		Message:  "reliability 0.4",
	})
	require.NoError(t, err)
	assert.Equal(t, "[CRITICAL] esimgo deactivated", out.Subject)
	assert.Contains(t, out.HTML, "Critical")
}

func TestTemplateEngine_UnknownTemplate(t *testing.T) {
	_, err := NewTemplateEngine().Render("nope", nil)
	assert.Error(t, err)
}

func TestTemplateEngine_Formatters(t *testing.T) {
	e := NewTemplateEngine()

	assert.Equal(t, "Unlimited", e.formatData(-1))
	assert.Equal(t, "512 MB", e.formatData(512))
	assert.Equal(t, "1,500 MB", e.formatData(1500))
	assert.Equal(t, "10 GB", e.formatData(10240))

	assert.Contains(t, e.formatMoney(decimal.RequireFromString("12.5"), "USD"), "12.50")
	assert.Equal(t, "3.00 XYZ1", e.formatMoney(decimal.NewFromInt(3), "xyz1"))
}
