// Package notification delivers customer emails and admin alerts.
package notification

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"golang.org/x/text/cases"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Template names
const (
	TemplateOrderConfirmation   = "order_confirmation"
	TemplateFailureNotification = "failure_notification"
	TemplateAdminAlert          = "admin_alert"
)

// emailTemplate pairs a subject line with a markdown body
type emailTemplate struct {
	subject string
	body    string
}

var emailTemplates = map[string]emailTemplate{
	TemplateOrderConfirmation: {
		subject: `Your eSIM for {{.ProductName}} is ready`,
		body: `# Your eSIM is ready

Thank you for your order **{{.OrderID}}**.

- **Plan:** {{.ProductName}}
- **Data:** {{formatData .DataAmountMB}}
- **Validity:** {{.DurationDays}} days
{{- if .ShowPrice}}
- **Price:** {{formatMoney .Price .Currency}}
{{- end}}

## Installation

Scan the attached QR code with your phone, or enter the details manually:

- **SM-DP+ address:** ` + "`{{.SmdpAddress}}`" + `
- **Activation code:** ` + "`{{.MatchingID}}`" + `
- **ICCID:** ` + "`{{.ICCID}}`" + `

Install the eSIM before you travel and switch it on when you arrive.
{{- if .SupportEmail}}

Questions? Write to {{.SupportEmail}}.
{{- end}}
`,
	},
	TemplateFailureNotification: {
		subject: `We are still preparing your eSIM for {{.ProductName}}`,
		body: `# Your eSIM is delayed

We could not provision **{{.ProductName}}** for order **{{.OrderID}}** yet.
Our team has been notified and will deliver it or refund you shortly.
{{- if .SupportEmail}}

Questions? Write to {{.SupportEmail}}.
{{- end}}
`,
	},
	TemplateAdminAlert: {
		subject: `{{.Subject}}`,
		body: `# {{.Subject}}

**Severity:** {{title .Severity}}

{{.Message}}
`,
	},
}

// RenderedEmail is a fully rendered message
type RenderedEmail struct {
	Subject string
	HTML    string
	Text    string
}

// TemplateEngine renders markdown email templates into sanitized HTML.
type TemplateEngine struct {
	funcMap  template.FuncMap
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
	printer  *message.Printer
	title    cases.Caser
}

// NewTemplateEngine creates a template engine for English output
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		markdown: goldmark.New(),
		policy:   newEmailHTMLPolicy(),
		printer:  message.NewPrinter(language.English),
		title:    cases.Title(language.English),
	}
	e.funcMap = template.FuncMap{
		"formatMoney": e.formatMoney,
		"formatData":  e.formatData,
		"title":       func(s string) string { return e.title.String(strings.ToLower(s)) },
	}
	return e
}

func newEmailHTMLPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.RequireNoFollowOnLinks(true)
	return policy
}

// Render executes the named template against data
func (e *TemplateEngine) Render(name string, data any) (*RenderedEmail, error) {
	tpl, ok := emailTemplates[name]
	if !ok {
		return nil, fmt.Errorf("notification: unknown template %q", name)
	}

	subject, err := e.execute(name+".subject", tpl.subject, data)
	if err != nil {
		return nil, err
	}
	text, err := e.execute(name+".body", tpl.body, data)
	if err != nil {
		return nil, err
	}

	var html bytes.Buffer
	if err := e.markdown.Convert([]byte(text), &html); err != nil {
		return nil, fmt.Errorf("notification: failed to render markdown: %w", err)
	}

	return &RenderedEmail{
		Subject: strings.TrimSpace(subject),
		HTML:    e.policy.Sanitize(html.String()),
		Text:    text,
	}, nil
}

func (e *TemplateEngine) execute(name, content string, data any) (string, error) {
	tmpl, err := template.New(name).Funcs(e.funcMap).Parse(content)
	if err != nil {
		return "", fmt.Errorf("notification: failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notification: failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

// =============================================================================
// Template Functions
// =============================================================================

// formatMoney formats an amount with its currency symbol
// Example: 12.5, "EUR" -> "€ 12.50"
func (e *TemplateEngine) formatMoney(amount decimal.Decimal, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return strings.TrimSpace(amount.StringFixed(2) + " " + strings.ToUpper(code))
	}
	f, _ := amount.Float64()
	return e.printer.Sprint(currency.Symbol(unit.Amount(f)))
}

// formatData renders a data allowance
// Example: 5120 -> "5 GB", 512 -> "512 MB", -1 -> "Unlimited"
func (e *TemplateEngine) formatData(mb int) string {
	switch {
	case mb < 0:
		return "Unlimited"
	case mb >= 1024 && mb%1024 == 0:
		return e.printer.Sprintf("%d GB", mb/1024)
	default:
		return e.printer.Sprintf("%d MB", mb)
	}
}
