package notification

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/Memoya/simfly.me-sub000/internal/domain/notification"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/config"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/logger"
)

const (
	maxMailResponseSize = 1 << 20
	qrCodeSize          = 256
)

// Attachment is a base64 encoded file attached to an email
type Attachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// Email is the request body of the mail API
type Email struct {
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html"`
	Text        string       `json:"text"`
	ReplyTo     string       `json:"reply_to,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// MailClient sends transactional email through an HTTP JSON mail API.
type MailClient struct {
	cfg        config.MailConfig
	engine     *TemplateEngine
	httpClient *http.Client
	logger     *zap.Logger
}

var _ notification.Mailer = (*MailClient)(nil)

// NewMailClient creates a mail client. BaseURL, APIKey and FromAddress are
// required.
func NewMailClient(cfg config.MailConfig, engine *TemplateEngine, log *zap.Logger) (*MailClient, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.FromAddress == "" {
		return nil, notification.ErrNotConfigured
	}
	if engine == nil {
		engine = NewTemplateEngine()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MailClient{
		cfg:        cfg,
		engine:     engine,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log.Named("mail"),
	}, nil
}

// orderConfirmationView is the template data of the confirmation email
type orderConfirmationView struct {
	notification.OrderConfirmation
	ShowPrice    bool
	SupportEmail string
}

// SendOrderConfirmation emails one activation credential with a QR code
func (c *MailClient) SendOrderConfirmation(ctx context.Context, msg notification.OrderConfirmation) notification.SendResult {
	if msg.CustomerEmail == "" || msg.SmdpAddress == "" || msg.MatchingID == "" {
		return notification.Failed(fmt.Errorf("%w: confirmation needs recipient and credential", notification.ErrInvalidInput))
	}
	rendered, err := c.engine.Render(TemplateOrderConfirmation, orderConfirmationView{
		OrderConfirmation: msg,
		ShowPrice:         msg.Price.GreaterThan(decimal.Zero) && msg.Currency != "",
		SupportEmail:      c.cfg.SupportEmail,
	})
	if err != nil {
		return notification.Failed(err)
	}

	var attachments []Attachment
	if c.cfg.AttachQRCode {
		png, err := qrcode.Encode(msg.ActivationCode(), qrcode.Medium, qrCodeSize)
		if err != nil {
			return notification.Failed(fmt.Errorf("notification: failed to encode qr code: %w", err))
		}
		attachments = append(attachments, Attachment{
			Filename:    "esim-" + msg.ICCID + ".png",
			Content:     base64.StdEncoding.EncodeToString(png),
			ContentType: "image/png",
		})
	}
	return c.Send(ctx, []string{msg.CustomerEmail}, rendered, attachments...)
}

type failureView struct {
	notification.FailureNotification
	SupportEmail string
}

// SendFailureNotification tells the customer a unit could not be provisioned
func (c *MailClient) SendFailureNotification(ctx context.Context, msg notification.FailureNotification) notification.SendResult {
	if msg.CustomerEmail == "" {
		return notification.Failed(fmt.Errorf("%w: recipient is required", notification.ErrInvalidInput))
	}
	rendered, err := c.engine.Render(TemplateFailureNotification, failureView{FailureNotification: msg, SupportEmail: c.cfg.SupportEmail})
	if err != nil {
		return notification.Failed(err)
	}
	return c.Send(ctx, []string{msg.CustomerEmail}, rendered)
}

// Send posts a rendered email to the mail API
func (c *MailClient) Send(ctx context.Context, to []string, rendered *RenderedEmail, attachments ...Attachment) notification.SendResult {
	email := Email{
		From:        c.from(),
		To:          to,
		Subject:     rendered.Subject,
		HTML:        rendered.HTML,
		Text:        rendered.Text,
		ReplyTo:     c.cfg.SupportEmail,
		Attachments: attachments,
	}
	body, err := json.Marshal(email)
	if err != nil {
		return notification.Failed(fmt.Errorf("notification: failed to marshal email: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/emails", bytes.NewReader(body))
	if err != nil {
		return notification.Failed(fmt.Errorf("notification: failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	log := logger.L(ctx).With(zap.Strings("to", to), zap.String("subject", rendered.Subject))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("email send failed", zap.Error(err))
		return notification.Failed(fmt.Errorf("%w: %v", notification.ErrSendFailed, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxMailResponseSize))
	if err != nil {
		return notification.Failed(fmt.Errorf("%w: failed to read response: %v", notification.ErrSendFailed, err))
	}
	if resp.StatusCode >= 400 {
		log.Warn("email rejected", zap.Int("status", resp.StatusCode))
		return notification.Failed(fmt.Errorf("%w: HTTP %d", notification.ErrSendFailed, resp.StatusCode))
	}

	var out sendResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &out); err != nil {
			log.Debug("unparseable mail api response", zap.Error(err))
		}
	}
	log.Info("email sent", zap.String("email_id", out.ID))
	return notification.SendResult{Success: true, ID: out.ID}
}

func (c *MailClient) from() string {
	if c.cfg.FromName == "" {
		return c.cfg.FromAddress
	}
	return fmt.Sprintf("%s <%s>", c.cfg.FromName, c.cfg.FromAddress)
}
