package notification

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Memoya/simfly.me-sub000/internal/domain/notification"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/config"
)

// Services bundles the configured mailer and alerter
type Services struct {
	Mailer  notification.Mailer
	Alerter *AsyncAlerter
}

// Close drains queued alerts
func (s *Services) Close() error {
	if s.Alerter == nil {
		return nil
	}
	return s.Alerter.Close()
}

// NewServices builds the mail client when configured, falling back to a log
// mailer outside production. Alerts always reach the log and are mailed to
// the admin address when enabled.
func NewServices(cfg *config.Config, log *zap.Logger) (*Services, error) {
	var (
		mailer notification.Mailer
		client *MailClient
	)

	client, err := NewMailClient(cfg.Mail, NewTemplateEngine(), log)
	switch {
	case err == nil:
		mailer = client
	case errors.Is(err, notification.ErrNotConfigured) && !cfg.App.IsProduction():
		log.Warn("mail API not configured, customer emails are only logged")
		mailer = NewLogMailer(log)
	default:
		return nil, fmt.Errorf("notification: %w", err)
	}

	alerters := MultiAlerter{NewLogAlerter(log)}
	if cfg.Alert.EmailAdmin && cfg.Admin.Email != "" && client != nil {
		alerters = append(alerters, NewMailAlerter(client, cfg.Admin.Email))
	}

	return &Services{
		Mailer:  mailer,
		Alerter: NewAsyncAlerter(alerters, cfg.Alert.QueueSize, cfg.Alert.SendTimeout, log),
	}, nil
}
