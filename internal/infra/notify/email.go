package notify

import (
	"context"
	"fmt"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type EmailSender struct {
	client mailSender
	from   string
	logger *zap.Logger
}

func NewEmailSender(cfg EmailConfig, logger *zap.Logger) (*EmailSender, error) {
	options := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, options...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &EmailSender{client: client, from: cfg.From, logger: logger.With(zap.String("channel", "email"))}, nil
}

func (s *EmailSender) Channel() domain.Channel {
	return domain.ChannelEmail
}

func (s *EmailSender) Send(ctx context.Context, notification domain.Notification) error {
	if notification.Recipient.Email == "" {
		return domain.ErrNoRecipient
	}

	message := mail.NewMsg()
	if err := message.From(s.from); err != nil {
		return fmt.Errorf("%w: invalid sender: %v", domain.ErrChannelNotConfigured, err)
	}
	if err := message.To(notification.Recipient.Email); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNoRecipient, err)
	}
	message.Subject(notification.Subject)
	message.SetBodyString(mail.TypeTextPlain, notification.Body)

	if err := s.client.DialAndSendWithContext(ctx, message); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	s.logger.Debug("email sent", zap.Uint("alert_id", notification.AlertID), zap.Uint("user_id", notification.Recipient.UserID))
	return nil
}
