package notify

import (
	"context"
	"fmt"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

type SMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

type SMSSender struct {
	api    messageCreator
	from   string
	logger *zap.Logger
}

func NewSMSSender(cfg SMSConfig, logger *zap.Logger) *SMSSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &SMSSender{api: client.Api, from: cfg.From, logger: logger.With(zap.String("channel", "sms"))}
}

func (s *SMSSender) Channel() domain.Channel {
	return domain.ChannelSMS
}

// Send posts the message body to Twilio. The Twilio client takes no context,
// so cancellation is only honored before the request starts.
func (s *SMSSender) Send(ctx context.Context, notification domain.Notification) error {
	if notification.Recipient.Phone == "" {
		return domain.ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(notification.Recipient.Phone)
	params.SetFrom(s.from)
	params.SetBody(notification.Body)

	message, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}

	sid := ""
	if message != nil && message.Sid != nil {
		sid = *message.Sid
	}
	s.logger.Debug("sms sent", zap.Uint("alert_id", notification.AlertID), zap.String("sid", sid))
	return nil
}
