package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/NasaVasa/stockpulse/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Reporter sends engine failures to the operator chat.
type Reporter struct {
	api    messageSender
	chatID int64
	logger *zap.Logger
}

func NewReporter(api *tgbotapi.BotAPI, chatID int64, logger *zap.Logger) *Reporter {
	return &Reporter{api: api, chatID: chatID, logger: logger}
}

func (r *Reporter) ReportDeliveryFailure(_ context.Context, attempt domain.NotificationAttempt) {
	text := fmt.Sprintf(
		"Notification failed: alert #%d via %s after %d attempt(s)\n%s",
		attempt.AlertID,
		attempt.Channel,
		attempt.AttemptCount,
		attempt.LastError,
	)
	r.send(text)
}

func (r *Reporter) ReportCycleFailures(_ context.Context, summary domain.CycleSummary) {
	var builder strings.Builder
	builder.WriteString("Cycle finished with failures\n")
	builder.WriteString(formatSummary(summary))
	r.send(builder.String())
}

func (r *Reporter) send(text string) {
	msg := tgbotapi.NewMessage(r.chatID, truncate(text))
	if _, err := r.api.Send(msg); err != nil {
		r.logger.Warn("failed to send operator report", zap.Int64("chat_id", r.chatID), zap.Error(err))
	}
}
