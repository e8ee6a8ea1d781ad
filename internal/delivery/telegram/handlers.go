package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"github.com/NasaVasa/stockpulse/internal/usecase"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const maxMessageLen = 3800

// EngineView is the read side of the scheduler.
type EngineView interface {
	LatestSummary() (domain.CycleSummary, bool)
	AlertState(alertID uint) (usecase.AlertRuntimeState, bool)
	States() []usecase.AlertRuntimeState
}

type SymbolSearcher interface {
	SearchSymbol(ctx context.Context, query string) ([]domain.SymbolMatch, error)
}

type Handlers struct {
	engine         EngineView
	search         SymbolSearcher
	operatorChatID int64
	logger         *zap.Logger
}

func NewHandlers(engine EngineView, search SymbolSearcher, operatorChatID int64, logger *zap.Logger) *Handlers {
	return &Handlers{engine: engine, search: search, operatorChatID: operatorChatID, logger: logger}
}

func (h *Handlers) HandleUpdate(ctx context.Context, api messageSender, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Chat == nil {
		return
	}
	if update.Message.IsCommand() {
		h.handleCommand(ctx, api, update)
	}
}

func (h *Handlers) handleCommand(ctx context.Context, api messageSender, update tgbotapi.Update) {
	command := update.Message.Command()
	args := update.Message.CommandArguments()
	chatID := update.Message.Chat.ID

	h.logger.Info(
		"telegram command received",
		zap.Int64("chat_id", chatID),
		zap.String("command", command),
		zap.String("args", args),
	)

	if chatID != h.operatorChatID {
		h.logger.Warn("command from unknown chat ignored", zap.Int64("chat_id", chatID))
		h.reply(api, chatID, "This bot only answers its operator chat.")
		return
	}

	switch command {
	case "start", "help":
		h.reply(api, chatID, HelpText)
	case "status":
		summary, ok := h.engine.LatestSummary()
		if !ok {
			h.reply(api, chatID, "No cycle has completed yet.")
			return
		}
		h.reply(api, chatID, formatSummary(summary))
	case "state":
		alertID, err := ParseAlertID(args)
		if err != nil {
			h.reply(api, chatID, "Usage: /state <alert_id>")
			return
		}
		state, ok := h.engine.AlertState(alertID)
		if !ok {
			h.reply(api, chatID, fmt.Sprintf("Alert #%d is not tracked. It may be inactive or not evaluated yet.", alertID))
			return
		}
		h.reply(api, chatID, formatState(state))
	case "alerts":
		h.reply(api, chatID, formatStates(h.engine.States()))
	case "search":
		query, err := ParseQuery(args)
		if err != nil {
			h.reply(api, chatID, "Usage: /search <keywords>")
			return
		}
		matches, err := h.search.SearchSymbol(ctx, query)
		if err != nil {
			h.logger.Warn("symbol search failed", zap.String("query", query), zap.Error(err))
			h.reply(api, chatID, searchErrorMessage(err))
			return
		}
		h.reply(api, chatID, formatMatches(query, matches))
	default:
		h.logger.Warn("unknown command", zap.String("command", command))
		h.reply(api, chatID, "Unknown command.\n\n"+HelpText)
	}
}

func searchErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "Quote provider is rate limiting us. Try again in a minute."
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return "Quote provider is unavailable right now."
	}
	return "Search failed. Please try again."
}

func formatSummary(summary domain.CycleSummary) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Cycle %s\n", summary.ID)
	fmt.Fprintf(&builder, "Started: %s (%s)\n", summary.StartedAt.UTC().Format("2006-01-02 15:04:05"), summary.Duration().Round(time.Millisecond))
	if summary.Cancelled {
		builder.WriteString("Cancelled\n")
	}
	if summary.Error != "" {
		fmt.Fprintf(&builder, "Error: %s\n", summary.Error)
	}
	fmt.Fprintf(&builder, "Alerts: %d active, %d evaluated, %d triggered, %d skipped, %d failed\n",
		summary.AlertsActive, summary.AlertsEvaluated, summary.AlertsTriggered, summary.AlertsSkipped, summary.AlertsFailed)
	fmt.Fprintf(&builder, "Symbols: %d attempted, %d cached, %d failed\n",
		summary.SymbolsAttempted, summary.SymbolsFromCache, summary.SymbolsFailed)
	if len(summary.FailedSymbols) > 0 {
		fmt.Fprintf(&builder, "Failed symbols: %s\n", strings.Join(summary.FailedSymbols, ", "))
	}
	fmt.Fprintf(&builder, "Notifications: %d dispatched, %d delivered, %d failed",
		summary.NotificationsDispatched, summary.NotificationsDelivered, summary.NotificationsFailed)
	return builder.String()
}

func formatState(state usecase.AlertRuntimeState) string {
	line := fmt.Sprintf("Alert #%d [%s] value %s, triggered %d time(s)", state.AlertID, state.Status, state.LastEvaluatedValue.String(), state.TriggerCount)
	if !state.LastEvaluatedAt.IsZero() {
		line += fmt.Sprintf(", evaluated %s", state.LastEvaluatedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	return line
}

func formatStates(states []usecase.AlertRuntimeState) string {
	if len(states) == 0 {
		return "No alerts tracked yet."
	}
	header := "Tracked alerts:\n"
	var builder strings.Builder
	builder.WriteString(header)
	for i, state := range states {
		line := formatState(state) + "\n"
		if builder.Len()+len(line) > maxMessageLen {
			fmt.Fprintf(&builder, "...and %d more alerts", len(states)-i)
			break
		}
		builder.WriteString(line)
	}
	return builder.String()
}

func formatMatches(query string, matches []domain.SymbolMatch) string {
	if len(matches) == 0 {
		return fmt.Sprintf("No symbols found for %q.", query)
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "Matches for %q:\n", query)
	for _, match := range matches {
		fmt.Fprintf(&builder, "%s - %s (%s, %s)\n", match.Symbol, match.Name, match.Region, match.Currency)
	}
	return truncate(builder.String())
}

func truncate(text string) string {
	if len(text) <= maxMessageLen {
		return text
	}
	cut := maxMessageLen - 3
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func (h *Handlers) reply(api messageSender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := api.Send(msg); err != nil {
		h.logger.Warn("failed to send message", zap.Error(err))
	}
}
