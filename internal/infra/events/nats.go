package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes trigger events and cycle summaries as JSON on
// <prefix>.triggered and <prefix>.cycles.
type NATSPublisher struct {
	conn   *nats.Conn
	pub    publisher
	prefix string
	logger *zap.Logger
}

func Connect(url, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	logger = logger.With(zap.String("component", "nats"))
	conn, err := nats.Connect(url,
		nats.Name("stockpulse"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", conn.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	logger.Info("nats connected", zap.String("url", conn.ConnectedUrl()))
	return &NATSPublisher{conn: conn, pub: conn, prefix: prefix, logger: logger}, nil
}

func (p *NATSPublisher) TriggerRaised(_ context.Context, event domain.TriggerEvent) error {
	return p.publish(p.prefix+".triggered", triggerMessage{
		ID:             event.ID,
		AlertID:        event.AlertID,
		AssetID:        event.AssetID,
		Symbol:         event.Symbol,
		AlertType:      string(event.AlertType),
		Threshold:      event.Threshold.String(),
		ObservedPrice:  event.ObservedPrice.String(),
		EvaluatedValue: event.EvaluatedValue.String(),
		TriggeredAt:    event.TriggeredAt,
	})
}

func (p *NATSPublisher) CycleCompleted(_ context.Context, summary domain.CycleSummary) error {
	return p.publish(p.prefix+".cycles", cycleMessage{
		ID:                      summary.ID,
		StartedAt:               summary.StartedAt,
		FinishedAt:              summary.FinishedAt,
		DurationMillis:          summary.Duration().Milliseconds(),
		Cancelled:               summary.Cancelled,
		Error:                   summary.Error,
		AlertsActive:            summary.AlertsActive,
		SymbolsAttempted:        summary.SymbolsAttempted,
		SymbolsFromCache:        summary.SymbolsFromCache,
		SymbolsFailed:           summary.SymbolsFailed,
		FailedSymbols:           summary.FailedSymbols,
		AlertsEvaluated:         summary.AlertsEvaluated,
		AlertsSkipped:           summary.AlertsSkipped,
		AlertsFailed:            summary.AlertsFailed,
		AlertsTriggered:         summary.AlertsTriggered,
		NotificationsDispatched: summary.NotificationsDispatched,
		NotificationsDelivered:  summary.NotificationsDelivered,
		NotificationsFailed:     summary.NotificationsFailed,
	})
}

func (p *NATSPublisher) publish(subject string, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	if err := p.pub.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("event published", zap.String("subject", subject), zap.Int("bytes", len(payload)))
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}

type triggerMessage struct {
	ID             string    `json:"id"`
	AlertID        uint      `json:"alert_id"`
	AssetID        uint      `json:"asset_id"`
	Symbol         string    `json:"symbol"`
	AlertType      string    `json:"alert_type"`
	Threshold      string    `json:"threshold"`
	ObservedPrice  string    `json:"observed_price"`
	EvaluatedValue string    `json:"evaluated_value"`
	TriggeredAt    time.Time `json:"triggered_at"`
}

type cycleMessage struct {
	ID                      string    `json:"id"`
	StartedAt               time.Time `json:"started_at"`
	FinishedAt              time.Time `json:"finished_at"`
	DurationMillis          int64     `json:"duration_ms"`
	Cancelled               bool      `json:"cancelled"`
	Error                   string    `json:"error,omitempty"`
	AlertsActive            int       `json:"alerts_active"`
	SymbolsAttempted        int       `json:"symbols_attempted"`
	SymbolsFromCache        int       `json:"symbols_from_cache"`
	SymbolsFailed           int       `json:"symbols_failed"`
	FailedSymbols           []string  `json:"failed_symbols"`
	AlertsEvaluated         int       `json:"alerts_evaluated"`
	AlertsSkipped           int       `json:"alerts_skipped"`
	AlertsFailed            int       `json:"alerts_failed"`
	AlertsTriggered         int       `json:"alerts_triggered"`
	NotificationsDispatched int       `json:"notifications_dispatched"`
	NotificationsDelivered  int       `json:"notifications_delivered"`
	NotificationsFailed     int       `json:"notifications_failed"`
}
