package usecase

import (
	"context"
	"errors"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"go.uber.org/zap"
)

// EventSink consumes the audit stream of the engine.
type EventSink interface {
	TriggerRaised(ctx context.Context, event domain.TriggerEvent) error
	CycleCompleted(ctx context.Context, summary domain.CycleSummary) error
}

// Reporter is the operator-facing error channel.
type Reporter interface {
	ReportDeliveryFailure(ctx context.Context, attempt domain.NotificationAttempt)
	ReportCycleFailures(ctx context.Context, summary domain.CycleSummary)
}

// AttemptRecorder persists notification attempts as they progress.
type AttemptRecorder interface {
	SaveAttempt(ctx context.Context, attempt domain.NotificationAttempt) error
}

type MultiSink []EventSink

func (m MultiSink) TriggerRaised(ctx context.Context, event domain.TriggerEvent) error {
	var errs []error
	for _, sink := range m {
		if err := sink.TriggerRaised(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) CycleCompleted(ctx context.Context, summary domain.CycleSummary) error {
	var errs []error
	for _, sink := range m {
		if err := sink.CycleCompleted(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) TriggerRaised(_ context.Context, event domain.TriggerEvent) error {
	s.logger.Info(
		"alert triggered",
		zap.String("event_id", event.ID),
		zap.Uint("alert_id", event.AlertID),
		zap.Uint("asset_id", event.AssetID),
		zap.String("symbol", event.Symbol),
		zap.String("alert_type", string(event.AlertType)),
		zap.String("threshold", event.Threshold.String()),
		zap.String("observed_price", event.ObservedPrice.String()),
		zap.String("evaluated_value", event.EvaluatedValue.String()),
		zap.Time("triggered_at", event.TriggeredAt),
	)
	return nil
}

func (s *LogSink) CycleCompleted(_ context.Context, summary domain.CycleSummary) error {
	fields := []zap.Field{
		zap.String("cycle_id", summary.ID),
		zap.Duration("duration", summary.Duration()),
		zap.Bool("cancelled", summary.Cancelled),
		zap.Int("alerts_active", summary.AlertsActive),
		zap.Int("symbols_attempted", summary.SymbolsAttempted),
		zap.Int("symbols_from_cache", summary.SymbolsFromCache),
		zap.Int("symbols_failed", summary.SymbolsFailed),
		zap.Strings("failed_symbols", summary.FailedSymbols),
		zap.Int("alerts_evaluated", summary.AlertsEvaluated),
		zap.Int("alerts_skipped", summary.AlertsSkipped),
		zap.Int("alerts_failed", summary.AlertsFailed),
		zap.Int("alerts_triggered", summary.AlertsTriggered),
		zap.Int("notifications_dispatched", summary.NotificationsDispatched),
		zap.Int("notifications_delivered", summary.NotificationsDelivered),
		zap.Int("notifications_failed", summary.NotificationsFailed),
	}
	if summary.Error != "" {
		fields = append(fields, zap.String("error", summary.Error))
	}
	if summary.HasFailures() || summary.Error != "" {
		s.logger.Warn("cycle complete with failures", fields...)
		return nil
	}
	s.logger.Info("cycle complete", fields...)
	return nil
}

// AuditSink persists the audit stream through the audit repository.
type AuditSink struct {
	repo domain.AuditRepository
}

func NewAuditSink(repo domain.AuditRepository) *AuditSink {
	return &AuditSink{repo: repo}
}

func (s *AuditSink) TriggerRaised(ctx context.Context, event domain.TriggerEvent) error {
	return s.repo.SaveTriggerEvent(ctx, event)
}

func (s *AuditSink) CycleCompleted(ctx context.Context, summary domain.CycleSummary) error {
	return s.repo.SaveCycleSummary(ctx, summary)
}

type LogReporter struct {
	logger *zap.Logger
}

func NewLogReporter(logger *zap.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) ReportDeliveryFailure(_ context.Context, attempt domain.NotificationAttempt) {
	r.logger.Error(
		"notification delivery failed",
		zap.String("attempt_id", attempt.ID),
		zap.Uint("alert_id", attempt.AlertID),
		zap.String("channel", string(attempt.Channel)),
		zap.Int("attempts", attempt.AttemptCount),
		zap.String("last_error", attempt.LastError),
	)
}

func (r *LogReporter) ReportCycleFailures(_ context.Context, summary domain.CycleSummary) {
	r.logger.Error(
		"cycle reported failures",
		zap.String("cycle_id", summary.ID),
		zap.Strings("failed_symbols", summary.FailedSymbols),
		zap.Int("alerts_failed", summary.AlertsFailed),
		zap.Int("notifications_failed", summary.NotificationsFailed),
		zap.String("error", summary.Error),
	)
}

// MultiReporter forwards every report to each reporter.
type MultiReporter []Reporter

func (m MultiReporter) ReportDeliveryFailure(ctx context.Context, attempt domain.NotificationAttempt) {
	for _, reporter := range m {
		reporter.ReportDeliveryFailure(ctx, attempt)
	}
}

func (m MultiReporter) ReportCycleFailures(ctx context.Context, summary domain.CycleSummary) {
	for _, reporter := range m {
		reporter.ReportCycleFailures(ctx, summary)
	}
}
