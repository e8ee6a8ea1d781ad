package db

import (
	"context"
	"errors"
	"strings"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) SaveTriggerEvent(ctx context.Context, event domain.TriggerEvent) error {
	model := triggerEventModel{
		ID:             event.ID,
		AlertID:        event.AlertID,
		AssetID:        event.AssetID,
		Symbol:         event.Symbol,
		AlertType:      string(event.AlertType),
		Threshold:      event.Threshold.String(),
		ObservedPrice:  event.ObservedPrice.String(),
		EvaluatedValue: event.EvaluatedValue.String(),
		TriggeredAt:    event.TriggeredAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
}

// SaveAttempt inserts the attempt or updates it in place as it progresses.
func (r *AuditRepository) SaveAttempt(ctx context.Context, attempt domain.NotificationAttempt) error {
	model := notificationAttemptModel{
		ID:           attempt.ID,
		AlertID:      attempt.AlertID,
		TriggerID:    attempt.TriggerID,
		Channel:      string(attempt.Channel),
		Subject:      attempt.Payload.Subject,
		Body:         attempt.Payload.Body,
		AttemptCount: attempt.AttemptCount,
		Status:       string(attempt.Status),
		LastError:    attempt.LastError,
		CreatedAt:    attempt.CreatedAt,
		CompletedAt:  attempt.CompletedAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"attempt_count", "status", "last_error", "completed_at"}),
	}).Create(&model).Error
}

func (r *AuditRepository) SaveCycleSummary(ctx context.Context, summary domain.CycleSummary) error {
	model := mapSummaryToModel(summary)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *AuditRepository) LatestCycleSummary(ctx context.Context) (*domain.CycleSummary, error) {
	var model cycleSummaryModel
	if err := r.db.WithContext(ctx).Order("started_at DESC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	summary := mapSummaryToDomain(model)
	return &summary, nil
}

func (r *AuditRepository) ListAttemptsByAlert(ctx context.Context, alertID uint) ([]domain.NotificationAttempt, error) {
	var models []notificationAttemptModel
	if err := r.db.WithContext(ctx).Where("alert_id = ?", alertID).Order("created_at").Find(&models).Error; err != nil {
		return nil, err
	}
	attempts := make([]domain.NotificationAttempt, 0, len(models))
	for _, model := range models {
		attempts = append(attempts, domain.NotificationAttempt{
			ID:           model.ID,
			AlertID:      model.AlertID,
			TriggerID:    model.TriggerID,
			Channel:      domain.Channel(model.Channel),
			Payload:      domain.Notification{AlertID: model.AlertID, Subject: model.Subject, Body: model.Body},
			AttemptCount: model.AttemptCount,
			Status:       domain.AttemptStatus(model.Status),
			LastError:    model.LastError,
			CreatedAt:    model.CreatedAt,
			CompletedAt:  model.CompletedAt,
		})
	}
	return attempts, nil
}

func mapSummaryToModel(summary domain.CycleSummary) cycleSummaryModel {
	return cycleSummaryModel{
		ID:                      summary.ID,
		StartedAt:               summary.StartedAt,
		FinishedAt:              summary.FinishedAt,
		Cancelled:               summary.Cancelled,
		Error:                   summary.Error,
		AlertsActive:            summary.AlertsActive,
		SymbolsAttempted:        summary.SymbolsAttempted,
		SymbolsFromCache:        summary.SymbolsFromCache,
		SymbolsFailed:           summary.SymbolsFailed,
		FailedSymbols:           strings.Join(summary.FailedSymbols, ","),
		AlertsEvaluated:         summary.AlertsEvaluated,
		AlertsSkipped:           summary.AlertsSkipped,
		AlertsFailed:            summary.AlertsFailed,
		AlertsTriggered:         summary.AlertsTriggered,
		NotificationsDispatched: summary.NotificationsDispatched,
		NotificationsDelivered:  summary.NotificationsDelivered,
		NotificationsFailed:     summary.NotificationsFailed,
	}
}

func mapSummaryToDomain(model cycleSummaryModel) domain.CycleSummary {
	var failed []string
	if model.FailedSymbols != "" {
		failed = strings.Split(model.FailedSymbols, ",")
	}
	return domain.CycleSummary{
		ID:                      model.ID,
		StartedAt:               model.StartedAt,
		FinishedAt:              model.FinishedAt,
		Cancelled:               model.Cancelled,
		Error:                   model.Error,
		AlertsActive:            model.AlertsActive,
		SymbolsAttempted:        model.SymbolsAttempted,
		SymbolsFromCache:        model.SymbolsFromCache,
		SymbolsFailed:           model.SymbolsFailed,
		FailedSymbols:           failed,
		AlertsEvaluated:         model.AlertsEvaluated,
		AlertsSkipped:           model.AlertsSkipped,
		AlertsFailed:            model.AlertsFailed,
		AlertsTriggered:         model.AlertsTriggered,
		NotificationsDispatched: model.NotificationsDispatched,
		NotificationsDelivered:  model.NotificationsDelivered,
		NotificationsFailed:     model.NotificationsFailed,
	}
}
