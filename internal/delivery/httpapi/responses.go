package httpapi

import (
	"time"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"github.com/NasaVasa/stockpulse/internal/usecase"
)

type healthResponse struct {
	Status      string     `json:"status"`
	LastCycleID string     `json:"last_cycle_id,omitempty"`
	LastCycleAt *time.Time `json:"last_cycle_at,omitempty"`
}

type summaryResponse struct {
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

type stateResponse struct {
	AlertID            uint      `json:"alert_id"`
	Status             string    `json:"status"`
	LastEvaluatedValue string    `json:"last_evaluated_value"`
	LastEvaluatedAt    time.Time `json:"last_evaluated_at"`
	LastTransitionAt   time.Time `json:"last_transition_at"`
	TriggerCount       int       `json:"trigger_count"`
}

func toSummaryResponse(summary domain.CycleSummary) summaryResponse {
	failed := summary.FailedSymbols
	if failed == nil {
		failed = []string{}
	}
	return summaryResponse{
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
		FailedSymbols:           failed,
		AlertsEvaluated:         summary.AlertsEvaluated,
		AlertsSkipped:           summary.AlertsSkipped,
		AlertsFailed:            summary.AlertsFailed,
		AlertsTriggered:         summary.AlertsTriggered,
		NotificationsDispatched: summary.NotificationsDispatched,
		NotificationsDelivered:  summary.NotificationsDelivered,
		NotificationsFailed:     summary.NotificationsFailed,
	}
}

func toStateResponse(state usecase.AlertRuntimeState) stateResponse {
	return stateResponse{
		AlertID:            state.AlertID,
		Status:             string(state.Status),
		LastEvaluatedValue: state.LastEvaluatedValue.String(),
		LastEvaluatedAt:    state.LastEvaluatedAt,
		LastTransitionAt:   state.LastTransitionAt,
		TriggerCount:       state.TriggerCount,
	}
}
