package domain

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// AlertSource is read-only access to the portfolio store.
type AlertSource interface {
	ListActiveWithAssets(ctx context.Context) ([]AlertTarget, error)
}

type AuditRepository interface {
	SaveTriggerEvent(ctx context.Context, event TriggerEvent) error
	SaveAttempt(ctx context.Context, attempt NotificationAttempt) error
	SaveCycleSummary(ctx context.Context, summary CycleSummary) error
	LatestCycleSummary(ctx context.Context) (*CycleSummary, error)
}
