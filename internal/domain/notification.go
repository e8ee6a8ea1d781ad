package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrChannelDeliveryFailed = errors.New("channel delivery failed")
	ErrChannelNotConfigured  = errors.New("channel not configured")
	ErrNoRecipient           = errors.New("no recipient for channel")
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptDelivered AttemptStatus = "delivered"
	AttemptFailed    AttemptStatus = "failed"
)

// Notification is the payload handed to a channel sender.
type Notification struct {
	AlertID        uint
	AssetID        uint
	Symbol         string
	AlertType      AlertType
	Threshold      decimal.Decimal
	CurrentPrice   decimal.Decimal
	EvaluatedValue decimal.Decimal
	ObservedAt     time.Time
	Recipient      Recipient
	Subject        string
	Body           string
}

type NotificationAttempt struct {
	ID           string
	AlertID      uint
	TriggerID    string
	Channel      Channel
	Payload      Notification
	AttemptCount int
	Status       AttemptStatus
	LastError    string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// ChannelSender delivers a single notification on one channel.
type ChannelSender interface {
	Channel() Channel
	Send(ctx context.Context, notification Notification) error
}

// TriggerEvent is emitted on every armed to triggered transition.
type TriggerEvent struct {
	ID             string
	AlertID        uint
	AssetID        uint
	Symbol         string
	AlertType      AlertType
	Threshold      decimal.Decimal
	ObservedPrice  decimal.Decimal
	EvaluatedValue decimal.Decimal
	TriggeredAt    time.Time
}

// CycleSummary is the per-cycle health record.
type CycleSummary struct {
	ID                      string
	StartedAt               time.Time
	FinishedAt              time.Time
	Cancelled               bool
	Error                   string
	AlertsActive            int
	SymbolsAttempted        int
	SymbolsFromCache        int
	SymbolsFailed           int
	FailedSymbols           []string
	AlertsEvaluated         int
	AlertsSkipped           int
	AlertsFailed            int
	AlertsTriggered         int
	NotificationsDispatched int
	NotificationsDelivered  int
	NotificationsFailed     int
}

func (s CycleSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// HasFailures reports whether anything in the cycle needs operator attention.
func (s CycleSummary) HasFailures() bool {
	return s.SymbolsFailed > 0 || s.AlertsFailed > 0 || s.NotificationsFailed > 0
}
