package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DispatchRequest carries one crossing to the dispatcher.
type DispatchRequest struct {
	TriggerID   string
	Target      domain.AlertTarget
	Observation domain.PriceObservation
	Evaluation  Evaluation
}

type Dispatcher struct {
	senders  map[domain.Channel]domain.ChannelSender
	policy   BackoffPolicy
	recorder AttemptRecorder
	reporter Reporter
	logger   *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string

	mu          sync.Mutex
	lastTrigger map[uint]string

	wg        sync.WaitGroup
	delivered atomic.Int64
	failed    atomic.Int64
}

func NewDispatcher(senders []domain.ChannelSender, policy BackoffPolicy, recorder AttemptRecorder, reporter Reporter, logger *zap.Logger) *Dispatcher {
	byChannel := make(map[domain.Channel]domain.ChannelSender, len(senders))
	for _, sender := range senders {
		byChannel[sender.Channel()] = sender
	}
	return &Dispatcher{
		senders:     byChannel,
		policy:      policy,
		recorder:    recorder,
		reporter:    reporter,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepContext,
		newID:       func() string { return uuid.NewString() },
		lastTrigger: make(map[uint]string),
	}
}

// Dispatch delivers the notification on every channel of the alert's method
// and returns one terminal attempt per channel. A trigger that was already
// dispatched yields no attempts.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) []domain.NotificationAttempt {
	if !d.claim(req) {
		d.logger.Debug("duplicate dispatch ignored", zap.Uint("alert_id", req.Target.Alert.ID), zap.String("trigger_id", req.TriggerID))
		return nil
	}
	return d.deliverAll(ctx, req)
}

// DispatchAsync is Dispatch without waiting for delivery. It reports whether
// the request was accepted.
func (d *Dispatcher) DispatchAsync(ctx context.Context, req DispatchRequest) bool {
	if !d.claim(req) {
		d.logger.Debug("duplicate dispatch ignored", zap.Uint("alert_id", req.Target.Alert.ID), zap.String("trigger_id", req.TriggerID))
		return false
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliverAll(ctx, req)
	}()
	return true
}

// Wait blocks until all asynchronous deliveries finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Forget clears the dedup record of an alert whose runtime state was dropped.
func (d *Dispatcher) Forget(alertID uint) {
	d.mu.Lock()
	delete(d.lastTrigger, alertID)
	d.mu.Unlock()
}

// TakeCounts returns delivered and failed attempt counts since the last call.
func (d *Dispatcher) TakeCounts() (delivered, failed int) {
	return int(d.delivered.Swap(0)), int(d.failed.Swap(0))
}

func (d *Dispatcher) claim(req DispatchRequest) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	alertID := req.Target.Alert.ID
	if last, ok := d.lastTrigger[alertID]; ok && last == req.TriggerID {
		return false
	}
	d.lastTrigger[alertID] = req.TriggerID
	return true
}

func (d *Dispatcher) deliverAll(ctx context.Context, req DispatchRequest) []domain.NotificationAttempt {
	payload := buildNotification(req)
	method := req.Target.Alert.NotificationMethod
	channels := method.Channels()
	if len(channels) == 0 {
		d.logger.Warn(
			"alert has no notification channel",
			zap.Uint("alert_id", req.Target.Alert.ID),
			zap.String("method", string(method)),
		)
		attempt := d.newAttempt(ctx, req.TriggerID, domain.Channel(method), payload)
		attempt.LastError = fmt.Errorf("%w: unsupported notification method %q", domain.ErrChannelNotConfigured, method).Error()
		return []domain.NotificationAttempt{d.finish(ctx, attempt, domain.AttemptFailed)}
	}

	attempts := make([]domain.NotificationAttempt, len(channels))
	var wg sync.WaitGroup
	for i, channel := range channels {
		wg.Add(1)
		go func(i int, channel domain.Channel) {
			defer wg.Done()
			attempts[i] = d.deliver(ctx, req.TriggerID, channel, payload)
		}(i, channel)
	}
	wg.Wait()
	return attempts
}

func (d *Dispatcher) newAttempt(ctx context.Context, triggerID string, channel domain.Channel, payload domain.Notification) domain.NotificationAttempt {
	attempt := domain.NotificationAttempt{
		ID:        d.newID(),
		AlertID:   payload.AlertID,
		TriggerID: triggerID,
		Channel:   channel,
		Payload:   payload,
		Status:    domain.AttemptPending,
		CreatedAt: d.now(),
	}
	d.record(ctx, attempt)
	return attempt
}

func (d *Dispatcher) deliver(ctx context.Context, triggerID string, channel domain.Channel, payload domain.Notification) domain.NotificationAttempt {
	attempt := d.newAttempt(ctx, triggerID, channel, payload)

	sender, ok := d.senders[channel]
	if !ok {
		attempt.LastError = domain.ErrChannelNotConfigured.Error()
		return d.finish(ctx, attempt, domain.AttemptFailed)
	}

	retry := d.policy.Start()
	for {
		attempt.AttemptCount++
		err := sender.Send(ctx, payload)
		if err == nil {
			attempt.LastError = ""
			return d.finish(ctx, attempt, domain.AttemptDelivered)
		}

		attempt.LastError = fmt.Errorf("%w: %w", domain.ErrChannelDeliveryFailed, err).Error()
		d.logger.Warn(
			"notification send failed",
			zap.String("attempt_id", attempt.ID),
			zap.Uint("alert_id", attempt.AlertID),
			zap.String("channel", string(channel)),
			zap.Int("attempt", attempt.AttemptCount),
			zap.Error(err),
		)

		if isPermanentChannelError(err) || !retry.Failed(d.now()) {
			return d.finish(ctx, attempt, domain.AttemptFailed)
		}
		if err := d.sleep(ctx, retry.WaitDuration(d.now())); err != nil {
			attempt.LastError = fmt.Sprintf("%s; abandoned: %v", attempt.LastError, err)
			return d.finish(ctx, attempt, domain.AttemptFailed)
		}
	}
}

func (d *Dispatcher) finish(ctx context.Context, attempt domain.NotificationAttempt, status domain.AttemptStatus) domain.NotificationAttempt {
	completed := d.now()
	attempt.Status = status
	attempt.CompletedAt = &completed
	d.record(ctx, attempt)

	if status == domain.AttemptDelivered {
		d.delivered.Add(1)
		d.logger.Info(
			"notification delivered",
			zap.String("attempt_id", attempt.ID),
			zap.Uint("alert_id", attempt.AlertID),
			zap.String("channel", string(attempt.Channel)),
			zap.Int("attempts", attempt.AttemptCount),
		)
		return attempt
	}

	d.failed.Add(1)
	if d.reporter != nil {
		d.reporter.ReportDeliveryFailure(ctx, attempt)
	}
	return attempt
}

func (d *Dispatcher) record(ctx context.Context, attempt domain.NotificationAttempt) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.SaveAttempt(context.WithoutCancel(ctx), attempt); err != nil {
		d.logger.Warn("failed to record notification attempt", zap.String("attempt_id", attempt.ID), zap.Error(err))
	}
}

func isPermanentChannelError(err error) bool {
	return errors.Is(err, domain.ErrNoRecipient) || errors.Is(err, domain.ErrChannelNotConfigured)
}

func buildNotification(req DispatchRequest) domain.Notification {
	alert := req.Target.Alert
	asset := req.Target.Asset
	price := req.Observation.Price

	var body string
	switch alert.Type {
	case domain.AlertTypePriceChangePercent:
		body = fmt.Sprintf(
			"Alert for %s: current price $%s is %s%% from your purchase price $%s, triggering your %s alert (threshold: %s%%).",
			asset.Symbol, price.String(), req.Evaluation.Value.StringFixed(2), asset.PurchasePrice.String(), alert.Type, alert.Threshold.Abs().String(),
		)
	default:
		body = fmt.Sprintf(
			"Alert for %s: current price $%s has triggered your %s alert (threshold: %s).",
			asset.Symbol, price.String(), alert.Type, alert.Threshold.String(),
		)
	}

	return domain.Notification{
		AlertID:        alert.ID,
		AssetID:        asset.ID,
		Symbol:         asset.Symbol,
		AlertType:      alert.Type,
		Threshold:      alert.Threshold,
		CurrentPrice:   price,
		EvaluatedValue: req.Evaluation.Value,
		ObservedAt:     req.Observation.ObservedAt,
		Recipient:      req.Target.Recipient,
		Subject:        fmt.Sprintf("StockPulse alert: %s %s", asset.Symbol, alert.Type),
		Body:           body,
	}
}
