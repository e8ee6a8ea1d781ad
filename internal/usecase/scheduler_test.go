package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type schedulerFixture struct {
	scheduler *Scheduler
	source    *staticSource
	quotes    *MockQuoteClient
	cache     *PriceCache
	email     *MockSender
	sms       *MockSender
	recorder  *memoryRecorder
	sink      *recordingSink
	reporter  *recordingReporter
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		source:   &staticSource{},
		quotes:   new(MockQuoteClient),
		cache:    NewPriceCache(0),
		email:    newMockSender(domain.ChannelEmail),
		sms:      newMockSender(domain.ChannelSMS),
		recorder: newMemoryRecorder(),
		sink:     &recordingSink{},
		reporter: &recordingReporter{},
	}
	dispatcher := newTestDispatcher(f.recorder, f.reporter, f.email, f.sms)
	cfg := SchedulerConfig{
		Interval:   time.Hour,
		FetchRetry: BackoffPolicy{MaxAttempts: 3, Base: time.Second, Multiplier: 2},
		Workers:    4,
	}
	f.scheduler = NewScheduler(cfg, f.source, f.quotes, f.cache, NewAlertStateStore(), dispatcher, f.sink, f.reporter, zap.NewNop())
	f.scheduler.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return f
}

// quote returns an observation that is already outside a zero freshness
// window, so every cycle goes back to the feed.
func quote(symbol, price string) domain.PriceObservation {
	return domain.PriceObservation{Symbol: symbol, Price: dec(price), ObservedAt: time.Now().Add(-time.Minute)}
}

func (f *schedulerFixture) run(t *testing.T) domain.CycleSummary {
	t.Helper()
	summary, ran := f.scheduler.RunCycle(context.Background())
	require.True(t, ran)
	f.scheduler.dispatcher.Wait()
	return summary
}

func levelTarget(alertID uint, symbol string, alertType domain.AlertType, threshold string, method domain.NotificationMethod) domain.AlertTarget {
	return domain.AlertTarget{
		Alert: domain.Alert{
			ID:                 alertID,
			AssetID:            alertID * 10,
			Type:               alertType,
			Threshold:          dec(threshold),
			NotificationMethod: method,
			Active:             true,
		},
		Asset:     domain.Asset{ID: alertID * 10, Symbol: symbol, PurchasePrice: dec("100")},
		Recipient: domain.Recipient{UserID: 1, Email: "ana@example.com", Phone: "+15550100"},
	}
}

func TestScheduler_PriceAboveTriggersRearmsAndTriggersAgain(t *testing.T) {
	f := newSchedulerFixture(t)
	f.source.set(levelTarget(1, "AAPL", domain.AlertTypePriceAbove, "150", domain.NotificationEmail))
	f.email.On("Send", mock.Anything, mock.Anything).Return(nil)

	f.quotes.On("FetchQuote", mock.Anything, "AAPL").Return(quote("AAPL", "151"), nil).Once()
	summary := f.run(t)
	assert.Equal(t, 1, summary.AlertsEvaluated)
	assert.Equal(t, 1, summary.AlertsTriggered)
	assert.Equal(t, 1, summary.NotificationsDispatched)
	f.email.AssertNumberOfCalls(t, "Send", 1)

	f.quotes.On("FetchQuote", mock.Anything, "AAPL").Return(quote("AAPL", "149"), nil).Once()
	summary = f.run(t)
	assert.Equal(t, 1, summary.AlertsEvaluated)
	assert.Zero(t, summary.AlertsTriggered)
	f.email.AssertNumberOfCalls(t, "Send", 1)

	state, ok := f.scheduler.AlertState(1)
	require.True(t, ok)
	assert.Equal(t, StatusArmed, state.Status)

	f.quotes.On("FetchQuote", mock.Anything, "AAPL").Return(quote("AAPL", "155"), nil).Once()
	summary = f.run(t)
	assert.Equal(t, 1, summary.AlertsTriggered)
	f.email.AssertNumberOfCalls(t, "Send", 2)
	assert.Equal(t, 2, f.sink.triggerCount())

	state, _ = f.scheduler.AlertState(1)
	assert.Equal(t, StatusTriggered, state.Status)
	assert.Equal(t, 2, state.TriggerCount)
	f.quotes.AssertExpectations(t)
}

func TestScheduler_StaysTriggeredWithoutResending(t *testing.T) {
	f := newSchedulerFixture(t)
	f.source.set(levelTarget(1, "AAPL", domain.AlertTypePriceAbove, "150", domain.NotificationEmail))
	f.email.On("Send", mock.Anything, mock.Anything).Return(nil)
	f.quotes.On("FetchQuote", mock.Anything, "AAPL").Return(quote("AAPL", "160"), nil)

	for i := 0; i < 4; i++ {
		f.run(t)
	}

	f.email.AssertNumberOfCalls(t, "Send", 1)
	assert.Equal(t, 1, f.sink.triggerCount())
}

func TestScheduler_PercentChangeTriggersAndRearms(t *testing.T) {
	f := newSchedulerFixture(t)
	f.source.set(levelTarget(2, "MSFT", domain.AlertTypePriceChangePercent, "5", domain.NotificationEmail))
	f.email.On("Send", mock.Anything, mock.Anything).Return(nil)

	f.quotes.On("FetchQuote", mock.Anything, "MSFT").Return(quote("MSFT", "94"), nil).Once()
	summary := f.run(t)
	assert.Equal(t, 1, summary.AlertsTriggered)

	f.quotes.On("FetchQuote", mock.Anything, "MSFT").Return(quote("MSFT", "97"), nil).Once()
	f.run(t)

	state, _ := f.scheduler.AlertState(2)
	assert.Equal(t, StatusArmed, state.Status)
	assert.True(t, state.LastEvaluatedValue.Equal(dec("-3")))
	f.email.AssertNumberOfCalls(t, "Send", 1)
}

func TestScheduler_RateLimitedSymbolIsSkipped(t *testing.T) {
	f := newSchedulerFixture(t)
	f.source.set(
		levelTarget(1, "X", domain.AlertTypePriceAbove, "10", domain.NotificationEmail),
		levelTarget(2, "X", domain.AlertTypePriceBelow, "5", domain.NotificationEmail),
		levelTarget(3, "AAPL", domain.AlertTypePriceAbove, "150", domain.NotificationEmail),
	)
	f.email.On("Send", mock.Anything, mock.Anything).Return(nil)
	f.quotes.On("FetchQuote", mock.Anything, "X").
		Return(domain.PriceObservation{}, fmt.Errorf("%w: call frequency exceeded", domain.ErrRateLimited)).Times(3)
	f.quotes.On("FetchQuote", mock.Anything, "AAPL").Return(quote("AAPL", "120"), nil).Once()

	summary := f.run(t)

	assert.Equal(t, 3, summary.AlertsActive)
	assert.Equal(t, 2, summary.SymbolsAttempted)
	assert.Equal(t, 1, summary.SymbolsFailed)
	assert.Equal(t, []string{"X"}, summary.FailedSymbols)
	assert.Equal(t, 2, summary.AlertsSkipped)
	assert.Equal(t, 1, summary.AlertsEvaluated)
	assert.True(t, summary.HasFailures())
	assert.False(t, summary.Cancelled)

	reports := f.reporter.cycleReports()
	require.Len(t, reports, 1)
	assert.Equal(t, summary.ID, reports[0].ID)

	latest, ok := f.scheduler.LatestSummary()
	require.True(t, ok)
	assert.Equal(t, summary.ID, latest.ID)
	f.quotes.AssertExpectations(t)
}

func TestScheduler_UnknownSymbolIsNotRetried(t *testing.T) {
	f := newSchedulerFixture(t)
	f.source.set(levelTarget(1, "NOPE", domain.AlertTypePriceAbove, "10", domain.NotificationEmail))
	f.quotes.On("FetchQuote", mock.Anything, "NOPE").Return(domain.PriceObservation{}, domain.ErrUnknownSymbol).Once()

	summary := f.run(t)

	assert.Equal(t, []string{"NOPE"}, summary.FailedSymbols)
	assert.Equal(t, 1, summary.AlertsSkipped)
	f.quotes.AssertNumberOfCalls(t, "FetchQuote", 1)
}

func TestScheduler_UsesFreshCache(t *testing.T) {
	f := newSchedulerFixture(t)
	f.scheduler.cache = NewPriceCache(time.Minute)
	f.scheduler.cache.Put("AAPL", domain.PriceObservation{Price: dec("120"), ObservedAt: time.Now()})
	f.source.set(levelTarget(1, "aapl", domain.AlertTypePriceAbove, "150", domain.NotificationEmail))

	summary := f.run(t)

	assert.Equal(t, 1, summary.SymbolsAttempted)
	assert.Equal(t, 1, summary.SymbolsFromCache)
	assert.Equal(t, 1, summary.AlertsEvaluated)
	f.quotes.AssertNotCalled(t, "FetchQuote", mock.Anything, mock.Anything)
}

func TestScheduler_SharedSymbolFetchedOnce(t *testing.T) {
	f := newSchedulerFixture(t)
	f.source.set(
		levelTarget(1, "AAPL", domain.AlertTypePriceAbove, "150", domain.NotificationEmail),
		levelTarget(2, "AAPL", domain.AlertTypePriceBelow, "100", domain.NotificationEmail),
		levelTarget(3, "AAPL", domain.AlertTypePriceChangePercent, "10", domain.NotificationEmail),
	)
	f.quotes.On("FetchQuote", mock.Anything, "AAPL").Return(quote("AAPL", "120"), nil).Once()
	f.email.On("Send", mock.Anything, mock.Anything).Return(nil)

	summary := f.run(t)

	assert.Equal(t, 3, summary.AlertsEvaluated)
	assert.Equal(t, 1, summary.AlertsTriggered)
	f.quotes.AssertExpectations(t)
}

func TestScheduler_EvaluationErrorSkipsAlertOnly(t *testing.T) {
	f := newSchedulerFixture(t)
	broken := levelTarget(1, "AAPL", domain.AlertTypePriceChangePercent, "5", domain.NotificationEmail)
	broken.Asset.PurchasePrice = dec("0")
	f.source.set(broken, levelTarget(2, "AAPL", domain.AlertTypePriceAbove, "150", domain.NotificationEmail))
	f.quotes.On("FetchQuote", mock.Anything, "AAPL").Return(quote("AAPL", "120"), nil).Once()

	summary := f.run(t)

	assert.Equal(t, 1, summary.AlertsFailed)
	assert.Equal(t, 1, summary.AlertsEvaluated)
	state, ok := f.scheduler.AlertState(1)
	require.True(t, ok)
	assert.Equal(t, StatusArmed, state.Status)
	assert.True(t, state.LastEvaluatedAt.IsZero())
}

func TestScheduler_FailedSymbolAlertsStayTracked(t *testing.T) {
	f := newSchedulerFixture(t)
	f.source.set(levelTarget(1, "NOPE", domain.AlertTypePriceAbove, "10", domain.NotificationEmail))
	f.quotes.On("FetchQuote", mock.Anything, "NOPE").Return(domain.PriceObservation{}, domain.ErrUnknownSymbol)

	summary := f.run(t)

	assert.Equal(t, 1, summary.AlertsActive)
	require.Len(t, f.scheduler.States(), 1)
	state, ok := f.scheduler.AlertState(1)
	require.True(t, ok)
	assert.Equal(t, StatusArmed, state.Status)
}

func TestScheduler_UnsupportedMethodIsReportedAsFailure(t *testing.T) {
	f := newSchedulerFixture(t)
	f.source.set(levelTarget(1, "AAPL", domain.AlertTypePriceAbove, "150", domain.NotificationMethod("dashboard")))
	f.quotes.On("FetchQuote", mock.Anything, "AAPL").Return(quote("AAPL", "160"), nil)

	first := f.run(t)
	assert.Equal(t, 1, first.AlertsTriggered)
	assert.Equal(t, 1, first.NotificationsDispatched)

	second := f.run(t)
	assert.Zero(t, second.AlertsTriggered)
	assert.Equal(t, 1, first.NotificationsFailed+second.NotificationsFailed)

	failed := f.recorder.byStatus(domain.AttemptFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, domain.Channel("dashboard"), failed[0].Channel)
	assert.Contains(t, failed[0].LastError, domain.ErrChannelNotConfigured.Error())
	assert.Len(t, f.reporter.deliveryReports(), 1)
	f.email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	f.sms.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestScheduler_DeactivatedAlertStartsOver(t *testing.T) {
	f := newSchedulerFixture(t)
	target := levelTarget(1, "AAPL", domain.AlertTypePriceAbove, "150", domain.NotificationEmail)
	f.email.On("Send", mock.Anything, mock.Anything).Return(nil)
	f.quotes.On("FetchQuote", mock.Anything, "AAPL").Return(quote("AAPL", "160"), nil)

	f.source.set(target)
	f.run(t)

	f.source.set()
	summary := f.run(t)
	assert.Zero(t, summary.AlertsActive)
	assert.Empty(t, f.scheduler.States())

	f.source.set(target)
	summary = f.run(t)
	assert.Equal(t, 1, summary.AlertsTriggered)
	f.email.AssertNumberOfCalls(t, "Send", 2)
}

func TestScheduler_SkipsWhileRunning(t *testing.T) {
	f := newSchedulerFixture(t)
	f.scheduler.running.Store(true)

	_, ran := f.scheduler.RunCycle(context.Background())

	assert.False(t, ran)
	assert.Equal(t, int64(1), f.scheduler.skipped.Load())
	_, ok := f.scheduler.LatestSummary()
	assert.False(t, ok)
}

func TestScheduler_CancelledCycleIsNotReported(t *testing.T) {
	f := newSchedulerFixture(t)
	f.source.set(levelTarget(1, "AAPL", domain.AlertTypePriceAbove, "150", domain.NotificationEmail))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, ran := f.scheduler.RunCycle(ctx)

	require.True(t, ran)
	assert.True(t, summary.Cancelled)
	assert.NotEmpty(t, summary.Error)
	assert.Empty(t, f.reporter.cycleReports())
	f.quotes.AssertNotCalled(t, "FetchQuote", mock.Anything, mock.Anything)
}

func TestScheduler_CancelledDuringFetch(t *testing.T) {
	f := newSchedulerFixture(t)
	f.source.set(levelTarget(1, "AAPL", domain.AlertTypePriceAbove, "150", domain.NotificationEmail))
	ctx, cancel := context.WithCancel(context.Background())
	f.quotes.On("FetchQuote", mock.Anything, "AAPL").
		Run(func(mock.Arguments) { cancel() }).
		Return(domain.PriceObservation{}, context.Canceled).Once()

	summary, ran := f.scheduler.RunCycle(ctx)

	require.True(t, ran)
	assert.True(t, summary.Cancelled)
	assert.Zero(t, summary.SymbolsFailed)
	assert.Zero(t, summary.AlertsEvaluated)
	assert.Empty(t, f.reporter.cycleReports())
}

func TestScheduler_RateGateDeadlineCancelsCycle(t *testing.T) {
	f := newSchedulerFixture(t)
	f.scheduler.gate = newRateGate(1, time.Hour)
	require.True(t, f.scheduler.gate.Allow())
	f.source.set(levelTarget(1, "AAPL", domain.AlertTypePriceAbove, "150", domain.NotificationEmail))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	summary, ran := f.scheduler.RunCycle(ctx)

	require.True(t, ran)
	assert.True(t, summary.Cancelled)
	assert.Zero(t, summary.SymbolsFailed)
	assert.Empty(t, summary.FailedSymbols)
	assert.Empty(t, f.reporter.cycleReports())
	f.quotes.AssertNotCalled(t, "FetchQuote", mock.Anything, mock.Anything)
}

func TestScheduler_StartRunsInitialCycle(t *testing.T) {
	f := newSchedulerFixture(t)
	f.source.set()

	require.NoError(t, f.scheduler.Start(context.Background()))
	f.scheduler.Stop()

	summary, ok := f.scheduler.LatestSummary()
	require.True(t, ok)
	assert.Zero(t, summary.AlertsActive)
	assert.False(t, summary.FinishedAt.Before(summary.StartedAt))
}

func TestNewRateGate(t *testing.T) {
	gate := newRateGate(5, time.Minute)
	assert.Equal(t, 1, gate.Burst())
	assert.InDelta(t, 1.0/12.0, float64(gate.Limit()), 1e-9)

	assert.True(t, newRateGate(0, time.Minute).Allow())
}
