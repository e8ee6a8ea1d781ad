package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type SchedulerConfig struct {
	Interval          time.Duration
	RateLimitRequests int
	RateLimitInterval time.Duration
	FetchRetry        BackoffPolicy
	Workers           int
}

// SymbolTracker is told which symbols the engine currently needs.
type SymbolTracker interface {
	Track(symbols []string)
}

type Scheduler struct {
	cfg        SchedulerConfig
	source     domain.AlertSource
	quotes     domain.QuoteClient
	cache      *PriceCache
	states     *AlertStateStore
	dispatcher *Dispatcher
	sink       EventSink
	reporter   Reporter
	tracker    SymbolTracker
	gate       *rate.Limiter
	logger     *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string

	cron    *cron.Cron
	initial sync.WaitGroup
	running atomic.Bool
	skipped atomic.Int64

	mu     sync.RWMutex
	latest *domain.CycleSummary
}

func NewScheduler(
	cfg SchedulerConfig,
	source domain.AlertSource,
	quotes domain.QuoteClient,
	cache *PriceCache,
	states *AlertStateStore,
	dispatcher *Dispatcher,
	sink EventSink,
	reporter Reporter,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Scheduler{
		cfg:        cfg,
		source:     source,
		quotes:     quotes,
		cache:      cache,
		states:     states,
		dispatcher: dispatcher,
		sink:       sink,
		reporter:   reporter,
		gate:       newRateGate(cfg.RateLimitRequests, cfg.RateLimitInterval),
		logger:     logger.With(zap.String("component", "scheduler")),
		now:        time.Now,
		sleep:      sleepContext,
		newID:      func() string { return uuid.NewString() },
	}
}

// newRateGate spaces upstream requests evenly so that no more than requests
// calls are issued per interval.
func newRateGate(requests int, interval time.Duration) *rate.Limiter {
	if requests <= 0 || interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval/time.Duration(requests)), 1)
}

func (s *Scheduler) SetTracker(tracker SymbolTracker) {
	s.tracker = tracker
}

// Start runs one cycle immediately and then one per interval until Stop.
// A cycle still running when the next tick fires causes that tick to be
// skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	logger := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := s.cron.AddFunc(spec, func() { s.RunCycle(ctx) }); err != nil {
		return fmt.Errorf("schedule evaluation cycle: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Duration("interval", s.cfg.Interval), zap.Int("workers", s.cfg.Workers))

	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		s.RunCycle(ctx)
	}()
	return nil
}

// Stop stops scheduling and waits for a running cycle to return.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.initial.Wait()
	s.logger.Info("scheduler stopped", zap.Int64("cycles_skipped", s.skipped.Load()))
}

func (s *Scheduler) LatestSummary() (domain.CycleSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return domain.CycleSummary{}, false
	}
	return *s.latest, true
}

func (s *Scheduler) States() []AlertRuntimeState {
	return s.states.Snapshot()
}

func (s *Scheduler) AlertState(alertID uint) (AlertRuntimeState, bool) {
	return s.states.Get(alertID)
}

// RunCycle performs one evaluation cycle. It returns false without doing any
// work when another cycle is still in progress.
func (s *Scheduler) RunCycle(ctx context.Context) (domain.CycleSummary, bool) {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn("previous cycle still running, skipping")
		return domain.CycleSummary{}, false
	}
	defer s.running.Store(false)

	summary := s.runCycle(ctx)
	s.complete(ctx, &summary)
	return summary, true
}

type cycleCounters struct {
	mu         sync.Mutex
	evaluated  int
	failed     int
	triggered  int
	dispatched int
}

func (s *Scheduler) runCycle(ctx context.Context) domain.CycleSummary {
	summary := domain.CycleSummary{ID: s.newID(), StartedAt: s.now()}

	targets, err := s.source.ListActiveWithAssets(ctx)
	if err != nil {
		s.logger.Error("failed to load active alerts", zap.String("cycle_id", summary.ID), zap.Error(err))
		summary.Error = fmt.Sprintf("load active alerts: %v", err)
		summary.Cancelled = isCancellation(err)
		return summary
	}
	summary.AlertsActive = len(targets)

	activeIDs := make([]uint, 0, len(targets))
	bySymbol := make(map[string][]domain.AlertTarget)
	for _, target := range targets {
		activeIDs = append(activeIDs, target.Alert.ID)
		symbol := normalizeSymbol(target.Asset.Symbol)
		if symbol == "" {
			s.logger.Warn("alert asset has no symbol", zap.Uint("alert_id", target.Alert.ID), zap.Uint("asset_id", target.Asset.ID))
			summary.AlertsSkipped++
			continue
		}
		bySymbol[symbol] = append(bySymbol[symbol], target)
	}
	for _, alertID := range s.states.Sync(activeIDs) {
		s.dispatcher.Forget(alertID)
		s.logger.Debug("alert runtime state dropped", zap.Uint("alert_id", alertID))
	}

	symbols := make([]string, 0, len(bySymbol))
	for symbol := range bySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	if s.tracker != nil {
		s.tracker.Track(symbols)
	}

	prices := s.resolvePrices(ctx, symbols, &summary)
	for _, symbol := range summary.FailedSymbols {
		summary.AlertsSkipped += len(bySymbol[symbol])
	}

	if ctx.Err() != nil {
		summary.Cancelled = true
		return summary
	}

	counters := &cycleCounters{}
	workers := pool.New().WithMaxGoroutines(s.cfg.Workers)
	for _, symbol := range symbols {
		observation, ok := prices[symbol]
		if !ok {
			continue
		}
		for _, target := range bySymbol[symbol] {
			target := target
			workers.Go(func() {
				s.evaluateTarget(ctx, target, observation, counters)
			})
		}
	}
	workers.Wait()

	summary.AlertsEvaluated = counters.evaluated
	summary.AlertsFailed = counters.failed
	summary.AlertsTriggered = counters.triggered
	summary.NotificationsDispatched = counters.dispatched
	return summary
}

func (s *Scheduler) resolvePrices(ctx context.Context, symbols []string, summary *domain.CycleSummary) map[string]domain.PriceObservation {
	prices := make(map[string]domain.PriceObservation, len(symbols))
	var mu sync.Mutex

	workers := pool.New().WithMaxGoroutines(s.cfg.Workers)
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			mu.Lock()
			summary.Cancelled = true
			mu.Unlock()
			break
		}
		symbol := symbol
		workers.Go(func() {
			observation, cached, err := s.resolvePrice(ctx, symbol)

			mu.Lock()
			defer mu.Unlock()
			if err != nil && ctx.Err() != nil && isCancellation(err) {
				summary.Cancelled = true
				return
			}
			summary.SymbolsAttempted++
			if err != nil {
				summary.SymbolsFailed++
				summary.FailedSymbols = append(summary.FailedSymbols, symbol)
				s.logFetchFailure(symbol, err)
				return
			}
			if cached {
				summary.SymbolsFromCache++
			}
			prices[symbol] = observation
		})
	}
	workers.Wait()

	sort.Strings(summary.FailedSymbols)
	return prices
}

func (s *Scheduler) resolvePrice(ctx context.Context, symbol string) (domain.PriceObservation, bool, error) {
	if observation, ok := s.cache.Get(symbol); ok {
		return observation, true, nil
	}

	retry := s.cfg.FetchRetry.Start()
	for {
		if err := s.gate.Wait(ctx); err != nil {
			return domain.PriceObservation{}, false, s.gateError(ctx, err)
		}
		observation, err := s.quotes.FetchQuote(ctx, symbol)
		if err == nil {
			observation.Symbol = symbol
			if observation.ObservedAt.IsZero() {
				observation.ObservedAt = s.now()
			}
			s.cache.Put(symbol, observation)
			return observation, false, nil
		}
		if isCancellation(err) && ctx.Err() != nil {
			return domain.PriceObservation{}, false, err
		}
		if !domain.IsRetryableFeedError(err) {
			return domain.PriceObservation{}, false, err
		}
		if !retry.Failed(s.now()) {
			return domain.PriceObservation{}, false, fmt.Errorf("giving up after %d attempts: %w", retry.Attempts, err)
		}
		s.logger.Debug(
			"quote fetch retry",
			zap.String("symbol", symbol),
			zap.Int("attempt", retry.Attempts),
			zap.Time("next_eligible_at", retry.NextEligibleAt),
			zap.Error(err),
		)
		if err := s.sleep(ctx, retry.WaitDuration(s.now())); err != nil {
			return domain.PriceObservation{}, false, err
		}
	}
}

// gateError maps a failed rate gate wait to the context error. The limiter
// refuses up front when the next slot lies past the deadline; the cycle would
// run out of time waiting for it, so that case also ends at the deadline.
func (s *Scheduler) gateError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, ok := ctx.Deadline(); !ok {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *Scheduler) logFetchFailure(symbol string, err error) {
	if errors.Is(err, domain.ErrUnknownSymbol) {
		s.logger.Warn("unknown symbol, skipping alerts this cycle", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	s.logger.Error("quote fetch failed, skipping alerts this cycle", zap.String("symbol", symbol), zap.Error(err))
}

func (s *Scheduler) evaluateTarget(ctx context.Context, target domain.AlertTarget, observation domain.PriceObservation, counters *cycleCounters) {
	alert := target.Alert
	evaluation, err := EvaluateRule(alert, target.Asset, observation)
	if err != nil {
		s.logger.Warn(
			"alert evaluation failed, skipping alert",
			zap.Uint("alert_id", alert.ID),
			zap.Uint("asset_id", target.Asset.ID),
			zap.String("symbol", observation.Symbol),
			zap.Error(err),
		)
		counters.mu.Lock()
		counters.failed++
		counters.mu.Unlock()
		return
	}

	transition := s.states.Apply(alert.ID, evaluation.Satisfied, evaluation.Value)

	counters.mu.Lock()
	counters.evaluated++
	counters.mu.Unlock()

	if transition.Rearmed() {
		s.logger.Info("alert re-armed", zap.Uint("alert_id", alert.ID), zap.String("value", evaluation.Value.String()))
		return
	}
	if !transition.Triggered() {
		return
	}

	event := domain.TriggerEvent{
		ID:             transition.TriggerID,
		AlertID:        alert.ID,
		AssetID:        target.Asset.ID,
		Symbol:         observation.Symbol,
		AlertType:      alert.Type,
		Threshold:      alert.Threshold,
		ObservedPrice:  observation.Price,
		EvaluatedValue: evaluation.Value,
		TriggeredAt:    transition.At,
	}
	if err := s.sink.TriggerRaised(ctx, event); err != nil {
		s.logger.Warn("failed to publish trigger event", zap.Uint("alert_id", alert.ID), zap.Error(err))
	}

	accepted := s.dispatcher.DispatchAsync(ctx, DispatchRequest{
		TriggerID:   transition.TriggerID,
		Target:      target,
		Observation: observation,
		Evaluation:  evaluation,
	})

	counters.mu.Lock()
	counters.triggered++
	if accepted {
		counters.dispatched++
	}
	counters.mu.Unlock()
}

func (s *Scheduler) complete(ctx context.Context, summary *domain.CycleSummary) {
	summary.FinishedAt = s.now()
	summary.NotificationsDelivered, summary.NotificationsFailed = s.dispatcher.TakeCounts()

	s.mu.Lock()
	latest := *summary
	s.latest = &latest
	s.mu.Unlock()

	sinkCtx := context.WithoutCancel(ctx)
	if err := s.sink.CycleCompleted(sinkCtx, *summary); err != nil {
		s.logger.Warn("failed to publish cycle summary", zap.String("cycle_id", summary.ID), zap.Error(err))
	}
	if s.reporter != nil && (summary.HasFailures() || summary.Error != "") && !summary.Cancelled {
		s.reporter.ReportCycleFailures(sinkCtx, *summary)
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// cronLogger adapts zap to the cron logging interface.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		l.logger.Sugar().Warnw("cycle tick skipped, previous cycle still running", keysAndValues...)
		return
	}
	l.logger.Sugar().Debugw("cron "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw("cron "+msg, append(keysAndValues, "error", err)...)
}
