package usecase

import (
	"context"
	"sync"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockSender is a mock ChannelSender bound to a single channel.
type MockSender struct {
	mock.Mock
	channel domain.Channel
}

func newMockSender(channel domain.Channel) *MockSender {
	return &MockSender{channel: channel}
}

func (m *MockSender) Channel() domain.Channel {
	return m.channel
}

func (m *MockSender) Send(ctx context.Context, notification domain.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

// MockQuoteClient is a mock QuoteClient.
type MockQuoteClient struct {
	mock.Mock
}

func (m *MockQuoteClient) FetchQuote(ctx context.Context, symbol string) (domain.PriceObservation, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(domain.PriceObservation), args.Error(1)
}

func (m *MockQuoteClient) SearchSymbol(ctx context.Context, query string) ([]domain.SymbolMatch, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SymbolMatch), args.Error(1)
}

type staticSource struct {
	mu      sync.Mutex
	targets []domain.AlertTarget
	err     error
}

func (s *staticSource) set(targets ...domain.AlertTarget) {
	s.mu.Lock()
	s.targets = targets
	s.mu.Unlock()
}

func (s *staticSource) ListActiveWithAssets(ctx context.Context) ([]domain.AlertTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]domain.AlertTarget(nil), s.targets...), nil
}

type memoryRecorder struct {
	mu       sync.Mutex
	attempts map[string]domain.NotificationAttempt
	saves    int
}

func newMemoryRecorder() *memoryRecorder {
	return &memoryRecorder{attempts: make(map[string]domain.NotificationAttempt)}
}

func (r *memoryRecorder) SaveAttempt(_ context.Context, attempt domain.NotificationAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[attempt.ID] = attempt
	r.saves++
	return nil
}

func (r *memoryRecorder) byStatus(status domain.AttemptStatus) []domain.NotificationAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.NotificationAttempt
	for _, attempt := range r.attempts {
		if attempt.Status == status {
			out = append(out, attempt)
		}
	}
	return out
}

type recordingSink struct {
	mu       sync.Mutex
	triggers []domain.TriggerEvent
	cycles   []domain.CycleSummary
}

func (s *recordingSink) TriggerRaised(_ context.Context, event domain.TriggerEvent) error {
	s.mu.Lock()
	s.triggers = append(s.triggers, event)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) CycleCompleted(_ context.Context, summary domain.CycleSummary) error {
	s.mu.Lock()
	s.cycles = append(s.cycles, summary)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) triggerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.triggers)
}

type recordingReporter struct {
	mu         sync.Mutex
	deliveries []domain.NotificationAttempt
	cycles     []domain.CycleSummary
}

func (r *recordingReporter) ReportDeliveryFailure(_ context.Context, attempt domain.NotificationAttempt) {
	r.mu.Lock()
	r.deliveries = append(r.deliveries, attempt)
	r.mu.Unlock()
}

func (r *recordingReporter) ReportCycleFailures(_ context.Context, summary domain.CycleSummary) {
	r.mu.Lock()
	r.cycles = append(r.cycles, summary)
	r.mu.Unlock()
}

func (r *recordingReporter) cycleReports() []domain.CycleSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.CycleSummary(nil), r.cycles...)
}

func (r *recordingReporter) deliveryReports() []domain.NotificationAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.NotificationAttempt(nil), r.deliveries...)
}
