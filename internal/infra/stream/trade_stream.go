package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// PriceSink receives every trade price seen on the stream.
type PriceSink interface {
	Put(symbol string, observation domain.PriceObservation)
}

// TradeStream keeps a websocket subscription open for the symbols the engine
// tracks and writes trade prices into the sink. It reconnects until closed.
type TradeStream struct {
	url           string
	dialer        *websocket.Dialer
	readTimeout   time.Duration
	reconnectWait time.Duration
	sink          PriceSink
	logger        *zap.Logger

	mu         sync.Mutex
	wanted     map[string]struct{}
	subscribed map[string]struct{}
	conn       *websocket.Conn

	cancel context.CancelFunc
	done   chan struct{}
}

func NewTradeStream(rawURL, token string, readTimeout, reconnectWait time.Duration, sink PriceSink, logger *zap.Logger) (*TradeStream, error) {
	endpoint, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}
	if token != "" {
		query := endpoint.Query()
		query.Set("token", token)
		endpoint.RawQuery = query.Encode()
	}
	return &TradeStream{
		url: endpoint.String(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		readTimeout:   readTimeout,
		reconnectWait: reconnectWait,
		sink:          sink,
		logger:        logger.With(zap.String("component", "trade_stream")),
		wanted:        make(map[string]struct{}),
		subscribed:    make(map[string]struct{}),
	}, nil
}

func (s *TradeStream) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.run(ctx)
	}()
}

func (s *TradeStream) Close() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	return nil
}

// Track replaces the set of symbols to follow. Subscriptions are adjusted
// on the live connection, or on the next one if none is open.
func (s *TradeStream) Track(symbols []string) {
	wanted := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol != "" {
			wanted[symbol] = struct{}{}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.wanted = wanted
	if s.conn != nil {
		s.syncSubscriptionsLocked()
	}
}

func (s *TradeStream) run(ctx context.Context) {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("stream disconnected, reconnecting", zap.Duration("wait", s.reconnectWait), zap.Error(err))

		timer := time.NewTimer(s.reconnectWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *TradeStream) session(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	s.logger.Info("stream connected")

	s.mu.Lock()
	s.conn = conn
	s.subscribed = make(map[string]struct{})
	s.syncSubscriptionsLocked()
	s.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		if s.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handle(data)
	}
}

func (s *TradeStream) handle(data []byte) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return
	}

	var message wsMessage
	if err := json.Unmarshal(trimmed, &message); err != nil {
		s.logger.Debug("stream message ignored", zap.Error(err))
		return
	}

	switch message.Type {
	case "trade":
	case "error":
		s.logger.Warn("stream error message", zap.String("msg", message.Msg))
		return
	default:
		return
	}

	for _, trade := range message.Data {
		if trade.Symbol == "" || !trade.Price.IsPositive() {
			continue
		}
		observedAt := time.Now()
		if trade.Timestamp > 0 {
			observedAt = time.UnixMilli(trade.Timestamp)
		}
		s.sink.Put(trade.Symbol, domain.PriceObservation{
			Symbol:     trade.Symbol,
			Price:      trade.Price,
			ObservedAt: observedAt,
		})
	}
}

func (s *TradeStream) syncSubscriptionsLocked() {
	var subscribe, unsubscribe []string
	for symbol := range s.wanted {
		if _, ok := s.subscribed[symbol]; !ok {
			subscribe = append(subscribe, symbol)
		}
	}
	for symbol := range s.subscribed {
		if _, ok := s.wanted[symbol]; !ok {
			unsubscribe = append(unsubscribe, symbol)
		}
	}
	sort.Strings(subscribe)
	sort.Strings(unsubscribe)

	for _, symbol := range subscribe {
		if err := s.conn.WriteJSON(subscription{Type: "subscribe", Symbol: symbol}); err != nil {
			s.logger.Warn("stream subscribe failed", zap.String("symbol", symbol), zap.Error(err))
			return
		}
		s.subscribed[symbol] = struct{}{}
	}
	for _, symbol := range unsubscribe {
		if err := s.conn.WriteJSON(subscription{Type: "unsubscribe", Symbol: symbol}); err != nil {
			s.logger.Warn("stream unsubscribe failed", zap.String("symbol", symbol), zap.Error(err))
			return
		}
		delete(s.subscribed, symbol)
	}
	if len(subscribe) > 0 || len(unsubscribe) > 0 {
		s.logger.Info("stream subscriptions updated", zap.Strings("subscribed", subscribe), zap.Strings("unsubscribed", unsubscribe))
	}
}
