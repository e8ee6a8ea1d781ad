package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://www.alphavantage.co/query"

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
	now     func() time.Time
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "alphavantage")),
		now:     time.Now,
	}
}

// FetchQuote returns the latest GLOBAL_QUOTE price for symbol. The
// observation is stamped with the time the quote was received.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (domain.PriceObservation, error) {
	var payload globalQuoteResponse
	if err := c.get(ctx, url.Values{"function": {"GLOBAL_QUOTE"}, "symbol": {symbol}}, &payload); err != nil {
		return domain.PriceObservation{}, err
	}

	if err := classifyBody(payload.Note, payload.Information, payload.ErrorMessage, symbol); err != nil {
		return domain.PriceObservation{}, err
	}
	if !payload.GlobalQuote.Price.Valid {
		return domain.PriceObservation{}, fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, symbol)
	}
	if !payload.GlobalQuote.Price.Decimal.IsPositive() {
		return domain.PriceObservation{}, fmt.Errorf("%w: non-positive price %s for %s", domain.ErrUpstreamUnavailable, payload.GlobalQuote.Price.Decimal, symbol)
	}

	return domain.PriceObservation{
		Symbol:     symbol,
		Price:      payload.GlobalQuote.Price.Decimal,
		ObservedAt: c.now(),
	}, nil
}

// SearchSymbol looks up symbols by keyword. It is used by the portfolio
// forms, not by the alert engine.
func (c *Client) SearchSymbol(ctx context.Context, query string) ([]domain.SymbolMatch, error) {
	var payload symbolSearchResponse
	if err := c.get(ctx, url.Values{"function": {"SYMBOL_SEARCH"}, "keywords": {query}}, &payload); err != nil {
		return nil, err
	}
	if err := classifyBody(payload.Note, payload.Information, payload.ErrorMessage, query); err != nil {
		return nil, err
	}

	matches := make([]domain.SymbolMatch, 0, len(payload.BestMatches))
	for _, match := range payload.BestMatches {
		matches = append(matches, domain.SymbolMatch{
			Symbol:   match.Symbol,
			Name:     match.Name,
			Region:   match.Region,
			Currency: match.Currency,
		})
	}
	return matches, nil
}

func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	params.Set("apikey", c.apiKey)
	endpoint := c.baseURL + "?" + params.Encode()
	function := params.Get("function")

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	start := time.Now()
	response, err := c.client.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("alphavantage request failed", zap.String("function", function), zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer response.Body.Close()

	c.logger.Debug(
		"alphavantage request complete",
		zap.String("function", function),
		zap.Int("status", response.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	switch {
	case response.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", domain.ErrRateLimited, response.StatusCode)
	case response.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", domain.ErrUpstreamUnavailable, response.StatusCode)
	case response.StatusCode < 200 || response.StatusCode >= 300:
		return fmt.Errorf("alphavantage error: status %d", response.StatusCode)
	}

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrUpstreamUnavailable, err)
	}
	return nil
}

// classifyBody maps the messages Alpha Vantage returns with status 200.
// Throttling arrives as Note or Information; bad symbols as Error Message.
func classifyBody(note, information, errorMessage, subject string) error {
	switch {
	case note != "":
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, note)
	case information != "":
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, information)
	case errorMessage != "":
		return fmt.Errorf("%w: %s: %s", domain.ErrUnknownSymbol, subject, errorMessage)
	}
	return nil
}
