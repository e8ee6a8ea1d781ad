package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrRateLimited         = errors.New("upstream rate limited")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUnknownSymbol       = errors.New("unknown symbol")
)

type PriceObservation struct {
	Symbol     string
	Price      decimal.Decimal
	ObservedAt time.Time
}

type SymbolMatch struct {
	Symbol   string
	Name     string
	Region   string
	Currency string
}

// QuoteClient is the market-data upstream. Failures are reported as
// ErrRateLimited, ErrUpstreamUnavailable or ErrUnknownSymbol, possibly wrapped.
type QuoteClient interface {
	FetchQuote(ctx context.Context, symbol string) (PriceObservation, error)
	SearchSymbol(ctx context.Context, query string) ([]SymbolMatch, error)
}

// IsRetryableFeedError reports whether a quote failure may succeed on retry.
func IsRetryableFeedError(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamUnavailable)
}
