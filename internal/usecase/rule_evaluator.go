package usecase

import (
	"fmt"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluation is the outcome of checking one alert against one observation.
// Value is the price for level alerts and the percent change for
// price_change_percent alerts.
type Evaluation struct {
	Satisfied bool
	Value     decimal.Decimal
}

// EvaluateRule decides whether the alert condition holds for the observation.
//
// Level alerts compare strictly, so a price sitting exactly on the threshold
// does not satisfy them. Percent alerts compare the magnitude of the change
// from the purchase price against the magnitude of the threshold, inclusive.
func EvaluateRule(alert domain.Alert, asset domain.Asset, observation domain.PriceObservation) (Evaluation, error) {
	price := observation.Price
	switch alert.Type {
	case domain.AlertTypePriceAbove:
		return Evaluation{Satisfied: price.GreaterThan(alert.Threshold), Value: price}, nil
	case domain.AlertTypePriceBelow:
		return Evaluation{Satisfied: price.LessThan(alert.Threshold), Value: price}, nil
	case domain.AlertTypePriceChangePercent:
		change, err := percentChange(price, asset.PurchasePrice)
		if err != nil {
			return Evaluation{}, err
		}
		return Evaluation{
			Satisfied: change.Abs().GreaterThanOrEqual(alert.Threshold.Abs()),
			Value:     change,
		}, nil
	default:
		return Evaluation{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedAlertType, alert.Type)
	}
}

func percentChange(price, baseline decimal.Decimal) (decimal.Decimal, error) {
	if baseline.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: purchase price is zero", domain.ErrInvalidBaseline)
	}
	return price.Sub(baseline).Div(baseline).Mul(hundred), nil
}
