package alphavantage

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

type globalQuoteResponse struct {
	GlobalQuote  globalQuote `json:"Global Quote"`
	Note         string      `json:"Note"`
	Information  string      `json:"Information"`
	ErrorMessage string      `json:"Error Message"`
}

type globalQuote struct {
	Symbol           string          `json:"01. symbol"`
	Price            NullableDecimal `json:"05. price"`
	LatestTradingDay string          `json:"07. latest trading day"`
}

type symbolSearchResponse struct {
	BestMatches  []symbolMatch `json:"bestMatches"`
	Note         string        `json:"Note"`
	Information  string        `json:"Information"`
	ErrorMessage string        `json:"Error Message"`
}

type symbolMatch struct {
	Symbol   string `json:"1. symbol"`
	Name     string `json:"2. name"`
	Type     string `json:"3. type"`
	Region   string `json:"4. region"`
	Currency string `json:"8. currency"`
}

// NullableDecimal decodes numbers sent either bare or as strings; empty and
// null values leave Valid false.
type NullableDecimal struct {
	Decimal decimal.Decimal
	Valid   bool
}

func (n *NullableDecimal) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		n.Valid = false
		return nil
	}
	trimmed := strings.Trim(strings.TrimSpace(string(data)), "\"")
	if trimmed == "" {
		n.Valid = false
		return nil
	}
	dec, err := decimal.NewFromString(trimmed)
	if err != nil {
		n.Valid = false
		return err
	}
	n.Decimal = dec
	n.Valid = true
	return nil
}

func (n NullableDecimal) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Decimal.String())
}
