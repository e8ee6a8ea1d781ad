package stream

import "github.com/shopspring/decimal"

type wsMessage struct {
	Type string       `json:"type"`
	Data []tradeEvent `json:"data"`
	Msg  string       `json:"msg"`
}

type tradeEvent struct {
	Symbol    string          `json:"s"`
	Price     decimal.Decimal `json:"p"`
	Timestamp int64           `json:"t"`
	Volume    decimal.Decimal `json:"v"`
}

type subscription struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}
