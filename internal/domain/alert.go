package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidBaseline      = errors.New("invalid baseline")
	ErrUnsupportedAlertType = errors.New("unsupported alert type")
)

type AlertType string

const (
	AlertTypePriceAbove         AlertType = "price_above"
	AlertTypePriceBelow         AlertType = "price_below"
	AlertTypePriceChangePercent AlertType = "price_change_percent"
)

type NotificationMethod string

const (
	NotificationEmail NotificationMethod = "email"
	NotificationSMS   NotificationMethod = "sms"
	NotificationBoth  NotificationMethod = "both"
)

// Channels expands a notification method into the channels it delivers on.
// Unknown methods expand to nothing.
func (m NotificationMethod) Channels() []Channel {
	switch m {
	case NotificationEmail:
		return []Channel{ChannelEmail}
	case NotificationSMS:
		return []Channel{ChannelSMS}
	case NotificationBoth:
		return []Channel{ChannelEmail, ChannelSMS}
	default:
		return nil
	}
}

type Alert struct {
	ID                 uint
	AssetID            uint
	Type               AlertType
	Threshold          decimal.Decimal
	NotificationMethod NotificationMethod
	Active             bool
}

type Asset struct {
	ID            uint
	Symbol        string
	Quantity      decimal.Decimal
	PurchasePrice decimal.Decimal
	PurchaseDate  time.Time
}

// Recipient is the owner of the portfolio an alert belongs to.
type Recipient struct {
	UserID uint
	Email  string
	Phone  string
}

// AlertTarget is one row of the active-alert snapshot.
type AlertTarget struct {
	Alert     Alert
	Asset     Asset
	Recipient Recipient
}
