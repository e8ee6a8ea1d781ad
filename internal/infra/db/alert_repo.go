package db

import (
	"context"
	"time"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

type activeAlertRow struct {
	AlertID            uint
	AssetID            uint
	AlertType          string
	ThresholdValue     float64
	NotificationMethod string
	IsActive           bool
	Symbol             string
	Quantity           float64
	PurchasePrice      float64
	PurchaseDate       *time.Time
	AssetCreatedAt     *time.Time
	UserID             *uint
	Email              *string
	PhoneNumber        *string
}

// ListActiveWithAssets returns a point-in-time snapshot of active alerts
// joined with their asset and the portfolio owner.
func (r *AlertRepository) ListActiveWithAssets(ctx context.Context) ([]domain.AlertTarget, error) {
	var rows []activeAlertRow
	err := r.db.WithContext(ctx).
		Table("alerts").
		Select(`alerts.id AS alert_id,
			alerts.asset_id AS asset_id,
			alerts.alert_type AS alert_type,
			alerts.threshold_value AS threshold_value,
			alerts.notification_method AS notification_method,
			alerts.is_active AS is_active,
			assets.symbol AS symbol,
			assets.quantity AS quantity,
			assets.purchase_price AS purchase_price,
			assets.purchase_date AS purchase_date,
			assets.created_at AS asset_created_at,
			users.id AS user_id,
			users.email AS email,
			users.phone_number AS phone_number`).
		Joins("JOIN assets ON assets.id = alerts.asset_id").
		Joins("LEFT JOIN portfolios ON portfolios.id = assets.portfolio_id").
		Joins("LEFT JOIN users ON users.id = portfolios.user_id").
		Where("alerts.is_active = ?", true).
		Order("alerts.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return mapRowsToTargets(rows), nil
}

func mapRowsToTargets(rows []activeAlertRow) []domain.AlertTarget {
	targets := make([]domain.AlertTarget, 0, len(rows))
	for _, row := range rows {
		var purchaseDate time.Time
		switch {
		case row.PurchaseDate != nil:
			purchaseDate = *row.PurchaseDate
		case row.AssetCreatedAt != nil:
			purchaseDate = *row.AssetCreatedAt
		}

		recipient := domain.Recipient{}
		if row.UserID != nil {
			recipient.UserID = *row.UserID
		}
		if row.Email != nil {
			recipient.Email = *row.Email
		}
		if row.PhoneNumber != nil {
			recipient.Phone = *row.PhoneNumber
		}

		targets = append(targets, domain.AlertTarget{
			Alert: domain.Alert{
				ID:                 row.AlertID,
				AssetID:            row.AssetID,
				Type:               domain.AlertType(row.AlertType),
				Threshold:          decimal.NewFromFloat(row.ThresholdValue),
				NotificationMethod: domain.NotificationMethod(row.NotificationMethod),
				Active:             row.IsActive,
			},
			Asset: domain.Asset{
				ID:            row.AssetID,
				Symbol:        row.Symbol,
				Quantity:      decimal.NewFromFloat(row.Quantity),
				PurchasePrice: decimal.NewFromFloat(row.PurchasePrice),
				PurchaseDate:  purchaseDate,
			},
			Recipient: recipient,
		})
	}
	return targets
}
