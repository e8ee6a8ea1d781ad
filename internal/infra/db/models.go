package db

import (
	"time"
)

// Portfolio tables are owned by the CRUD backend and only read here.

type userModel struct {
	ID          uint   `gorm:"primaryKey"`
	Email       string `gorm:"uniqueIndex"`
	PhoneNumber string
}

func (userModel) TableName() string { return "users" }

type portfolioModel struct {
	ID        uint `gorm:"primaryKey"`
	Name      string
	UserID    uint `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (portfolioModel) TableName() string { return "portfolios" }

type assetModel struct {
	ID            uint `gorm:"primaryKey"`
	PortfolioID   uint `gorm:"index"`
	Symbol        string
	AssetType     string
	Quantity      float64
	PurchasePrice float64
	PurchaseDate  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (assetModel) TableName() string { return "assets" }

type alertModel struct {
	ID                 uint `gorm:"primaryKey"`
	AssetID            uint `gorm:"index"`
	AlertType          string
	ThresholdValue     float64
	IsActive           bool `gorm:"default:true"`
	NotificationMethod string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (alertModel) TableName() string { return "alerts" }

// Audit tables.

type triggerEventModel struct {
	ID             string    `gorm:"primaryKey;size:36"`
	AlertID        uint      `gorm:"index;not null"`
	AssetID        uint      `gorm:"not null"`
	Symbol         string    `gorm:"size:32;not null"`
	AlertType      string    `gorm:"size:32;not null"`
	Threshold      string    `gorm:"not null"`
	ObservedPrice  string    `gorm:"not null"`
	EvaluatedValue string    `gorm:"not null"`
	TriggeredAt    time.Time `gorm:"index"`
}

func (triggerEventModel) TableName() string { return "alert_trigger_events" }

type notificationAttemptModel struct {
	ID           string `gorm:"primaryKey;size:36"`
	AlertID      uint   `gorm:"index;not null"`
	TriggerID    string `gorm:"index;size:36"`
	Channel      string `gorm:"size:32;not null"`
	Subject      string
	Body         string `gorm:"type:text"`
	AttemptCount int
	Status       string `gorm:"index;size:16;not null"`
	LastError    string `gorm:"type:text"`
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

func (notificationAttemptModel) TableName() string { return "notification_attempts" }

type cycleSummaryModel struct {
	ID                      string    `gorm:"primaryKey;size:36"`
	StartedAt               time.Time `gorm:"index"`
	FinishedAt              time.Time
	Cancelled               bool
	Error                   string `gorm:"type:text"`
	AlertsActive            int
	SymbolsAttempted        int
	SymbolsFromCache        int
	SymbolsFailed           int
	FailedSymbols           string `gorm:"type:text"`
	AlertsEvaluated         int
	AlertsSkipped           int
	AlertsFailed            int
	AlertsTriggered         int
	NotificationsDispatched int
	NotificationsDelivered  int
	NotificationsFailed     int
}

func (cycleSummaryModel) TableName() string { return "cycle_summaries" }
