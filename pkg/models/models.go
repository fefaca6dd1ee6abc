// Package models contains shared API and persistence models
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Protection methods reported to API consumers
const (
	MethodPublic   = "public"
	MethodTimelock = "timelock"
	MethodPrivate  = "private"
)

// TradeRecord is a persisted protected-trade history entry
type TradeRecord struct {
	ID         uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	User       string          `json:"user" gorm:"index;not null"`
	AssetIn    string          `json:"asset_in" gorm:"not null"`
	AssetOut   string          `json:"asset_out" gorm:"not null"`
	AmountIn   decimal.Decimal `json:"amount_in" gorm:"type:numeric;not null"`
	AmountOut  decimal.Decimal `json:"amount_out" gorm:"type:numeric"`
	OrderID    *uint64         `json:"order_id,omitempty"`
	RiskScore  uint8           `json:"risk_score" gorm:"not null"`
	Method     string          `json:"method" gorm:"index;not null"`
	SavingsUSD decimal.Decimal `json:"savings_usd" gorm:"type:numeric"`
	CreatedAt  time.Time       `json:"created_at" gorm:"index;not null"`
}

// ProtectRequest is the API request to protect a trade
type ProtectRequest struct {
	From         string `json:"from" binding:"required,eth_addr"`
	AssetIn      string `json:"asset_in" binding:"required,eth_addr"`
	AssetOut     string `json:"asset_out" binding:"required,eth_addr"`
	AmountIn     string `json:"amount_in" binding:"required"`
	MinAmountOut string `json:"min_amount_out" binding:"required"`
	// RiskScore is optional; when absent the scoring API is consulted.
	RiskScore *uint8 `json:"risk_score,omitempty" binding:"omitempty,lte=100"`
}

// ProtectResponse is the API response for a protected trade
type ProtectResponse struct {
	RiskScore    uint8           `json:"risk_score"`
	Method       string          `json:"method"`
	AmountOut    decimal.Decimal `json:"amount_out"`
	OrderID      *uint64         `json:"order_id,omitempty"`
	SavingsUSD   decimal.Decimal `json:"estimated_savings_usd"`
	RecordID     uuid.UUID       `json:"record_id"`
	ExecutedAt   time.Time       `json:"executed_at"`
	Recommending string          `json:"recommendation,omitempty"`
}

// NetworkStats is the aggregate statistics response
type NetworkStats struct {
	TradesProtected   int64           `json:"total_protected_tx"`
	OpenOrders        int64           `json:"open_orders"`
	BundlesSubmitted  uint64          `json:"bundles_submitted"`
	BundlesIncluded   uint64          `json:"bundles_included"`
	InclusionRate     decimal.Decimal `json:"inclusion_rate"`
	TotalSavingsUSD   decimal.Decimal `json:"total_savings_usd"`
	FeedConnections   int             `json:"websocket_connections"`
	ScoringAPIHealthy bool            `json:"scoring_api_healthy"`
}
