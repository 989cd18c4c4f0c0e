package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the per-user balance. Balance never goes negative and always equals
// the sum of the completed ledger deltas for the wallet.
type Wallet struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Balance        decimal.Decimal `json:"balance"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
