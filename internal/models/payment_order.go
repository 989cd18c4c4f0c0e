package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentOrderStatus string

const (
	PaymentCreated PaymentOrderStatus = "created"
	PaymentPaid    PaymentOrderStatus = "paid"
	PaymentFailed  PaymentOrderStatus = "failed"
)

func (s PaymentOrderStatus) Valid() bool {
	switch s {
	case PaymentCreated, PaymentPaid, PaymentFailed:
		return true
	}
	return false
}

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutProcessed  PayoutStatus = "processed"
	PayoutFailed     PayoutStatus = "failed"
)

// PaymentOrder records one gateway charge for a milestone. Amount is always USD;
// SettlementAmount/Currency is what the gateway actually charged, converted once
// at creation with ExchangeRate.
type PaymentOrder struct {
	ID                    string              `json:"id"`
	MilestoneID           *string             `json:"milestone_id,omitempty"`
	UserID                string              `json:"user_id"`
	GatewayOrderID        string              `json:"gateway_order_id"`
	GatewayPaymentID      *string             `json:"gateway_payment_id,omitempty"`
	Amount                decimal.Decimal     `json:"amount"`
	Currency              string              `json:"currency"`
	SettlementAmount      decimal.Decimal     `json:"settlement_amount"`
	ExchangeRate          decimal.Decimal     `json:"exchange_rate"`
	Status                PaymentOrderStatus  `json:"status"`
	PayoutStatus          *PayoutStatus       `json:"payout_status,omitempty"`
	PayoutAmount          decimal.NullDecimal `json:"payout_amount"`
	PlatformFee           decimal.NullDecimal `json:"platform_fee"`
	PlatformFeePercentage decimal.NullDecimal `json:"platform_fee_percentage"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// Payout is the fee split applied when the milestone was released.
type Payout struct {
	Status        PayoutStatus
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	FeePercentage decimal.Decimal
}
