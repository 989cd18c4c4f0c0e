package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WalletTxType string

const (
	WalletTxCredit     WalletTxType = "credit"
	WalletTxDebit      WalletTxType = "debit"
	WalletTxWithdrawal WalletTxType = "withdrawal"
	WalletTxRefund     WalletTxType = "refund"
)

// Inflow reports whether entries of this type add to the balance.
func (t WalletTxType) Inflow() bool {
	return t == WalletTxCredit || t == WalletTxRefund
}

type WalletTxStatus string

const (
	WalletTxPending   WalletTxStatus = "pending"
	WalletTxCompleted WalletTxStatus = "completed"
	WalletTxFailed    WalletTxStatus = "failed"
)

// WalletTransaction is an append-only ledger entry. It is never updated;
// corrections are new entries.
type WalletTransaction struct {
	ID                  string          `json:"id"`
	WalletID            string          `json:"wallet_id"`
	MilestoneID         *string         `json:"milestone_id,omitempty"`
	PaymentOrderID      *string         `json:"payment_order_id,omitempty"`
	WithdrawalRequestID *string         `json:"withdrawal_request_id,omitempty"`
	Type                WalletTxType    `json:"type"`
	Amount              decimal.Decimal `json:"amount"`
	BalanceBefore       decimal.Decimal `json:"balance_before"`
	BalanceAfter        decimal.Decimal `json:"balance_after"`
	Status              WalletTxStatus  `json:"status"`
	Description         string          `json:"description"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Delta is the signed effect of the entry on the wallet balance.
func (t WalletTransaction) Delta() decimal.Decimal {
	if t.Type.Inflow() {
		return t.Amount
	}
	return t.Amount.Neg()
}
