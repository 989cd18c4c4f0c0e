package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalRejected   WithdrawalStatus = "rejected"
	WithdrawalFailed     WithdrawalStatus = "failed"
)

func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalRejected || s == WithdrawalFailed
}

// Refunds reports whether resolving a request to s returns the held amount.
func (s WithdrawalStatus) Refunds() bool {
	return s == WithdrawalRejected || s == WithdrawalFailed
}

// CanTransitionTo: pending -> processing|rejected|failed,
// processing -> completed|rejected|failed.
func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	switch s {
	case WithdrawalPending:
		return next == WithdrawalProcessing || next == WithdrawalRejected || next == WithdrawalFailed
	case WithdrawalProcessing:
		return next == WithdrawalCompleted || next == WithdrawalRejected || next == WithdrawalFailed
	}
	return false
}

type BankDetails struct {
	AccountNumber     string `json:"bank_account_number"`
	IFSCCode          string `json:"bank_ifsc_code"`
	AccountHolderName string `json:"bank_account_holder_name"`
}

// WithdrawalRequest is created together with the debit that holds its amount.
type WithdrawalRequest struct {
	ID              string           `json:"id"`
	WalletID        string           `json:"wallet_id"`
	UserID          string           `json:"user_id"`
	Amount          decimal.Decimal  `json:"amount"`
	Bank            BankDetails      `json:"bank"`
	Status          WithdrawalStatus `json:"status"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
	ProcessedBy     *string          `json:"processed_by,omitempty"`
	RejectionReason *string          `json:"rejection_reason,omitempty"`
	TransactionID   *string          `json:"transaction_id,omitempty"`
	Notes           *string          `json:"notes,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}
