package repository

import (
	"context"
	"errors"

	"github.com/gigledger/escrow/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrConstraint is a violated CHECK or foreign key, e.g. a balance driven
	// below zero or a delete of a row the ledger still references.
	ErrConstraint = errors.New("constraint violation")
)

type Contracts interface {
	Create(ctx context.Context, c models.Contract) (models.Contract, error)
	GetByID(ctx context.Context, id string) (models.Contract, error)
}

type Milestones interface {
	Create(ctx context.Context, m models.Milestone) (models.Milestone, error)
	GetByID(ctx context.Context, id string) (models.Milestone, error)
	// GetForUpdate locks the row until the enclosing transaction ends.
	GetForUpdate(ctx context.Context, id string) (models.Milestone, error)
	ListByContract(ctx context.Context, contractID string) ([]models.Milestone, error)
	Update(ctx context.Context, m models.Milestone) (models.Milestone, error)
	UpdateStatus(ctx context.Context, id string, status models.MilestoneStatus) (models.Milestone, error)
	Delete(ctx context.Context, id string) error
}

type PaymentOrders interface {
	Create(ctx context.Context, o models.PaymentOrder) (models.PaymentOrder, error)
	GetByID(ctx context.Context, id string) (models.PaymentOrder, error)
	GetByGatewayOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (models.PaymentOrder, error)
	// PaidByMilestone returns the paid order funding the milestone.
	PaidByMilestone(ctx context.Context, milestoneID string) (models.PaymentOrder, error)
	// OpenByMilestone returns the oldest created or paid order for the milestone.
	OpenByMilestone(ctx context.Context, milestoneID string) (models.PaymentOrder, error)
	ListByUser(ctx context.Context, userID string) ([]models.PaymentOrder, error)
	MarkPaid(ctx context.Context, id string, gatewayPaymentID *string) (models.PaymentOrder, error)
	UpdateStatus(ctx context.Context, id string, status models.PaymentOrderStatus) (models.PaymentOrder, error)
	RecordPayout(ctx context.Context, id string, p models.Payout) (models.PaymentOrder, error)
	Delete(ctx context.Context, id string) error
}

type Wallets interface {
	// GetOrCreate is safe under concurrent first access: exactly one row per user.
	GetOrCreate(ctx context.Context, userID string) (models.Wallet, error)
	GetByID(ctx context.Context, id string) (models.Wallet, error)
	GetByUserID(ctx context.Context, userID string) (models.Wallet, error)
	// LockByID reads the wallet and holds its row lock for the rest of the transaction.
	LockByID(ctx context.Context, id string) (models.Wallet, error)
	UpdateBalances(ctx context.Context, w models.Wallet) (models.Wallet, error)
}

type WalletTransactions interface {
	Create(ctx context.Context, t models.WalletTransaction) (models.WalletTransaction, error)
	ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]models.WalletTransaction, error)
	// CompletedCreditForMilestone finds the credit that paid out a milestone, if any.
	CompletedCreditForMilestone(ctx context.Context, milestoneID string) (models.WalletTransaction, error)
	ListCompleted(ctx context.Context, walletID string) ([]models.WalletTransaction, error)
}

type WithdrawalFilter struct {
	Status models.WithdrawalStatus
	UserID string
	Limit  int
	Offset int
}

type Withdrawals interface {
	Create(ctx context.Context, w models.WithdrawalRequest) (models.WithdrawalRequest, error)
	GetByID(ctx context.Context, id string) (models.WithdrawalRequest, error)
	GetForUpdate(ctx context.Context, id string) (models.WithdrawalRequest, error)
	ListByUser(ctx context.Context, userID string) ([]models.WithdrawalRequest, error)
	List(ctx context.Context, f WithdrawalFilter) ([]models.WithdrawalRequest, int, error)
	Update(ctx context.Context, w models.WithdrawalRequest) (models.WithdrawalRequest, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}

// Repositories is one view over the ledger tables, bound either to the pool
// or to an open transaction.
type Repositories struct {
	Contracts          Contracts
	Milestones         Milestones
	PaymentOrders      PaymentOrders
	Wallets            Wallets
	WalletTransactions WalletTransactions
	Withdrawals        Withdrawals
	AuditLogs          AuditLogs
}

// Store is the ledger's unit of work. Repos reads outside any transaction;
// WithTx runs fn in one storage transaction and rolls back if fn fails.
type Store interface {
	Repos() Repositories
	WithTx(ctx context.Context, fn func(r Repositories) error) error
}
