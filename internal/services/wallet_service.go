package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gigledger/escrow/internal/metrics"
	"github.com/gigledger/escrow/internal/models"
	repo "github.com/gigledger/escrow/internal/repository"
	"github.com/shopspring/decimal"
)

// WalletLedger is the only way money moves: every balance change is written
// together with its ledger entry in one storage transaction.
type WalletLedger interface {
	GetOrCreate(ctx context.Context, userID string) (models.Wallet, error)
	Credit(ctx context.Context, walletID string, amount decimal.Decimal, description string, ref LedgerRef) (models.WalletTransaction, error)
	Debit(ctx context.Context, walletID string, amount decimal.Decimal, description string, ref LedgerRef) (models.WalletTransaction, error)
}

// LedgerRef links a ledger entry to what caused it.
type LedgerRef struct {
	MilestoneID         *string
	PaymentOrderID      *string
	WithdrawalRequestID *string
}

type entry struct {
	walletID    string
	typ         models.WalletTxType
	amount      decimal.Decimal
	description string
	ref         LedgerRef
}

// post applies one ledger entry inside the caller's transaction. It locks the
// wallet row first so concurrent writers to the same wallet serialize on it.
func post(ctx context.Context, r repo.Repositories, e entry) (models.WalletTransaction, error) {
	if !e.amount.IsPositive() {
		return models.WalletTransaction{}, validationf("amount must be > 0")
	}
	w, err := r.Wallets.LockByID(ctx, e.walletID)
	if err != nil {
		return models.WalletTransaction{}, lookup("wallet", err)
	}

	before := w.Balance
	var after decimal.Decimal
	switch e.typ {
	case models.WalletTxCredit:
		after = before.Add(e.amount)
		w.TotalEarned = w.TotalEarned.Add(e.amount)
	case models.WalletTxRefund:
		after = before.Add(e.amount)
		w.TotalWithdrawn = decimal.Max(w.TotalWithdrawn.Sub(e.amount), decimal.Zero)
	case models.WalletTxDebit, models.WalletTxWithdrawal:
		if before.LessThan(e.amount) {
			return models.WalletTransaction{}, fmt.Errorf("%w: balance %s, requested %s",
				ErrInsufficientBalance, before.StringFixed(2), e.amount.StringFixed(2))
		}
		after = before.Sub(e.amount)
		w.TotalWithdrawn = w.TotalWithdrawn.Add(e.amount)
	default:
		return models.WalletTransaction{}, validationf("unknown entry type %q", e.typ)
	}

	w.Balance = after
	if _, err := r.Wallets.UpdateBalances(ctx, w); err != nil {
		if errors.Is(err, repo.ErrConstraint) {
			return models.WalletTransaction{}, ErrInsufficientBalance
		}
		return models.WalletTransaction{}, fmt.Errorf("update wallet balance: %w", err)
	}

	t, err := r.WalletTransactions.Create(ctx, models.WalletTransaction{
		WalletID:            w.ID,
		MilestoneID:         e.ref.MilestoneID,
		PaymentOrderID:      e.ref.PaymentOrderID,
		WithdrawalRequestID: e.ref.WithdrawalRequestID,
		Type:                e.typ,
		Amount:              e.amount,
		BalanceBefore:       before,
		BalanceAfter:        after,
		Status:              models.WalletTxCompleted,
		Description:         e.description,
	})
	if err != nil {
		return models.WalletTransaction{}, fmt.Errorf("insert ledger entry: %w", err)
	}
	return t, nil
}

type WalletService struct {
	store repo.Store
	log   *slog.Logger
}

var _ WalletLedger = (*WalletService)(nil)

func NewWalletService(store repo.Store, log *slog.Logger) *WalletService {
	if log == nil {
		log = slog.Default()
	}
	return &WalletService{store: store, log: log}
}

func (s *WalletService) GetOrCreate(ctx context.Context, userID string) (models.Wallet, error) {
	if userID == "" {
		return models.Wallet{}, validationf("user_id is required")
	}
	return s.store.Repos().Wallets.GetOrCreate(ctx, userID)
}

func (s *WalletService) Credit(ctx context.Context, walletID string, amount decimal.Decimal, description string, ref LedgerRef) (models.WalletTransaction, error) {
	return s.apply(ctx, entry{walletID: walletID, typ: models.WalletTxCredit, amount: amount, description: description, ref: ref})
}

func (s *WalletService) Debit(ctx context.Context, walletID string, amount decimal.Decimal, description string, ref LedgerRef) (models.WalletTransaction, error) {
	return s.apply(ctx, entry{walletID: walletID, typ: models.WalletTxDebit, amount: amount, description: description, ref: ref})
}

func (s *WalletService) apply(ctx context.Context, e entry) (models.WalletTransaction, error) {
	var t models.WalletTransaction
	err := s.store.WithTx(ctx, func(r repo.Repositories) error {
		var err error
		t, err = post(ctx, r, e)
		return err
	})
	if err != nil {
		return models.WalletTransaction{}, err
	}
	metrics.LedgerEntriesTotal.WithLabelValues(string(t.Type)).Inc()
	s.log.Info("ledger entry posted", "wallet_id", t.WalletID, "type", t.Type, "amount", t.Amount.StringFixed(2),
		"balance_after", t.BalanceAfter.StringFixed(2))
	return t, nil
}

const recentTransactions = 10

type WalletView struct {
	models.Wallet
	RecentTransactions []models.WalletTransaction `json:"recent_transactions"`
}

// MyWallet returns the caller's wallet, creating it on first access.
func (s *WalletService) MyWallet(ctx context.Context, a Actor) (WalletView, error) {
	w, err := s.GetOrCreate(ctx, a.UserID)
	if err != nil {
		return WalletView{}, err
	}
	recent, err := s.store.Repos().WalletTransactions.ListByWallet(ctx, w.ID, recentTransactions, 0)
	if err != nil {
		return WalletView{}, fmt.Errorf("list recent transactions: %w", err)
	}
	return WalletView{Wallet: w, RecentTransactions: recent}, nil
}

// TransactionPage carries the window actually applied, after clamping.
type TransactionPage struct {
	Transactions []models.WalletTransaction `json:"transactions"`
	Limit        int                        `json:"limit"`
	Offset       int                        `json:"offset"`
}

func (s *WalletService) Transactions(ctx context.Context, a Actor, limit, offset int) (TransactionPage, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	w, err := s.GetOrCreate(ctx, a.UserID)
	if err != nil {
		return TransactionPage{}, err
	}
	txs, err := s.store.Repos().WalletTransactions.ListByWallet(ctx, w.ID, limit, offset)
	if err != nil {
		return TransactionPage{}, fmt.Errorf("list transactions: %w", err)
	}
	return TransactionPage{Transactions: txs, Limit: limit, Offset: offset}, nil
}

type Reconciliation struct {
	WalletID      string          `json:"wallet_id"`
	UserID        string          `json:"user_id"`
	StoredBalance decimal.Decimal `json:"stored_balance"`
	LedgerBalance decimal.Decimal `json:"ledger_balance"`
	Entries       int             `json:"entries"`
	ChainBreaks   int             `json:"chain_breaks"`
	Balanced      bool            `json:"balanced"`
}

// Reconcile recomputes a wallet's balance from its completed ledger entries
// and checks that each entry's before/after pair is consistent.
func (s *WalletService) Reconcile(ctx context.Context, a Actor, userID string) (Reconciliation, error) {
	if !a.IsAdmin() {
		return Reconciliation{}, forbiddenf("admin only")
	}
	w, err := s.store.Repos().Wallets.GetByUserID(ctx, userID)
	if err != nil {
		return Reconciliation{}, lookup("wallet", err)
	}
	txs, err := s.store.Repos().WalletTransactions.ListCompleted(ctx, w.ID)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("list ledger: %w", err)
	}

	rec := Reconciliation{WalletID: w.ID, UserID: w.UserID, StoredBalance: w.Balance, Entries: len(txs)}
	sum := decimal.Zero
	for _, t := range txs {
		if !t.BalanceBefore.Add(t.Delta()).Equal(t.BalanceAfter) {
			rec.ChainBreaks++
		}
		sum = sum.Add(t.Delta())
	}
	rec.LedgerBalance = sum
	rec.Balanced = rec.ChainBreaks == 0 && sum.Equal(w.Balance)
	if !rec.Balanced {
		s.log.Error("wallet out of balance", "wallet_id", w.ID, "stored", w.Balance.StringFixed(2),
			"ledger", sum.StringFixed(2), "chain_breaks", rec.ChainBreaks)
	}
	return rec, nil
}
