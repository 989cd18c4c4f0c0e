package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gigledger/escrow/internal/events"
	"github.com/gigledger/escrow/internal/idempotency"
	"github.com/gigledger/escrow/internal/metrics"
	"github.com/gigledger/escrow/internal/models"
	repo "github.com/gigledger/escrow/internal/repository"
	"github.com/shopspring/decimal"
)

var DefaultMinWithdrawal = decimal.NewFromInt(10)

// WithdrawalService holds funds out of a wallet when a payout is requested and
// later resolves the hold: completed keeps it, rejected or failed refunds it.
type WithdrawalService struct {
	store   repo.Store
	idem    idempotency.Store
	bus     *events.Bus
	minimum decimal.Decimal
	log     *slog.Logger
	now     func() time.Time
}

func NewWithdrawalService(store repo.Store, idem idempotency.Store, bus *events.Bus, minimum decimal.Decimal, log *slog.Logger) *WithdrawalService {
	if log == nil {
		log = slog.Default()
	}
	if idem == nil {
		idem = idempotency.NewMemory(0)
	}
	if !minimum.IsPositive() {
		minimum = DefaultMinWithdrawal
	}
	return &WithdrawalService{store: store, idem: idem, bus: bus, minimum: minimum, log: log, now: time.Now}
}

type CreateWithdrawalInput struct {
	Amount         decimal.Decimal
	Bank           models.BankDetails
	Notes          *string
	IdempotencyKey string
}

func (in *CreateWithdrawalInput) validate(minimum decimal.Decimal) error {
	in.Bank.AccountNumber = strings.TrimSpace(in.Bank.AccountNumber)
	in.Bank.IFSCCode = strings.ToUpper(strings.TrimSpace(in.Bank.IFSCCode))
	in.Bank.AccountHolderName = strings.TrimSpace(in.Bank.AccountHolderName)

	if err := checkAmount(in.Amount); err != nil {
		return err
	}
	if in.Bank.AccountNumber == "" || in.Bank.IFSCCode == "" || in.Bank.AccountHolderName == "" {
		return validationf("bank account number, IFSC code and account holder name are required")
	}
	if in.Amount.LessThan(minimum) {
		return fmt.Errorf("%w: minimum is %s", ErrBelowMinimum, minimum.StringFixed(2))
	}
	return nil
}

// Create debits the wallet and records the request in one transaction, so a
// request never exists without its hold and a hold never exists without a
// request.
func (s *WithdrawalService) Create(ctx context.Context, a Actor, in CreateWithdrawalInput) (models.WithdrawalRequest, error) {
	if err := in.validate(s.minimum); err != nil {
		return models.WithdrawalRequest{}, err
	}

	var idemKey string
	if in.IdempotencyKey != "" {
		idemKey = "withdrawal:" + a.UserID + ":" + in.IdempotencyKey
		prior, err := s.idem.Begin(ctx, idemKey)
		if errors.Is(err, idempotency.ErrInProgress) {
			return models.WithdrawalRequest{}, fmt.Errorf("%w: a request with this idempotency key is in progress", ErrConflict)
		}
		if err != nil {
			return models.WithdrawalRequest{}, err
		}
		if prior != "" {
			w, err := s.store.Repos().Withdrawals.GetByID(ctx, prior)
			return w, lookup("withdrawal request", err)
		}
	}

	req, err := s.create(ctx, a, in)
	if idemKey != "" {
		if err != nil {
			_ = s.idem.Abort(ctx, idemKey)
		} else if cerr := s.idem.Commit(ctx, idemKey, req.ID); cerr != nil {
			s.log.Error("idempotency commit failed", "key", idemKey, "err", cerr)
		}
	}
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	metrics.WithdrawalsTotal.WithLabelValues(string(req.Status)).Inc()
	metrics.LedgerEntriesTotal.WithLabelValues(string(models.WalletTxDebit)).Inc()
	s.log.Info("withdrawal requested", "withdrawal_id", req.ID, "user_id", a.UserID, "amount", req.Amount.StringFixed(2))
	s.bus.Emit(events.Event{
		Type:        events.WithdrawalRequested,
		AggregateID: req.ID,
		Data:        map[string]any{"user_id": req.UserID, "amount": req.Amount.StringFixed(2)},
	})
	return req, nil
}

func (s *WithdrawalService) create(ctx context.Context, a Actor, in CreateWithdrawalInput) (models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	err := s.store.WithTx(ctx, func(r repo.Repositories) error {
		w, err := r.Wallets.GetOrCreate(ctx, a.UserID)
		if err != nil {
			return fmt.Errorf("wallet: %w", err)
		}
		if w, err = r.Wallets.LockByID(ctx, w.ID); err != nil {
			return lookup("wallet", err)
		}
		if w.Balance.LessThan(in.Amount) {
			return fmt.Errorf("%w: balance %s, requested %s",
				ErrInsufficientBalance, w.Balance.StringFixed(2), in.Amount.StringFixed(2))
		}

		req, err = r.Withdrawals.Create(ctx, models.WithdrawalRequest{
			WalletID: w.ID,
			UserID:   a.UserID,
			Amount:   in.Amount,
			Bank:     in.Bank,
			Status:   models.WithdrawalPending,
			Notes:    in.Notes,
		})
		if err != nil {
			return fmt.Errorf("create withdrawal request: %w", err)
		}
		rid := req.ID
		_, err = post(ctx, r, entry{
			walletID:    w.ID,
			typ:         models.WalletTxDebit,
			amount:      in.Amount,
			description: "Withdrawal request " + rid,
			ref:         LedgerRef{WithdrawalRequestID: &rid},
		})
		return err
	})
	return req, err
}

func (s *WithdrawalService) ListMine(ctx context.Context, a Actor) ([]models.WithdrawalRequest, error) {
	return s.store.Repos().Withdrawals.ListByUser(ctx, a.UserID)
}

type WithdrawalPage struct {
	Items  []models.WithdrawalRequest `json:"items"`
	Total  int                        `json:"total"`
	Limit  int                        `json:"limit"`
	Offset int                        `json:"offset"`
}

func (s *WithdrawalService) ListAll(ctx context.Context, a Actor, f repo.WithdrawalFilter) (WithdrawalPage, error) {
	if !a.IsAdmin() {
		return WithdrawalPage{}, forbiddenf("admin only")
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	items, total, err := s.store.Repos().Withdrawals.List(ctx, f)
	if err != nil {
		return WithdrawalPage{}, fmt.Errorf("list withdrawals: %w", err)
	}
	return WithdrawalPage{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

type ProcessWithdrawalInput struct {
	Status          models.WithdrawalStatus
	TransactionID   *string
	RejectionReason *string
	Notes           *string
}

// Process moves a request along its lifecycle. Rejected and failed
// resolutions refund the hold with a new ledger entry in the same transaction
// as the status change.
func (s *WithdrawalService) Process(ctx context.Context, a Actor, id string, in ProcessWithdrawalInput) (models.WithdrawalRequest, error) {
	if !a.IsAdmin() {
		return models.WithdrawalRequest{}, forbiddenf("admin only")
	}
	switch in.Status {
	case models.WithdrawalProcessing, models.WithdrawalCompleted, models.WithdrawalRejected, models.WithdrawalFailed:
	default:
		return models.WithdrawalRequest{}, validationf("status must be one of processing, completed, rejected, failed")
	}

	var (
		req    models.WithdrawalRequest
		refund *models.WalletTransaction
	)
	err := s.store.WithTx(ctx, func(r repo.Repositories) error {
		cur, err := r.Withdrawals.GetForUpdate(ctx, id)
		if err != nil {
			return lookup("withdrawal request", err)
		}
		if !cur.Status.CanTransitionTo(in.Status) {
			return transitionf("withdrawal is %s, cannot move to %s", cur.Status, in.Status)
		}
		prev := cur.Status

		cur.Status = in.Status
		processedBy := a.UserID
		cur.ProcessedBy = &processedBy
		if in.Status.Terminal() {
			now := s.now().UTC()
			cur.ProcessedAt = &now
		}
		if in.TransactionID != nil {
			cur.TransactionID = in.TransactionID
		}
		if in.RejectionReason != nil {
			cur.RejectionReason = in.RejectionReason
		}
		if in.Notes != nil {
			cur.Notes = in.Notes
		}
		if req, err = r.Withdrawals.Update(ctx, cur); err != nil {
			return fmt.Errorf("update withdrawal request: %w", err)
		}

		if in.Status.Refunds() {
			reason := string(in.Status)
			if in.RejectionReason != nil && *in.RejectionReason != "" {
				reason = *in.RejectionReason
			}
			rid := req.ID
			t, err := post(ctx, r, entry{
				walletID:    req.WalletID,
				typ:         models.WalletTxRefund,
				amount:      req.Amount,
				description: fmt.Sprintf("Refund for %s withdrawal: %s", in.Status, reason),
				ref:         LedgerRef{WithdrawalRequestID: &rid},
			})
			if err != nil {
				return fmt.Errorf("refund withdrawal: %w", err)
			}
			refund = &t
		}

		details := map[string]any{"from": string(prev), "to": string(in.Status)}
		if req.TransactionID != nil {
			details["transaction_id"] = *req.TransactionID
		}
		return audit(ctx, r, "withdrawal_request", req.ID, "status_change", a.UserID, details)
	})
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	metrics.WithdrawalsTotal.WithLabelValues(string(req.Status)).Inc()
	if refund != nil {
		metrics.LedgerEntriesTotal.WithLabelValues(string(models.WalletTxRefund)).Inc()
	}
	s.log.Info("withdrawal processed", "withdrawal_id", req.ID, "status", req.Status, "admin", a.UserID, "refunded", refund != nil)
	s.bus.Emit(events.Event{
		Type:        events.WithdrawalProcessed,
		AggregateID: req.ID,
		Data:        map[string]any{"status": string(req.Status), "user_id": req.UserID, "amount": req.Amount.StringFixed(2)},
	})
	return req, nil
}
