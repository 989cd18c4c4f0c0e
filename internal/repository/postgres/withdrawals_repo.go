package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/gigledger/escrow/internal/models"
	repo "github.com/gigledger/escrow/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type withdrawalsRepo struct{ db dbtx }

const withdrawalCols = `id, wallet_id, user_id, amount, bank_account_number, bank_ifsc_code,
	bank_account_holder_name, status, processed_at, processed_by, rejection_reason, transaction_id,
	notes, created_at, updated_at`

func scanWithdrawal(row pgx.Row) (models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := row.Scan(
		&w.ID, &w.WalletID, &w.UserID, &w.Amount, &w.Bank.AccountNumber, &w.Bank.IFSCCode,
		&w.Bank.AccountHolderName, &w.Status, &w.ProcessedAt, &w.ProcessedBy, &w.RejectionReason,
		&w.TransactionID, &w.Notes, &w.CreatedAt, &w.UpdatedAt,
	)
	return w, translate(err)
}

func collectWithdrawals(rows pgx.Rows, err error) ([]models.WithdrawalRequest, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.WithdrawalRequest{}
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *withdrawalsRepo) Create(ctx context.Context, w models.WithdrawalRequest) (models.WithdrawalRequest, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = models.WithdrawalPending
	}
	return scanWithdrawal(r.db.QueryRow(ctx,
		`INSERT INTO withdrawal_requests (id, wallet_id, user_id, amount, bank_account_number, bank_ifsc_code,
		                                 bank_account_holder_name, status, notes)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 RETURNING `+withdrawalCols,
		w.ID, w.WalletID, w.UserID, w.Amount, w.Bank.AccountNumber, w.Bank.IFSCCode,
		w.Bank.AccountHolderName, w.Status, w.Notes,
	))
}

func (r *withdrawalsRepo) GetByID(ctx context.Context, id string) (models.WithdrawalRequest, error) {
	return scanWithdrawal(r.db.QueryRow(ctx, `SELECT `+withdrawalCols+` FROM withdrawal_requests WHERE id=$1`, id))
}

func (r *withdrawalsRepo) GetForUpdate(ctx context.Context, id string) (models.WithdrawalRequest, error) {
	return scanWithdrawal(r.db.QueryRow(ctx, `SELECT `+withdrawalCols+` FROM withdrawal_requests WHERE id=$1 FOR UPDATE`, id))
}

func (r *withdrawalsRepo) ListByUser(ctx context.Context, userID string) ([]models.WithdrawalRequest, error) {
	return collectWithdrawals(r.db.Query(ctx,
		`SELECT `+withdrawalCols+` FROM withdrawal_requests WHERE user_id=$1 ORDER BY created_at DESC`,
		userID,
	))
}

func (r *withdrawalsRepo) List(ctx context.Context, f repo.WithdrawalFilter) ([]models.WithdrawalRequest, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status=$%d", len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id=$%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM withdrawal_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	q := fmt.Sprintf(`SELECT %s FROM withdrawal_requests%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		withdrawalCols, where, len(args)-1, len(args))
	items, err := collectWithdrawals(r.db.Query(ctx, q, args...))
	return items, total, err
}

func (r *withdrawalsRepo) Update(ctx context.Context, w models.WithdrawalRequest) (models.WithdrawalRequest, error) {
	return scanWithdrawal(r.db.QueryRow(ctx,
		`UPDATE withdrawal_requests
		    SET status=$2, processed_at=$3, processed_by=$4, rejection_reason=$5, transaction_id=$6,
		        notes=$7, updated_at=now()
		  WHERE id=$1
		  RETURNING `+withdrawalCols,
		w.ID, w.Status, w.ProcessedAt, w.ProcessedBy, w.RejectionReason, w.TransactionID, w.Notes,
	))
}
