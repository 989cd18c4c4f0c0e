package postgres

import (
	"context"

	"github.com/gigledger/escrow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type walletTransactionsRepo struct{ db dbtx }

const walletTxCols = `id, wallet_id, milestone_id, payment_order_id, withdrawal_request_id, type, amount,
	balance_before, balance_after, status, description, created_at`

func scanWalletTx(row pgx.Row) (models.WalletTransaction, error) {
	var t models.WalletTransaction
	err := row.Scan(
		&t.ID, &t.WalletID, &t.MilestoneID, &t.PaymentOrderID, &t.WithdrawalRequestID, &t.Type, &t.Amount,
		&t.BalanceBefore, &t.BalanceAfter, &t.Status, &t.Description, &t.CreatedAt,
	)
	return t, translate(err)
}

func (r *walletTransactionsRepo) Create(ctx context.Context, t models.WalletTransaction) (models.WalletTransaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return scanWalletTx(r.db.QueryRow(ctx,
		`INSERT INTO wallet_transactions (id, wallet_id, milestone_id, payment_order_id, withdrawal_request_id,
		                                 type, amount, balance_before, balance_after, status, description)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 RETURNING `+walletTxCols,
		t.ID, t.WalletID, t.MilestoneID, t.PaymentOrderID, t.WithdrawalRequestID,
		t.Type, t.Amount, t.BalanceBefore, t.BalanceAfter, t.Status, t.Description,
	))
}

func (r *walletTransactionsRepo) list(ctx context.Context, sql string, args ...any) ([]models.WalletTransaction, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.WalletTransaction{}
	for rows.Next() {
		t, err := scanWalletTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *walletTransactionsRepo) ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]models.WalletTransaction, error) {
	return r.list(ctx,
		`SELECT `+walletTxCols+`
		   FROM wallet_transactions
		  WHERE wallet_id=$1
		  ORDER BY created_at DESC, id DESC
		  LIMIT $2 OFFSET $3`,
		walletID, limit, offset,
	)
}

func (r *walletTransactionsRepo) CompletedCreditForMilestone(ctx context.Context, milestoneID string) (models.WalletTransaction, error) {
	return scanWalletTx(r.db.QueryRow(ctx,
		`SELECT `+walletTxCols+`
		   FROM wallet_transactions
		  WHERE milestone_id=$1 AND type='credit' AND status='completed'
		  LIMIT 1`,
		milestoneID,
	))
}

func (r *walletTransactionsRepo) ListCompleted(ctx context.Context, walletID string) ([]models.WalletTransaction, error) {
	return r.list(ctx,
		`SELECT `+walletTxCols+`
		   FROM wallet_transactions
		  WHERE wallet_id=$1 AND status='completed'
		  ORDER BY created_at ASC`,
		walletID,
	)
}
