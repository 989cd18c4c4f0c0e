package postgres

import (
	"context"

	"github.com/gigledger/escrow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type walletsRepo struct{ db dbtx }

const walletCols = `id, user_id, balance, total_earned, total_withdrawn, created_at, updated_at`

func scanWallet(row pgx.Row) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.TotalEarned, &w.TotalWithdrawn, &w.CreatedAt, &w.UpdatedAt)
	return w, translate(err)
}

// GetOrCreate relies on the unique user_id index: concurrent first calls race on
// the insert, the losers hit DO NOTHING and all of them read the single row.
func (r *walletsRepo) GetOrCreate(ctx context.Context, userID string) (models.Wallet, error) {
	w, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return w, nil
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO wallets (id, user_id, balance, total_earned, total_withdrawn)
		 VALUES ($1, $2, 0, 0, 0)
		 ON CONFLICT (user_id) DO NOTHING`,
		uuid.NewString(), userID,
	)
	if err != nil {
		return models.Wallet{}, translate(err)
	}
	return r.GetByUserID(ctx, userID)
}

func (r *walletsRepo) GetByID(ctx context.Context, id string) (models.Wallet, error) {
	return scanWallet(r.db.QueryRow(ctx, `SELECT `+walletCols+` FROM wallets WHERE id=$1`, id))
}

func (r *walletsRepo) GetByUserID(ctx context.Context, userID string) (models.Wallet, error) {
	return scanWallet(r.db.QueryRow(ctx, `SELECT `+walletCols+` FROM wallets WHERE user_id=$1`, userID))
}

func (r *walletsRepo) LockByID(ctx context.Context, id string) (models.Wallet, error) {
	return scanWallet(r.db.QueryRow(ctx, `SELECT `+walletCols+` FROM wallets WHERE id=$1 FOR UPDATE`, id))
}

func (r *walletsRepo) UpdateBalances(ctx context.Context, w models.Wallet) (models.Wallet, error) {
	return scanWallet(r.db.QueryRow(ctx,
		`UPDATE wallets
		    SET balance=$2, total_earned=$3, total_withdrawn=$4, updated_at=now()
		  WHERE id=$1
		  RETURNING `+walletCols,
		w.ID, w.Balance, w.TotalEarned, w.TotalWithdrawn,
	))
}
