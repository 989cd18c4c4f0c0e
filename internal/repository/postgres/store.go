package postgres

import (
	"context"
	"errors"
	"fmt"

	repo "github.com/gigledger/escrow/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func (s *Store) Repos() repo.Repositories { return bind(s.pool) }

// WithTx runs fn inside a read-committed transaction. Money paths take row
// locks (SELECT ... FOR UPDATE) so concurrent writers to one wallet serialize.
func (s *Store) WithTx(ctx context.Context, fn func(r repo.Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(bind(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func bind(db dbtx) repo.Repositories {
	return repo.Repositories{
		Contracts:          &contractsRepo{db},
		Milestones:         &milestonesRepo{db},
		PaymentOrders:      &paymentOrdersRepo{db},
		Wallets:            &walletsRepo{db},
		WalletTransactions: &walletTransactionsRepo{db},
		Withdrawals:        &withdrawalsRepo{db},
		AuditLogs:          &auditLogsRepo{db},
	}
}

const (
	uniqueViolation     = "23505"
	checkViolation      = "23514"
	foreignKeyViolation = "23503"
)

// translate maps driver errors onto the repository sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repo.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %s", repo.ErrDuplicate, pgErr.ConstraintName)
		case checkViolation, foreignKeyViolation:
			return fmt.Errorf("%w: %s", repo.ErrConstraint, pgErr.ConstraintName)
		}
	}
	return err
}

func notFoundIfNone(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
