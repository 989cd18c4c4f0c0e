package postgres

import (
	"context"

	"github.com/gigledger/escrow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type paymentOrdersRepo struct{ db dbtx }

const paymentOrderCols = `id, milestone_id, user_id, gateway_order_id, gateway_payment_id, amount, currency,
	settlement_amount, exchange_rate, status, payout_status, payout_amount, platform_fee,
	platform_fee_percentage, created_at, updated_at`

func scanPaymentOrder(row pgx.Row) (models.PaymentOrder, error) {
	var o models.PaymentOrder
	err := row.Scan(
		&o.ID, &o.MilestoneID, &o.UserID, &o.GatewayOrderID, &o.GatewayPaymentID, &o.Amount, &o.Currency,
		&o.SettlementAmount, &o.ExchangeRate, &o.Status, &o.PayoutStatus, &o.PayoutAmount, &o.PlatformFee,
		&o.PlatformFeePercentage, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, translate(err)
}

func collectPaymentOrders(rows pgx.Rows, err error) ([]models.PaymentOrder, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.PaymentOrder{}
	for rows.Next() {
		o, err := scanPaymentOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *paymentOrdersRepo) Create(ctx context.Context, o models.PaymentOrder) (models.PaymentOrder, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = models.PaymentCreated
	}
	return scanPaymentOrder(r.db.QueryRow(ctx,
		`INSERT INTO payment_orders (id, milestone_id, user_id, gateway_order_id, amount, currency,
		                            settlement_amount, exchange_rate, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 RETURNING `+paymentOrderCols,
		o.ID, o.MilestoneID, o.UserID, o.GatewayOrderID, o.Amount, o.Currency,
		o.SettlementAmount, o.ExchangeRate, o.Status,
	))
}

func (r *paymentOrdersRepo) GetByID(ctx context.Context, id string) (models.PaymentOrder, error) {
	return scanPaymentOrder(r.db.QueryRow(ctx, `SELECT `+paymentOrderCols+` FROM payment_orders WHERE id=$1`, id))
}

func (r *paymentOrdersRepo) GetByGatewayOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (models.PaymentOrder, error) {
	return scanPaymentOrder(r.db.QueryRow(ctx,
		`SELECT `+paymentOrderCols+` FROM payment_orders WHERE gateway_order_id=$1 FOR UPDATE`,
		gatewayOrderID,
	))
}

func (r *paymentOrdersRepo) PaidByMilestone(ctx context.Context, milestoneID string) (models.PaymentOrder, error) {
	return scanPaymentOrder(r.db.QueryRow(ctx,
		`SELECT `+paymentOrderCols+`
		   FROM payment_orders
		  WHERE milestone_id=$1 AND status='paid'
		  ORDER BY created_at ASC
		  LIMIT 1`,
		milestoneID,
	))
}

func (r *paymentOrdersRepo) OpenByMilestone(ctx context.Context, milestoneID string) (models.PaymentOrder, error) {
	return scanPaymentOrder(r.db.QueryRow(ctx,
		`SELECT `+paymentOrderCols+`
		   FROM payment_orders
		  WHERE milestone_id=$1 AND status IN ('created','paid')
		  ORDER BY created_at ASC
		  LIMIT 1`,
		milestoneID,
	))
}

func (r *paymentOrdersRepo) ListByUser(ctx context.Context, userID string) ([]models.PaymentOrder, error) {
	return collectPaymentOrders(r.db.Query(ctx,
		`SELECT `+paymentOrderCols+` FROM payment_orders WHERE user_id=$1 ORDER BY created_at DESC`,
		userID,
	))
}

func (r *paymentOrdersRepo) MarkPaid(ctx context.Context, id string, gatewayPaymentID *string) (models.PaymentOrder, error) {
	return scanPaymentOrder(r.db.QueryRow(ctx,
		`UPDATE payment_orders
		    SET status='paid', gateway_payment_id=COALESCE($2, gateway_payment_id), updated_at=now()
		  WHERE id=$1
		  RETURNING `+paymentOrderCols,
		id, gatewayPaymentID,
	))
}

func (r *paymentOrdersRepo) UpdateStatus(ctx context.Context, id string, status models.PaymentOrderStatus) (models.PaymentOrder, error) {
	return scanPaymentOrder(r.db.QueryRow(ctx,
		`UPDATE payment_orders SET status=$2, updated_at=now() WHERE id=$1 RETURNING `+paymentOrderCols,
		id, status,
	))
}

func (r *paymentOrdersRepo) RecordPayout(ctx context.Context, id string, p models.Payout) (models.PaymentOrder, error) {
	return scanPaymentOrder(r.db.QueryRow(ctx,
		`UPDATE payment_orders
		    SET payout_status=$2, payout_amount=$3, platform_fee=$4, platform_fee_percentage=$5, updated_at=now()
		  WHERE id=$1
		  RETURNING `+paymentOrderCols,
		id, p.Status, p.Amount, p.Fee, p.FeePercentage,
	))
}

func (r *paymentOrdersRepo) Delete(ctx context.Context, id string) error {
	return notFoundIfNone(r.db.Exec(ctx, `DELETE FROM payment_orders WHERE id=$1`, id))
}
