package memory

import (
	"context"
	"time"

	"github.com/gigledger/escrow/internal/models"
	repo "github.com/gigledger/escrow/internal/repository"
	"github.com/google/uuid"
)

type contractsRepo struct{ b binding }

func (r contractsRepo) Create(ctx context.Context, c models.Contract) (models.Contract, error) {
	err := r.b.run(ctx, "contracts.create", func(st *state) error {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if _, ok := st.contracts[c.ID]; ok {
			return repo.ErrDuplicate
		}
		if c.Status == "" {
			c.Status = models.ContractPending
		}
		now := time.Now().UTC()
		c.CreatedAt, c.UpdatedAt = now, now
		st.contracts[c.ID] = c
		return nil
	})
	return c, err
}

func (r contractsRepo) GetByID(ctx context.Context, id string) (c models.Contract, err error) {
	err = r.b.run(ctx, "contracts.get", func(st *state) error {
		var ok bool
		if c, ok = st.contracts[id]; !ok {
			return repo.ErrNotFound
		}
		return nil
	})
	return c, err
}

type milestonesRepo struct{ b binding }

func (r milestonesRepo) Create(ctx context.Context, m models.Milestone) (models.Milestone, error) {
	err := r.b.run(ctx, "milestones.create", func(st *state) error {
		if _, ok := st.contracts[m.ContractID]; !ok {
			return repo.ErrNotFound
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.Status == "" {
			m.Status = models.MilestonePending
		}
		now := time.Now().UTC()
		m.CreatedAt, m.UpdatedAt = now, now
		st.milestones[m.ID] = m
		st.milestoneOrder = append(st.milestoneOrder, m.ID)
		return nil
	})
	return m, err
}

func (r milestonesRepo) get(ctx context.Context, op, id string) (m models.Milestone, err error) {
	err = r.b.run(ctx, op, func(st *state) error {
		var ok bool
		if m, ok = st.milestones[id]; !ok {
			return repo.ErrNotFound
		}
		return nil
	})
	return m, err
}

func (r milestonesRepo) GetByID(ctx context.Context, id string) (models.Milestone, error) {
	return r.get(ctx, "milestones.get", id)
}

func (r milestonesRepo) GetForUpdate(ctx context.Context, id string) (models.Milestone, error) {
	return r.get(ctx, "milestones.lock", id)
}

func (r milestonesRepo) ListByContract(ctx context.Context, contractID string) ([]models.Milestone, error) {
	out := []models.Milestone{}
	err := r.b.run(ctx, "milestones.list", func(st *state) error {
		for _, id := range st.milestoneOrder {
			if m, ok := st.milestones[id]; ok && m.ContractID == contractID {
				out = append(out, m)
			}
		}
		return nil
	})
	return out, err
}

func (r milestonesRepo) Update(ctx context.Context, m models.Milestone) (out models.Milestone, err error) {
	err = r.b.run(ctx, "milestones.update", func(st *state) error {
		cur, ok := st.milestones[m.ID]
		if !ok {
			return repo.ErrNotFound
		}
		cur.Title, cur.Amount, cur.DueDate = m.Title, m.Amount, m.DueDate
		cur.UpdatedAt = time.Now().UTC()
		st.milestones[m.ID] = cur
		out = cur
		return nil
	})
	return out, err
}

func (r milestonesRepo) UpdateStatus(ctx context.Context, id string, status models.MilestoneStatus) (out models.Milestone, err error) {
	err = r.b.run(ctx, "milestones.update_status", func(st *state) error {
		cur, ok := st.milestones[id]
		if !ok {
			return repo.ErrNotFound
		}
		cur.Status = status
		cur.UpdatedAt = time.Now().UTC()
		st.milestones[id] = cur
		out = cur
		return nil
	})
	return out, err
}

func (r milestonesRepo) Delete(ctx context.Context, id string) error {
	return r.b.run(ctx, "milestones.delete", func(st *state) error {
		if _, ok := st.milestones[id]; !ok {
			return repo.ErrNotFound
		}
		if st.ledgerRefs(func(t models.WalletTransaction) *string { return t.MilestoneID }, id) {
			return repo.ErrConstraint
		}
		delete(st.milestones, id)
		for k, o := range st.orders {
			if o.MilestoneID != nil && *o.MilestoneID == id {
				o.MilestoneID = nil
				st.orders[k] = o
			}
		}
		return nil
	})
}

type paymentOrdersRepo struct{ b binding }

func (r paymentOrdersRepo) Create(ctx context.Context, o models.PaymentOrder) (models.PaymentOrder, error) {
	err := r.b.run(ctx, "payment_orders.create", func(st *state) error {
		for _, ex := range st.orders {
			if ex.GatewayOrderID == o.GatewayOrderID {
				return repo.ErrDuplicate
			}
		}
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		if o.Status == "" {
			o.Status = models.PaymentCreated
		}
		now := time.Now().UTC()
		o.CreatedAt, o.UpdatedAt = now, now
		st.orders[o.ID] = o
		st.orderSeq = append(st.orderSeq, o.ID)
		return nil
	})
	return o, err
}

func (r paymentOrdersRepo) GetByID(ctx context.Context, id string) (o models.PaymentOrder, err error) {
	err = r.b.run(ctx, "payment_orders.get", func(st *state) error {
		var ok bool
		if o, ok = st.orders[id]; !ok {
			return repo.ErrNotFound
		}
		return nil
	})
	return o, err
}

func (r paymentOrdersRepo) GetByGatewayOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (o models.PaymentOrder, err error) {
	err = r.b.run(ctx, "payment_orders.lock", func(st *state) error {
		for _, ex := range st.orders {
			if ex.GatewayOrderID == gatewayOrderID {
				o = ex
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return o, err
}

func (r paymentOrdersRepo) PaidByMilestone(ctx context.Context, milestoneID string) (o models.PaymentOrder, err error) {
	err = r.b.run(ctx, "payment_orders.paid_by_milestone", func(st *state) error {
		for _, id := range st.orderSeq {
			ex, ok := st.orders[id]
			if ok && ex.Status == models.PaymentPaid && ex.MilestoneID != nil && *ex.MilestoneID == milestoneID {
				o = ex
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return o, err
}

func (r paymentOrdersRepo) OpenByMilestone(ctx context.Context, milestoneID string) (o models.PaymentOrder, err error) {
	err = r.b.run(ctx, "payment_orders.open_by_milestone", func(st *state) error {
		for _, id := range st.orderSeq {
			ex, ok := st.orders[id]
			if ok && ex.Status != models.PaymentFailed && ex.MilestoneID != nil && *ex.MilestoneID == milestoneID {
				o = ex
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return o, err
}

func (r paymentOrdersRepo) ListByUser(ctx context.Context, userID string) ([]models.PaymentOrder, error) {
	out := []models.PaymentOrder{}
	err := r.b.run(ctx, "payment_orders.list", func(st *state) error {
		for i := len(st.orderSeq) - 1; i >= 0; i-- {
			if o, ok := st.orders[st.orderSeq[i]]; ok && o.UserID == userID {
				out = append(out, o)
			}
		}
		return nil
	})
	return out, err
}

func (r paymentOrdersRepo) mutate(ctx context.Context, op, id string, fn func(o *models.PaymentOrder)) (out models.PaymentOrder, err error) {
	err = r.b.run(ctx, op, func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return repo.ErrNotFound
		}
		fn(&o)
		o.UpdatedAt = time.Now().UTC()
		st.orders[id] = o
		out = o
		return nil
	})
	return out, err
}

func (r paymentOrdersRepo) MarkPaid(ctx context.Context, id string, gatewayPaymentID *string) (models.PaymentOrder, error) {
	return r.mutate(ctx, "payment_orders.mark_paid", id, func(o *models.PaymentOrder) {
		o.Status = models.PaymentPaid
		if gatewayPaymentID != nil {
			o.GatewayPaymentID = gatewayPaymentID
		}
	})
}

func (r paymentOrdersRepo) UpdateStatus(ctx context.Context, id string, status models.PaymentOrderStatus) (models.PaymentOrder, error) {
	return r.mutate(ctx, "payment_orders.update_status", id, func(o *models.PaymentOrder) {
		o.Status = status
	})
}

func (r paymentOrdersRepo) RecordPayout(ctx context.Context, id string, p models.Payout) (models.PaymentOrder, error) {
	return r.mutate(ctx, "payment_orders.record_payout", id, func(o *models.PaymentOrder) {
		status := p.Status
		o.PayoutStatus = &status
		o.PayoutAmount.Decimal, o.PayoutAmount.Valid = p.Amount, true
		o.PlatformFee.Decimal, o.PlatformFee.Valid = p.Fee, true
		o.PlatformFeePercentage.Decimal, o.PlatformFeePercentage.Valid = p.FeePercentage, true
	})
}

func (r paymentOrdersRepo) Delete(ctx context.Context, id string) error {
	return r.b.run(ctx, "payment_orders.delete", func(st *state) error {
		if _, ok := st.orders[id]; !ok {
			return repo.ErrNotFound
		}
		if st.ledgerRefs(func(t models.WalletTransaction) *string { return t.PaymentOrderID }, id) {
			return repo.ErrConstraint
		}
		delete(st.orders, id)
		return nil
	})
}

type walletsRepo struct{ b binding }

func (r walletsRepo) GetOrCreate(ctx context.Context, userID string) (w models.Wallet, err error) {
	err = r.b.run(ctx, "wallets.get_or_create", func(st *state) error {
		if id, ok := st.walletByUser[userID]; ok {
			w = st.wallets[id]
			return nil
		}
		now := time.Now().UTC()
		w = models.Wallet{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now}
		st.wallets[w.ID] = w
		st.walletByUser[userID] = w.ID
		return nil
	})
	return w, err
}

func (r walletsRepo) get(ctx context.Context, op, id string) (w models.Wallet, err error) {
	err = r.b.run(ctx, op, func(st *state) error {
		var ok bool
		if w, ok = st.wallets[id]; !ok {
			return repo.ErrNotFound
		}
		return nil
	})
	return w, err
}

func (r walletsRepo) GetByID(ctx context.Context, id string) (models.Wallet, error) {
	return r.get(ctx, "wallets.get", id)
}

func (r walletsRepo) LockByID(ctx context.Context, id string) (models.Wallet, error) {
	return r.get(ctx, "wallets.lock", id)
}

func (r walletsRepo) GetByUserID(ctx context.Context, userID string) (w models.Wallet, err error) {
	err = r.b.run(ctx, "wallets.get_by_user", func(st *state) error {
		id, ok := st.walletByUser[userID]
		if !ok {
			return repo.ErrNotFound
		}
		w = st.wallets[id]
		return nil
	})
	return w, err
}

func (r walletsRepo) UpdateBalances(ctx context.Context, w models.Wallet) (out models.Wallet, err error) {
	err = r.b.run(ctx, "wallets.update_balances", func(st *state) error {
		cur, ok := st.wallets[w.ID]
		if !ok {
			return repo.ErrNotFound
		}
		if w.Balance.IsNegative() {
			return repo.ErrConstraint
		}
		cur.Balance, cur.TotalEarned, cur.TotalWithdrawn = w.Balance, w.TotalEarned, w.TotalWithdrawn
		cur.UpdatedAt = time.Now().UTC()
		st.wallets[w.ID] = cur
		out = cur
		return nil
	})
	return out, err
}

type walletTransactionsRepo struct{ b binding }

func (r walletTransactionsRepo) Create(ctx context.Context, t models.WalletTransaction) (models.WalletTransaction, error) {
	err := r.b.run(ctx, "wallet_transactions.create", func(st *state) error {
		if t.Type == models.WalletTxCredit && t.Status == models.WalletTxCompleted && t.MilestoneID != nil {
			for _, ex := range st.walletTxs {
				if ex.Type == models.WalletTxCredit && ex.Status == models.WalletTxCompleted &&
					ex.MilestoneID != nil && *ex.MilestoneID == *t.MilestoneID {
					return repo.ErrDuplicate
				}
			}
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.CreatedAt = time.Now().UTC()
		st.walletTxs = append(st.walletTxs, t)
		return nil
	})
	return t, err
}

func (r walletTransactionsRepo) ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]models.WalletTransaction, error) {
	out := []models.WalletTransaction{}
	err := r.b.run(ctx, "wallet_transactions.list", func(st *state) error {
		skipped := 0
		for i := len(st.walletTxs) - 1; i >= 0 && len(out) < limit; i-- {
			t := st.walletTxs[i]
			if t.WalletID != walletID {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			out = append(out, t)
		}
		return nil
	})
	return out, err
}

func (r walletTransactionsRepo) CompletedCreditForMilestone(ctx context.Context, milestoneID string) (t models.WalletTransaction, err error) {
	err = r.b.run(ctx, "wallet_transactions.credit_for_milestone", func(st *state) error {
		for _, ex := range st.walletTxs {
			if ex.Type == models.WalletTxCredit && ex.Status == models.WalletTxCompleted &&
				ex.MilestoneID != nil && *ex.MilestoneID == milestoneID {
				t = ex
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return t, err
}

func (r walletTransactionsRepo) ListCompleted(ctx context.Context, walletID string) ([]models.WalletTransaction, error) {
	out := []models.WalletTransaction{}
	err := r.b.run(ctx, "wallet_transactions.list_completed", func(st *state) error {
		for _, t := range st.walletTxs {
			if t.WalletID == walletID && t.Status == models.WalletTxCompleted {
				out = append(out, t)
			}
		}
		return nil
	})
	return out, err
}

type withdrawalsRepo struct{ b binding }

func (r withdrawalsRepo) Create(ctx context.Context, w models.WithdrawalRequest) (models.WithdrawalRequest, error) {
	err := r.b.run(ctx, "withdrawals.create", func(st *state) error {
		if w.ID == "" {
			w.ID = uuid.NewString()
		}
		if w.Status == "" {
			w.Status = models.WithdrawalPending
		}
		now := time.Now().UTC()
		w.CreatedAt, w.UpdatedAt = now, now
		st.withdrawals[w.ID] = w
		st.withdrawalSeq = append(st.withdrawalSeq, w.ID)
		return nil
	})
	return w, err
}

func (r withdrawalsRepo) get(ctx context.Context, op, id string) (w models.WithdrawalRequest, err error) {
	err = r.b.run(ctx, op, func(st *state) error {
		var ok bool
		if w, ok = st.withdrawals[id]; !ok {
			return repo.ErrNotFound
		}
		return nil
	})
	return w, err
}

func (r withdrawalsRepo) GetByID(ctx context.Context, id string) (models.WithdrawalRequest, error) {
	return r.get(ctx, "withdrawals.get", id)
}

func (r withdrawalsRepo) GetForUpdate(ctx context.Context, id string) (models.WithdrawalRequest, error) {
	return r.get(ctx, "withdrawals.lock", id)
}

func (r withdrawalsRepo) ListByUser(ctx context.Context, userID string) ([]models.WithdrawalRequest, error) {
	items, _, err := r.List(ctx, repo.WithdrawalFilter{UserID: userID})
	return items, err
}

func (r withdrawalsRepo) List(ctx context.Context, f repo.WithdrawalFilter) ([]models.WithdrawalRequest, int, error) {
	var matched []models.WithdrawalRequest
	err := r.b.run(ctx, "withdrawals.list", func(st *state) error {
		for _, id := range st.withdrawalSeq {
			w := st.withdrawals[id]
			if f.Status != "" && w.Status != f.Status {
				continue
			}
			if f.UserID != "" && w.UserID != f.UserID {
				continue
			}
			matched = append(matched, w)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	// newest first; the sequence is in creation order
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	total := len(matched)
	start := min(f.Offset, total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	out := append([]models.WithdrawalRequest{}, matched[start:end]...)
	return out, total, nil
}

func (r withdrawalsRepo) Update(ctx context.Context, w models.WithdrawalRequest) (out models.WithdrawalRequest, err error) {
	err = r.b.run(ctx, "withdrawals.update", func(st *state) error {
		cur, ok := st.withdrawals[w.ID]
		if !ok {
			return repo.ErrNotFound
		}
		cur.Status = w.Status
		cur.ProcessedAt, cur.ProcessedBy = w.ProcessedAt, w.ProcessedBy
		cur.RejectionReason, cur.TransactionID, cur.Notes = w.RejectionReason, w.TransactionID, w.Notes
		cur.UpdatedAt = time.Now().UTC()
		st.withdrawals[w.ID] = cur
		out = cur
		return nil
	})
	return out, err
}

type auditLogsRepo struct{ b binding }

func (r auditLogsRepo) Create(ctx context.Context, l models.AuditLog) error {
	return r.b.run(ctx, "audit_logs.create", func(st *state) error {
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		l.CreatedAt = time.Now().UTC()
		st.audit = append(st.audit, l)
		return nil
	})
}

// ledgerRefs mirrors the ON DELETE RESTRICT foreign keys of wallet_transactions.
func (s *state) ledgerRefs(ref func(models.WalletTransaction) *string, id string) bool {
	for _, t := range s.walletTxs {
		if p := ref(t); p != nil && *p == id {
			return true
		}
	}
	return false
}
