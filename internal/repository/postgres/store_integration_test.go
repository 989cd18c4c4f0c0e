//go:build integration

package postgres

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigledger/escrow/internal/db"
	"github.com/gigledger/escrow/internal/models"
	repo "github.com/gigledger/escrow/internal/repository"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/repository/postgres/
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.RunMigrations(ctx, pool, slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewStore(pool)
}

type seeded struct {
	wallet    models.Wallet
	milestone models.Milestone
	order     models.PaymentOrder
}

func seed(t *testing.T, s *Store) seeded {
	t.Helper()
	ctx := context.Background()
	r := s.Repos()
	c, err := r.Contracts.Create(ctx, models.Contract{
		ProjectID:    uuid.NewString(),
		ClientID:     uuid.NewString(),
		FreelancerID: uuid.NewString(),
		Status:       models.ContractActive,
	})
	require.NoError(t, err)
	m, err := r.Milestones.Create(ctx, models.Milestone{
		ContractID: c.ID,
		Title:      "Integration",
		Amount:     decimal.RequireFromString("100"),
		Status:     models.MilestonePending,
	})
	require.NoError(t, err)
	mid := m.ID
	o, err := r.PaymentOrders.Create(ctx, models.PaymentOrder{
		MilestoneID:      &mid,
		UserID:           c.ClientID,
		GatewayOrderID:   "order_" + uuid.NewString(),
		Amount:           m.Amount,
		Currency:         "INR",
		SettlementAmount: decimal.RequireFromString("8300"),
		ExchangeRate:     decimal.RequireFromString("83"),
		Status:           models.PaymentCreated,
	})
	require.NoError(t, err)
	w, err := r.Wallets.GetOrCreate(ctx, c.FreelancerID)
	require.NoError(t, err)
	return seeded{wallet: w, milestone: m, order: o}
}

func credit(s seeded, amount string) models.WalletTransaction {
	mid, oid := s.milestone.ID, s.order.ID
	a := decimal.RequireFromString(amount)
	return models.WalletTransaction{
		WalletID:       s.wallet.ID,
		MilestoneID:    &mid,
		PaymentOrderID: &oid,
		Type:           models.WalletTxCredit,
		Amount:         a,
		BalanceBefore:  decimal.Zero,
		BalanceAfter:   a,
		Status:         models.WalletTxCompleted,
		Description:    "Payment for milestone: Integration",
	}
}

func TestIntegration_GetOrCreateUnderContention(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	user := uuid.NewString()

	ids := make([]string, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := s.Repos().Wallets.GetOrCreate(ctx, user)
			assert.NoError(t, err)
			ids[i] = w.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestIntegration_LockedBalanceUpdatesSerialize(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	w, err := s.Repos().Wallets.GetOrCreate(ctx, uuid.NewString())
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(r repo.Repositories) error {
				cur, err := r.Wallets.LockByID(ctx, w.ID)
				if err != nil {
					return err
				}
				cur.Balance = cur.Balance.Add(decimal.NewFromInt(1))
				_, err = r.Wallets.UpdateBalances(ctx, cur)
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Repos().Wallets.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(n)), got.Balance.String())
}

func TestIntegration_NegativeBalanceIsConstraint(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	w, err := s.Repos().Wallets.GetOrCreate(ctx, uuid.NewString())
	require.NoError(t, err)

	w.Balance = decimal.RequireFromString("-1")
	_, err = s.Repos().Wallets.UpdateBalances(ctx, w)
	assert.ErrorIs(t, err, repo.ErrConstraint)
}

func TestIntegration_MilestoneCreditsOnce(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	sd := seed(t, s)
	r := s.Repos()

	first, err := r.WalletTransactions.Create(ctx, credit(sd, "99"))
	require.NoError(t, err)
	_, err = r.WalletTransactions.Create(ctx, credit(sd, "99"))
	require.ErrorIs(t, err, repo.ErrDuplicate)

	got, err := r.WalletTransactions.CompletedCreditForMilestone(ctx, sd.milestone.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestIntegration_LedgerPinsOrderAndMilestone(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	sd := seed(t, s)
	r := s.Repos()

	pid := "pay_" + uuid.NewString()
	_, err := r.PaymentOrders.MarkPaid(ctx, sd.order.ID, &pid)
	require.NoError(t, err)
	_, err = r.WalletTransactions.Create(ctx, credit(sd, "99"))
	require.NoError(t, err)

	assert.ErrorIs(t, r.PaymentOrders.Delete(ctx, sd.order.ID), repo.ErrConstraint)
	assert.ErrorIs(t, r.Milestones.Delete(ctx, sd.milestone.ID), repo.ErrConstraint)

	o, err := r.PaymentOrders.GetByID(ctx, sd.order.ID)
	require.NoError(t, err)
	require.NotNil(t, o.MilestoneID)
	assert.Equal(t, sd.milestone.ID, *o.MilestoneID)
}

func TestIntegration_OpenByMilestone(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	sd := seed(t, s)
	r := s.Repos()

	open, err := r.PaymentOrders.OpenByMilestone(ctx, sd.milestone.ID)
	require.NoError(t, err)
	assert.Equal(t, sd.order.ID, open.ID)

	_, err = r.PaymentOrders.UpdateStatus(ctx, sd.order.ID, models.PaymentFailed)
	require.NoError(t, err)
	_, err = r.PaymentOrders.OpenByMilestone(ctx, sd.milestone.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	// failed orders never hold the milestone, so they can still be removed
	require.NoError(t, r.PaymentOrders.Delete(ctx, sd.order.ID))
}
