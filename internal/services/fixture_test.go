package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/gigledger/escrow/internal/events"
	"github.com/gigledger/escrow/internal/gateway"
	"github.com/gigledger/escrow/internal/idempotency"
	"github.com/gigledger/escrow/internal/models"
	"github.com/gigledger/escrow/internal/repository/memory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store       *memory.Store
	gw          *gateway.Sandbox
	signer      *gateway.Signer
	pub         *recordingPublisher
	wallets     *WalletService
	payments    *PaymentService
	milestones  *MilestoneService
	withdrawals *WithdrawalService

	client, freelancer, admin, stranger Actor
	contract                            models.Contract
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		store:      memory.NewStore(),
		gw:         gateway.NewSandbox(),
		signer:     gateway.NewSigner("test_key_secret", "test_webhook_secret"),
		pub:        &recordingPublisher{},
		client:     Actor{UserID: uuid.NewString(), Role: RoleClient},
		freelancer: Actor{UserID: uuid.NewString(), Role: RoleFreelancer},
		admin:      Actor{UserID: uuid.NewString(), Role: RoleAdmin},
		stranger:   Actor{UserID: uuid.NewString(), Role: RoleClient},
	}
	bus := events.NewBus(f.pub, nil, log)
	idem := idempotency.NewMemory(0)

	f.wallets = NewWalletService(f.store, log)
	f.payments = NewPaymentService(f.store, f.gw, f.signer, idem, bus, DefaultPaymentConfig(), log)
	f.milestones = NewMilestoneService(f.store, f.payments, log)
	f.withdrawals = NewWithdrawalService(f.store, idem, bus, DefaultMinWithdrawal, log)

	c, err := f.store.Repos().Contracts.Create(context.Background(), models.Contract{
		ProjectID:    uuid.NewString(),
		ClientID:     f.client.UserID,
		FreelancerID: f.freelancer.UserID,
		Status:       models.ContractActive,
	})
	require.NoError(t, err)
	f.contract = c
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) milestone(t *testing.T, amount string) models.Milestone {
	t.Helper()
	m, err := f.milestones.Create(context.Background(), f.client, CreateMilestoneInput{
		ContractID: f.contract.ID,
		Title:      "Landing page",
		Amount:     dec(amount),
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) order(t *testing.T, m models.Milestone) models.PaymentOrder {
	t.Helper()
	o, err := f.payments.CreateOrder(context.Background(), f.client, CreateOrderInput{MilestoneID: m.ID})
	require.NoError(t, err)
	return o
}

func (f *fixture) verifyInput(o models.PaymentOrder, paymentID string) VerifyInput {
	return VerifyInput{
		OrderID:   o.GatewayOrderID,
		PaymentID: paymentID,
		Signature: f.signer.Sign(o.GatewayOrderID, paymentID),
	}
}

// fund credits amount to the user's wallet directly through the ledger.
func (f *fixture) fund(t *testing.T, userID, amount string) models.Wallet {
	t.Helper()
	ctx := context.Background()
	w, err := f.wallets.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	_, err = f.wallets.Credit(ctx, w.ID, dec(amount), "seed", LedgerRef{})
	require.NoError(t, err)
	w, err = f.store.Repos().Wallets.GetByID(ctx, w.ID)
	require.NoError(t, err)
	return w
}

func (f *fixture) walletOf(t *testing.T, userID string) models.Wallet {
	t.Helper()
	w, err := f.store.Repos().Wallets.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	return w
}

func (f *fixture) ledger(t *testing.T, walletID string) []models.WalletTransaction {
	t.Helper()
	txs, err := f.store.Repos().WalletTransactions.ListCompleted(context.Background(), walletID)
	require.NoError(t, err)
	return txs
}

// requireBalanced asserts the wallet balance equals the sum of its ledger.
func (f *fixture) requireBalanced(t *testing.T, userID string) {
	t.Helper()
	rec, err := f.wallets.Reconcile(context.Background(), f.admin, userID)
	require.NoError(t, err)
	require.True(t, rec.Balanced, "stored %s ledger %s breaks %d", rec.StoredBalance, rec.LedgerBalance, rec.ChainBreaks)
	require.False(t, rec.StoredBalance.IsNegative())
}
