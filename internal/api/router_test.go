package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigledger/escrow/internal/auth"
	"github.com/gigledger/escrow/internal/config"
	"github.com/gigledger/escrow/internal/events"
	"github.com/gigledger/escrow/internal/gateway"
	"github.com/gigledger/escrow/internal/idempotency"
	"github.com/gigledger/escrow/internal/models"
	"github.com/gigledger/escrow/internal/repository/memory"
	"github.com/gigledger/escrow/internal/services"
)

type testAPI struct {
	srv        *httptest.Server
	signer     *gateway.Signer
	deps       RouterDeps
	contract   models.Contract
	client     string
	freelancer string
	admin      string
}

func newTestAPI(t *testing.T) *testAPI {
	return newTestAPIFor(t, "dev", "hook_secret")
}

func newTestAPIFor(t *testing.T, env, webhookSecret string) *testAPI {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	signer := gateway.NewSigner("key_secret", webhookSecret)
	idem := idempotency.NewMemory(0)
	bus := events.NewBus(events.NewLogPublisher(log), nil, log)

	payments := services.NewPaymentService(store, gateway.NewSandbox(), signer, idem, bus, services.DefaultPaymentConfig(), log)
	deps := RouterDeps{
		Cfg:         config.Config{Env: env, RazorpayKeyID: "rzp_test"},
		Tokens:      auth.NewTokenManager("jwt_secret", "escrow-api", time.Minute),
		Signer:      signer,
		Payments:    payments,
		Milestones:  services.NewMilestoneService(store, payments, log),
		Wallets:     services.NewWalletService(store, log),
		Withdrawals: services.NewWithdrawalService(store, idem, bus, services.DefaultMinWithdrawal, log),
	}

	a := &testAPI{
		signer:     signer,
		deps:       deps,
		client:     uuid.NewString(),
		freelancer: uuid.NewString(),
		admin:      uuid.NewString(),
	}
	c, err := store.Repos().Contracts.Create(context.Background(), models.Contract{
		ProjectID:    uuid.NewString(),
		ClientID:     a.client,
		FreelancerID: a.freelancer,
		Status:       models.ContractActive,
	})
	require.NoError(t, err)
	a.contract = c

	a.srv = httptest.NewServer(NewRouter(deps))
	t.Cleanup(a.srv.Close)
	return a
}

// do sends body as JSON with a dev token for user:role and decodes the reply into out.
func (a *testAPI) do(t *testing.T, method, path, user, role string, body any, out any, hdr ...string) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("Authorization", "Bearer dev-"+user+":"+role)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 && res.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func TestRouter_PaymentToWithdrawal(t *testing.T) {
	a := newTestAPI(t)

	var created struct {
		Milestone models.Milestone `json:"milestone"`
	}
	code := a.do(t, http.MethodPost, "/api/v1/milestones", a.client, "client", map[string]any{
		"contract_id": a.contract.ID, "title": "Design", "amount": "200",
	}, &created)
	require.Equal(t, http.StatusCreated, code)

	var order struct {
		PaymentOrder models.PaymentOrder `json:"payment_order"`
		GatewayOrder struct {
			ID     string `json:"id"`
			Amount int64  `json:"amount"`
		} `json:"gateway_order"`
		KeyID string `json:"key_id"`
	}
	code = a.do(t, http.MethodPost, "/api/v1/payments", a.client, "client",
		map[string]any{"milestone_id": created.Milestone.ID}, &order)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, int64(1660000), order.GatewayOrder.Amount)
	assert.Equal(t, "rzp_test", order.KeyID)

	gwID := order.PaymentOrder.GatewayOrderID
	code = a.do(t, http.MethodPost, "/api/v1/payments/verify", a.client, "client", map[string]any{
		"razorpay_order_id": gwID, "razorpay_payment_id": "pay_1", "razorpay_signature": "bad",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	var verified services.VerifyResult
	code = a.do(t, http.MethodPost, "/api/v1/payments/verify", a.client, "client", map[string]any{
		"razorpay_order_id": gwID, "razorpay_payment_id": "pay_1", "razorpay_signature": a.signer.Sign(gwID, "pay_1"),
	}, &verified)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, verified.Milestone)
	assert.Equal(t, models.MilestoneReleased, verified.Milestone.Status)

	var wallet struct {
		Wallet services.WalletView `json:"wallet"`
	}
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/v1/wallet", a.freelancer, "freelancer", nil, &wallet))
	assert.True(t, wallet.Wallet.Balance.Equal(decimal.RequireFromString("198")), wallet.Wallet.Balance.String())
	assert.Len(t, wallet.Wallet.RecentTransactions, 1)

	var wr struct {
		WithdrawalRequest models.WithdrawalRequest `json:"withdrawal_request"`
	}
	code = a.do(t, http.MethodPost, "/api/v1/wallet/withdraw", a.freelancer, "freelancer", map[string]any{
		"amount": "50", "bank_account_number": "123456", "bank_ifsc_code": "hdfc0001", "bank_account_holder_name": "A B",
	}, &wr)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "HDFC0001", wr.WithdrawalRequest.Bank.IFSCCode)

	code = a.do(t, http.MethodPost, "/api/v1/wallet/withdraw", a.freelancer, "freelancer", map[string]any{
		"amount": "5000", "bank_account_number": "123456", "bank_ifsc_code": "HDFC0001", "bank_account_holder_name": "A B",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	path := "/api/v1/wallet/withdrawals/" + wr.WithdrawalRequest.ID + "/process"
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPut, path, a.freelancer, "freelancer",
		map[string]any{"status": "rejected"}, nil))
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPut, path, a.admin, "admin",
		map[string]any{"status": "rejected", "rejection_reason": "bank mismatch"}, nil))

	var rec services.Reconciliation
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/v1/admin/wallets/"+a.freelancer+"/reconcile",
		a.admin, "admin", nil, &rec))
	assert.True(t, rec.Balanced)
	assert.True(t, rec.StoredBalance.Equal(decimal.RequireFromString("198")))
	assert.Equal(t, 3, rec.Entries)

	var page services.TransactionPage
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/v1/wallet/transactions?limit=500&offset=-1",
		a.freelancer, "freelancer", nil, &page))
	assert.Equal(t, 20, page.Limit)
	assert.Equal(t, 0, page.Offset)
	assert.Len(t, page.Transactions, 3)
}

func TestRouter_Webhook(t *testing.T) {
	a := newTestAPI(t)

	var created struct {
		Milestone models.Milestone `json:"milestone"`
	}
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/v1/milestones", a.client, "client", map[string]any{
		"contract_id": a.contract.ID, "title": "Build", "amount": "100",
	}, &created))
	var order struct {
		PaymentOrder models.PaymentOrder `json:"payment_order"`
	}
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/v1/payments", a.client, "client",
		map[string]any{"milestone_id": created.Milestone.ID}, &order))

	body, _ := json.Marshal(map[string]string{
		"razorpay_order_id": order.PaymentOrder.GatewayOrderID, "razorpay_payment_id": "pay_9", "status": "paid",
	})
	send := func(sig string) int {
		req, _ := http.NewRequest(http.MethodPut, a.srv.URL+"/api/v1/payments/status", bytes.NewReader(body))
		req.Header.Set("X-Razorpay-Signature", sig)
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		res.Body.Close()
		return res.StatusCode
	}
	assert.Equal(t, http.StatusBadRequest, send("forged"))
	assert.Equal(t, http.StatusOK, send(a.signer.SignWebhook(body)))
	// redelivery is harmless
	assert.Equal(t, http.StatusOK, send(a.signer.SignWebhook(body)))

	var wallet struct {
		Wallet services.WalletView `json:"wallet"`
	}
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/v1/wallet", a.freelancer, "freelancer", nil, &wallet))
	assert.True(t, wallet.Wallet.Balance.Equal(decimal.RequireFromString("99")))
	assert.Len(t, wallet.Wallet.RecentTransactions, 1)
}

func TestRouter_Guards(t *testing.T) {
	a := newTestAPI(t)

	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/api/v1/wallet", "", "", nil, nil))
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/v1/milestones/not-a-uuid", a.client, "client", nil, nil))
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/v1/milestones/"+uuid.NewString(), a.client, "client", nil, nil))
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, "/api/v1/wallet/withdrawals/all", a.client, "client", nil, nil))
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, "/api/v1/milestones/contract/"+a.contract.ID,
		uuid.NewString(), "client", nil, nil))
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/api/v1/milestones", a.client, "client",
		map[string]any{"contract_id": a.contract.ID, "title": "x", "amount": "0"}, nil))

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/api/v1/auth/dev-token", "", "",
		map[string]any{"user_id": a.client, "role": "client"}, &tok))
	assert.NotEmpty(t, tok.AccessToken)

	res, err := http.Get(a.srv.URL + "/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res, err = http.Get(a.srv.URL + "/metrics")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRouter_UnsignedWebhookRefusedOutsideDev(t *testing.T) {
	a := newTestAPIFor(t, "prod", "")
	ctx := context.Background()
	client := services.Actor{UserID: a.client, Role: services.RoleClient}

	m, err := a.deps.Milestones.Create(ctx, client, services.CreateMilestoneInput{
		ContractID: a.contract.ID, Title: "Build", Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	o, err := a.deps.Payments.CreateOrder(ctx, client, services.CreateOrderInput{MilestoneID: m.ID})
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"razorpay_order_id": o.GatewayOrderID, "status": "paid"})
	req, _ := http.NewRequest(http.MethodPut, a.srv.URL+"/api/v1/payments/status", bytes.NewReader(body))
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	got, err := a.deps.Payments.Get(ctx, client, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCreated, got.Status)
	view, err := a.deps.Wallets.MyWallet(ctx, services.Actor{UserID: a.freelancer, Role: services.RoleFreelancer})
	require.NoError(t, err)
	assert.True(t, view.Balance.IsZero())
}

func TestRouter_UnsignedWebhookAllowedInDev(t *testing.T) {
	a := newTestAPIFor(t, "dev", "")

	var created struct {
		Milestone models.Milestone `json:"milestone"`
	}
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/v1/milestones", a.client, "client", map[string]any{
		"contract_id": a.contract.ID, "title": "Build", "amount": "100",
	}, &created))
	var order struct {
		PaymentOrder models.PaymentOrder `json:"payment_order"`
	}
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/v1/payments", a.client, "client",
		map[string]any{"milestone_id": created.Milestone.ID}, &order))

	var res services.VerifyResult
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPut, "/api/v1/payments/status", "", "", map[string]any{
		"razorpay_order_id": order.PaymentOrder.GatewayOrderID, "status": "paid",
	}, &res))
	assert.Equal(t, models.PaymentPaid, res.Order.Status)
}
