package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/gigledger/escrow/internal/api/httpx"
	"github.com/gigledger/escrow/internal/api/validate"
	"github.com/gigledger/escrow/internal/models"
	repo "github.com/gigledger/escrow/internal/repository"
	"github.com/gigledger/escrow/internal/services"
)

type WalletHandler struct {
	Wallets     *services.WalletService
	Withdrawals *services.WithdrawalService
}

func NewWalletHandler(wallets *services.WalletService, withdrawals *services.WithdrawalService) *WalletHandler {
	return &WalletHandler{Wallets: wallets, Withdrawals: withdrawals}
}

func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.Wallets.MyWallet(r.Context(), actor(r))
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"wallet": view})
}

func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	page, err := h.Wallets.Transactions(r.Context(), actor(r), limit, offset)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

type withdrawReq struct {
	Amount decimal.Decimal `json:"amount"`
	models.BankDetails
	Notes *string `json:"notes,omitempty"`
}

func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawReq
	if !decode(w, r, &req) {
		return
	}
	if err := validate.Collect(
		validate.Money("amount", req.Amount),
		validate.Required("bank_account_number", req.AccountNumber),
		validate.Required("bank_ifsc_code", req.IFSCCode),
		validate.Required("bank_account_holder_name", req.AccountHolderName),
	); err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	wr, err := h.Withdrawals.Create(r.Context(), actor(r), services.CreateWithdrawalInput{
		Amount:         req.Amount,
		Bank:           req.BankDetails,
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"withdrawal_request": wr})
}

func (h *WalletHandler) MyWithdrawals(w http.ResponseWriter, r *http.Request) {
	items, err := h.Withdrawals.ListMine(r.Context(), actor(r))
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"withdrawal_requests": items})
}

func (h *WalletHandler) AllWithdrawals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repo.WithdrawalFilter{
		Status: models.WithdrawalStatus(q.Get("status")),
		UserID: q.Get("user_id"),
		Limit:  queryInt(r, "limit", 20),
		Offset: queryInt(r, "offset", 0),
	}
	var checks []*validate.ErrField
	if f.UserID != "" {
		checks = append(checks, validate.UUID("user_id", f.UserID))
	}
	if f.Status != "" {
		checks = append(checks, validate.OneOf("status", string(f.Status),
			string(models.WithdrawalPending), string(models.WithdrawalProcessing), string(models.WithdrawalCompleted),
			string(models.WithdrawalRejected), string(models.WithdrawalFailed)))
	}
	if err := validate.Collect(checks...); err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	page, err := h.Withdrawals.ListAll(r.Context(), actor(r), f)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

type processReq struct {
	Status          string  `json:"status"`
	TransactionID   *string `json:"transaction_id,omitempty"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

func (h *WalletHandler) Process(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req processReq
	if !decode(w, r, &req) {
		return
	}
	if err := validate.Collect(validate.Required("status", req.Status)); err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	wr, err := h.Withdrawals.Process(r.Context(), actor(r), id, services.ProcessWithdrawalInput{
		Status:          models.WithdrawalStatus(req.Status),
		TransactionID:   req.TransactionID,
		RejectionReason: req.RejectionReason,
		Notes:           req.Notes,
	})
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"withdrawal_request": wr})
}

func (h *WalletHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	uid, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	rec, err := h.Wallets.Reconcile(r.Context(), actor(r), uid)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec)
}
