package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gigledger/escrow/internal/api/httpx"
	"github.com/gigledger/escrow/internal/api/validate"
	"github.com/gigledger/escrow/internal/gateway"
	"github.com/gigledger/escrow/internal/models"
	"github.com/gigledger/escrow/internal/services"
)

type PaymentHandler struct {
	Svc    *services.PaymentService
	Signer *gateway.Signer
	// KeyID is handed to the checkout page together with the gateway order.
	KeyID string
	// AllowUnsigned lets webhooks through when no webhook secret is
	// configured. Only dev sets it.
	AllowUnsigned bool
}

func NewPaymentHandler(svc *services.PaymentService, signer *gateway.Signer, keyID string, allowUnsigned bool) *PaymentHandler {
	return &PaymentHandler{Svc: svc, Signer: signer, KeyID: keyID, AllowUnsigned: allowUnsigned}
}

type gatewayOrderResp struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MilestoneID string `json:"milestone_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := validate.Collect(validate.UUID("milestone_id", req.MilestoneID)); err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	o, err := h.Svc.CreateOrder(r.Context(), actor(r), services.CreateOrderInput{
		MilestoneID:    req.MilestoneID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"payment_order": o,
		"gateway_order": gatewayOrderResp{
			ID:       o.GatewayOrderID,
			Amount:   o.SettlementAmount.Shift(2).IntPart(),
			Currency: o.Currency,
		},
		"key_id": h.KeyID,
	})
}

type verifyReq struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// Verify confirms a checkout callback. A payment that was captured but whose
// payout failed is still a 200: the money is safe and release can be retried.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyReq
	if !decode(w, r, &req) {
		return
	}
	if err := validate.Collect(
		validate.Required("razorpay_order_id", req.OrderID),
		validate.Required("razorpay_payment_id", req.PaymentID),
		validate.Required("razorpay_signature", req.Signature),
	); err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	res, err := h.Svc.Verify(r.Context(), services.VerifyInput{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	writeVerifyResult(w, res, err)
}

type statusReq struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id,omitempty"`
	Status    string `json:"status"`
}

// Status is the gateway webhook. It carries no bearer token, so the raw body
// must match X-Razorpay-Signature. Without a webhook secret it is refused
// unless AllowUnsigned is set.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.Signer.WebhookEnabled() && !h.AllowUnsigned {
		httpx.WriteError(w, http.StatusUnauthorized, "webhook_unauthenticated", "webhook signing is not configured", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "unreadable body", nil)
		return
	}
	if !h.Signer.VerifyWebhook(body, r.Header.Get("X-Razorpay-Signature")) {
		httpx.WriteServiceError(w, services.ErrInvalidSignature)
		return
	}

	var req statusReq
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "malformed JSON body", nil)
		return
	}
	if err := validate.Collect(
		validate.Required("razorpay_order_id", req.OrderID),
		validate.OneOf("status", req.Status,
			string(models.PaymentCreated), string(models.PaymentPaid), string(models.PaymentFailed)),
	); err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	res, err := h.Svc.ApplyGatewayStatus(r.Context(), services.GatewayStatusInput{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Status:    models.PaymentOrderStatus(req.Status),
	})
	writeVerifyResult(w, res, err)
}

func writeVerifyResult(w http.ResponseWriter, res services.VerifyResult, err error) {
	if errors.Is(err, services.ErrReleaseFailed) {
		httpx.WriteJSON(w, http.StatusOK, struct {
			services.VerifyResult
			ReleaseError string `json:"release_error"`
		}{res, err.Error()})
		return
	}
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *PaymentHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	uid, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	orders, err := h.Svc.ListByUser(r.Context(), actor(r), uid)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"payment_orders": orders, "count": len(orders)})
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.Svc.Get(r.Context(), actor(r), id)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"payment_order": o})
}

func (h *PaymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Svc.Delete(r.Context(), actor(r), id); err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
