package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gigledger/escrow/internal/api/httpx"
	"github.com/gigledger/escrow/internal/api/validate"
	"github.com/gigledger/escrow/internal/models"
	"github.com/gigledger/escrow/internal/services"
)

type MilestoneHandler struct {
	Svc *services.MilestoneService
}

func NewMilestoneHandler(svc *services.MilestoneService) *MilestoneHandler {
	return &MilestoneHandler{Svc: svc}
}

type createMilestoneReq struct {
	ContractID string          `json:"contract_id"`
	Title      string          `json:"title"`
	Amount     decimal.Decimal `json:"amount"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
}

func (h *MilestoneHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMilestoneReq
	if !decode(w, r, &req) {
		return
	}
	if err := validate.Collect(
		validate.UUID("contract_id", req.ContractID),
		validate.Required("title", req.Title),
		validate.Money("amount", req.Amount),
	); err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	m, err := h.Svc.Create(r.Context(), actor(r), services.CreateMilestoneInput{
		ContractID: req.ContractID,
		Title:      req.Title,
		Amount:     req.Amount,
		DueDate:    req.DueDate,
	})
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"milestone": m})
}

func (h *MilestoneHandler) ListByContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "contractID")
	if !ok {
		return
	}
	list, err := h.Svc.ListByContract(r.Context(), actor(r), id)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *MilestoneHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	m, err := h.Svc.Get(r.Context(), actor(r), id)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"milestone": m})
}

type updateMilestoneReq struct {
	Title   *string          `json:"title,omitempty"`
	Amount  *decimal.Decimal `json:"amount,omitempty"`
	DueDate *time.Time       `json:"due_date,omitempty"`
}

func (h *MilestoneHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateMilestoneReq
	if !decode(w, r, &req) {
		return
	}
	if req.Title == nil && req.Amount == nil && req.DueDate == nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", "no update data provided", nil)
		return
	}
	m, err := h.Svc.Update(r.Context(), actor(r), id, services.UpdateMilestoneInput{
		Title:   req.Title,
		Amount:  req.Amount,
		DueDate: req.DueDate,
	})
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"milestone": m})
}

func (h *MilestoneHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := validate.Collect(validate.OneOf("status", req.Status,
		string(models.MilestonePending), string(models.MilestoneFunded), string(models.MilestoneReleased))); err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	m, err := h.Svc.UpdateStatus(r.Context(), actor(r), id, models.MilestoneStatus(req.Status))
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"milestone": m})
}

func (h *MilestoneHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
