package handlers

import (
	"net/http"
	"time"

	"github.com/gigledger/escrow/internal/api/httpx"
	"github.com/gigledger/escrow/internal/api/validate"
	"github.com/gigledger/escrow/internal/auth"
	"github.com/gigledger/escrow/internal/services"
)

// AuthHandler issues access tokens for local development. Real sign-in lives
// in the identity service that shares JWT_SECRET with this one.
type AuthHandler struct {
	TM *auth.TokenManager
}

func NewAuthHandler(tm *auth.TokenManager) *AuthHandler {
	return &AuthHandler{TM: tm}
}

type devTokenReq struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

func (h *AuthHandler) DevToken(w http.ResponseWriter, r *http.Request) {
	var req devTokenReq
	if !decode(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = services.RoleClient
	}
	if err := validate.Collect(
		validate.UUID("user_id", req.UserID),
		validate.OneOf("role", req.Role, services.RoleClient, services.RoleFreelancer, services.RoleAdmin),
	); err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	tok, exp, err := h.TM.Generate(req.UserID, req.Role)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "token generation failed", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResp{
		AccessToken: tok,
		ExpiresIn:   int64(time.Until(exp).Truncate(time.Second).Seconds()),
	})
}
