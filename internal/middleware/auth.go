package middleware

import (
	"net/http"
	"strings"

	"github.com/gigledger/escrow/internal/api/httpx"
	"github.com/gigledger/escrow/internal/auth"
	"github.com/google/uuid"
)

type AuthMiddleware struct {
	TM       *auth.TokenManager
	DevToken bool
}

func NewAuthMiddleware(tm *auth.TokenManager, appEnv string) *AuthMiddleware {
	return &AuthMiddleware{TM: tm, DevToken: appEnv == "dev"}
}

// Auth accepts "Bearer <jwt>" and, in dev, "Bearer dev-<uuid>[:role]".
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ah := r.Header.Get("Authorization")
		if len(ah) < 7 || !strings.EqualFold(ah[:7], "bearer ") {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
			return
		}
		token := strings.TrimSpace(ah[7:])

		if m.DevToken && strings.HasPrefix(token, "dev-") {
			uid, role, _ := strings.Cut(strings.TrimPrefix(token, "dev-"), ":")
			if _, err := uuid.Parse(uid); err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "dev token must be dev-<uuid>", nil)
				return
			}
			if role == "" {
				role = "client"
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), UserCtx{UserID: uid, Role: role})))
			return
		}

		claims, err := m.TM.Parse(token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid access token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), UserCtx{UserID: claims.UserID, Role: claims.Role})))
	})
}
