package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gigledger/escrow/internal/api/httpx"
	"github.com/gigledger/escrow/internal/api/validate"
	"github.com/gigledger/escrow/internal/middleware"
	"github.com/gigledger/escrow/internal/services"
)

const maxBody = 1 << 20

func actor(r *http.Request) services.Actor {
	u, _ := middleware.FromCtx(r.Context())
	return services.Actor{UserID: u.UserID, Role: u.Role}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "malformed JSON body", nil)
		return false
	}
	return true
}

// pathID reads a uuid URL parameter, answering 400 when it is not one.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := chi.URLParam(r, name)
	if err := validate.Collect(validate.UUID(name, id)); err != nil {
		httpx.WriteServiceError(w, err)
		return "", false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
