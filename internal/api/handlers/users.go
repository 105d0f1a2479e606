package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/clubhub/club-module/internal/api/errors"
	"github.com/bigkaa/clubhub/club-module/internal/service"
)

// GetMe — GET /api/v1/users/me.
func (h *APIHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	profile, err := h.principals.Me(r.Context(), h.identity(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfile(profile))
}

// RegisterMe — POST /api/v1/users/me.
// Email берётся из токена, глобальная роль не изменяется.
func (h *APIHandler) RegisterMe(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	p, err := h.principals.Register(r.Context(), h.identity(r.Context()), service.RegisterInput{
		Name:     req.Name,
		PhotoURL: req.PhotoURL,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPrincipal(p))
}
