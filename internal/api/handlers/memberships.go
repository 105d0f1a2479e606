package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/clubhub/club-module/internal/api/errors"
	"github.com/bigkaa/clubhub/club-module/internal/service"
)

// JoinClub — POST /api/v1/clubs/{clubId}/memberships.
// Создаёт членство вызывающего в статусе pending.
func (h *APIHandler) JoinClub(w http.ResponseWriter, r *http.Request) {
	clubID, err := pathUUID(r, "clubId")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	m, err := h.memberships.Join(r.Context(), h.identity(r.Context()), clubID.String())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMembership(m))
}

// ListClubMemberships — GET /api/v1/clubs/{clubId}/memberships
// (владелец клуба или super_admin).
func (h *APIHandler) ListClubMemberships(w http.ResponseWriter, r *http.Request) {
	clubID, err := pathUUID(r, "clubId")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	q := r.URL.Query()
	limit, offset, err := readPagination(q)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	var status *string
	if err := queryParam(q, "status", &status); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	items, err := h.memberships.ListByClub(r.Context(), clubID.String(), status, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[membershipResponse]{
		Items:  mapSlice(items, toMembership),
		Total:  len(items),
		Limit:  limit,
		Offset: offset,
	})
}

// LeaveClub — DELETE /api/v1/clubs/{clubId}/memberships/me.
func (h *APIHandler) LeaveClub(w http.ResponseWriter, r *http.Request) {
	clubID, err := pathUUID(r, "clubId")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.memberships.Leave(r.Context(), h.identity(r.Context()), clubID.String())
	if err != nil && (res == nil || !service.IsPropagationWarning(err)) {
		h.writeError(w, err)
		return
	}
	if err != nil {
		w.Header().Set("Warning", `199 - "role grant retained"`)
	}
	writeJSON(w, http.StatusOK, leaveResponse{
		Membership:    toMembership(res.Membership),
		GrantRetained: res.GrantRetained,
		Warning:       res.Warning,
	})
}

// UpdateMembershipStatus — PATCH /api/v1/clubs/{clubId}/memberships/{membershipId}/status
// (владелец клуба или super_admin). Одобрение выдаёт RoleGrant участника.
func (h *APIHandler) UpdateMembershipStatus(w http.ResponseWriter, r *http.Request) {
	clubID, err := pathUUID(r, "clubId")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	membershipID, err := pathUUID(r, "membershipId")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.memberships.Transition(r.Context(), clubID.String(), membershipID.String(), req.Status, h.identity(r.Context()))
	h.writeTransition(w, res, err)
}
