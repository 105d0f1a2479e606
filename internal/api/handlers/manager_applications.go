package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/clubhub/club-module/internal/api/errors"
	"github.com/bigkaa/clubhub/club-module/internal/service"
)

// ApplyForManager — POST /api/v1/manager-applications.
// Новая заявка — 201, повторная подача отклонённой — 200.
func (h *APIHandler) ApplyForManager(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	app, created, err := h.apps.Apply(r.Context(), h.identity(r.Context()), service.ApplyInput{
		Name:     req.Name,
		Reason:   req.Reason,
		PhotoURL: req.PhotoURL,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toManagerApplication(app))
}

// GetOwnManagerApplication — GET /api/v1/manager-applications/me.
func (h *APIHandler) GetOwnManagerApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.apps.GetOwn(r.Context(), h.identity(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toManagerApplication(app))
}

// ListManagerApplications — GET /api/v1/manager-applications (super_admin).
func (h *APIHandler) ListManagerApplications(w http.ResponseWriter, r *http.Request) {
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

	list, err := h.apps.List(r.Context(), status, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[managerApplicationResponse]{
		Items:  mapSlice(list.Items, toManagerApplication),
		Total:  list.Total,
		Limit:  limit,
		Offset: offset,
	})
}

// UpdateManagerApplicationStatus — PATCH /api/v1/manager-applications/{applicationId}/status
// (super_admin). Одобрение повышает глобальную роль заявителя.
func (h *APIHandler) UpdateManagerApplicationStatus(w http.ResponseWriter, r *http.Request) {
	appID, err := pathUUID(r, "applicationId")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.apps.Transition(r.Context(), appID.String(), req.Status, h.identity(r.Context()))
	h.writeTransition(w, res, err)
}
