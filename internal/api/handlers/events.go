package handlers

import (
	"net/http"

	"github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/clubhub/club-module/internal/api/errors"
	"github.com/bigkaa/clubhub/club-module/internal/repository"
	"github.com/bigkaa/clubhub/club-module/internal/service"
)

// CreateEvent — POST /api/v1/clubs/{clubId}/events (владелец клуба).
func (h *APIHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	clubID, err := pathUUID(r, "clubId")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	in := service.CreateEventInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartsAt:    req.StartsAt,
	}
	if req.Fee != nil {
		in.Fee = *req.Fee
	}

	ev, err := h.events.Create(r.Context(), clubID.String(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEvent(ev))
}

// ListEvents — GET /api/v1/events.
func (h *APIHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, err := readPagination(q)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	var (
		clubID            *types.UUID
		status            *string
		upcoming          *bool
		sortBy, sortOrder *string
	)
	params := []struct {
		name string
		dst  any
	}{
		{"clubId", &clubID},
		{"status", &status},
		{"upcoming", &upcoming},
		{"sortBy", &sortBy},
		{"sortOrder", &sortOrder},
	}
	for _, p := range params {
		if err := queryParam(q, p.name, p.dst); err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}
	}

	f := repository.EventFilter{Status: status, Limit: limit, Offset: offset}
	if clubID != nil {
		s := clubID.String()
		f.ClubID = &s
	}
	if upcoming != nil {
		f.UpcomingOnly = *upcoming
	}
	if sortBy != nil {
		f.SortBy = *sortBy
	}
	if sortOrder != nil {
		f.SortOrder = *sortOrder
	}

	list, err := h.events.List(r.Context(), h.identity(r.Context()), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[eventResponse]{
		Items:  mapSlice(list.Items, toEvent),
		Total:  list.Total,
		Limit:  limit,
		Offset: offset,
	})
}

// UpdateEventStatus — PATCH /api/v1/events/{eventId}/status (super_admin).
func (h *APIHandler) UpdateEventStatus(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathUUID(r, "eventId")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.events.Transition(r.Context(), eventID.String(), req.Status, h.identity(r.Context()))
	h.writeTransition(w, res, err)
}
