package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/clubhub/club-module/internal/api/errors"
	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
	"github.com/bigkaa/clubhub/club-module/internal/repository"
	"github.com/bigkaa/clubhub/club-module/internal/service"
)

// ListClubs — GET /api/v1/clubs.
func (h *APIHandler) ListClubs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, err := readPagination(q)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	f := repository.ClubFilter{Limit: limit, Offset: offset}
	var sortBy, sortOrder *string
	for name, dst := range map[string]**string{
		"search":     &f.Search,
		"category":   &f.Category,
		"status":     &f.Status,
		"ownerEmail": &f.OwnerEmail,
		"sortBy":     &sortBy,
		"sortOrder":  &sortOrder,
	} {
		if err := queryParam(q, name, dst); err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}
	}
	if sortBy != nil {
		f.SortBy = *sortBy
	}
	if sortOrder != nil {
		f.SortOrder = *sortOrder
	}

	list, err := h.clubs.List(r.Context(), h.identity(r.Context()), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[clubResponse]{
		Items:  mapSlice(list.Items, toClub),
		Total:  list.Total,
		Limit:  limit,
		Offset: offset,
	})
}

// CreateClub — POST /api/v1/clubs. Владелец — вызывающий.
func (h *APIHandler) CreateClub(w http.ResponseWriter, r *http.Request) {
	var req createClubRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	in := service.CreateClubInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Location:    req.Location,
		BannerURL:   req.BannerURL,
	}
	if req.MembershipFee != nil {
		in.MembershipFee = *req.MembershipFee
	}

	club, err := h.clubs.Create(r.Context(), h.identity(r.Context()), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClub(club))
}

// GetClub — GET /api/v1/clubs/{clubId}.
func (h *APIHandler) GetClub(w http.ResponseWriter, r *http.Request) {
	clubID, err := pathUUID(r, "clubId")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	club, err := h.clubs.Get(r.Context(), h.identity(r.Context()), clubID.String())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClub(club))
}

// UpdateClub — PATCH /api/v1/clubs/{clubId}. Право владельца проверено guard.
// Статус и владелец через этот эндпоинт не изменяются.
func (h *APIHandler) UpdateClub(w http.ResponseWriter, r *http.Request) {
	clubID, err := pathUUID(r, "clubId")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	var req updateClubRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	club, err := h.clubs.Update(r.Context(), clubID.String(), model.ClubPatch{
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		Location:      req.Location,
		BannerURL:     req.BannerURL,
		MembershipFee: req.MembershipFee,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClub(club))
}

// UpdateClubStatus — PATCH /api/v1/clubs/{clubId}/status (super_admin).
func (h *APIHandler) UpdateClubStatus(w http.ResponseWriter, r *http.Request) {
	clubID, err := pathUUID(r, "clubId")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.clubs.Transition(r.Context(), clubID.String(), req.Status, h.identity(r.Context()))
	h.writeTransition(w, res, err)
}
