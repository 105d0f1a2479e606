package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime/types"

	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
	"github.com/bigkaa/clubhub/club-module/internal/service"
)

// --- Тела запросов ---

type statusRequest struct {
	Status string `json:"status"`
}

type registerRequest struct {
	Name     string  `json:"name"`
	PhotoURL *string `json:"photoUrl"`
}

type createClubRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Location      string   `json:"location"`
	BannerURL     *string  `json:"bannerUrl"`
	MembershipFee *float64 `json:"membershipFee"`
}

type updateClubRequest struct {
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	Category      *string  `json:"category"`
	Location      *string  `json:"location"`
	BannerURL     *string  `json:"bannerUrl"`
	MembershipFee *float64 `json:"membershipFee"`
}

type createEventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"startsAt"`
	Fee         *float64  `json:"fee"`
}

type applyRequest struct {
	Name     string  `json:"name"`
	Reason   string  `json:"reason"`
	PhotoURL *string `json:"photoUrl"`
}

// --- Ответы ---

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type principalResponse struct {
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	PhotoURL   *string   `json:"photoUrl,omitempty"`
	GlobalRole string    `json:"globalRole"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type roleGrantResponse struct {
	ClubID      types.UUID `json:"clubId"`
	UserEmail   string     `json:"userEmail"`
	Role        string     `json:"role"`
	Permissions []string   `json:"permissions"`
	AssignedAt  time.Time  `json:"assignedAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type profileResponse struct {
	principalResponse
	RoleGrants         []roleGrantResponse         `json:"roleGrants"`
	ManagerApplication *managerApplicationResponse `json:"managerApplication,omitempty"`
}

type clubResponse struct {
	ID            types.UUID `json:"id"`
	OwnerEmail    string     `json:"ownerEmail"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Category      string     `json:"category"`
	Location      string     `json:"location"`
	BannerURL     *string    `json:"bannerUrl,omitempty"`
	MembershipFee float64    `json:"membershipFee"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type eventResponse struct {
	ID          types.UUID `json:"id"`
	ClubID      types.UUID `json:"clubId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	StartsAt    time.Time  `json:"startsAt"`
	Fee         float64    `json:"fee"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type membershipResponse struct {
	ID        types.UUID `json:"id"`
	ClubID    types.UUID `json:"clubId"`
	UserEmail string     `json:"userEmail"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type managerApplicationResponse struct {
	ID        types.UUID `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Reason    string     `json:"reason"`
	PhotoURL  *string    `json:"photoUrl,omitempty"`
	Status    string     `json:"status"`
	AppliedAt time.Time  `json:"appliedAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type propagationResponse struct {
	Status     string             `json:"status"`
	RoleGrant  *roleGrantResponse `json:"roleGrant,omitempty"`
	GlobalRole string             `json:"globalRole,omitempty"`
	Warning    string             `json:"warning,omitempty"`
}

type transitionResponse struct {
	Entity             string                      `json:"entity"`
	From               string                      `json:"from"`
	To                 string                      `json:"to"`
	Actor              string                      `json:"actor"`
	Club               *clubResponse               `json:"club,omitempty"`
	Event              *eventResponse              `json:"event,omitempty"`
	Membership         *membershipResponse         `json:"membership,omitempty"`
	ManagerApplication *managerApplicationResponse `json:"managerApplication,omitempty"`
	Propagation        *propagationResponse        `json:"propagation,omitempty"`
}

type leaveResponse struct {
	Membership    membershipResponse `json:"membership"`
	GrantRetained bool               `json:"grantRetained"`
	Warning       string             `json:"warning,omitempty"`
}

type driftResponse struct {
	MissingRoleGrants []membershipResponse         `json:"missingRoleGrants"`
	MissingPromotions []managerApplicationResponse `json:"missingPromotions"`
	RetainedGrants    []roleGrantResponse          `json:"retainedGrants"`
	CheckedAt         time.Time                    `json:"checkedAt"`
}

type reconcileResponse struct {
	StartedAt         time.Time `json:"startedAt"`
	DurationMs        int64     `json:"durationMs"`
	MissingRoleGrants int       `json:"missingRoleGrants"`
	MissingPromotions int       `json:"missingPromotions"`
	RetainedGrants    int       `json:"retainedGrants"`
	Repaired          int       `json:"repaired"`
	Failed            int       `json:"failed"`
}

// --- Преобразование моделей ---

// toUUID преобразует идентификатор хранилища (колонки uuid).
func toUUID(s string) types.UUID {
	id, _ := uuid.Parse(s)
	return id
}

func toPrincipal(p *model.Principal) principalResponse {
	return principalResponse{
		Email:      p.Email,
		Name:       p.Name,
		PhotoURL:   p.PhotoURL,
		GlobalRole: p.GlobalRole,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func toRoleGrant(g *model.RoleGrant) roleGrantResponse {
	perms := g.Permissions
	if perms == nil {
		perms = []string{}
	}
	return roleGrantResponse{
		ClubID:      toUUID(g.ClubID),
		UserEmail:   g.UserEmail,
		Role:        g.Role,
		Permissions: perms,
		AssignedAt:  g.AssignedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func toProfile(p *service.Profile) profileResponse {
	resp := profileResponse{
		principalResponse: toPrincipal(p.Principal),
		RoleGrants:        make([]roleGrantResponse, 0, len(p.RoleGrants)),
	}
	for _, g := range p.RoleGrants {
		resp.RoleGrants = append(resp.RoleGrants, toRoleGrant(g))
	}
	if p.Application != nil {
		app := toManagerApplication(p.Application)
		resp.ManagerApplication = &app
	}
	return resp
}

func toClub(c *model.Club) clubResponse {
	return clubResponse{
		ID:            toUUID(c.ID),
		OwnerEmail:    c.OwnerEmail,
		Name:          c.Name,
		Description:   c.Description,
		Category:      c.Category,
		Location:      c.Location,
		BannerURL:     c.BannerURL,
		MembershipFee: c.MembershipFee,
		Status:        c.Status,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func toEvent(e *model.Event) eventResponse {
	return eventResponse{
		ID:          toUUID(e.ID),
		ClubID:      toUUID(e.ClubID),
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		StartsAt:    e.StartsAt,
		Fee:         e.Fee,
		Status:      e.Status,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func toMembership(m *model.Membership) membershipResponse {
	return membershipResponse{
		ID:        toUUID(m.ID),
		ClubID:    toUUID(m.ClubID),
		UserEmail: m.UserEmail,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toManagerApplication(a *model.ManagerApplication) managerApplicationResponse {
	return managerApplicationResponse{
		ID:        toUUID(a.ID),
		Email:     a.Email,
		Name:      a.Name,
		Reason:    a.Reason,
		PhotoURL:  a.PhotoURL,
		Status:    a.Status,
		AppliedAt: a.AppliedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toTransition(res *service.TransitionResult) transitionResponse {
	resp := transitionResponse{
		Entity: string(res.Transition.Entity),
		From:   res.Transition.From,
		To:     res.Transition.To,
		Actor:  res.Actor,
	}
	if res.Club != nil {
		c := toClub(res.Club)
		resp.Club = &c
	}
	if res.Event != nil {
		e := toEvent(res.Event)
		resp.Event = &e
	}
	if res.Membership != nil {
		m := toMembership(res.Membership)
		resp.Membership = &m
	}
	if res.Application != nil {
		a := toManagerApplication(res.Application)
		resp.ManagerApplication = &a
	}
	if p := res.Propagation; p != nil {
		resp.Propagation = &propagationResponse{
			Status:     p.Status,
			GlobalRole: p.GlobalRole,
			Warning:    p.Warning,
		}
		if p.RoleGrant != nil {
			g := toRoleGrant(p.RoleGrant)
			resp.Propagation.RoleGrant = &g
		}
	}
	return resp
}

func toDrift(r *model.DriftReport) driftResponse {
	resp := driftResponse{
		MissingRoleGrants: make([]membershipResponse, 0, len(r.MissingRoleGrants)),
		MissingPromotions: make([]managerApplicationResponse, 0, len(r.MissingPromotions)),
		RetainedGrants:    make([]roleGrantResponse, 0, len(r.RetainedGrants)),
		CheckedAt:         r.CheckedAt,
	}
	for i := range r.MissingRoleGrants {
		resp.MissingRoleGrants = append(resp.MissingRoleGrants, toMembership(&r.MissingRoleGrants[i]))
	}
	for i := range r.MissingPromotions {
		resp.MissingPromotions = append(resp.MissingPromotions, toManagerApplication(&r.MissingPromotions[i]))
	}
	for i := range r.RetainedGrants {
		resp.RetainedGrants = append(resp.RetainedGrants, toRoleGrant(&r.RetainedGrants[i]))
	}
	return resp
}

func toReconcile(r *model.ReconcileResult) reconcileResponse {
	return reconcileResponse{
		StartedAt:         r.StartedAt,
		DurationMs:        r.Duration.Milliseconds(),
		MissingRoleGrants: r.MissingRoleGrants,
		MissingPromotions: r.MissingPromotions,
		RetainedGrants:    r.RetainedGrants,
		Repaired:          r.Repaired,
		Failed:            r.Failed,
	}
}

func mapSlice[S any, D any](items []S, fn func(S) D) []D {
	out := make([]D, 0, len(items))
	for _, it := range items {
		out = append(out, fn(it))
	}
	return out
}
