package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/clubhub/club-module/internal/domain/lifecycle"
	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
	"github.com/bigkaa/clubhub/club-module/internal/domain/rbac"
	"github.com/bigkaa/clubhub/club-module/internal/events"
	"github.com/bigkaa/clubhub/club-module/internal/repository"
)

// --- In-memory репозитории для unit-тестов ---
//
// Каждый репозиторий хранит данные в памяти и повторяет контракт
// PostgreSQL-реализации: условные переходы, ErrNotFound/ErrConflict,
// upsert по естественному ключу. Поля *Fn позволяют подменить метод.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memPrincipals — PrincipalRepository в памяти.
type memPrincipals struct {
	mu   sync.Mutex
	rows map[string]model.Principal

	getByEmailFn func(ctx context.Context, email string) (*model.Principal, error)
	promoteFn    func(ctx context.Context, email, role string) (string, error)
	promoteCalls int
}

func newMemPrincipals(ps ...model.Principal) *memPrincipals {
	m := &memPrincipals{rows: make(map[string]model.Principal)}
	for _, p := range ps {
		m.rows[p.Email] = p
	}
	return m
}

func (m *memPrincipals) Register(_ context.Context, p *model.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := m.rows[p.Email]; ok {
		existing.Name = p.Name
		existing.PhotoURL = p.PhotoURL
		existing.UpdatedAt = now
		m.rows[p.Email] = existing
		*p = existing
		return nil
	}
	p.GlobalRole = model.GlobalRoleMember
	p.CreatedAt, p.UpdatedAt = now, now
	m.rows[p.Email] = *p
	return nil
}

func (m *memPrincipals) GetByEmail(ctx context.Context, email string) (*model.Principal, error) {
	if m.getByEmailFn != nil {
		return m.getByEmailFn(ctx, email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m *memPrincipals) PromoteGlobalRole(ctx context.Context, email, role string) (string, error) {
	m.mu.Lock()
	m.promoteCalls++
	m.mu.Unlock()
	if m.promoteFn != nil {
		return m.promoteFn(ctx, email, role)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[email]
	if !ok {
		p = model.Principal{Email: email, GlobalRole: model.GlobalRoleMember}
	}
	p.GlobalRole = rbac.Promote(p.GlobalRole, role)
	m.rows[email] = p
	return p.GlobalRole, nil
}

func (m *memPrincipals) role(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[email].GlobalRole
}

// memClubs — ClubRepository в памяти.
type memClubs struct {
	mu   sync.Mutex
	rows map[string]model.Club

	getCalls       int
	updateStatusFn func(ctx context.Context, id, expected, next string) (*model.Club, error)
}

func newMemClubs(cs ...model.Club) *memClubs {
	m := &memClubs{rows: make(map[string]model.Club)}
	for _, c := range cs {
		m.rows[c.ID] = c
	}
	return m
}

func (m *memClubs) Create(_ context.Context, c *model.Club) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[c.ID]; ok {
		return repository.ErrConflict
	}
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	m.rows[c.ID] = *c
	return nil
}

func (m *memClubs) GetByID(_ context.Context, id string) (*model.Club, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	c, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (m *memClubs) List(_ context.Context, f repository.ClubFilter) ([]*model.Club, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Club
	for _, c := range m.rows {
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		if f.OwnerEmail != nil && c.OwnerEmail != *f.OwnerEmail {
			continue
		}
		if f.Category != nil && c.Category != *f.Category {
			continue
		}
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memClubs) Count(ctx context.Context, f repository.ClubFilter) (int, error) {
	items, err := m.List(ctx, f)
	return len(items), err
}

func (m *memClubs) UpdateStatus(ctx context.Context, id, expected, next string) (*model.Club, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, expected, next)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if c.Status != expected {
		return nil, repository.ErrConflict
	}
	c.Status = next
	c.UpdatedAt = time.Now().UTC()
	m.rows[id] = c
	return &c, nil
}

func (m *memClubs) Update(_ context.Context, id string, patch model.ClubPatch) (*model.Club, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if patch.MembershipFee != nil {
		c.MembershipFee = *patch.MembershipFee
	}
	m.rows[id] = c
	return &c, nil
}

// memMemberships — MembershipRepository в памяти.
type memMemberships struct {
	mu   sync.Mutex
	rows map[string]model.Membership
}

func newMemMemberships(ms ...model.Membership) *memMemberships {
	m := &memMemberships{rows: make(map[string]model.Membership)}
	for _, ms := range ms {
		m.rows[ms.ID] = ms
	}
	return m
}

func (m *memMemberships) Create(_ context.Context, ms *model.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		live := r.Status == lifecycle.StatusPending || r.Status == lifecycle.StatusActive
		if live && r.ClubID == ms.ClubID && r.UserEmail == ms.UserEmail {
			return repository.ErrConflict
		}
	}
	m.rows[ms.ID] = *ms
	return nil
}

func (m *memMemberships) GetByID(_ context.Context, id string) (*model.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (m *memMemberships) ListByClub(_ context.Context, clubID string, status *string, _, _ int) ([]*model.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Membership
	for _, r := range m.rows {
		if r.ClubID != clubID || (status != nil && r.Status != *status) {
			continue
		}
		r := r
		out = append(out, &r)
	}
	return out, nil
}

func (m *memMemberships) UpdateStatus(_ context.Context, id, expected, next string) (*model.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if r.Status != expected {
		return nil, repository.ErrConflict
	}
	r.Status = next
	m.rows[id] = r
	return &r, nil
}

func (m *memMemberships) DeleteActive(_ context.Context, clubID, userEmail string) (*model.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.rows {
		if r.ClubID == clubID && r.UserEmail == userEmail && r.Status == lifecycle.StatusActive {
			delete(m.rows, id)
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

// memEvents — EventRepository в памяти.
type memEvents struct {
	mu       sync.Mutex
	rows     map[string]model.Event
	lastList repository.EventFilter
}

func newMemEvents(es ...model.Event) *memEvents {
	m := &memEvents{rows: make(map[string]model.Event)}
	for _, e := range es {
		m.rows[e.ID] = e
	}
	return m
}

func (m *memEvents) Create(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[e.ID] = *e
	return nil
}

func (m *memEvents) GetByID(_ context.Context, id string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (m *memEvents) List(_ context.Context, f repository.EventFilter) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastList = f
	var out []*model.Event
	for _, e := range m.rows {
		if f.Status != nil && e.Status != *f.Status {
			continue
		}
		if f.ClubID != nil && e.ClubID != *f.ClubID {
			continue
		}
		e := e
		out = append(out, &e)
	}
	return out, nil
}

func (m *memEvents) Count(ctx context.Context, f repository.EventFilter) (int, error) {
	items, err := m.List(ctx, f)
	return len(items), err
}

func (m *memEvents) UpdateStatus(_ context.Context, id, expected, next string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if e.Status != expected {
		return nil, repository.ErrConflict
	}
	e.Status = next
	m.rows[id] = e
	return &e, nil
}

// memApps — ManagerApplicationRepository в памяти.
type memApps struct {
	mu   sync.Mutex
	rows map[string]model.ManagerApplication
}

func newMemApps(as ...model.ManagerApplication) *memApps {
	m := &memApps{rows: make(map[string]model.ManagerApplication)}
	for _, a := range as {
		m.rows[a.ID] = a
	}
	return m
}

func (m *memApps) Create(_ context.Context, a *model.ManagerApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Email == a.Email {
			return repository.ErrConflict
		}
	}
	a.AppliedAt = time.Now().UTC()
	m.rows[a.ID] = *a
	return nil
}

func (m *memApps) GetByID(_ context.Context, id string) (*model.ManagerApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (m *memApps) GetByEmail(_ context.Context, email string) (*model.ManagerApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memApps) List(_ context.Context, status *string, _, _ int) ([]*model.ManagerApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ManagerApplication
	for _, a := range m.rows {
		if status != nil && a.Status != *status {
			continue
		}
		a := a
		out = append(out, &a)
	}
	return out, nil
}

func (m *memApps) Count(ctx context.Context, status *string) (int, error) {
	items, err := m.List(ctx, status, 0, 0)
	return len(items), err
}

func (m *memApps) UpdateStatus(_ context.Context, id, expected, next string) (*model.ManagerApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.Status != expected {
		return nil, repository.ErrConflict
	}
	a.Status = next
	m.rows[id] = a
	return &a, nil
}

func (m *memApps) Reapply(_ context.Context, a *model.ManagerApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if r.Status != lifecycle.StatusRejected {
		return repository.ErrConflict
	}
	r.Name, r.Reason, r.PhotoURL = a.Name, a.Reason, a.PhotoURL
	r.Status = lifecycle.StatusPending
	r.AppliedAt = time.Now().UTC()
	m.rows[a.ID] = r
	*a = r
	return nil
}

// memGrants — RoleGrantRepository в памяти.
type memGrants struct {
	mu   sync.Mutex
	rows map[string]model.RoleGrant

	upsertFn    func(ctx context.Context, g *model.RoleGrant) error
	upsertCalls int
}

func newMemGrants(gs ...model.RoleGrant) *memGrants {
	m := &memGrants{rows: make(map[string]model.RoleGrant)}
	for _, g := range gs {
		m.rows[g.ClubID+"/"+g.UserEmail] = g
	}
	return m
}

func (m *memGrants) Upsert(ctx context.Context, g *model.RoleGrant) error {
	m.mu.Lock()
	m.upsertCalls++
	m.mu.Unlock()
	if m.upsertFn != nil {
		if err := m.upsertFn(ctx, g); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := g.ClubID + "/" + g.UserEmail
	now := time.Now().UTC()
	if existing, ok := m.rows[key]; ok {
		g.AssignedAt = existing.AssignedAt
	} else {
		g.AssignedAt = now
	}
	g.UpdatedAt = now
	m.rows[key] = *g
	return nil
}

func (m *memGrants) Get(_ context.Context, clubID, userEmail string) (*model.RoleGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.rows[clubID+"/"+userEmail]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &g, nil
}

func (m *memGrants) ListByUser(_ context.Context, userEmail string) ([]*model.RoleGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RoleGrant
	for _, g := range m.rows {
		if g.UserEmail == userEmail {
			g := g
			out = append(out, &g)
		}
	}
	return out, nil
}

func (m *memGrants) Delete(_ context.Context, clubID, userEmail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := clubID + "/" + userEmail
	if _, ok := m.rows[key]; !ok {
		return repository.ErrNotFound
	}
	delete(m.rows, key)
	return nil
}

func (m *memGrants) has(clubID, userEmail string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[clubID+"/"+userEmail]
	return ok
}

// memDrift — DriftRepository поверх in-memory репозиториев.
type memDrift struct {
	memberships *memMemberships
	apps        *memApps
	principals  *memPrincipals
	grants      *memGrants
}

func (d *memDrift) MissingRoleGrants(_ context.Context, _ int) ([]model.Membership, error) {
	d.memberships.mu.Lock()
	defer d.memberships.mu.Unlock()
	var out []model.Membership
	for _, m := range d.memberships.rows {
		if m.Status == lifecycle.StatusActive && !d.grants.has(m.ClubID, m.UserEmail) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (d *memDrift) MissingPromotions(_ context.Context, _ int) ([]model.ManagerApplication, error) {
	d.apps.mu.Lock()
	defer d.apps.mu.Unlock()
	var out []model.ManagerApplication
	for _, a := range d.apps.rows {
		if a.Status == lifecycle.StatusApproved && !rbac.AtLeast(d.principals.role(a.Email), model.GlobalRoleClubManager) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (d *memDrift) RetainedGrants(_ context.Context, _ int) ([]model.RoleGrant, error) {
	d.grants.mu.Lock()
	var all []model.RoleGrant
	for _, g := range d.grants.rows {
		all = append(all, g)
	}
	d.grants.mu.Unlock()

	d.memberships.mu.Lock()
	defer d.memberships.mu.Unlock()
	var out []model.RoleGrant
	for _, g := range all {
		active := false
		for _, m := range d.memberships.rows {
			if m.ClubID == g.ClubID && m.UserEmail == g.UserEmail && m.Status == lifecycle.StatusActive {
				active = true
				break
			}
		}
		if !active {
			out = append(out, g)
		}
	}
	return out, nil
}

// recordingPublisher — events.Publisher, запоминающий события.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.LifecycleEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// world — набор in-memory репозиториев и сервисов для сценарных тестов.
type world struct {
	principals  *memPrincipals
	clubs       *memClubs
	memberships *memMemberships
	events      *memEvents
	apps        *memApps
	grants      *memGrants
	publisher   *recordingPublisher

	propagator  *Propagator
	guards      *Guards
	clubSvc     *ClubService
	eventSvc    *EventService
	membership  *MembershipService
	applicant   *ManagerApplicationService
	principal   *PrincipalService
	reconciler  *Reconciler
}

func newWorld(policy LeaveGrantPolicy) *world {
	w := &world{
		principals:  newMemPrincipals(),
		clubs:       newMemClubs(),
		memberships: newMemMemberships(),
		events:      newMemEvents(),
		apps:        newMemApps(),
		grants:      newMemGrants(),
		publisher:   &recordingPublisher{},
	}
	logger := testLogger()
	drift := &memDrift{memberships: w.memberships, apps: w.apps, principals: w.principals, grants: w.grants}

	w.propagator = NewPropagator(w.grants, w.principals, drift, 2, time.Second, logger)
	w.propagator.SetBackoff(time.Millisecond, 2*time.Millisecond)
	w.guards = NewGuards(w.principals, w.clubs, time.Second, logger)
	w.clubSvc = NewClubService(w.clubs, w.principals, NewClubCache(100, time.Minute), w.publisher, time.Second, logger)
	w.eventSvc = NewEventService(w.events, w.clubs, w.principals, w.publisher, time.Second, logger)
	w.membership = NewMembershipService(w.memberships, w.clubs, w.propagator, w.publisher, policy, time.Second, logger)
	w.applicant = NewManagerApplicationService(w.apps, w.propagator, w.publisher, time.Second, logger)
	w.principal = NewPrincipalService(w.principals, w.grants, w.apps, time.Second, logger)
	w.reconciler = NewReconciler(w.propagator, time.Hour, logger)
	return w
}

// Фиксированные идентификаторы тестовых сущностей.
const (
	clubC1ID       = "0b8a1a52-6c1e-4f57-9a55-3b9b4b3c9e01"
	clubC2ID       = "0b8a1a52-6c1e-4f57-9a55-3b9b4b3c9e02"
	membershipM1ID = "5d2c8f0e-2a7b-4c1d-8e3f-6a9b0c1d2e01"
	eventE1ID      = "9f1e2d3c-4b5a-4968-8776-a5b4c3d2e101"
	applicationID  = "c3d4e5f6-a7b8-4c9d-8e0f-1a2b3c4d5e01"
	unknownID      = "ffffffff-ffff-4fff-bfff-ffffffffffff"
)

func identity(email string) *model.Identity {
	return &model.Identity{Email: email, Subject: "sub-" + email}
}
