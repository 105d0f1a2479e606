package server

import (
	"context"
	"sync"
	"time"

	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
	"github.com/bigkaa/clubhub/club-module/internal/repository"
)

// memClubs — хранилище клубов в памяти.
type memClubs struct {
	mu   sync.Mutex
	rows map[string]model.Club
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
	c, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (m *memClubs) List(context.Context, repository.ClubFilter) ([]*model.Club, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Club, 0, len(m.rows))
	for _, c := range m.rows {
		out = append(out, &c)
	}
	return out, nil
}

func (m *memClubs) Count(ctx context.Context, f repository.ClubFilter) (int, error) {
	items, err := m.List(ctx, f)
	return len(items), err
}

func (m *memClubs) UpdateStatus(_ context.Context, id, expected, next string) (*model.Club, error) {
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

// status возвращает текущий статус клуба напрямую из хранилища.
func (m *memClubs) status(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Status
}

// memPrincipals — хранилище пользователей в памяти.
type memPrincipals struct {
	mu   sync.Mutex
	rows map[string]model.Principal
}

func (m *memPrincipals) Register(_ context.Context, p *model.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rows[p.Email]; ok {
		p.GlobalRole = existing.GlobalRole
	} else if p.GlobalRole == "" {
		p.GlobalRole = model.GlobalRoleMember
	}
	m.rows[p.Email] = *p
	return nil
}

func (m *memPrincipals) GetByEmail(_ context.Context, email string) (*model.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m *memPrincipals) PromoteGlobalRole(_ context.Context, email, role string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.rows[email]
	p.Email = email
	if p.GlobalRole != model.GlobalRoleSuperAdmin {
		p.GlobalRole = role
	}
	m.rows[email] = p
	return p.GlobalRole, nil
}
