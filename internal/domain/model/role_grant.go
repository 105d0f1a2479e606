package model

import "time"

// Роли в клубе.
const (
	ClubRoleMember = "member"
)

// RoleGrant — производная запись о роли пользователя в клубе.
// Создаётся только Propagator при активации членства.
// Ключ — (ClubID, UserEmail); AssignedAt устанавливается один раз при вставке.
type RoleGrant struct {
	ClubID      string
	UserEmail   string
	Role        string
	Permissions []string
	AssignedAt  time.Time
	UpdatedAt   time.Time
}
