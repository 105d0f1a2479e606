package model

import "time"

// Membership — членство пользователя в клубе.
// Хранится в таблице memberships; не более одной записи в статусе
// pending/active на пару (ClubID, UserEmail).
type Membership struct {
	ID        string
	ClubID    string
	UserEmail string
	// Status — статус (pending, active, rejected)
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
