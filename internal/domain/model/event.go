package model

import "time"

// Event — мероприятие клуба.
type Event struct {
	ID          string
	ClubID      string
	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	Fee         float64
	// Status — статус (pending, approved, rejected)
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
