package model

import "time"

// ManagerApplication — заявка пользователя на роль club_manager.
// Одна запись на email; после отклонения заявку можно подать повторно.
type ManagerApplication struct {
	// ID — UUID заявки
	ID string
	// Email — email заявителя (из проверенного токена, не из тела запроса)
	Email string
	// Name — имя заявителя
	Name string
	// Reason — мотивация
	Reason string
	// PhotoURL — ссылка на фото (опционально)
	PhotoURL *string
	// Status — статус (pending, approved, rejected)
	Status string
	// AppliedAt — время подачи (обновляется при повторной подаче)
	AppliedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
