package model

import "time"

// Виды расхождений производных данных.
const (
	// DriftMissingRoleGrant — активное членство без RoleGrant
	DriftMissingRoleGrant = "missing_role_grant"
	// DriftMissingPromotion — одобренная заявка, а глобальная роль ниже club_manager
	DriftMissingPromotion = "missing_promotion"
	// DriftRetainedGrant — RoleGrant без активного членства (информационно)
	DriftRetainedGrant = "retained_grant"
)

// DriftReport — результат поиска расхождений между основными
// и производными коллекциями.
type DriftReport struct {
	// MissingRoleGrants — активные членства, для которых нет RoleGrant
	MissingRoleGrants []Membership
	// MissingPromotions — одобренные заявки с непродвинутой глобальной ролью
	MissingPromotions []ManagerApplication
	// RetainedGrants — RoleGrant без активного членства (выход из клуба при политике retain)
	RetainedGrants []RoleGrant
	// CheckedAt — время проверки
	CheckedAt time.Time
}

// Empty возвращает true, если нет расхождений, требующих исправления.
// Сохранённые RoleGrant не считаются расхождением для исправления.
func (r *DriftReport) Empty() bool {
	return len(r.MissingRoleGrants) == 0 && len(r.MissingPromotions) == 0
}

// ReconcileResult — результат одного прохода сверки.
type ReconcileResult struct {
	// StartedAt — время начала сверки
	StartedAt time.Time
	// Duration — длительность сверки
	Duration time.Duration
	// MissingRoleGrants — найдено активных членств без RoleGrant
	MissingRoleGrants int
	// MissingPromotions — найдено одобренных заявок без повышения роли
	MissingPromotions int
	// RetainedGrants — найдено RoleGrant без активного членства (не исправляются)
	RetainedGrants int
	// Repaired — исправлено расхождений
	Repaired int
	// Failed — не удалось исправить
	Failed int
}
