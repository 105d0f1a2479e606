package model

import "time"

// Глобальные роли пользователя.
const (
	GlobalRoleMember      = "member"
	GlobalRoleClubManager = "club_manager"
	GlobalRoleSuperAdmin  = "super_admin"
)

// Principal — пользователь системы с глобальной ролью.
// Хранится в таблице principals, ключ — email в нижнем регистре.
type Principal struct {
	// Email — идентификатор пользователя (из проверенного токена)
	Email string
	// GlobalRole — глобальная роль (member, club_manager, super_admin).
	// Производное поле: изменяется только Propagator и начальной загрузкой администраторов.
	GlobalRole string
	// Name — отображаемое имя
	Name string
	// PhotoURL — ссылка на фото (опционально)
	PhotoURL *string
	// CreatedAt — время регистрации
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
