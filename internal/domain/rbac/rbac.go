// Пакет rbac — глобальные роли пользователей и права участника клуба.
// Роли упорядочены по весу: member < club_manager < super_admin.
// Глобальную роль можно только повысить, не понизить.
package rbac

import "github.com/bigkaa/clubhub/club-module/internal/domain/model"

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	model.GlobalRoleMember:      1,
	model.GlobalRoleClubManager: 2,
	model.GlobalRoleSuperAdmin:  3,
}

// Права участника клуба (RoleGrant с ролью member).
const (
	PermClubRead       = "club:read"
	PermEventsRead     = "events:read"
	PermEventsRegister = "events:register"
)

// MemberPermissions возвращает набор прав участника клуба.
// Каждый вызов возвращает новый срез.
func MemberPermissions() []string {
	return []string{PermClubRead, PermEventsRead, PermEventsRegister}
}

// Promote возвращает роль после повышения current до target.
// Если current уже не ниже target — возвращается current.
func Promote(current, target string) string {
	return MaxRole(current, target)
}

// MaxRole возвращает роль с максимальными привилегиями из двух.
func MaxRole(a, b string) string {
	if roleWeight[a] >= roleWeight[b] {
		return a
	}
	return b
}

// AtLeast проверяет, что роль role не ниже min.
// Неизвестная роль не удовлетворяет ни одному требованию.
func AtLeast(role, min string) bool {
	w, ok := roleWeight[role]
	if !ok {
		return false
	}
	return w >= roleWeight[min]
}

// CanCreateClub — создавать клубы могут club_manager и super_admin.
func CanCreateClub(role string) bool {
	return AtLeast(role, model.GlobalRoleClubManager)
}

// IsValidRole проверяет, является ли строка допустимой глобальной ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}
