package models

// Роли, которые может нести claim role.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// AllRoles возвращает слайс всех определенных ролей.
func AllRoles() []string {
	return []string{RoleUser, RoleModerator, RoleAdmin}
}

// IsKnownRole reports whether role is one of AllRoles.
func IsKnownRole(role string) bool {
	for _, r := range AllRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole проверяет, входит ли роль пользователя в список разрешенных.
func HasAnyRole(role string, allowed ...string) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}
