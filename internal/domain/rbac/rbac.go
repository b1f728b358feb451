// Пакет rbac — роли консоли и их вычисление из групп IdP.
// Роли упорядочены: readonly < editor < admin. Старшая роль включает права младших.
package rbac

// Роли в порядке возрастания привилегий.
const (
	// RoleReadonly — просмотр записей, статистики и состояния промоушенов
	RoleReadonly = "readonly"
	// RoleEditor — создание, изменение, удаление и деплой записей
	RoleEditor = "editor"
	// RoleAdmin — всё перечисленное и промоушен между метками
	RoleAdmin = "admin"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	RoleReadonly: 1,
	RoleEditor:   2,
	RoleAdmin:    3,
}

// maxRole возвращает роль с максимальными привилегиями из двух.
func maxRole(a, b string) string {
	if roleWeight[a] >= roleWeight[b] {
		return a
	}
	return b
}

// HighestRole возвращает максимальную роль из набора.
// Если набор пуст — возвращает пустую строку.
func HighestRole(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	highest := roles[0]
	for _, r := range roles[1:] {
		highest = maxRole(highest, r)
	}
	return highest
}

// MapGroupsToRole определяет роль пользователя по его группам IdP.
// Возвращает максимальную роль из всех совпадений или пустую строку.
func MapGroupsToRole(groups []string, adminGroups, editorGroups, readonlyGroups []string) string {
	adminSet := toSet(adminGroups)
	editorSet := toSet(editorGroups)
	readonlySet := toSet(readonlyGroups)

	var roles []string
	for _, g := range groups {
		if adminSet[g] {
			roles = append(roles, RoleAdmin)
		}
		if editorSet[g] {
			roles = append(roles, RoleEditor)
		}
		if readonlySet[g] {
			roles = append(roles, RoleReadonly)
		}
	}

	return HighestRole(roles)
}

// AtLeast проверяет, что role не ниже required.
// Неизвестная или пустая роль не проходит ни одну проверку.
func AtLeast(role, required string) bool {
	w, ok := roleWeight[role]
	if !ok {
		return false
	}
	return w >= roleWeight[required]
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// toSet конвертирует срез строк в map для быстрого поиска.
func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
