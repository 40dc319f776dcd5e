// Пакет rbac — закрытый набор ролей операторов Gate Module.
// Роль проверяется один раз на границе авторизации (handlers);
// рабочий процесс КПП доверие из роли повторно не выводит.
package rbac

// Роли операторов.
const (
	// RoleAdmin — администратор: управление студентами, активами, операторами.
	RoleAdmin = "admin"
	// RoleGateOperator — оператор КПП: сканирование на выходе.
	RoleGateOperator = "gate_operator"
)

// validRoles — закрытое перечисление допустимых ролей.
var validRoles = map[string]bool{
	RoleAdmin:        true,
	RoleGateOperator: true,
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	return validRoles[role]
}

// CanOperateGate сообщает, допущена ли роль к операциям КПП.
// Администратор также может работать на КПП.
func CanOperateGate(role string) bool {
	return role == RoleAdmin || role == RoleGateOperator
}

// CanAdminister сообщает, допущена ли роль к административным операциям.
func CanAdminister(role string) bool {
	return role == RoleAdmin
}
