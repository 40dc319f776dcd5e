// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrInvalidRole — некорректная роль.
	ErrInvalidRole = errors.New("некорректная роль: допустимые значения — admin, gate_operator")
	// ErrInvalidCredentials — неверное имя пользователя или пароль.
	ErrInvalidCredentials = errors.New("неверное имя пользователя или пароль")
	// ErrRegistrationClosed — регистрация операторов запрещена конфигурацией.
	ErrRegistrationClosed = errors.New("регистрация операторов запрещена")
	// ErrLoggingFailed — решение КПП не записано в журнал.
	// Решение без записи в журнал не выдаётся: инвариант log-then-respond.
	ErrLoggingFailed = errors.New("запись решения в журнал не удалась")
)
