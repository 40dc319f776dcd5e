package model

import "time"

// Operator — оператор КПП или администратор системы.
type Operator struct {
	// UserID — внутренний идентификатор оператора.
	UserID int64 `json:"user_id"`
	// Username — имя учётной записи (уникальное).
	Username string `json:"username"`
	// PasswordHash — bcrypt-хэш пароля, наружу не отдаётся.
	PasswordHash string `json:"-"`
	// Role — роль (admin, gate_operator).
	Role string `json:"role"`
	// CreatedAt — дата создания учётной записи.
	CreatedAt time.Time `json:"created_at"`
}
