// Пакет model — доменные модели Gate Module.
// Чистые структуры данных без бизнес-логики, маппятся на таблицы PostgreSQL.
package model

import "time"

// Статусы студента.
const (
	// StudentStatusActive — студент активен, выход разрешён.
	StudentStatusActive = "active"
	// StudentStatusBlocked — студент заблокирован.
	StudentStatusBlocked = "blocked"
)

// Student — студент, владелец зарегистрированных активов.
type Student struct {
	// StudentID — идентификатор студента (номер студенческого билета).
	StudentID string `json:"student_id"`
	// FullName — полное имя.
	FullName string `json:"full_name"`
	// Status — статус (active, blocked).
	Status string `json:"status"`
	// CreatedAt — дата создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// IsActive сообщает, активен ли студент.
func (s *Student) IsActive() bool {
	return s.Status == StudentStatusActive
}
