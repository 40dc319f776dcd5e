package model

import "time"

// Результаты решения на КПП.
const (
	// ResultAllowed — выход разрешён.
	ResultAllowed = "ALLOWED"
	// ResultBlocked — выход запрещён.
	ResultBlocked = "BLOCKED"
)

// ExitLog — запись журнала решений КПП.
// Журнал append-only: записи никогда не изменяются и не удаляются.
type ExitLog struct {
	// LogID — идентификатор записи.
	LogID int64 `json:"log_id"`
	// Timestamp — время решения.
	Timestamp time.Time `json:"timestamp"`
	// StudentID — студент, для которого принято решение.
	StudentID string `json:"student_id"`
	// AssetID — актив, если решение касалось конкретного актива (nil для шага
	// сканирования студента и выхода без активов).
	AssetID *int64 `json:"asset_id,omitempty"`
	// OperatorID — оператор, выполнивший сканирование.
	OperatorID int64 `json:"operator_id"`
	// Result — итог (ALLOWED, BLOCKED).
	Result string `json:"result"`
	// Reason — человекочитаемая причина решения.
	Reason string `json:"reason"`
}
