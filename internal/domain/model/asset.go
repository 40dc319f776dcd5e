package model

import "time"

// Статусы актива.
const (
	// AssetStatusActive — актив зарегистрирован и может выноситься.
	AssetStatusActive = "active"
	// AssetStatusRevoked — регистрация отозвана.
	AssetStatusRevoked = "revoked"
	// AssetStatusStolen — актив числится украденным.
	AssetStatusStolen = "stolen"
)

// Asset — зарегистрированный физический актив (ноутбук и т.п.).
// QRSignature — подписанный QR-токен, наклеиваемый на актив;
// перевыпускается при смене владельца.
type Asset struct {
	// AssetID — внутренний идентификатор актива.
	AssetID int64 `json:"asset_id"`
	// OwnerStudentID — идентификатор студента-владельца.
	OwnerStudentID string `json:"owner_student_id"`
	// QRSignature — текущий подписанный QR-токен (nil до первой выдачи).
	QRSignature *string `json:"qr_signature,omitempty"`
	// SerialNumber — серийный номер (уникальный).
	SerialNumber string `json:"serial_number"`
	// Brand — производитель (опционально).
	Brand *string `json:"brand,omitempty"`
	// Color — цвет (опционально).
	Color *string `json:"color,omitempty"`
	// VisibleSpecs — видимые приметы для сверки оператором (опционально).
	VisibleSpecs *string `json:"visible_specs,omitempty"`
	// Status — статус (active, revoked, stolen).
	Status string `json:"status"`
	// RegisteredAt — время регистрации.
	RegisteredAt time.Time `json:"registered_at"`
}

// IsActive сообщает, активен ли актив.
func (a *Asset) IsActive() bool {
	return a.Status == AssetStatusActive
}
