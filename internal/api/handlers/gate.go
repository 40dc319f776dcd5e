// gate.go — обработчики рабочего процесса КПП.
//
// Маппинг решений на HTTP-статусы:
//   - OK/ALLOWED — 200
//   - некорректный формат идентификатора — 400
//   - студент не найден — 404
//   - остальные BLOCKED — 403
//   - отказ журнала — 500 (LOGGING_FAILED)
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/dbu/eacs/gate-module/internal/api/errors"
	"github.com/dbu/eacs/gate-module/internal/api/middleware"
	"github.com/dbu/eacs/gate-module/internal/domain/model"
	"github.com/dbu/eacs/gate-module/internal/repository"
	"github.com/dbu/eacs/gate-module/internal/service"
)

// GateHandler — обработчики endpoints КПП.
type GateHandler struct {
	gate    *service.GateService
	exitLog repository.ExitLogRepository
	logger  *slog.Logger
}

// NewGateHandler создаёт обработчик КПП.
func NewGateHandler(gate *service.GateService, exitLog repository.ExitLogRepository, logger *slog.Logger) *GateHandler {
	return &GateHandler{
		gate:    gate,
		exitLog: exitLog,
		logger:  logger.With(slog.String("component", "gate_handler")),
	}
}

// blockedStatus выбирает HTTP-статус для отказа по его причине.
func blockedStatus(reason string) int {
	switch reason {
	case service.ReasonInvalidStudentID:
		return http.StatusBadRequest
	case service.ReasonStudentNotFound:
		return http.StatusNotFound
	default:
		return http.StatusForbidden
	}
}

// assetSummary — краткое представление актива в ответах КПП.
type assetSummary struct {
	AssetID      int64   `json:"asset_id"`
	SerialNumber string  `json:"serial_number"`
	Brand        *string `json:"brand,omitempty"`
	Color        *string `json:"color,omitempty"`
	Status       string  `json:"status"`
}

func toAssetSummary(a *model.Asset) *assetSummary {
	if a == nil {
		return nil
	}
	return &assetSummary{
		AssetID:      a.AssetID,
		SerialNumber: a.SerialNumber,
		Brand:        a.Brand,
		Color:        a.Color,
		Status:       a.Status,
	}
}

// ScanStudent — POST /api/v1/gate/exit/scan-student.
// Первый шаг прохода: проверка студента, выпуск exit-токена.
func (h *GateHandler) ScanStudent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentID string `json:"student_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	operatorID := middleware.OperatorIDFromContext(r.Context())

	res, err := h.gate.ScanStudent(r.Context(), operatorID, req.StudentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if res.Blocked {
		writeJSON(w, blockedStatus(res.Reason), map[string]any{
			"status": model.ResultBlocked,
			"reason": res.Reason,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "OK",
		"student_id":  res.Student.StudentID,
		"full_name":   res.Student.FullName,
		"has_assets":  res.HasAssets,
		"asset_count": res.AssetCount,
		"exit_token":  res.ExitToken,
	})
}

// writeDecision пишет терминальное решение КПП.
func (h *GateHandler) writeDecision(w http.ResponseWriter, dec *service.GateDecision) {
	status := http.StatusOK
	if dec.Result == model.ResultBlocked {
		status = blockedStatus(dec.Reason)
	}

	body := map[string]any{
		"status": dec.Result,
		"reason": dec.Reason,
	}
	if dec.Asset != nil {
		body["asset"] = toAssetSummary(dec.Asset)
	}
	writeJSON(w, status, body)
}

// ScanAsset — POST /api/v1/gate/exit/scan-asset.
// Второй шаг прохода: проверка QR-подписи предъявленного актива.
func (h *GateHandler) ScanAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentID string `json:"student_id"`
		ExitToken string `json:"exit_token"`
		QRToken   string `json:"qr_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.StudentID == "" || req.ExitToken == "" || req.QRToken == "" {
		apierrors.ValidationError(w, "Требуются student_id, exit_token и qr_token")
		return
	}

	operatorID := middleware.OperatorIDFromContext(r.Context())

	dec, err := h.gate.ScanAsset(r.Context(), operatorID, req.StudentID, req.ExitToken, req.QRToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeDecision(w, dec)
}

// ExitWithoutAsset — POST /api/v1/gate/exit/exit-without-asset.
// Альтернатива второму шагу: студент уходит без активов.
func (h *GateHandler) ExitWithoutAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentID string `json:"student_id"`
		ExitToken string `json:"exit_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.StudentID == "" || req.ExitToken == "" {
		apierrors.ValidationError(w, "Требуются student_id и exit_token")
		return
	}

	operatorID := middleware.OperatorIDFromContext(r.Context())

	dec, err := h.gate.ExitWithoutAsset(r.Context(), operatorID, req.StudentID, req.ExitToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeDecision(w, dec)
}

// exitLogResponse — запись журнала в ответах API.
type exitLogResponse struct {
	LogID      int64     `json:"log_id"`
	Timestamp  time.Time `json:"timestamp"`
	StudentID  string    `json:"student_id"`
	AssetID    *int64    `json:"asset_id,omitempty"`
	OperatorID int64     `json:"operator_id"`
	Result     string    `json:"result"`
	Reason     string    `json:"reason"`
}

// Logs — GET /api/v1/gate/exit/logs?limit=N&student_id=&result=.
// Свежие записи журнала решений, новые первыми.
func (h *GateHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	filters := repository.ExitLogFilters{}
	if v := r.URL.Query().Get("student_id"); v != "" {
		filters.StudentID = &v
	}
	if v := r.URL.Query().Get("result"); v != "" {
		if v != model.ResultAllowed && v != model.ResultBlocked {
			apierrors.ValidationError(w, "result: допустимые значения ALLOWED, BLOCKED")
			return
		}
		filters.Result = &v
	}

	entries, err := h.exitLog.List(r.Context(), filters, limit, offset)
	if err != nil {
		h.logger.Error("Ошибка чтения журнала", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка чтения журнала")
		return
	}

	total, err := h.exitLog.Count(r.Context(), filters)
	if err != nil {
		h.logger.Error("Ошибка подсчёта журнала", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка чтения журнала")
		return
	}

	items := make([]exitLogResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, exitLogResponse{
			LogID:      e.LogID,
			Timestamp:  e.Timestamp,
			StudentID:  e.StudentID,
			AssetID:    e.AssetID,
			OperatorID: e.OperatorID,
			Result:     e.Result,
			Reason:     e.Reason,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}
