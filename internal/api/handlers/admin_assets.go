// admin_assets.go — административные обработчики реестра активов.
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/dbu/eacs/gate-module/internal/api/errors"
	"github.com/dbu/eacs/gate-module/internal/domain/model"
	"github.com/dbu/eacs/gate-module/internal/service"
)

// AssetHandler — обработчики реестра активов.
type AssetHandler struct {
	assets *service.AssetService
	logger *slog.Logger
}

// NewAssetHandler создаёт обработчик реестра активов.
func NewAssetHandler(assets *service.AssetService, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{
		assets: assets,
		logger: logger.With(slog.String("component", "asset_handler")),
	}
}

// assetResponse — представление актива в ответах API.
type assetResponse struct {
	AssetID        int64     `json:"asset_id"`
	OwnerStudentID string    `json:"owner_student_id"`
	QRSignature    *string   `json:"qr_signature,omitempty"`
	SerialNumber   string    `json:"serial_number"`
	Brand          *string   `json:"brand,omitempty"`
	Color          *string   `json:"color,omitempty"`
	VisibleSpecs   *string   `json:"visible_specs,omitempty"`
	Status         string    `json:"status"`
	RegisteredAt   time.Time `json:"registered_at"`
}

func toAssetResponse(a *model.Asset) assetResponse {
	return assetResponse{
		AssetID:        a.AssetID,
		OwnerStudentID: a.OwnerStudentID,
		QRSignature:    a.QRSignature,
		SerialNumber:   a.SerialNumber,
		Brand:          a.Brand,
		Color:          a.Color,
		VisibleSpecs:   a.VisibleSpecs,
		Status:         a.Status,
		RegisteredAt:   a.RegisteredAt,
	}
}

// assetIDFromURL извлекает числовой идентификатор актива из пути.
func assetIDFromURL(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apierrors.ValidationError(w, "Некорректный идентификатор актива")
		return 0, false
	}
	return id, true
}

// Register — POST /api/v1/admin/register-asset.
func (h *AssetHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerStudentID string  `json:"owner_student_id"`
		SerialNumber   string  `json:"serial_number"`
		Brand          *string `json:"brand"`
		Color          *string `json:"color"`
		VisibleSpecs   *string `json:"visible_specs"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	asset, err := h.assets.Register(r.Context(), service.RegisterAssetInput{
		OwnerStudentID: req.OwnerStudentID,
		SerialNumber:   req.SerialNumber,
		Brand:          req.Brand,
		Color:          req.Color,
		VisibleSpecs:   req.VisibleSpecs,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAssetResponse(asset))
}

// List — GET /api/v1/admin/assets?owner_student_id=&status=.
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	var owner, status *string
	if v := r.URL.Query().Get("owner_student_id"); v != "" {
		owner = &v
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status = &v
	}

	assets, total, err := h.assets.List(r.Context(), owner, status, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	items := make([]assetResponse, 0, len(assets))
	for _, a := range assets {
		items = append(items, toAssetResponse(a))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetBySerial — GET /api/v1/admin/asset/by-serial/{serial}.
// Поиск по серийному номеру — сверка устройства без читаемой наклейки.
func (h *AssetHandler) GetBySerial(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	if serial == "" {
		apierrors.ValidationError(w, "Требуется серийный номер")
		return
	}

	asset, err := h.assets.GetBySerial(r.Context(), serial)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetResponse(asset))
}

// Get — GET /api/v1/admin/asset/{id}.
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := assetIDFromURL(w, r)
	if !ok {
		return
	}

	asset, err := h.assets.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetResponse(asset))
}

// Update — PUT /api/v1/admin/asset/{id}.
// Смена владельца перевыпускает QR-подпись.
func (h *AssetHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := assetIDFromURL(w, r)
	if !ok {
		return
	}

	var req struct {
		OwnerStudentID *string `json:"owner_student_id"`
		Status         *string `json:"status"`
		Brand          *string `json:"brand"`
		Color          *string `json:"color"`
		VisibleSpecs   *string `json:"visible_specs"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	asset, err := h.assets.Update(r.Context(), id, service.UpdateAssetInput{
		OwnerStudentID: req.OwnerStudentID,
		Status:         req.Status,
		Brand:          req.Brand,
		Color:          req.Color,
		VisibleSpecs:   req.VisibleSpecs,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetResponse(asset))
}

// Delete — DELETE /api/v1/admin/asset/{id}.
func (h *AssetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := assetIDFromURL(w, r)
	if !ok {
		return
	}

	if err := h.assets.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
