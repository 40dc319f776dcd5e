// admin_operators.go — административные обработчики учётных записей операторов.
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/dbu/eacs/gate-module/internal/api/errors"
	"github.com/dbu/eacs/gate-module/internal/service"
)

// OperatorHandler — обработчики учётных записей операторов.
type OperatorHandler struct {
	operators *service.OperatorService
	logger    *slog.Logger
}

// NewOperatorHandler создаёт обработчик учётных записей операторов.
func NewOperatorHandler(operators *service.OperatorService, logger *slog.Logger) *OperatorHandler {
	return &OperatorHandler{
		operators: operators,
		logger:    logger.With(slog.String("component", "operator_handler")),
	}
}

// List — GET /api/v1/admin/operators.
func (h *OperatorHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	ops, total, err := h.operators.List(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	items := make([]operatorResponse, 0, len(ops))
	for _, op := range ops {
		items = append(items, toOperatorResponse(op))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Delete — DELETE /api/v1/admin/operator/{id}.
func (h *OperatorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apierrors.ValidationError(w, "Некорректный идентификатор оператора")
		return
	}

	if err := h.operators.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
