// statistics.go — обработчик сводной статистики.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/dbu/eacs/gate-module/internal/api/errors"
	"github.com/dbu/eacs/gate-module/internal/service"
)

// StatisticsHandler — обработчик сводной статистики.
type StatisticsHandler struct {
	stats  *service.StatisticsService
	logger *slog.Logger
}

// NewStatisticsHandler создаёт обработчик статистики.
func NewStatisticsHandler(stats *service.StatisticsService, logger *slog.Logger) *StatisticsHandler {
	return &StatisticsHandler{
		stats:  stats,
		logger: logger.With(slog.String("component", "statistics_handler")),
	}
}

// Get — GET /api/v1/admin/statistics.
func (h *StatisticsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Collect(r.Context())
	if err != nil {
		h.logger.Error("Ошибка сбора статистики", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка сбора статистики")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
