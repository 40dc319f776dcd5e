// handler.go — общие вспомогательные функции обработчиков API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	apierrors "github.com/dbu/eacs/gate-module/internal/api/errors"
	"github.com/dbu/eacs/gate-module/internal/service"
)

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса в dst.
// При ошибке пишет 400 и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return false
	}
	return true
}

// paginationParams извлекает limit и offset из query-параметров.
func paginationParams(r *http.Request) (limit, offset int) {
	limit = 100
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// writeServiceError маппит ошибки сервисного слоя в HTTP-ответы.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidRole):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		apierrors.Unauthorized(w, err.Error())
	case errors.Is(err, service.ErrRegistrationClosed):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrLoggingFailed):
		apierrors.LoggingFailed(w, "Решение не записано в журнал")
	default:
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
