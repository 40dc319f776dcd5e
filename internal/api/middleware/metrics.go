// metrics.go — Prometheus HTTP метрики Gate Module.
// Регистрирует метрики: gm_http_requests_total, gm_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gm_http_requests_total",
			Help: "Общее количество HTTP-запросов к Gate Module",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gm_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Gate Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем идентификаторы на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет динамические сегменты пути на {id} для
// предотвращения взрывного роста кардинальности метрик.
// /api/v1/admin/asset/42 → /api/v1/admin/asset/{id}
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/auth/login",
		"/api/v1/auth/register",
		"/api/v1/auth/me",
		"/api/v1/gate/exit/scan-student",
		"/api/v1/gate/exit/scan-asset",
		"/api/v1/gate/exit/exit-without-asset",
		"/api/v1/gate/exit/logs",
		"/api/v1/admin/register-asset",
		"/api/v1/admin/assets",
		"/api/v1/admin/students",
		"/api/v1/admin/operators",
		"/api/v1/admin/statistics":
		return path
	}

	// Динамические пути с идентификатором в последнем сегменте
	prefixes := []string{
		"/api/v1/admin/asset/",
		"/api/v1/admin/student/",
		"/api/v1/admin/operator/",
	}

	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
			rest := path[len(prefix):]
			// Суффиксы после идентификатора (e.g. /status)
			if idx := strings.IndexByte(rest, '/'); idx >= 0 {
				return prefix + "{id}" + rest[idx:]
			}
			return prefix + "{id}"
		}
	}

	return path
}
