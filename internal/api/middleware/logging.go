// logging.go — структурное логирование HTTP-запросов.
// Каждому запросу присваивается request_id (UUID), который попадает
// в лог и в заголовок ответа X-Request-Id.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestLogger возвращает HTTP middleware структурного логирования.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	log := logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-Id")
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set("X-Request-Id", requestID)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			log.Info("HTTP запрос",
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
