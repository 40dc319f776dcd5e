// Пакет server — HTTP-сервер Gate Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dbu/eacs/gate-module/internal/api/handlers"
	"github.com/dbu/eacs/gate-module/internal/api/middleware"
	"github.com/dbu/eacs/gate-module/internal/config"
	"github.com/dbu/eacs/gate-module/internal/domain/rbac"
)

// Handlers — обработчики API, монтируемые на маршруты сервера.
type Handlers struct {
	Health     *handlers.HealthHandler
	Auth       *handlers.AuthHandler
	Gate       *handlers.GateHandler
	Assets     *handlers.AssetHandler
	Students   *handlers.StudentHandler
	Operators  *handlers.OperatorHandler
	Statistics *handlers.StatisticsHandler
}

// Server — HTTP-сервер Gate Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// jwtAuth — JWT middleware (может быть nil для тестирования без auth).
func New(cfg *config.Config, logger *slog.Logger, h *Handlers, jwtAuth *middleware.JWTAuth) *Server {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics проверяются Kubernetes напрямую, без API Gateway.
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		// Вход не требует токена
		r.Post("/auth/login", h.Auth.Login)

		// Регистрация: JWT опционален — допуск решает сервис
		// (администратор, bootstrap-токен или самостоятельная регистрация).
		r.With(optionalJWT(jwtAuth)).Post("/auth/register", h.Auth.Register)

		// Аутентифицированные маршруты
		r.Group(func(r chi.Router) {
			if jwtAuth != nil {
				r.Use(jwtAuth.Middleware())
			}

			r.Get("/auth/me", h.Auth.Me)

			// КПП — роли с правом операций КПП (операторы и администраторы)
			r.Route("/gate/exit", func(r chi.Router) {
				r.Use(middleware.RequireGateAccess())
				r.Post("/scan-student", h.Gate.ScanStudent)
				r.Post("/scan-asset", h.Gate.ScanAsset)
				r.Post("/exit-without-asset", h.Gate.ExitWithoutAsset)
				r.Get("/logs", h.Gate.Logs)
			})

			// Администрирование — только администраторы
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(rbac.RoleAdmin))

				r.Post("/register-asset", h.Assets.Register)
				r.Get("/assets", h.Assets.List)
				r.Get("/asset/by-serial/{serial}", h.Assets.GetBySerial)
				r.Route("/asset/{id}", func(r chi.Router) {
					r.Get("/", h.Assets.Get)
					r.Put("/", h.Assets.Update)
					r.Delete("/", h.Assets.Delete)
				})

				r.Post("/students", h.Students.Create)
				r.Get("/students", h.Students.List)
				r.Route("/student/{id}", func(r chi.Router) {
					r.Get("/", h.Students.Get)
					r.Put("/status", h.Students.SetStatus)
					r.Delete("/", h.Students.Delete)
				})

				r.Get("/operators", h.Operators.List)
				r.Delete("/operator/{id}", h.Operators.Delete)

				r.Get("/statistics", h.Statistics.Get)
			})
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// optionalJWT применяет JWT middleware только при наличии заголовка
// Authorization. Анонимные запросы проходят без claims — допуск
// решается на уровне сервиса.
func optionalJWT(jwtAuth *middleware.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if jwtAuth == nil || r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			jwtAuth.Middleware()(next).ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
