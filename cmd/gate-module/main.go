// Точка входа Gate Module — сервис контроля выноса активов.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// создаёт подписантов токенов, сервисный слой и API handlers,
// запускает мониторинг зависимостей (topologymetrics),
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/dbu/eacs/gate-module/internal/api/handlers"
	"github.com/dbu/eacs/gate-module/internal/api/middleware"
	"github.com/dbu/eacs/gate-module/internal/config"
	"github.com/dbu/eacs/gate-module/internal/database"
	"github.com/dbu/eacs/gate-module/internal/repository"
	"github.com/dbu/eacs/gate-module/internal/server"
	"github.com/dbu/eacs/gate-module/internal/service"
	"github.com/dbu/eacs/gate-module/internal/token"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Gate Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Общий секрет токенов — допустимое, но заметное упрощение
	if cfg.ExitSecretDerived {
		logger.Warn("GM_EXIT_TOKEN_SECRET не задан, exit-токены подписываются секретом QR")
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL будет идти через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	studentRepo := repository.NewStudentRepository(pool)
	assetRepo := repository.NewAssetRepository(pool)
	operatorRepo := repository.NewOperatorRepository(pool)
	exitLogRepo := repository.NewExitLogRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// 6. Подписанты токенов
	qrSigner := token.NewQRSigner([]byte(cfg.QRSecret), cfg.QRValidity)
	exitSigner := token.NewExitSigner([]byte(cfg.ExitTokenSecret), cfg.ExitTokenTTL)

	// 6.1 Опциональная защита от повторов exit-токенов
	var replayGuard *service.ReplayGuard
	if cfg.ReplayGuard {
		replayGuard = service.NewReplayGuard(cfg.ReplayGuardSize, cfg.ExitTokenTTL)
		logger.Info("Защита от повторов exit-токенов включена",
			slog.Int("cache_size", cfg.ReplayGuardSize),
		)
	}

	// 7. Services
	directory := service.NewDirectory(studentRepo, assetRepo)
	gateSvc := service.NewGateService(directory, exitLogRepo, qrSigner, exitSigner, replayGuard, logger)
	assetSvc := service.NewAssetService(assetRepo, studentRepo, txRunner, qrSigner, logger)
	studentSvc := service.NewStudentService(studentRepo, logger)
	operatorSvc := service.NewOperatorService(operatorRepo, cfg, logger)
	statsSvc := service.NewStatisticsService(studentRepo, assetRepo, exitLogRepo)

	// 8. Readiness checker (PostgreSQL)
	pgChecker := database.NewReadinessChecker(pool)

	// 9. API handlers
	apiHandlers := &server.Handlers{
		Health:     handlers.NewHealthHandler(pgChecker),
		Auth:       handlers.NewAuthHandler(operatorSvc, logger),
		Gate:       handlers.NewGateHandler(gateSvc, exitLogRepo, logger),
		Assets:     handlers.NewAssetHandler(assetSvc, logger),
		Students:   handlers.NewStudentHandler(studentSvc, logger),
		Operators:  handlers.NewOperatorHandler(operatorSvc, logger),
		Statistics: handlers.NewStatisticsHandler(statsSvc, logger),
	}

	// 10. JWT middleware (HS256 локальный + опциональный RS256 через JWKS)
	jwtAuth, err := middleware.NewJWTAuth(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTJWKSURL, logger)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 11. topologymetrics — мониторинг зависимостей
	var dephealthSvc *service.DephealthService
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"gate-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.JWTJWKSURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandlers, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Graceful shutdown фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Gate Module остановлен")
}
