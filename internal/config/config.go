// Пакет config — загрузка и валидация конфигурации Gate Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Gate Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Секреты и окна валидности токенов ---

	// Секрет QR-подписей активов
	QRSecret string
	// Секрет exit-токенов. Если GM_EXIT_TOKEN_SECRET не задан —
	// наследуется от QRSecret (ExitSecretDerived = true).
	ExitTokenSecret string
	// ExitSecretDerived — признак наследования секрета exit-токенов от QR.
	// Общий секрет — эксплуатационное упрощение; при утечке одного
	// пространства токенов компрометируется и второе.
	ExitSecretDerived bool
	// Окно валидности QR-подписи от момента выпуска
	QRValidity time.Duration
	// TTL exit-токена
	ExitTokenTTL time.Duration

	// --- JWT операторов ---

	// Секрет подписи JWT операторских сессий (HS256)
	JWTSecret string
	// Время жизни access-токена оператора
	JWTAccessTTL time.Duration
	// Issuer JWT
	JWTIssuer string
	// URL JWKS endpoint внешнего IdP (опционально; включает RS256-валидацию)
	JWTJWKSURL string

	// --- Защита от повторов (опционально) ---

	// ReplayGuard — включает кэш использованных nonce.
	// По умолчанию выключен: без него повтор токена в пределах TTL
	// валиден — это документированное поведение протокола.
	ReplayGuard bool
	// Размер LRU-кэша nonce
	ReplayGuardSize int

	// --- Регистрация операторов ---

	// Разрешена ли самостоятельная регистрация операторов
	AllowSelfRegistration bool
	// Токен для создания первого администратора (заголовок X-Bootstrap-Token)
	BootstrapAdminToken string

	// --- Мониторинг зависимостей ---

	// Группа topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// GM_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("GM_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("GM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("GM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// GM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("GM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("GM_LOG_LEVEL: %w", err)
	}

	// GM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("GM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("GM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// GM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("GM_DB_HOST")
	if err != nil {
		return nil, err
	}

	// GM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("GM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("GM_DB_PORT: %w", err)
	}

	// GM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("GM_DB_NAME")
	if err != nil {
		return nil, err
	}

	// GM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("GM_DB_USER")
	if err != nil {
		return nil, err
	}

	// GM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("GM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// GM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("GM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("GM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Секреты токенов ---

	// GM_QR_SECRET — обязательный
	cfg.QRSecret, err = getEnvRequired("GM_QR_SECRET")
	if err != nil {
		return nil, err
	}

	// GM_EXIT_TOKEN_SECRET — наследуется от QR-секрета, если не задан.
	// Наследование — явная конфигурационная опция, а не тихое переиспользование
	// ключа: признак фиксируется в ExitSecretDerived и логируется при старте.
	cfg.ExitTokenSecret = getEnvDefault("GM_EXIT_TOKEN_SECRET", "")
	if cfg.ExitTokenSecret == "" {
		cfg.ExitTokenSecret = cfg.QRSecret
		cfg.ExitSecretDerived = true
	}

	// GM_QR_VALIDITY_HOURS — окно валидности QR-подписи (по умолчанию 24 часа)
	qrHours, err := getEnvInt("GM_QR_VALIDITY_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("GM_QR_VALIDITY_HOURS: %w", err)
	}
	if qrHours < 1 {
		return nil, fmt.Errorf("GM_QR_VALIDITY_HOURS: значение %d должно быть положительным", qrHours)
	}
	cfg.QRValidity = time.Duration(qrHours) * time.Hour

	// GM_EXIT_TOKEN_TTL_SECONDS — TTL exit-токена (по умолчанию 300 секунд).
	// Намеренно намного короче окна QR: токен лишь связывает два
	// последовательных вызова одной операторской сессии.
	ttlSeconds, err := getEnvInt("GM_EXIT_TOKEN_TTL_SECONDS", 300)
	if err != nil {
		return nil, fmt.Errorf("GM_EXIT_TOKEN_TTL_SECONDS: %w", err)
	}
	if ttlSeconds < 1 {
		return nil, fmt.Errorf("GM_EXIT_TOKEN_TTL_SECONDS: значение %d должно быть положительным", ttlSeconds)
	}
	cfg.ExitTokenTTL = time.Duration(ttlSeconds) * time.Second

	// --- JWT операторов ---

	// GM_JWT_SECRET — обязательный
	cfg.JWTSecret, err = getEnvRequired("GM_JWT_SECRET")
	if err != nil {
		return nil, err
	}

	// GM_JWT_ACCESS_MINUTES — время жизни access-токена (по умолчанию 60 минут)
	accessMinutes, err := getEnvInt("GM_JWT_ACCESS_MINUTES", 60)
	if err != nil {
		return nil, fmt.Errorf("GM_JWT_ACCESS_MINUTES: %w", err)
	}
	if accessMinutes < 1 {
		return nil, fmt.Errorf("GM_JWT_ACCESS_MINUTES: значение %d должно быть положительным", accessMinutes)
	}
	cfg.JWTAccessTTL = time.Duration(accessMinutes) * time.Minute

	// GM_JWT_ISSUER — issuer JWT (по умолчанию gate-module)
	cfg.JWTIssuer = getEnvDefault("GM_JWT_ISSUER", "gate-module")

	// GM_JWT_JWKS_URL — JWKS внешнего IdP (опционально)
	cfg.JWTJWKSURL = getEnvDefault("GM_JWT_JWKS_URL", "")

	// --- Защита от повторов ---

	// GM_REPLAY_GUARD — кэш использованных nonce (по умолчанию выключен)
	cfg.ReplayGuard, err = getEnvBool("GM_REPLAY_GUARD", false)
	if err != nil {
		return nil, fmt.Errorf("GM_REPLAY_GUARD: %w", err)
	}

	// GM_REPLAY_GUARD_SIZE — размер LRU-кэша nonce (по умолчанию 65536)
	cfg.ReplayGuardSize, err = getEnvInt("GM_REPLAY_GUARD_SIZE", 65536)
	if err != nil {
		return nil, fmt.Errorf("GM_REPLAY_GUARD_SIZE: %w", err)
	}
	if cfg.ReplayGuardSize < 1 {
		return nil, fmt.Errorf("GM_REPLAY_GUARD_SIZE: значение %d должно быть положительным", cfg.ReplayGuardSize)
	}

	// --- Регистрация операторов ---

	// GM_ALLOW_OPERATOR_SELF_REGISTRATION — по умолчанию запрещена
	cfg.AllowSelfRegistration, err = getEnvBool("GM_ALLOW_OPERATOR_SELF_REGISTRATION", false)
	if err != nil {
		return nil, fmt.Errorf("GM_ALLOW_OPERATOR_SELF_REGISTRATION: %w", err)
	}

	// GM_BOOTSTRAP_ADMIN_TOKEN — для создания первого администратора (опционально)
	cfg.BootstrapAdminToken = getEnvDefault("GM_BOOTSTRAP_ADMIN_TOKEN", "")

	// --- Мониторинг зависимостей ---

	// GM_DEPHEALTH_GROUP — группа topologymetrics (по умолчанию eacs)
	cfg.DephealthGroup = getEnvDefault("GM_DEPHEALTH_GROUP", "eacs")

	// GM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("GM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// GM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("GM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL
// (для topologymetrics и диагностики).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
