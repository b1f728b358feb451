// Пакет config — загрузка и валидация конфигурации Config Console
// из переменных окружения с префиксом CC_.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды журнала намерений.
const (
	IntentLogFile     = "file"
	IntentLogPostgres = "postgres"
	IntentLogNone     = "none"
)

// Бэкенды флагов занятости промоушена.
const (
	LockMemory = "memory"
	LockRedis  = "redis"
)

// Config содержит все параметры конфигурации Config Console.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Record Store ---

	// Базовый URL Record Store (json-server совместимый REST)
	RecordStoreURL string
	// Имя коллекции записей (configs)
	RecordStoreResource string
	// Таймаут одного HTTP-запроса к Record Store
	RecordStoreTimeout time.Duration
	// Путь к CA-сертификату для TLS (опционально)
	RecordStoreCACertPath string
	// Путь для проверки доступности (topologymetrics)
	RecordStoreHealthPath string

	// --- Промоушен ---

	// Максимум одновременных вызовов в фазе; 0 — без ограничения
	PromotionConcurrency int
	// Время жизни неподтверждённого плана
	PromotionPlanTTL time.Duration
	// Противоположные направления делят один флаг занятости
	PromotionExclusiveLabels bool
	// Сколько последних промоушенов отдавать в истории
	PromotionHistoryLimit int

	// --- Рабочая область ---

	// Максимум приложений в кэше рабочих областей
	WorkspaceCacheSize int
	// Время жизни рабочей области без обновления
	WorkspaceTTL time.Duration

	// --- Журнал намерений ---

	// Бэкенд: file, postgres, none
	IntentLogBackend string
	// Директория WAL-файлов (для file)
	IntentLogDir string
	// Сколько хранить закрытые записи журнала
	IntentLogRetention time.Duration

	// --- PostgreSQL (для IntentLogBackend=postgres) ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимум соединений в пуле
	DBMaxConns int

	// --- Флаги занятости ---

	// Бэкенд: memory, redis
	LockBackend string
	// Адрес Redis (host:port)
	RedisAddr string
	// Пароль Redis
	RedisPassword string
	// Номер базы Redis
	RedisDB int
	// TTL флага занятости в Redis (продлевается, пока промоушен выполняется)
	LockTTL time.Duration

	// --- JWT ---

	// URL JWKS endpoint; пустой — аутентификация отключена
	JWTJWKSURL string
	// Ожидаемый issuer JWT (опционально)
	JWTIssuer string
	// Путь к CA-сертификату для JWKS (опционально)
	JWTCACertPath string
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- Маппинг групп → ролей ---

	RoleAdminGroups    []string
	RoleEditorGroups   []string
	RoleReadonlyGroups []string

	// --- Мониторинг зависимостей ---

	// Группа сервиса в topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
//
//nolint:gocyclo,funlen // линейный разбор переменных окружения
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CC_PORT — порт HTTP-сервера (по умолчанию 8020)
	cfg.Port, err = getEnvInt("CC_PORT", 8020)
	if err != nil {
		return nil, fmt.Errorf("CC_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CC_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// CC_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CC_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CC_LOG_LEVEL: %w", err)
	}

	// CC_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CC_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CC_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Record Store ---

	// CC_RECORD_STORE_URL — базовый URL (по умолчанию http://localhost:3000)
	cfg.RecordStoreURL = strings.TrimRight(getEnvDefault("CC_RECORD_STORE_URL", "http://localhost:3000"), "/")
	if u, perr := url.Parse(cfg.RecordStoreURL); perr != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("CC_RECORD_STORE_URL: некорректный URL %q", cfg.RecordStoreURL)
	}

	// CC_RECORD_STORE_RESOURCE — коллекция записей (по умолчанию configs)
	cfg.RecordStoreResource = strings.Trim(getEnvDefault("CC_RECORD_STORE_RESOURCE", "configs"), "/")

	// CC_RECORD_STORE_TIMEOUT — таймаут запроса (по умолчанию 30s)
	cfg.RecordStoreTimeout, err = getEnvDuration("CC_RECORD_STORE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CC_RECORD_STORE_TIMEOUT: %w", err)
	}

	// CC_RECORD_STORE_CA_CERT_PATH — CA-сертификат (опционально)
	cfg.RecordStoreCACertPath = getEnvDefault("CC_RECORD_STORE_CA_CERT_PATH", "")

	// CC_RECORD_STORE_HEALTH_PATH — путь проверки доступности (по умолчанию /<resource>)
	cfg.RecordStoreHealthPath = getEnvDefault("CC_RECORD_STORE_HEALTH_PATH", "/"+cfg.RecordStoreResource)

	// --- Промоушен ---

	// CC_PROMOTION_CONCURRENCY — лимит одновременных вызовов (по умолчанию 0 — без лимита)
	cfg.PromotionConcurrency, err = getEnvInt("CC_PROMOTION_CONCURRENCY", 0)
	if err != nil {
		return nil, fmt.Errorf("CC_PROMOTION_CONCURRENCY: %w", err)
	}
	if cfg.PromotionConcurrency < 0 || cfg.PromotionConcurrency > 1000 {
		return nil, fmt.Errorf("CC_PROMOTION_CONCURRENCY: значение %d вне допустимого диапазона 0-1000", cfg.PromotionConcurrency)
	}

	// CC_PROMOTION_PLAN_TTL — время жизни плана (по умолчанию 10m)
	cfg.PromotionPlanTTL, err = getEnvDuration("CC_PROMOTION_PLAN_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CC_PROMOTION_PLAN_TTL: %w", err)
	}

	// CC_PROMOTION_EXCLUSIVE_LABELS — взаимоисключение направлений (по умолчанию false)
	cfg.PromotionExclusiveLabels, err = getEnvBool("CC_PROMOTION_EXCLUSIVE_LABELS", false)
	if err != nil {
		return nil, fmt.Errorf("CC_PROMOTION_EXCLUSIVE_LABELS: %w", err)
	}

	// CC_PROMOTION_HISTORY_LIMIT — длина истории (по умолчанию 20)
	cfg.PromotionHistoryLimit, err = getEnvInt("CC_PROMOTION_HISTORY_LIMIT", 20)
	if err != nil {
		return nil, fmt.Errorf("CC_PROMOTION_HISTORY_LIMIT: %w", err)
	}
	if cfg.PromotionHistoryLimit < 1 || cfg.PromotionHistoryLimit > 1000 {
		return nil, fmt.Errorf("CC_PROMOTION_HISTORY_LIMIT: значение %d вне допустимого диапазона 1-1000", cfg.PromotionHistoryLimit)
	}

	// --- Рабочая область ---

	// CC_WORKSPACE_CACHE_SIZE — размер кэша (по умолчанию 256)
	cfg.WorkspaceCacheSize, err = getEnvInt("CC_WORKSPACE_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("CC_WORKSPACE_CACHE_SIZE: %w", err)
	}
	if cfg.WorkspaceCacheSize < 1 || cfg.WorkspaceCacheSize > 100000 {
		return nil, fmt.Errorf("CC_WORKSPACE_CACHE_SIZE: значение %d вне допустимого диапазона 1-100000", cfg.WorkspaceCacheSize)
	}

	// CC_WORKSPACE_TTL — время жизни рабочей области (по умолчанию 5m)
	cfg.WorkspaceTTL, err = getEnvDuration("CC_WORKSPACE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CC_WORKSPACE_TTL: %w", err)
	}

	// --- Журнал намерений ---

	// CC_INTENT_LOG_BACKEND — file, postgres, none (по умолчанию file)
	cfg.IntentLogBackend = getEnvDefault("CC_INTENT_LOG_BACKEND", IntentLogFile)
	switch cfg.IntentLogBackend {
	case IntentLogFile, IntentLogPostgres, IntentLogNone:
	default:
		return nil, fmt.Errorf("CC_INTENT_LOG_BACKEND: недопустимое значение %q, допустимые: file, postgres, none", cfg.IntentLogBackend)
	}

	// CC_INTENT_LOG_DIR — директория WAL (по умолчанию ./data/intents)
	cfg.IntentLogDir = getEnvDefault("CC_INTENT_LOG_DIR", "./data/intents")

	// CC_INTENT_LOG_RETENTION — хранение закрытых записей (по умолчанию 168h)
	cfg.IntentLogRetention, err = getEnvDuration("CC_INTENT_LOG_RETENTION", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CC_INTENT_LOG_RETENTION: %w", err)
	}

	// --- PostgreSQL ---

	if err := loadDatabase(cfg); err != nil {
		return nil, err
	}

	// --- Флаги занятости ---

	// CC_LOCK_BACKEND — memory, redis (по умолчанию memory)
	cfg.LockBackend = getEnvDefault("CC_LOCK_BACKEND", LockMemory)
	if cfg.LockBackend != LockMemory && cfg.LockBackend != LockRedis {
		return nil, fmt.Errorf("CC_LOCK_BACKEND: недопустимое значение %q, допустимые: memory, redis", cfg.LockBackend)
	}

	// CC_REDIS_ADDR — адрес Redis (по умолчанию localhost:6379)
	cfg.RedisAddr = getEnvDefault("CC_REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnvDefault("CC_REDIS_PASSWORD", "")

	// CC_REDIS_DB — номер базы (по умолчанию 0)
	cfg.RedisDB, err = getEnvInt("CC_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("CC_REDIS_DB: %w", err)
	}
	if cfg.RedisDB < 0 || cfg.RedisDB > 15 {
		return nil, fmt.Errorf("CC_REDIS_DB: значение %d вне допустимого диапазона 0-15", cfg.RedisDB)
	}

	// CC_LOCK_TTL — TTL флага в Redis (по умолчанию 30s)
	cfg.LockTTL, err = getEnvDuration("CC_LOCK_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CC_LOCK_TTL: %w", err)
	}
	if cfg.LockTTL < time.Second {
		return nil, fmt.Errorf("CC_LOCK_TTL: значение %v меньше 1s", cfg.LockTTL)
	}

	// --- JWT ---

	// CC_JWT_JWKS_URL — пустой отключает аутентификацию
	cfg.JWTJWKSURL = getEnvDefault("CC_JWT_JWKS_URL", "")
	cfg.JWTIssuer = getEnvDefault("CC_JWT_ISSUER", "")
	cfg.JWTCACertPath = getEnvDefault("CC_JWT_CA_CERT_PATH", "")

	// CC_JWKS_CLIENT_TIMEOUT — таймаут клиента JWKS (по умолчанию 10s)
	cfg.JWKSClientTimeout, err = getEnvDuration("CC_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CC_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// CC_JWKS_REFRESH_INTERVAL — обновление ключей (по умолчанию 15m)
	cfg.JWKSRefreshInterval, err = getEnvDuration("CC_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CC_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// CC_JWT_LEEWAY — отклонение времени (по умолчанию 5s)
	cfg.JWTLeeway, err = getEnvDuration("CC_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CC_JWT_LEEWAY: %w", err)
	}

	// --- Маппинг групп → ролей ---

	cfg.RoleAdminGroups = parseCSV(getEnvDefault("CC_ROLE_ADMIN_GROUPS", "config-admins"))
	cfg.RoleEditorGroups = parseCSV(getEnvDefault("CC_ROLE_EDITOR_GROUPS", "config-editors"))
	cfg.RoleReadonlyGroups = parseCSV(getEnvDefault("CC_ROLE_READONLY_GROUPS", "config-viewers"))

	// --- Мониторинг зависимостей ---

	cfg.DephealthGroup = getEnvDefault("CC_DEPHEALTH_GROUP", "config-console")

	// CC_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("CC_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CC_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// CC_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("CC_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CC_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadDatabase читает CC_DB_*. Обязательны только для postgres-бэкенда журнала.
func loadDatabase(cfg *Config) error {
	var err error
	required := cfg.IntentLogBackend == IntentLogPostgres

	dbString := func(key, def string) (string, error) {
		if required && def == "" {
			return getEnvRequired(key)
		}
		return getEnvDefault(key, def), nil
	}

	if cfg.DBHost, err = dbString("CC_DB_HOST", ""); err != nil {
		return err
	}
	if cfg.DBName, err = dbString("CC_DB_NAME", ""); err != nil {
		return err
	}
	if cfg.DBUser, err = dbString("CC_DB_USER", ""); err != nil {
		return err
	}
	if cfg.DBPassword, err = dbString("CC_DB_PASSWORD", ""); err != nil {
		return err
	}

	// CC_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("CC_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("CC_DB_PORT: %w", err)
	}

	// CC_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("CC_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("CC_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// CC_DB_MAX_CONNS — размер пула (по умолчанию 10)
	cfg.DBMaxConns, err = getEnvInt("CC_DB_MAX_CONNS", 10)
	if err != nil {
		return fmt.Errorf("CC_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > 100 {
		return fmt.Errorf("CC_DB_MAX_CONNS: значение %d вне допустимого диапазона 1-100", cfg.DBMaxConns)
	}
	return nil
}

// AuthEnabled — включена ли JWT-аутентификация.
func (c *Config) AuthEnabled() bool {
	return c.JWTJWKSURL != ""
}

// SharedJournalWithLocalLock сообщает, что журнал намерений общий для реплик
// (PostgreSQL), а флаги занятости локальные. В такой конфигурации несколько
// реплик могут одновременно восстанавливать один и тот же промоушен.
func (c *Config) SharedJournalWithLocalLock() bool {
	return c.IntentLogBackend == IntentLogPostgres && c.LockBackend == LockMemory
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s pool_max_conns=%d",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode, c.DBMaxConns,
	)
}

// MigrationURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrationURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// DatabaseURL возвращает URL PostgreSQL без учётных данных (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgresql",
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	return u.String()
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

// getEnvBool возвращает логическое значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q (true/false)", val)
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

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
