// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Config Console мониторит:
//   - Record Store — HTTP checker к коллекции записей (critical)
//   - PostgreSQL — SQL checker через pgxpool, только для журнала намерений в БД (critical)
//   - IdP — HTTP checker к JWKS endpoint, только при включённой аутентификации
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для Record Store и JWKS
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"     // PostgreSQL checker (pool mode)
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthTargets — зависимости, которые проверяет консоль.
type DephealthTargets struct {
	// RecordStoreURL — базовый URL Record Store
	RecordStoreURL string
	// RecordStoreHealthPath — путь для проверки (по умолчанию /configs)
	RecordStoreHealthPath string
	// DB — *sql.DB из pgxpool (stdlib.OpenDBFromPool); nil — PostgreSQL не используется
	DB *sql.DB
	// PostgresURL — URL PostgreSQL для лейблов метрик
	PostgresURL string
	// JWKSURL — JWKS endpoint IdP; пустой — аутентификация выключена
	JWKSURL string
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	names  []string
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(
	serviceID string,
	group string,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, targets, checkInterval, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, targets, checkInterval, logger,
		dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	serviceID string,
	group string,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	rsName := DependencyName(targets.RecordStoreURL, "record-store")
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.HTTP(rsName,
			dephealth.FromURL(targets.RecordStoreURL),
			dephealth.WithHTTPHealthPath(healthPath(targets.RecordStoreURL, targets.RecordStoreHealthPath)),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		),
	}
	names := []string{rsName}

	if targets.DB != nil {
		// pgcheck.New + AddDependency напрямую, без contrib/sqldb.
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(targets.DB)),
			dephealth.FromURL(targets.PostgresURL),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		))
		names = append(names, "postgresql")
	}

	if targets.JWKSURL != "" {
		opts = append(opts, dephealth.HTTP("idp-jwks",
			dephealth.FromURL(targets.JWKSURL),
			dephealth.WithHTTPHealthPath(healthPath(targets.JWKSURL, "")),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(false),
			dephealth.WithHTTPTLSSkipVerify(true), // Dev-среда: self-signed сертификаты
		))
		names = append(names, "idp-jwks")
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		names:  names,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен",
		slog.String("dependencies", strings.Join(ds.names, ",")),
	)
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// Dependencies — имена зарегистрированных зависимостей.
func (ds *DephealthService) Dependencies() []string {
	return ds.names
}

var (
	nonDNSChars    = regexp.MustCompile(`[^a-z0-9-]+`)
	repeatedDashes = regexp.MustCompile(`-{2,}`)
)

// DependencyName строит имя зависимости из хоста URL:
// lowercase, символы вне [a-z0-9-] заменяются дефисом, не длиннее 63 символов.
// Пустой результат заменяется fallback.
func DependencyName(rawURL, fallback string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return fallback
	}
	name := strings.ToLower(parsed.Hostname())
	name = nonDNSChars.ReplaceAllString(name, "-")
	name = repeatedDashes.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if len(name) > 63 {
		name = strings.TrimRight(name[:63], "-")
	}
	if name == "" || name == "localhost" || name[0] >= '0' && name[0] <= '9' {
		return fallback
	}
	return name
}

// healthPath выбирает путь проверки: path самого URL, дополненный override.
func healthPath(rawURL, override string) string {
	base := ""
	if parsed, err := url.Parse(rawURL); err == nil {
		base = strings.TrimSuffix(parsed.Path, "/")
	}
	override = strings.Trim(override, "/")
	switch {
	case override != "":
		return base + "/" + override
	case base != "":
		return base
	default:
		return "/"
	}
}
