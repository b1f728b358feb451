// Пакет database — подключение к PostgreSQL через pgxpool,
// применение миграций журнала намерений (golang-migrate) и проверка готовности.
// Используется только при CC_INTENT_LOG_BACKEND=postgres.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/config-console/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// applicationName — имя клиента в pg_stat_activity.
const applicationName = "config-console"

// Connect создаёт пул подключений журнала намерений и проверяет его ping.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("разбор DSN журнала намерений: %w", err)
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("создание пула журнала намерений: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL журнала намерений недоступен: %w", err)
	}

	logger.Info("Журнал намерений: подключение к PostgreSQL",
		slog.String("database", cfg.DatabaseURL()),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return pool, nil
}

// Migrate применяет встроенные миграции таблицы promotion_intents.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("источник миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrationURL())
	if err != nil {
		return fmt.Errorf("инициализация миграций: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("применение миграций журнала намерений: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Миграции журнала намерений применены",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// ReadinessChecker проверяет, что журнал намерений доступен для записи
// и сообщает число незавершённых промоушенов.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт проверку готовности журнала намерений.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// CheckReady: fail, если таблица журнала недоступна; иначе ok с числом
// pending-записей.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var pending int
	err := c.pool.QueryRow(ctx,
		`SELECT count(*) FROM promotion_intents WHERE status = 'pending'`).Scan(&pending)
	if err != nil {
		return "fail", fmt.Sprintf("журнал намерений недоступен: %v", err)
	}
	stat := c.pool.Stat()
	return "ok", fmt.Sprintf("pending: %d, соединений: %d/%d", pending, stat.AcquiredConns(), stat.MaxConns())
}
