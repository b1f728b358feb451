// Точка входа Config Console — консоли управления записями конфигурации.
// Загружает конфигурацию, создаёт клиент Record Store, журнал намерений
// (файл или PostgreSQL) и флаги занятости (память или Redis), восстанавливает
// прерванные промоушены, запускает topologymetrics и HTTP-сервер
// с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/goartstore/config-console/internal/api/handlers"
	"github.com/bigkaa/goartstore/config-console/internal/api/middleware"
	"github.com/bigkaa/goartstore/config-console/internal/api/openapi"
	"github.com/bigkaa/goartstore/config-console/internal/config"
	"github.com/bigkaa/goartstore/config-console/internal/database"
	"github.com/bigkaa/goartstore/config-console/internal/domain/model"
	"github.com/bigkaa/goartstore/config-console/internal/lock"
	"github.com/bigkaa/goartstore/config-console/internal/promotion"
	"github.com/bigkaa/goartstore/config-console/internal/recordstore"
	"github.com/bigkaa/goartstore/config-console/internal/repository"
	"github.com/bigkaa/goartstore/config-console/internal/server"
	"github.com/bigkaa/goartstore/config-console/internal/service"
	"github.com/bigkaa/goartstore/config-console/internal/storage/wal"
)

// lockPrefix — префикс ключей флагов занятости в Redis.
const lockPrefix = "cc:promotion:"

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Config Console запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("record_store", cfg.RecordStoreURL),
		slog.String("intent_log", cfg.IntentLogBackend),
		slog.String("lock_backend", cfg.LockBackend),
	)

	if os.Getenv("CC_DEPHEALTH_GROUP") == "" {
		logger.Warn("CC_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	ctx := context.Background()

	// 3. Record Store и репозиторий записей
	rsClient, err := recordstore.New(recordstore.Options{
		BaseURL:    cfg.RecordStoreURL,
		Timeout:    cfg.RecordStoreTimeout,
		CACertPath: cfg.RecordStoreCACertPath,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента Record Store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	entryRepo := repository.NewEntryRepository(rsClient, cfg.RecordStoreResource, logger)

	checkers := []handlers.NamedChecker{
		{Name: "record_store", Checker: recordstore.NewReadinessChecker(rsClient, cfg.RecordStoreResource)},
	}

	// 4. Журнал намерений промоушена
	var (
		journal promotion.Journal
		pool    *pgxpool.Pool
		pgDB    *sql.DB
		cleanup func() (int, error)
	)
	switch cfg.IntentLogBackend {
	case config.IntentLogFile:
		w, walErr := wal.New(cfg.IntentLogDir, logger)
		if walErr != nil {
			logger.Error("Ошибка открытия журнала намерений", slog.String("dir", cfg.IntentLogDir), slog.String("error", walErr.Error()))
			os.Exit(1)
		}
		journal = w
		cleanup = func() (int, error) { return w.CleanCompleted(cfg.IntentLogRetention) }

	case config.IntentLogPostgres:
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}
		pool, err = database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		// Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
		pgDB = stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		intents := repository.NewPromotionIntentRepository(pool, logger)
		journal = intents
		cleanup = func() (int, error) { return intents.CleanCompleted(ctx, cfg.IntentLogRetention) }
		checkers = append(checkers, handlers.NamedChecker{Name: "postgresql", Checker: database.NewReadinessChecker(pool)})

	default:
		logger.Warn("Журнал намерений отключён: прерванный промоушен не будет восстановлен")
	}

	// 5. Флаги занятости направлений промоушена
	var guard lock.Guard
	switch cfg.LockBackend {
	case config.LockRedis:
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		redisGuard := lock.NewRedis(rdb, lockPrefix, cfg.LockTTL, logger)
		guard = redisGuard
		checkers = append(checkers, handlers.NamedChecker{Name: "redis", Checker: redisGuard})
		logger.Info("Флаги занятости в Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
			slog.Duration("ttl", cfg.LockTTL),
		)
	default:
		guard = lock.NewLocal()
	}
	if cfg.SharedJournalWithLocalLock() {
		logger.Warn("Журнал намерений в PostgreSQL используется с локальными флагами занятости: " +
			"при нескольких репликах задайте CC_LOCK_BACKEND=redis, иначе реплики могут восстанавливать чужие промоушены")
	}

	// 6. Workflow промоушена и восстановление прерванных промоушенов
	workflow := promotion.New(entryRepo, guard, journal, promotion.Options{
		Concurrency:     cfg.PromotionConcurrency,
		ExclusiveLabels: cfg.PromotionExclusiveLabels,
	}, logger)

	if journal != nil {
		recovered, recErr := workflow.Recover(ctx)
		if recErr != nil {
			logger.Warn("Восстановление промоушенов завершено с ошибками",
				slog.Int("recovered", recovered),
				slog.String("error", recErr.Error()),
			)
		} else if recovered > 0 {
			logger.Info("Прерванные промоушены восстановлены", slog.Int("recovered", recovered))
		}

		if removed, cleanErr := cleanup(); cleanErr != nil {
			logger.Warn("Ошибка очистки журнала намерений", slog.String("error", cleanErr.Error()))
		} else if removed > 0 {
			logger.Info("Журнал намерений очищен",
				slog.Int("removed", removed),
				slog.Duration("retention", cfg.IntentLogRetention),
			)
		}
	}

	// 7. Services
	entriesSvc := service.NewEntryService(
		entryRepo,
		service.NewWorkspaceCache(cfg.WorkspaceCacheSize, cfg.WorkspaceTTL),
		model.DefaultClusters(),
		logger,
	)
	promotionsSvc := service.NewPromotionService(workflow, entriesSvc, service.PromotionServiceOptions{
		PlanTTL:      cfg.PromotionPlanTTL,
		HistoryLimit: cfg.PromotionHistoryLimit,
	}, logger)

	// 8. JWT middleware (только при заданном CC_JWT_JWKS_URL)
	var jwtAuth *middleware.JWTAuth
	if cfg.AuthEnabled() {
		jwtAuth, err = middleware.NewJWTAuth(
			cfg.JWTJWKSURL,
			cfg.JWTCACertPath,
			cfg.JWTIssuer,
			middleware.RoleGroups{
				Admin:    cfg.RoleAdminGroups,
				Editor:   cfg.RoleEditorGroups,
				Readonly: cfg.RoleReadonlyGroups,
			},
			cfg.JWKSClientTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer jwtAuth.Close()

		idpChecker, err := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.JWTCACertPath, cfg.JWKSClientTimeout)
		if err != nil {
			logger.Error("Ошибка создания IdP readiness checker", slog.String("error", err.Error()))
			os.Exit(1)
		}
		checkers = append(checkers, handlers.NamedChecker{Name: "idp", Checker: idpChecker})

		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		logger.Warn("Аутентификация отключена (CC_JWT_JWKS_URL не задан): API доступен без токена")
	}

	// 9. Валидация запросов по OpenAPI контракту
	doc, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validator, err := middleware.NewRequestValidator(doc, logger)
	if err != nil {
		logger.Error("Ошибка создания валидатора запросов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10. topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"config-console",
		cfg.DephealthGroup,
		service.DephealthTargets{
			RecordStoreURL:        cfg.RecordStoreURL,
			RecordStoreHealthPath: cfg.RecordStoreHealthPath,
			DB:                    pgDB,
			PostgresURL:           cfg.DatabaseURL(),
			JWKSURL:               cfg.JWTJWKSURL,
		},
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.Any("dependencies", dephealthSvc.Dependencies()),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 11. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, server.Routes{
		API:       handlers.NewAPIHandler(entriesSvc, promotionsSvc, logger),
		Health:    handlers.NewHealthHandler(checkers...),
		Validator: validator,
		JWTAuth:   jwtAuth,
	})
	runErr := srv.Run()

	// 12. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("Config Console остановлен")
}
