// Пакет server — HTTP-сервер Config Console с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/goartstore/config-console/internal/api/handlers"
	"github.com/bigkaa/goartstore/config-console/internal/api/middleware"
	"github.com/bigkaa/goartstore/config-console/internal/api/openapi"
	"github.com/bigkaa/goartstore/config-console/internal/config"
	"github.com/bigkaa/goartstore/config-console/internal/domain/rbac"
)

// Routes — обработчики и middleware, из которых собирается роутер.
type Routes struct {
	API    *handlers.APIHandler
	Health *handlers.HealthHandler
	// Validator — проверка запросов по OpenAPI контракту (nil — без проверки)
	Validator *middleware.RequestValidator
	// JWTAuth — аутентификация (nil — auth выключена, ролевые проверки не применяются)
	JWTAuth *middleware.JWTAuth
}

// Server — HTTP-сервер Config Console.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, routes Routes) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, routes),
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

// NewRouter собирает chi-роутер.
// Health и metrics публичные: их опрашивает Kubernetes напрямую.
func NewRouter(logger *slog.Logger, routes Routes) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.RequestID)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	router.Use(chimw.Recoverer)

	router.Get("/health/live", routes.Health.HealthLive)
	router.Get("/health/ready", routes.Health.HealthReady)
	router.Get("/metrics", routes.Health.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		if routes.JWTAuth != nil {
			r.Use(routes.JWTAuth.Middleware())
		}
		if routes.Validator != nil {
			r.Use(routes.Validator.Middleware())
		}

		api := routes.API

		r.Group(func(r chi.Router) {
			r.Use(requireRole(routes.JWTAuth, rbac.RoleReadonly))
			r.Get("/openapi.yaml", serveOpenAPI)
			r.Get("/clusters", api.ListClusters)
			r.Get("/applications", api.GetDashboard)
			r.Get("/applications/{app}/entries", api.ListEntries)
			r.Get("/applications/{app}/stats", api.GetStats)
			r.Get("/applications/{app}/promotions", api.GetPromotionState)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(routes.JWTAuth, rbac.RoleEditor))
			r.Post("/applications/{app}/entries", api.CreateEntry)
			r.Put("/applications/{app}/entries/{id}", api.UpdateEntry)
			r.Delete("/applications/{app}/entries/{id}", api.DeleteEntry)
			r.Post("/applications/{app}/entries/{id}/deploy", api.DeployEntry)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(routes.JWTAuth, rbac.RoleAdmin))
			r.Post("/applications/{app}/promotions", api.PlanPromotion)
			r.Post("/applications/{app}/promotions/{planId}/confirm", api.ConfirmPromotion)
			r.Post("/applications/{app}/promotions/{planId}/decline", api.DeclinePromotion)
		})
	})

	return router
}

// requireRole применяет ролевую проверку только при включённой аутентификации.
func requireRole(jwtAuth *middleware.JWTAuth, role string) func(http.Handler) http.Handler {
	if jwtAuth == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RequireRole(role)
}

// serveOpenAPI отдаёт встроенный OpenAPI контракт.
func serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openapi.Document())
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
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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
