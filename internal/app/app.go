package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/clock"

	"github.com/aidar/tenant-purge/internal/audit"
	"github.com/aidar/tenant-purge/internal/billing"
	"github.com/aidar/tenant-purge/internal/config"
	"github.com/aidar/tenant-purge/internal/handler"
	"github.com/aidar/tenant-purge/internal/lease"
	"github.com/aidar/tenant-purge/internal/middleware"
	"github.com/aidar/tenant-purge/internal/remote"
	"github.com/aidar/tenant-purge/internal/repository/postgres"
	"github.com/aidar/tenant-purge/internal/saga"
	"github.com/aidar/tenant-purge/internal/service"
)

// App представляет приложение со всеми зависимостями
type App struct {
	config *config.Config
	db     *pgxpool.Pool
	server *http.Server
	logger *slog.Logger

	// Внешние системы, которые можно подменить через Option
	confirmer saga.Confirmer
	agent     saga.TeardownAgent
	billing   saga.BillingClient
	clock     clock.Clock

	authService     *service.AuthService
	deletionService *service.DeletionService
}

// Option настраивает App до инициализации
type Option func(*App)

// WithLogger задает логгер вместо JSON логгера в stdout
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithConfirmer задает способ подтверждения шагов удаления.
// Без него прогоны должны идти с AutoConfirm.
func WithConfirmer(confirmer saga.Confirmer) Option {
	return func(a *App) { a.confirmer = confirmer }
}

// WithTeardownAgent заменяет SSH агента уничтожения
func WithTeardownAgent(agent saga.TeardownAgent) Option {
	return func(a *App) { a.agent = agent }
}

// WithBillingClient заменяет клиента биллинг-провайдера
func WithBillingClient(client saga.BillingClient) Option {
	return func(a *App) { a.billing = client }
}

// WithClock задает часы для аренд и журнала
func WithClock(clk clock.Clock) Option {
	return func(a *App) { a.clock = clk }
}

// New создает новый экземпляр приложения
func New(cfg *config.Config, opts ...Option) (*App, error) {
	app := &App{
		config: cfg,
		clock:  clock.WallClock,
	}
	for _, opt := range opts {
		opt(app)
	}

	// Инициализируем структурированный логгер (JSON формат)
	if app.logger == nil {
		app.logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	return app, nil
}

// Initialize инициализирует все компоненты приложения
func (a *App) Initialize(ctx context.Context) error {
	// Подключаемся к базе данных
	if err := a.connectDB(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Собираем сагу удаления и ее внешние системы
	if err := a.setupDeletion(); err != nil {
		return fmt.Errorf("failed to set up deletion saga: %w", err)
	}

	// Настраиваем HTTP сервер и роутинг
	a.setupServer()

	a.logger.Info("Application initialized successfully")
	return nil
}

// connectDB устанавливает подключение к PostgreSQL с connection pool
func (a *App) connectDB(ctx context.Context) error {
	poolConfig, err := pgxpool.ParseConfig(a.config.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to parse database config: %w", err)
	}

	// Настраиваем размеры connection pool
	poolConfig.MaxConns = a.config.Database.MaxConns
	poolConfig.MinConns = a.config.Database.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Проверяем подключение к БД
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = pool
	a.logger.Info("Connected to database")
	return nil
}

// setupDeletion собирает репозитории, аренды, агента уничтожения, биллинг и оркестратор
func (a *App) setupDeletion() error {
	// Инициализируем слой репозиториев (работа с БД)
	inventoryRepo := postgres.NewInventoryRepository(a.db)
	leaseRepo := postgres.NewLeaseRepository(a.db)
	auditRepo := postgres.NewAuditRepository(a.db)
	taskRepo := postgres.NewTaskRepository(a.db)
	units := postgres.NewTxUnit(a.db)

	if a.agent == nil {
		a.agent = remote.NewSSHAgent(a.config.SSH, a.config.Teardown, a.logger)
	}

	if a.billing == nil {
		client, err := billing.NewStripeClient(a.config.Billing, a.logger)
		switch {
		case errors.Is(err, billing.ErrNotConfigured):
			// Подписки в таком случае остаются задачами для ручного разбора
			a.logger.Warn("Billing provider is not configured, cancellations will fail")
			a.billing = billing.Unconfigured{}
		case err != nil:
			return err
		default:
			a.billing = client
		}
	}

	leases := lease.NewManager(leaseRepo, a.clock, a.logger)
	orchestrator := saga.New(saga.Dependencies{
		Inventory: inventoryRepo,
		Units:     units,
		Tasks:     taskRepo,
		Leases:    leases,
		Agent:     a.agent,
		Billing:   a.billing,
		Confirmer: a.confirmer,
		Audit:     audit.NewSink(auditRepo, a.logger),
		Clock:     a.clock,
		Logger:    a.logger,
	})

	// Инициализируем слой сервисов
	a.authService = service.NewAuthService(
		inventoryRepo,
		a.config.JWT.Secret,
		a.config.JWT.GetExpiration(),
	)
	a.deletionService = service.NewDeletionService(orchestrator, leases, taskRepo, a.config.Lease.TTL)

	return nil
}

// setupServer инициализирует HTTP роутер и обработчики
func (a *App) setupServer() {
	// Инициализируем HTTP обработчики
	authHandler := handler.NewAuthHandler(a.authService)
	deletionHandler := handler.NewDeletionHandler(a.deletionService)
	taskHandler := handler.NewTaskHandler(a.deletionService)

	// Инициализируем middleware для JWT авторизации
	authMiddleware := middleware.AuthMiddleware(a.authService)

	// Настраиваем роутер
	r := chi.NewRouter()

	// Глобальные middleware (применяются ко всем запросам)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Публичные эндпоинты (без авторизации)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
	})

	// Health check для мониторинга
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			a.logger.Error("Failed to write health check response", "error", err)
		}
	})

	// Защищенные эндпоинты (требуют JWT токен оператора)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		// Предпросмотр и аренда читают состояние и укладываются в общий таймаут
		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(60 * time.Second))
			r.Get("/principals/{id}/deletion/preview", deletionHandler.Preview)
			r.Get("/principals/{id}/deletion/lease", deletionHandler.GetLease)
			r.Get("/deletion/tasks", taskHandler.ListPending)
		})

		// Удаление не ограничено таймаутом запроса: отмена посреди шага
		// откатывает локальные изменения
		r.Post("/principals/{id}/deletion", deletionHandler.Delete)
	})

	// Создаем HTTP сервер с настройками таймаутов
	addr := fmt.Sprintf("%s:%s", a.config.Server.Host, a.config.Server.Port)
	a.server = &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	a.logger.Info("HTTP server configured", "addr", addr)
}

// Deletion возвращает сервис удаления для CLI
func (a *App) Deletion() *service.DeletionService {
	return a.deletionService
}

// Auth возвращает сервис аутентификации для CLI
func (a *App) Auth() *service.AuthService {
	return a.authService
}

// Logger возвращает логгер приложения
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Run запускает HTTP сервер. Без секрета JWT сервер не стартует:
// пустым ключом может подписать токен кто угодно.
func (a *App) Run() error {
	if err := a.config.JWT.Validate(); err != nil {
		return err
	}
	if a.server == nil {
		return errors.New("application is not initialized")
	}
	a.logger.Info("Starting HTTP server", "addr", a.server.Addr)
	return a.server.ListenAndServe()
}

// Shutdown корректно останавливает приложение
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application")

	// Останавливаем HTTP сервер (ждем завершения текущих запросов)
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	a.Close()

	a.logger.Info("Application stopped gracefully")
	return nil
}

// Close закрывает подключения к базе данных
func (a *App) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
