// Package main - точка входа API-сервера журнала посещаемости ClassTrack.
//
// Сервер владеет путём записи: зачисление, правки расписания, отметки
// посещаемости и переключение праздников, плюс проекции чтения (занятия
// на день, сводки, журнал аудита). Фоновые задачи живут в cmd/worker.
//
// Архитектура следует Clean Architecture и DDD:
// - Domain: чистая логика журнала без внешних зависимостей
// - Application: оркестрация use cases (Commands/Queries/Event handlers)
// - Infrastructure: PostgreSQL, Redis, messaging, webhook
// - Interface: REST API
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/classtrack/attendance-ledger/config"
	"github.com/classtrack/attendance-ledger/internal/application/command"
	"github.com/classtrack/attendance-ledger/internal/application/eventhandler"
	"github.com/classtrack/attendance-ledger/internal/application/query"
	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/notification"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
	"github.com/classtrack/attendance-ledger/internal/infrastructure/external/webhook"
	"github.com/classtrack/attendance-ledger/internal/infrastructure/messaging"
	"github.com/classtrack/attendance-ledger/internal/infrastructure/persistence/postgres"
	"github.com/classtrack/attendance-ledger/internal/infrastructure/persistence/redis"
	"github.com/classtrack/attendance-ledger/internal/infrastructure/service"
	httpserver "github.com/classtrack/attendance-ledger/internal/interface/http"
	"github.com/classtrack/attendance-ledger/internal/interface/http/handlers"
	"github.com/classtrack/attendance-ledger/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting ClassTrack attendance ledger",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.Bool("debug", cfg.App.Debug),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. POSTGRESQL
	// ─────────────────────────────────────────────────────────────────────────
	var dbConn *postgres.Connection
	if cfg.Database.URL != "" {
		log.Info("connecting to database")
		dbConn, err = postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection")
			dbConn.Close()
		}()

		if err := dbConn.Ping(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		log.Info("database connection established")

		// ─────────────────────────────────────────────────────────────────────
		// 4. MIGRATIONS
		// ─────────────────────────────────────────────────────────────────────
		if cfg.Database.AutoMigrate {
			log.Info("running database migrations")
			migrator := postgres.NewMigrator(dbConn)
			if err := migrator.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("migrations completed")
		}
	} else {
		return errors.New("DATABASE_URL is required")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var summaryCache attendance.SummaryCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, summary caching disabled",
				logger.Err(err))
		} else {
			defer redisCache.Close()
			summaryCache = redis.NewSummaryCache(redisCache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories")
	subjectRepo := postgres.NewSubjectRepository(dbConn)
	recordStore := postgres.NewRecordRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus")
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	busConfig.AsyncMode = true
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. NOTIFICATION SERVICE
	// ─────────────────────────────────────────────────────────────────────────
	notifier := service.NewNotificationService(
		subjectRepo,
		buildWebhookClient(cfg),
		nil,
		service.NotificationConfig{
			Channel:      notificationChannel(cfg),
			LeadTime:     cfg.Notification.LeadTime,
			Horizon:      cfg.Notification.Horizon,
			TickInterval: cfg.Notification.TickInterval,
		},
	)
	if err := notifier.Start(ctx); err != nil {
		return fmt.Errorf("failed to start notification service: %w", err)
	}
	defer notifier.Stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 9. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer")

	locks := command.NewSubjectLocks()
	processor := attendance.NewProcessor(log)
	resolver := attendance.NewResolver(recordStore, uuid.NewString, log)
	holidayToggle := attendance.NewHolidayToggle(resolver, processor, log)

	enrollCmd := command.NewEnrollSubjectHandler(subjectRepo, eventBus, log)
	upsertCmd := command.NewUpsertScheduleHandler(subjectRepo, locks, eventBus, log)
	markCmd := command.NewMarkAttendanceHandler(
		subjectRepo, recordStore, resolver, processor, locks, eventBus, log)
	toggleCmd := command.NewToggleHolidayHandler(
		subjectRepo, recordStore, holidayToggle, locks, eventBus, log)

	dueQuery := query.NewGetDueClassesHandler(subjectRepo, log)
	summaryQuery := query.NewGetAttendanceSummaryHandler(
		subjectRepo, summaryCache, redis.TTLSummaryCache, log)
	auditQuery := query.NewGetAuditLogHandler(subjectRepo, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("registering event handlers")

	statusChanged := eventhandler.NewOnStatusChangedHandler(
		subjectRepo, summaryCache, notifier, eventBus, log,
		eventhandler.DefaultStatusChangedConfig())
	holidayToggled := eventhandler.NewOnHolidayToggledHandler(summaryCache, notifier, log)
	scheduleUpdated := eventhandler.NewOnScheduleUpdatedHandler(notifier, log)

	if err := eventBus.Subscribe(shared.EventRecordStatusChanged, statusChanged.Handle); err != nil {
		return fmt.Errorf("failed to subscribe status handler: %w", err)
	}
	if err := eventBus.Subscribe(shared.EventHolidayToggled, holidayToggled.Handle); err != nil {
		return fmt.Errorf("failed to subscribe holiday handler: %w", err)
	}
	if err := eventBus.Subscribe(shared.EventScheduleUpdated, scheduleUpdated.Handle); err != nil {
		return fmt.Errorf("failed to subscribe schedule handler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server")

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", func(hctx context.Context) error {
		return dbConn.Ping(hctx)
	})
	if redisCache != nil {
		health.AddCheck("redis", func(hctx context.Context) error {
			return redisCache.Ping(hctx)
		})
	}

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.EnableCORS = cfg.HTTP.EnableCORS
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpConfig.APIKeyHeader = cfg.HTTP.APIKeyHeader
	httpConfig.APIKeyHashes = cfg.HTTP.APIKeyHashes

	httpDeps := httpserver.Dependencies{
		EnrollSubjectHandler:        enrollCmd,
		UpsertScheduleHandler:       upsertCmd,
		MarkAttendanceHandler:       markCmd,
		ToggleHolidayHandler:        toggleCmd,
		GetDueClassesHandler:        dueQuery,
		GetAttendanceSummaryHandler: summaryQuery,
		GetAuditLogHandler:          auditQuery,
		Logger:                      log,
		HealthChecker:               health,
	}

	server := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 12. RUN & GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", logger.String("address", server.Address()))
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	log.Info("ClassTrack attendance ledger is running",
		logger.String("http_address", server.Address()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("service error", logger.Err(err))
		return err
	}

	log.Info("starting graceful shutdown",
		logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование из конфигурации.
func setupLogger(cfg *config.Config) *logger.Logger {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = logger.LevelDebug
	}

	return logger.New(logger.Options{
		Output: os.Stdout,
		Level:  level,
	})
}

// buildWebhookClient возвращает webhook-клиент или nil, если URL не задан.
func buildWebhookClient(cfg *config.Config) *webhook.Client {
	if cfg.Webhook.URL == "" {
		return nil
	}

	clientCfg := webhook.DefaultClientConfig(cfg.Webhook.URL)
	clientCfg.Secret = cfg.Webhook.Secret
	clientCfg.Timeout = cfg.Webhook.RequestTimeout
	return webhook.NewClient(clientCfg)
}

func notificationChannel(cfg *config.Config) notification.Channel {
	if cfg.Notification.Channel == "webhook" && cfg.Webhook.URL != "" {
		return notification.ChannelWebhook
	}
	return notification.ChannelLog
}
