// Package main - точка входа для фоновых процессов (Worker) ClassTrack.
//
// Worker отвечает за периодические задачи:
// - Ночной пересчёт агрегатов: пересканировать записи, починить разъехавшиеся счётчики
// - Утренний дайджест напоминаний: сегодняшние занятия, дедупликация через Redis
// - Цикл напоминаний перед занятием: пинги по слотам, у которых задано время
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/classtrack/attendance-ledger/config"
	"github.com/classtrack/attendance-ledger/internal/application/eventhandler"
	"github.com/classtrack/attendance-ledger/internal/application/query"
	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/notification"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
	"github.com/classtrack/attendance-ledger/internal/infrastructure/external/webhook"
	"github.com/classtrack/attendance-ledger/internal/infrastructure/messaging"
	"github.com/classtrack/attendance-ledger/internal/infrastructure/persistence/postgres"
	"github.com/classtrack/attendance-ledger/internal/infrastructure/persistence/redis"
	"github.com/classtrack/attendance-ledger/internal/infrastructure/scheduler"
	"github.com/classtrack/attendance-ledger/internal/infrastructure/scheduler/jobs"
	"github.com/classtrack/attendance-ledger/internal/infrastructure/service"
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

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting ClassTrack worker",
		"env", string(cfg.App.Environment),
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. POSTGRESQL
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Миграции выполняет API-сервер; worker только проверяет, что они применены.
	migrator := postgres.NewMigrator(dbConn)
	status, err := migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	for _, m := range status {
		if !m.IsApplied {
			return fmt.Errorf("migration %d (%s) not applied, start the server first",
				m.Version, m.Name)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var summaryCache attendance.SummaryCache
	var deduper jobs.DigestDeduper

	if !cfg.Redis.Disabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB

		redisCache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, digest dedup disabled", "error", err)
		} else {
			defer redisCache.Close()
			summaryCache = redis.NewSummaryCache(redisCache)
			deduper = redis.NewDigestDeduper(redisCache)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REPOSITORIES, BUS, NOTIFICATIONS
	// ─────────────────────────────────────────────────────────────────────────
	subjectRepo := postgres.NewSubjectRepository(dbConn)

	appLog := logger.Default()
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = appLog
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() { _ = eventBus.Close() }()

	notifier := service.NewNotificationService(
		subjectRepo,
		buildWebhookClient(cfg),
		log,
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

	// Правки расписания через API долетают сюда событиями и обновляют
	// план напоминаний в памяти.
	scheduleUpdated := eventhandler.NewOnScheduleUpdatedHandler(notifier, appLog)
	if err := eventBus.Subscribe(shared.EventScheduleUpdated, scheduleUpdated.Handle); err != nil {
		return fmt.Errorf("failed to subscribe schedule handler: %w", err)
	}

	dueQuery := query.NewGetDueClassesHandler(subjectRepo, appLog)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. SCHEDULER & JOBS
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled, worker idles until shutdown")
		return waitForSignal(ctx, log)
	}

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:        log,
		Timezone:      cfg.App.Location,
		EnableMetrics: true,
	})

	rebuildJob := jobs.NewRebuildAggregatesJob(
		subjectRepo, summaryCache, eventBus, log,
		jobs.RebuildAggregatesConfig{
			Timeout: cfg.Scheduler.JobTimeout,
			DryRun:  cfg.Scheduler.RebuildDryRun,
		})
	rebuildCron, err := scheduler.ParseCronExpression(cfg.Scheduler.RebuildCron)
	if err != nil {
		return fmt.Errorf("invalid rebuild cron %q: %w", cfg.Scheduler.RebuildCron, err)
	}
	if err := sched.Register(rebuildJob, rebuildCron); err != nil {
		return fmt.Errorf("failed to register rebuild job: %w", err)
	}

	digestJob := jobs.NewReminderDigestJob(
		dueQuery, notifier, deduper, log, jobs.DefaultReminderDigestConfig())
	digestCron := scheduler.MustParseCronExpression(
		fmt.Sprintf("%d %d * * *", cfg.Scheduler.DigestMinute, cfg.Scheduler.DigestHour))
	if err := sched.Register(digestJob, digestCron); err != nil {
		return fmt.Errorf("failed to register digest job: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() { _ = sched.Stop() }()

	log.Info("ClassTrack worker is running",
		"rebuild_cron", cfg.Scheduler.RebuildCron,
		"digest_at", fmt.Sprintf("%02d:%02d", cfg.Scheduler.DigestHour, cfg.Scheduler.DigestMinute),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	return waitForSignal(ctx, log)
}

func waitForSignal(ctx context.Context, log *slog.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	log.Info("worker shutting down")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает slog для фоновых процессов.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
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
