package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/classtrack/attendance-ledger/internal/application/query"
	"github.com/classtrack/attendance-ledger/internal/domain/notification"
)

// ══════════════════════════════════════════════════════════════════════════════
// REMINDER DIGEST JOB
// ══════════════════════════════════════════════════════════════════════════════

// DigestDeduper помнит даты, за которые дайджест уже отправлен, чтобы
// перезапущенный worker не отправил утренний дайджест дважды.
type DigestDeduper interface {
	// MarkSent фиксирует дату и возвращает false, если она уже была отмечена.
	MarkSent(ctx context.Context, date time.Time) (bool, error)
}

// ReminderDigestJob проецирует сегодняшние занятия по всем предметам и
// отправляет их одним дайджестом. Запускается утром до первого занятия.
type ReminderDigestJob struct {
	dueClasses *query.GetDueClassesHandler
	sender     notification.Sender
	deduper    DigestDeduper
	logger     *slog.Logger

	config ReminderDigestConfig
}

// ReminderDigestConfig содержит конфигурацию задачи дайджеста.
type ReminderDigestConfig struct {
	// Timeout - максимальная длительность одного запуска.
	Timeout time.Duration

	// SkipEmpty - не отправлять дайджест в дни без занятий.
	SkipEmpty bool

	// SkipHolidays - убирать из дайджеста занятия, отмеченные праздником.
	SkipHolidays bool
}

// DefaultReminderDigestConfig возвращает разумные значения по умолчанию.
func DefaultReminderDigestConfig() ReminderDigestConfig {
	return ReminderDigestConfig{
		Timeout:      30 * time.Second,
		SkipEmpty:    true,
		SkipHolidays: true,
	}
}

// NewReminderDigestJob создаёт новую задачу дайджеста напоминаний.
func NewReminderDigestJob(
	dueClasses *query.GetDueClassesHandler,
	sender notification.Sender,
	deduper DigestDeduper,
	logger *slog.Logger,
	config ReminderDigestConfig,
) *ReminderDigestJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &ReminderDigestJob{
		dueClasses: dueClasses,
		sender:     sender,
		deduper:    deduper,
		logger:     logger,
		config:     config,
	}
}

// Name возвращает имя задачи.
func (j *ReminderDigestJob) Name() string {
	return "reminder_digest"
}

// Description возвращает человекочитаемое описание.
func (j *ReminderDigestJob) Description() string {
	return "Sends a daily digest of today's scheduled classes"
}

// Run выполняет задачу дайджеста.
func (j *ReminderDigestJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	now := time.Now().UTC()

	if j.deduper != nil {
		fresh, err := j.deduper.MarkSent(ctx, now)
		if err != nil {
			j.logger.Warn("digest dedup check failed, sending anyway", "error", err)
		} else if !fresh {
			j.logger.Info("digest already sent today, skipping")
			return nil
		}
	}

	view, err := j.dueClasses.Handle(ctx, query.GetDueClassesQuery{Date: now})
	if err != nil {
		return fmt.Errorf("failed to project due classes: %w", err)
	}

	digest := notification.Digest{Date: view.Date}
	for _, class := range view.Classes {
		if j.config.SkipHolidays && class.IsHoliday {
			continue
		}
		digest.Items = append(digest.Items, notification.DigestItem{
			SubjectID:   class.SubjectID,
			SubjectName: class.SubjectName,
			SlotID:      class.SlotID,
			Start:       class.Start,
			End:         class.End,
			Room:        class.Room,
			Status:      class.Status,
			IsHoliday:   class.IsHoliday,
		})
	}

	if len(digest.Items) == 0 && j.config.SkipEmpty {
		j.logger.Info("no classes due today, digest skipped")
		return nil
	}

	if err := j.sender.SendDigest(ctx, digest); err != nil {
		return fmt.Errorf("failed to send digest: %w", err)
	}

	j.logger.Info("reminder digest sent",
		"date", view.Date.Format("2006-01-02"),
		"classes", len(digest.Items),
	)

	return nil
}
