// Package service wires domain notification ports to concrete transports.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/notification"
	"github.com/classtrack/attendance-ledger/internal/infrastructure/external/webhook"
	"github.com/classtrack/attendance-ledger/pkg/retry"
	"github.com/classtrack/attendance-ledger/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// NotificationConfig contains configuration for the notification service.
type NotificationConfig struct {
	// Channel selects the delivery transport.
	Channel notification.Channel

	// LeadTime is how long before a class start a reminder fires.
	LeadTime time.Duration

	// Horizon is how far ahead reminders are planned on reschedule.
	Horizon time.Duration

	// TickInterval is how often pending reminders are checked.
	TickInterval time.Duration
}

// DefaultNotificationConfig returns sensible defaults.
func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		Channel:      notification.ChannelLog,
		LeadTime:     15 * time.Minute,
		Horizon:      7 * 24 * time.Hour,
		TickInterval: 30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// NotificationService implements notification.Sender and
// notification.Scheduler. Reminders are planned in memory from the subject's
// weekly timetable and delivered over the configured channel; alerts and
// digests are passed straight through.
//
// Delivery goes through a retrier; a reminder that still fails after the
// retries is dropped with a log line, never requeued.
type NotificationService struct {
	subjectRepo attendance.SubjectRepository
	client      *webhook.Client
	retrier     *retry.Retrier
	logger      *slog.Logger
	config      NotificationConfig

	mu        sync.Mutex
	reminders map[string][]notification.Reminder // keyed by subject ID

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewNotificationService creates a notification service. The webhook client
// may be nil, in which case every delivery falls back to the log channel.
func NewNotificationService(
	subjectRepo attendance.SubjectRepository,
	client *webhook.Client,
	logger *slog.Logger,
	config NotificationConfig,
) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	if config.LeadTime <= 0 {
		config.LeadTime = 15 * time.Minute
	}
	if config.Horizon <= 0 {
		config.Horizon = 7 * 24 * time.Hour
	}
	if config.TickInterval <= 0 {
		config.TickInterval = 30 * time.Second
	}
	if client == nil {
		config.Channel = notification.ChannelLog
	}

	return &NotificationService{
		subjectRepo: subjectRepo,
		client:      client,
		retrier:     retry.NotifierRetrier(),
		logger:      logger,
		config:      config,
		reminders:   make(map[string][]notification.Reminder),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// notification.Sender
// ─────────────────────────────────────────────────────────────────────────────

// SendAlert delivers a low-attendance warning.
func (s *NotificationService) SendAlert(ctx context.Context, alert notification.Alert) error {
	if s.config.Channel == notification.ChannelWebhook {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			return s.client.Post(ctx, "attendance.alert", alert)
		})
	}

	s.logger.Warn("attendance below requirement",
		"subject", alert.SubjectName,
		"percentage", fmt.Sprintf("%.2f", alert.Percentage),
		"requirement", alert.Requirement,
		"band", alert.Band,
	)
	return nil
}

// SendDigest delivers the daily due-class digest.
func (s *NotificationService) SendDigest(ctx context.Context, digest notification.Digest) error {
	if s.config.Channel == notification.ChannelWebhook {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			return s.client.Post(ctx, "attendance.digest", digest)
		})
	}

	s.logger.Info("daily class digest",
		"date", timeutil.FormatDateStr(digest.Date),
		"classes", len(digest.Items),
	)
	for _, item := range digest.Items {
		s.logger.Info("class due",
			"subject", item.SubjectName,
			"start", item.Start,
			"room", item.Room,
			"status", item.Status,
		)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// notification.Scheduler
// ─────────────────────────────────────────────────────────────────────────────

// Reschedule recomputes the subject's reminders from its current weekly
// schedule. Called after every schedule edit.
func (s *NotificationService) Reschedule(ctx context.Context, subjectID string) error {
	subject, err := s.subjectRepo.GetByID(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("reschedule reminders: %w", err)
	}

	now := time.Now().UTC()
	planned := s.planReminders(subject, now, now.Add(s.config.Horizon))

	s.mu.Lock()
	s.reminders[subjectID] = planned
	s.mu.Unlock()

	s.logger.Debug("reminders rescheduled",
		"subject", subject.Name,
		"count", len(planned),
	)
	return nil
}

// CancelForDate drops any pending reminders of the subject on the date.
// Used when a date becomes a holiday.
func (s *NotificationService) CancelForDate(ctx context.Context, subjectID string, date time.Time) error {
	day := timeutil.DayOf(date)

	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.reminders[subjectID]
	kept := pending[:0]
	for _, rem := range pending {
		if !timeutil.SameDay(rem.FireAt, day) {
			kept = append(kept, rem)
		}
	}
	dropped := len(pending) - len(kept)
	s.reminders[subjectID] = kept

	if dropped > 0 {
		s.logger.Info("reminders cancelled for holiday",
			"subject_id", subjectID,
			"date", timeutil.FormatDateStr(day),
			"count", dropped,
		)
	}
	return nil
}

// planReminders walks the window day by day and emits one reminder per timed
// slot. Untimed slots and holiday dates produce nothing.
func (s *NotificationService) planReminders(subject *attendance.Subject, from, until time.Time) []notification.Reminder {
	var planned []notification.Reminder

	for day := timeutil.DayOf(from); !day.After(until); day = day.AddDate(0, 0, 1) {
		if subject.HolidayOnDate(day) {
			continue
		}
		for _, slot := range subject.DueSlots(day) {
			if !slot.Start.IsSet() {
				continue
			}
			fireAt := day.Add(time.Duration(slot.Start)*time.Minute - s.config.LeadTime)
			if fireAt.Before(from) {
				continue
			}
			planned = append(planned, notification.Reminder{
				ID:          uuid.NewString(),
				SubjectID:   subject.ID,
				SubjectName: subject.Name,
				SlotID:      slot.ID,
				FireAt:      fireAt,
				Room:        slot.Room,
			})
		}
	}

	return planned
}

// ─────────────────────────────────────────────────────────────────────────────
// Delivery loop
// ─────────────────────────────────────────────────────────────────────────────

// Start launches the reminder delivery loop.
func (s *NotificationService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("notification service already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("notification service started",
		"channel", string(s.config.Channel),
		"lead_time", s.config.LeadTime.String(),
	)
	return nil
}

// Stop halts the delivery loop and waits for in-flight sends.
func (s *NotificationService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("notification service stopped")
}

func (s *NotificationService) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(ctx, time.Now().UTC())
		}
	}
}

// fireDue delivers every reminder whose fire time has passed.
func (s *NotificationService) fireDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []notification.Reminder
	for subjectID, pending := range s.reminders {
		kept := pending[:0]
		for _, rem := range pending {
			if rem.FireAt.After(now) {
				kept = append(kept, rem)
			} else {
				due = append(due, rem)
			}
		}
		s.reminders[subjectID] = kept
	}
	s.mu.Unlock()

	for _, rem := range due {
		if err := s.deliverReminder(ctx, rem); err != nil {
			s.logger.Error("reminder delivery failed",
				"subject", rem.SubjectName,
				"slot_id", rem.SlotID,
				"error", err,
			)
		}
	}
}

func (s *NotificationService) deliverReminder(ctx context.Context, rem notification.Reminder) error {
	if s.config.Channel == notification.ChannelWebhook {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			return s.client.Post(ctx, "attendance.reminder", rem)
		})
	}

	s.logger.Info("class starts soon",
		"subject", rem.SubjectName,
		"room", rem.Room,
		"fire_at", rem.FireAt.Format(time.RFC3339),
	)
	return nil
}

// PendingReminders returns a snapshot of the subject's planned reminders.
func (s *NotificationService) PendingReminders(subjectID string) []notification.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.reminders[subjectID]
	out := make([]notification.Reminder, len(pending))
	copy(out, pending)
	return out
}
