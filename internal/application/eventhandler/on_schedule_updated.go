package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/classtrack/attendance-ledger/internal/domain/notification"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
	"github.com/classtrack/attendance-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON SCHEDULE UPDATED HANDLER
// Изменённое расписание обесценивает все запланированные напоминания
// предмета; планировщик пересчитывает их по полному списку расписаний.
// ══════════════════════════════════════════════════════════════════════════════

// OnScheduleUpdatedHandler обрабатывает события subject.schedule_updated.
type OnScheduleUpdatedHandler struct {
	scheduler notification.Scheduler
	log       *logger.Logger
	timeout   time.Duration
}

// NewOnScheduleUpdatedHandler создаёт новый OnScheduleUpdatedHandler.
func NewOnScheduleUpdatedHandler(scheduler notification.Scheduler, log *logger.Logger) *OnScheduleUpdatedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnScheduleUpdatedHandler{
		scheduler: scheduler,
		log:       log,
		timeout:   10 * time.Second,
	}
}

// Handle обрабатывает одно событие. Регистрируется на шине как shared.EventHandler.
func (h *OnScheduleUpdatedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.ScheduleUpdatedEvent)
	if !ok {
		return fmt.Errorf("on_schedule_updated: unexpected event type %s", event.EventType())
	}

	if h.scheduler == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.scheduler.Reschedule(ctx, e.SubjectID); err != nil {
		h.log.Warn("reminder rescheduling failed",
			logger.String("subject_id", e.SubjectID),
			logger.String("weekday", e.Weekday),
			logger.Err(err),
		)
	}
	return nil
}
