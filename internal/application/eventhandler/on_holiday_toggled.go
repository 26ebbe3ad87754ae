package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/notification"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
	"github.com/classtrack/attendance-ledger/pkg/logger"
	"github.com/classtrack/attendance-ledger/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON HOLIDAY TOGGLED HANDLER
// Держит напоминания в согласии с признаком праздника: дате, отмеченной
// праздником, пинги "занятие скоро" не нужны, снятой - возвращаются.
// ══════════════════════════════════════════════════════════════════════════════

// OnHolidayToggledHandler обрабатывает события subject.holiday_toggled.
type OnHolidayToggledHandler struct {
	cache     attendance.SummaryCache
	scheduler notification.Scheduler
	log       *logger.Logger
	timeout   time.Duration
}

// NewOnHolidayToggledHandler создаёт новый OnHolidayToggledHandler.
func NewOnHolidayToggledHandler(
	cache attendance.SummaryCache,
	scheduler notification.Scheduler,
	log *logger.Logger,
) *OnHolidayToggledHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnHolidayToggledHandler{
		cache:     cache,
		scheduler: scheduler,
		log:       log,
		timeout:   10 * time.Second,
	}
}

// Handle обрабатывает одно событие. Регистрируется на шине как shared.EventHandler.
func (h *OnHolidayToggledHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.HolidayToggledEvent)
	if !ok {
		return fmt.Errorf("on_holiday_toggled: unexpected event type %s", event.EventType())
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	// Переключение могло откатить принятые решения; кешированная сводка
	// в любом случае устарела.
	if h.cache != nil && e.Affected > 0 {
		if err := h.cache.Invalidate(ctx, e.SubjectID); err != nil {
			h.log.Warn("summary cache invalidation failed",
				logger.String("subject_id", e.SubjectID),
				logger.Err(err),
			)
		}
	}

	if h.scheduler == nil {
		return nil
	}

	var err error
	if e.IsHoliday {
		err = h.scheduler.CancelForDate(ctx, e.SubjectID, e.Date)
	} else {
		err = h.scheduler.Reschedule(ctx, e.SubjectID)
	}
	if err != nil {
		h.log.Warn("reminder rescheduling failed",
			logger.String("subject_id", e.SubjectID),
			logger.String("date", timeutil.FormatDateStr(e.Date)),
			logger.Bool("is_holiday", e.IsHoliday),
			logger.Err(err),
		)
	}
	return nil
}
