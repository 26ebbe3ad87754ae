package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
	"github.com/classtrack/attendance-ledger/pkg/logger"
	"github.com/classtrack/attendance-ledger/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE HOLIDAY COMMAND
// Flips the holiday state of one calendar date for a subject. Marking forces
// every due record back to the neutral status; un-marking clears the flags
// only.
// ══════════════════════════════════════════════════════════════════════════════

// ToggleHolidayCommand contains the data to toggle a holiday.
type ToggleHolidayCommand struct {
	// SubjectID is the subject whose date is toggled.
	SubjectID string

	// Date is the calendar date; time-of-day is ignored.
	Date time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ToggleHolidayCommand) Validate() error {
	if c.SubjectID == "" {
		return errors.New("toggle_holiday: subject_id is required")
	}
	if c.Date.IsZero() {
		return errors.New("toggle_holiday: date is required")
	}
	return nil
}

// ToggleHolidayResult contains the result of a holiday toggle.
type ToggleHolidayResult struct {
	// IsHoliday is the state the date ended up in.
	IsHoliday bool

	// AffectedRecords is how many records had their flag flipped.
	AffectedRecords int

	// RevertedRecords is how many records lost a decided status.
	RevertedRecords int

	// Summary is the subject's state after the toggle.
	Summary attendance.Summary

	// Events contains domain events generated.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ToggleHolidayHandler handles the ToggleHolidayCommand.
type ToggleHolidayHandler struct {
	subjectRepo attendance.SubjectRepository
	recordStore attendance.RecordStore
	toggle      *attendance.HolidayToggle
	locks       *SubjectLocks
	publisher   shared.EventPublisher
	log         *logger.Logger
}

// NewToggleHolidayHandler creates a new ToggleHolidayHandler.
func NewToggleHolidayHandler(
	subjectRepo attendance.SubjectRepository,
	recordStore attendance.RecordStore,
	toggle *attendance.HolidayToggle,
	locks *SubjectLocks,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *ToggleHolidayHandler {
	if log == nil {
		log = logger.Default()
	}
	return &ToggleHolidayHandler{
		subjectRepo: subjectRepo,
		recordStore: recordStore,
		toggle:      toggle,
		locks:       locks,
		publisher:   publisher,
		log:         log,
	}
}

// Handle executes the toggle.
func (h *ToggleHolidayHandler) Handle(ctx context.Context, cmd ToggleHolidayCommand) (*ToggleHolidayResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("toggle_holiday: validation failed: %w", err)
	}

	defer h.locks.Lock(cmd.SubjectID)()

	subject, err := h.subjectRepo.GetByID(ctx, cmd.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("toggle_holiday: failed to get subject: %w", err)
	}
	if timeutil.BeforeDay(cmd.Date, subject.StartedAt) {
		return nil, fmt.Errorf("toggle_holiday: %w: %s is before enrollment",
			shared.ErrOutOfRangeDate, timeutil.FormatDateStr(cmd.Date))
	}

	res := h.toggle.Toggle(ctx, subject, cmd.Date)

	for _, rec := range res.Affected {
		if err := h.recordStore.Save(ctx, rec); err != nil {
			h.log.Warn("record save failed", logger.String("record_id", rec.ID), logger.Err(err))
		}
	}
	if len(res.Affected) > 0 {
		if err := h.subjectRepo.Save(ctx, subject); err != nil {
			h.log.Warn("subject save failed", logger.String("subject_id", subject.ID), logger.Err(err))
		}
	}

	event := shared.NewHolidayToggledEvent(subject.ID, timeutil.DayOf(cmd.Date), res.IsHoliday, len(res.Affected))
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	if h.publisher != nil {
		_ = h.publisher.Publish(event)
	}

	return &ToggleHolidayResult{
		IsHoliday:       res.IsHoliday,
		AffectedRecords: len(res.Affected),
		RevertedRecords: res.Reverted,
		Summary:         attendance.SummaryOf(subject),
		Events:          []shared.Event{event},
	}, nil
}
