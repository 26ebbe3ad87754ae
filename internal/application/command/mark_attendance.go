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
// MARK ATTENDANCE COMMAND
// Resolves the record for (slot, date) and transitions its status. The record
// is created lazily at the neutral status if nobody looked at it before.
// ══════════════════════════════════════════════════════════════════════════════

// MarkAttendanceCommand contains the data to mark one class.
type MarkAttendanceCommand struct {
	// SubjectID is the subject being marked.
	SubjectID string

	// SlotID is the class slot identity.
	SlotID string

	// Date is the calendar date of the class; time-of-day is ignored.
	Date time.Time

	// Status is the decision: "attended", "not_attended" or "canceled".
	Status string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c MarkAttendanceCommand) Validate() error {
	if c.SubjectID == "" {
		return errors.New("mark_attendance: subject_id is required")
	}
	if c.SlotID == "" {
		return errors.New("mark_attendance: slot_id is required")
	}
	if c.Date.IsZero() {
		return errors.New("mark_attendance: date is required")
	}
	if _, ok := attendance.ParseStatus(c.Status); !ok {
		return fmt.Errorf("mark_attendance: %w: %q", shared.ErrInvalidStatus, c.Status)
	}
	return nil
}

// MarkAttendanceResult contains the result of a mark.
type MarkAttendanceResult struct {
	// RecordID identifies the (possibly just created) record.
	RecordID string

	// OldStatus, NewStatus - the transition that happened. Equal when the
	// requested status was already set.
	OldStatus string
	NewStatus string

	// Changed is false for the free no-op.
	Changed bool

	// Summary is the subject's state after the mark.
	Summary attendance.Summary

	// Events contains domain events generated.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// MarkAttendanceHandler handles the MarkAttendanceCommand.
type MarkAttendanceHandler struct {
	subjectRepo attendance.SubjectRepository
	recordStore attendance.RecordStore
	resolver    *attendance.Resolver
	processor   *attendance.Processor
	locks       *SubjectLocks
	publisher   shared.EventPublisher
	log         *logger.Logger
}

// NewMarkAttendanceHandler creates a new MarkAttendanceHandler.
func NewMarkAttendanceHandler(
	subjectRepo attendance.SubjectRepository,
	recordStore attendance.RecordStore,
	resolver *attendance.Resolver,
	processor *attendance.Processor,
	locks *SubjectLocks,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *MarkAttendanceHandler {
	if log == nil {
		log = logger.Default()
	}
	return &MarkAttendanceHandler{
		subjectRepo: subjectRepo,
		recordStore: recordStore,
		resolver:    resolver,
		processor:   processor,
		locks:       locks,
		publisher:   publisher,
		log:         log,
	}
}

// Handle executes the mark.
func (h *MarkAttendanceHandler) Handle(ctx context.Context, cmd MarkAttendanceCommand) (*MarkAttendanceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("mark_attendance: validation failed: %w", err)
	}
	status, _ := attendance.ParseStatus(cmd.Status)

	defer h.locks.Lock(cmd.SubjectID)()

	subject, err := h.subjectRepo.GetByID(ctx, cmd.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("mark_attendance: failed to get subject: %w", err)
	}

	slot, found := subject.FindSlot(cmd.SlotID)
	if !found {
		return nil, fmt.Errorf("mark_attendance: %w: %s", shared.ErrSlotNotFound, cmd.SlotID)
	}
	if timeutil.BeforeDay(cmd.Date, subject.StartedAt) {
		return nil, fmt.Errorf("mark_attendance: %w: %s is before enrollment",
			shared.ErrOutOfRangeDate, timeutil.FormatDateStr(cmd.Date))
	}
	due := false
	for _, s := range subject.DueSlots(cmd.Date) {
		if s.ID == slot.ID {
			due = true
			break
		}
	}
	if !due {
		return nil, fmt.Errorf("mark_attendance: %w: slot not due on %s",
			shared.ErrOutOfRangeDate, timeutil.FormatDateStr(cmd.Date))
	}

	rec := h.resolver.Resolve(ctx, subject, slot, cmd.Date)
	oldStatus := rec.Status

	result := &MarkAttendanceResult{
		RecordID:  rec.ID,
		OldStatus: oldStatus.String(),
		NewStatus: status.String(),
		Events:    make([]shared.Event, 0, 1),
	}

	if h.processor.Apply(subject, rec, status) {
		result.Changed = true

		// Fire-and-forget: the in-memory subject is authoritative, a failed
		// write is repaired by the aggregate rebuild job.
		if err := h.recordStore.Save(ctx, rec); err != nil {
			h.log.Warn("record save failed", logger.String("record_id", rec.ID), logger.Err(err))
		}
		if err := h.subjectRepo.Save(ctx, subject); err != nil {
			h.log.Warn("subject save failed", logger.String("subject_id", subject.ID), logger.Err(err))
		}

		event := shared.NewRecordStatusChangedEvent(
			subject.ID, rec.ID, rec.SlotID, rec.Date,
			oldStatus.String(), status.String(),
			subject.Aggregate.AttendedClasses, subject.Aggregate.TotalClasses,
		)
		if cmd.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		if h.publisher != nil {
			_ = h.publisher.Publish(event)
		}
		result.Events = append(result.Events, event)
	}

	result.Summary = attendance.SummaryOf(subject)
	return result, nil
}
