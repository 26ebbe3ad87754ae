package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
	"github.com/classtrack/attendance-ledger/pkg/logger"
	"github.com/classtrack/attendance-ledger/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPSERT SCHEDULE COMMAND
// Creates or replaces the weekly schedule of one weekday. Slot identity rules:
// a SlotInput with an ID keeps that slot's record history; one without an ID
// gets a fresh identity. Changing a slot's time window therefore resets its
// history (drop the ID), changing only the room keeps it (pass the ID).
// ══════════════════════════════════════════════════════════════════════════════

// SlotInput describes one class slot in the new weekday schedule.
type SlotInput struct {
	// ID - existing slot identity to preserve, empty for a new slot.
	ID string

	// Start, End - "HH:MM" clock strings, both optional.
	Start string
	End   string

	// Room - free-form room label.
	Room string
}

// UpsertScheduleCommand contains the data to replace a weekday schedule.
type UpsertScheduleCommand struct {
	// SubjectID is the subject whose timetable changes.
	SubjectID string

	// Weekday is the day label ("Monday" ... "Sunday", case-insensitive).
	Weekday string

	// Slots is the full new slot list for the weekday; empty removes it.
	Slots []SlotInput

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c UpsertScheduleCommand) Validate() error {
	if c.SubjectID == "" {
		return errors.New("upsert_schedule: subject_id is required")
	}
	if _, ok := attendance.ParseWeekday(c.Weekday); !ok {
		return fmt.Errorf("upsert_schedule: %w: %q", shared.ErrInvalidWeekday, c.Weekday)
	}
	return nil
}

// UpsertScheduleResult contains the result of a schedule replacement.
type UpsertScheduleResult struct {
	// SubjectID is the subject whose timetable changed.
	SubjectID string

	// Weekday is the normalized weekday label.
	Weekday string

	// Slots is the stored schedule with assigned slot identities.
	Slots []attendance.ClassSlot

	// ReplacedSlots is how many previous slots the new list displaced.
	ReplacedSlots int

	// Events contains domain events generated.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// UpsertScheduleHandler handles the UpsertScheduleCommand.
type UpsertScheduleHandler struct {
	subjectRepo attendance.SubjectRepository
	locks       *SubjectLocks
	publisher   shared.EventPublisher
	log         *logger.Logger
}

// NewUpsertScheduleHandler creates a new UpsertScheduleHandler.
func NewUpsertScheduleHandler(
	subjectRepo attendance.SubjectRepository,
	locks *SubjectLocks,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *UpsertScheduleHandler {
	if log == nil {
		log = logger.Default()
	}
	return &UpsertScheduleHandler{
		subjectRepo: subjectRepo,
		locks:       locks,
		publisher:   publisher,
		log:         log,
	}
}

// Handle executes the schedule replacement.
func (h *UpsertScheduleHandler) Handle(ctx context.Context, cmd UpsertScheduleCommand) (*UpsertScheduleResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("upsert_schedule: validation failed: %w", err)
	}
	weekday, _ := attendance.ParseWeekday(cmd.Weekday)

	slots, err := buildSlots(cmd.Slots)
	if err != nil {
		return nil, fmt.Errorf("upsert_schedule: %w", err)
	}

	defer h.locks.Lock(cmd.SubjectID)()

	subject, err := h.subjectRepo.GetByID(ctx, cmd.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("upsert_schedule: failed to get subject: %w", err)
	}

	replaced := 0
	for _, sched := range subject.Schedules {
		if sched.Weekday == weekday {
			replaced = len(sched.Slots)
		}
	}

	if len(slots) == 0 {
		subject.RemoveSchedule(weekday)
	} else if err := subject.UpsertSchedule(weekday, slots); err != nil {
		return nil, fmt.Errorf("upsert_schedule: %w", err)
	}

	if err := h.subjectRepo.Save(ctx, subject); err != nil {
		h.log.Warn("schedule save failed, in-memory state kept",
			logger.String("subject_id", subject.ID),
			logger.Err(err),
		)
	}

	event := shared.NewScheduleUpdatedEvent(subject.ID, weekday.String(), len(slots), replaced)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	if h.publisher != nil {
		_ = h.publisher.Publish(event)
	}

	h.log.Info("schedule upserted",
		logger.String("subject_id", subject.ID),
		logger.String("weekday", weekday.String()),
		logger.Int("slots", len(slots)),
		logger.Int("replaced", replaced),
	)

	return &UpsertScheduleResult{
		SubjectID:     subject.ID,
		Weekday:       weekday.String(),
		Slots:         slots,
		ReplacedSlots: replaced,
		Events:        []shared.Event{event},
	}, nil
}

// buildSlots converts slot inputs into domain slots, assigning identities.
func buildSlots(inputs []SlotInput) ([]attendance.ClassSlot, error) {
	slots := make([]attendance.ClassSlot, 0, len(inputs))
	for i, in := range inputs {
		start, err := parseClock(in.Start)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		end, err := parseClock(in.End)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}

		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}

		slot := attendance.ClassSlot{ID: id, Start: start, End: end, Room: in.Room}
		if err := slot.Validate(); err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func parseClock(s string) (attendance.TimeOfDay, error) {
	if s == "" {
		return attendance.TimeUnset, nil
	}
	minutes, err := timeutil.ParseClock(s)
	if err != nil {
		return attendance.TimeUnset, err
	}
	return attendance.TimeOfDay(minutes), nil
}
