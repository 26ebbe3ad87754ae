package attendance

import (
	"strings"
	"time"

	"github.com/classtrack/attendance-ledger/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEEKDAY & TIME-OF-DAY VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Weekday is the schedule weekday label ("Monday" ... "Sunday").
type Weekday string

const (
	Monday    Weekday = "Monday"
	Tuesday   Weekday = "Tuesday"
	Wednesday Weekday = "Wednesday"
	Thursday  Weekday = "Thursday"
	Friday    Weekday = "Friday"
	Saturday  Weekday = "Saturday"
	Sunday    Weekday = "Sunday"
)

// IsValid checks that the label is one of the seven weekdays.
func (w Weekday) IsValid() bool {
	switch w {
	case Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday:
		return true
	default:
		return false
	}
}

// String returns the string representation of the weekday.
func (w Weekday) String() string {
	return string(w)
}

// ParseWeekday parses a weekday label case-insensitively.
func ParseWeekday(s string) (Weekday, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monday":
		return Monday, true
	case "tuesday":
		return Tuesday, true
	case "wednesday":
		return Wednesday, true
	case "thursday":
		return Thursday, true
	case "friday":
		return Friday, true
	case "saturday":
		return Saturday, true
	case "sunday":
		return Sunday, true
	default:
		return "", false
	}
}

// WeekdayOf returns the weekday label of a calendar date.
func WeekdayOf(t time.Time) Weekday {
	return Weekday(timeutil.WeekdayName(t))
}

// TimeOfDay is minutes since midnight. TimeUnset means "no time set";
// slots without times are valid (the timetable may carry rooms only).
type TimeOfDay int

// TimeUnset marks an absent start or end time.
const TimeUnset TimeOfDay = -1

// IsSet reports whether the time is present.
func (t TimeOfDay) IsSet() bool {
	return t >= 0
}

// String formats the time as "HH:MM", empty when unset.
func (t TimeOfDay) String() string {
	if !t.IsSet() {
		return ""
	}
	return timeutil.ClockString(int(t))
}

// NewTimeOfDay builds a TimeOfDay from clock components.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeUnset
	}
	return TimeOfDay(hour*60 + minute)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLASS SLOT & SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// ClassSlot is a recurring weekly time window. The ID is the stable identity
// that ties historical records to the slot across metadata edits: changing
// the room keeps the identity, changing start/end replaces it (and with it
// the record stream).
type ClassSlot struct {
	// ID - stable identity (UUID in string form).
	ID string

	// Start - optional start time of day.
	Start TimeOfDay

	// End - optional end time of day.
	End TimeOfDay

	// Room - free-text room label.
	Room string
}

// Validate checks the slot's time window.
func (c ClassSlot) Validate() error {
	if c.Start.IsSet() && c.End.IsSet() && c.End < c.Start {
		return ErrInvalidSlotWindow
	}
	return nil
}

// Schedule groups the class slots of one weekday. A subject keeps at most one
// schedule per weekday in current usage (not structurally enforced).
type Schedule struct {
	// Weekday - the day this schedule recurs on.
	Weekday Weekday

	// Slots - ordered class slots, declaration order.
	Slots []ClassSlot
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE PROJECTOR
// ══════════════════════════════════════════════════════════════════════════════

// DueSlots returns the class slots due on the given date: every slot of every
// schedule whose weekday matches, concatenated in declaration order. Dates
// before the enrollment start yield an empty list. Consumers needing a total
// order re-sort by slot start time.
func (s *Subject) DueSlots(date time.Time) []ClassSlot {
	if timeutil.BeforeDay(date, s.StartedAt) {
		return nil
	}

	weekday := WeekdayOf(date)
	var due []ClassSlot
	for _, sched := range s.Schedules {
		if sched.Weekday == weekday {
			due = append(due, sched.Slots...)
		}
	}
	return due
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE EDITING
// ══════════════════════════════════════════════════════════════════════════════

// UpsertSchedule replaces the schedule for a weekday, or appends a new one.
// Slot identities are supplied by the caller; reusing an existing identity
// keeps that slot's record history.
func (s *Subject) UpsertSchedule(weekday Weekday, slots []ClassSlot) error {
	for _, slot := range slots {
		if err := slot.Validate(); err != nil {
			return err
		}
	}

	for i := range s.Schedules {
		if s.Schedules[i].Weekday == weekday {
			s.Schedules[i].Slots = slots
			s.UpdatedAt = time.Now().UTC()
			return nil
		}
	}

	s.Schedules = append(s.Schedules, Schedule{Weekday: weekday, Slots: slots})
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// RemoveSchedule drops the schedule for a weekday, if present.
// Existing records for its slots are kept (history is never deleted).
func (s *Subject) RemoveSchedule(weekday Weekday) {
	for i := range s.Schedules {
		if s.Schedules[i].Weekday == weekday {
			s.Schedules = append(s.Schedules[:i], s.Schedules[i+1:]...)
			s.UpdatedAt = time.Now().UTC()
			return
		}
	}
}

// EditSlotRoom changes a slot's room label in place, keeping its identity
// and therefore its record history.
func (s *Subject) EditSlotRoom(slotID, room string) error {
	for i := range s.Schedules {
		for j := range s.Schedules[i].Slots {
			if s.Schedules[i].Slots[j].ID == slotID {
				s.Schedules[i].Slots[j].Room = room
				s.UpdatedAt = time.Now().UTC()
				return nil
			}
		}
	}
	return ErrSlotNotFound
}

// RescheduleSlot changes a slot's time window by replacing its identity:
// the slot at the same position gets newID, and the record stream of the old
// identity is left behind. Old records stay in the ledger and keep counting;
// only future resolutions bind to the new identity.
func (s *Subject) RescheduleSlot(slotID, newID string, start, end TimeOfDay) (ClassSlot, error) {
	replacement := ClassSlot{ID: newID, Start: start, End: end}
	if err := replacement.Validate(); err != nil {
		return ClassSlot{}, err
	}

	for i := range s.Schedules {
		for j := range s.Schedules[i].Slots {
			if s.Schedules[i].Slots[j].ID == slotID {
				replacement.Room = s.Schedules[i].Slots[j].Room
				s.Schedules[i].Slots[j] = replacement
				s.UpdatedAt = time.Now().UTC()
				return replacement, nil
			}
		}
	}
	return ClassSlot{}, ErrSlotNotFound
}

// FindSlot returns the slot with the given identity.
func (s *Subject) FindSlot(slotID string) (ClassSlot, bool) {
	for _, sched := range s.Schedules {
		for _, slot := range sched.Slots {
			if slot.ID == slotID {
				return slot, true
			}
		}
	}
	return ClassSlot{}, false
}
