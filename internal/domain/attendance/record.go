package attendance

import (
	"fmt"
	"time"

	"github.com/classtrack/attendance-ledger/pkg/timeutil"
)

// Status is the decision recorded for one class slot on one date.
type Status string

const (
	// StatusAttended - the user was present.
	StatusAttended Status = "attended"

	// StatusNotAttended - the class happened and the user was absent.
	StatusNotAttended Status = "not_attended"

	// StatusCanceled - the neutral default: the slot did not count toward
	// attendance. Covers explicit cancellation, holidays, and "no decision yet".
	StatusCanceled Status = "canceled"
)

// IsValid checks that the status is one of the three ledger states.
func (s Status) IsValid() bool {
	switch s {
	case StatusAttended, StatusNotAttended, StatusCanceled:
		return true
	default:
		return false
	}
}

// Counts reports whether the status contributes to TotalClasses:
// only classes the user decided happened (Attended or NotAttended) count.
func (s Status) Counts() bool {
	return s == StatusAttended || s == StatusNotAttended
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// ParseStatus parses a status string.
func ParseStatus(v string) (Status, bool) {
	s := Status(v)
	if !s.IsValid() {
		return "", false
	}
	return s, true
}

// Record is the atomic attendance fact: one class slot on one calendar date.
// At most one record exists per (subject, slot identity, date). Records are
// created lazily by the Resolver and never deleted except with their subject.
type Record struct {
	// ID - internal unique identifier (UUID in string form).
	ID string

	// SubjectID - owning subject.
	SubjectID string

	// SlotID - the stable class-slot identity.
	SlotID string

	// Date - the calendar date at day granularity (midnight).
	Date time.Time

	// Status - the current decision. Defaults to StatusCanceled on creation.
	Status Status

	// IsHoliday - set by the holiday bulk-toggle.
	IsHoliday bool

	// CreatedAt - when the record was first resolved.
	CreatedAt time.Time

	// UpdatedAt - last mutation time.
	UpdatedAt time.Time
}

// newRecord constructs a record at the default status.
func newRecord(id, subjectID, slotID string, date time.Time, holiday bool) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:        id,
		SubjectID: subjectID,
		SlotID:    slotID,
		Date:      timeutil.DayOf(date),
		Status:    StatusCanceled,
		IsHoliday: holiday,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// String returns a string representation for logging.
func (r *Record) String() string {
	return fmt.Sprintf("Record{Slot: %s, Date: %s, Status: %s, Holiday: %t}",
		r.SlotID, timeutil.FormatDateStr(r.Date), r.Status, r.IsHoliday)
}
