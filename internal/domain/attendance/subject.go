package attendance

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/classtrack/attendance-ledger/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE
// ══════════════════════════════════════════════════════════════════════════════

// DefaultMinimumPercentage is the default attendance requirement.
const DefaultMinimumPercentage = 75.0

// Band classifies a subject's attendance percentage for presentation.
type Band string

const (
	// BandGood - percentage meets the minimum requirement.
	BandGood Band = "good"
	// BandWarning - percentage is below the requirement but above half of it.
	BandWarning Band = "warning"
	// BandCritical - percentage is at or below half the requirement.
	BandCritical Band = "critical"
)

// Aggregate holds the subject-level running totals derived from records.
// Invariants:
//
//	I1: AttendedClasses <= TotalClasses
//	I2: TotalClasses equals the count of records decided Attended or
//	    NotAttended, AttendedClasses the count decided Attended.
type Aggregate struct {
	// TotalClasses counts classes the user decided happened.
	TotalClasses int

	// AttendedClasses counts classes marked Attended.
	AttendedClasses int

	// MinimumPercentage is the attendance requirement (0, 100].
	MinimumPercentage float64
}

// Percentage returns the attendance percentage, 0 when no classes are counted.
func (a Aggregate) Percentage() float64 {
	if a.TotalClasses == 0 {
		return 0
	}
	return float64(a.AttendedClasses) / float64(a.TotalClasses) * 100
}

// Band returns the threshold band for the current percentage.
func (a Aggregate) Band() Band {
	return BandFor(a.Percentage(), a.MinimumPercentage)
}

// BandFor classifies a percentage against a minimum requirement.
func BandFor(percentage, minimum float64) Band {
	switch {
	case percentage >= minimum:
		return BandGood
	case percentage <= minimum/2:
		return BandCritical
	default:
		return BandWarning
	}
}

// apply adjusts the counters by a transition delta, flooring both at zero.
// Returns true when a counter had to be clamped, which means the incremental
// bookkeeping drifted from the record set and needs a rescan.
func (a *Aggregate) apply(d Delta) (clamped bool) {
	a.AttendedClasses += d.Attended
	a.TotalClasses += d.Total

	if a.AttendedClasses < 0 {
		a.AttendedClasses = 0
		clamped = true
	}
	if a.TotalClasses < 0 {
		a.TotalClasses = 0
		clamped = true
	}
	return clamped
}

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT LOG
// ══════════════════════════════════════════════════════════════════════════════

// AuditEntry is one immutable line of a subject's history.
// Entries are append-only; ordering is by insertion.
type AuditEntry struct {
	// Timestamp - when the action happened.
	Timestamp time.Time

	// SubjectName - snapshot of the subject name at the time of the action.
	SubjectName string

	// Action - human-readable description ("Marked as Present", ...).
	Action string
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEmptySubjectID - a subject requires an identifier.
	ErrEmptySubjectID = errors.New("attendance: subject id is required")

	// ErrEmptySubjectName - a subject requires a display name.
	ErrEmptySubjectName = errors.New("attendance: subject name must be 1-100 chars")

	// ErrRequirementOutOfRange - the minimum percentage must be in (0, 100].
	ErrRequirementOutOfRange = errors.New("attendance: minimum percentage must be in (0, 100]")

	// ErrZeroStartDate - a subject requires an enrollment start date.
	ErrZeroStartDate = errors.New("attendance: enrollment start date is required")

	// ErrSlotNotFound - no class slot with the given identity.
	ErrSlotNotFound = errors.New("attendance: class slot not found")

	// ErrInvalidSlotWindow - slot end must not precede start.
	ErrInvalidSlotWindow = errors.New("attendance: slot end time precedes start time")
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: SUBJECT
// ══════════════════════════════════════════════════════════════════════════════

// Subject is the central entity of the ledger: a course the student is
// enrolled in, owning its timetable, records, counters, and history.
type Subject struct {
	// ID - internal unique identifier (UUID in string form).
	ID string

	// Name - display name of the course.
	Name string

	// StartedAt - enrollment start date, day granularity. No records or
	// projections are produced before this date.
	StartedAt time.Time

	// Aggregate - the running attendance totals.
	Aggregate Aggregate

	// Schedules - weekly recurring timetable, declaration order.
	Schedules []Schedule

	// Records - every attendance record ever resolved for this subject.
	Records []*Record

	// AuditLog - append-only history of ledger actions.
	AuditLog []AuditEntry

	// CreatedAt - time of enrollment.
	CreatedAt time.Time

	// UpdatedAt - time of last modification.
	UpdatedAt time.Time
}

// NewSubjectParams contains parameters for enrolling a new subject.
type NewSubjectParams struct {
	ID                string
	Name              string
	StartedAt         time.Time
	MinimumPercentage float64 // 0 means DefaultMinimumPercentage
}

// NewSubject creates a subject with validation of all fields.
func NewSubject(params NewSubjectParams) (*Subject, error) {
	if params.ID == "" {
		return nil, ErrEmptySubjectID
	}

	name := strings.TrimSpace(params.Name)
	if len(name) == 0 || len(name) > 100 {
		return nil, ErrEmptySubjectName
	}

	if params.StartedAt.IsZero() {
		return nil, ErrZeroStartDate
	}

	minimum := params.MinimumPercentage
	if minimum == 0 {
		minimum = DefaultMinimumPercentage
	}
	if minimum < 0 || minimum > 100 {
		return nil, ErrRequirementOutOfRange
	}

	now := time.Now().UTC()

	return &Subject{
		ID:        params.ID,
		Name:      name,
		StartedAt: timeutil.DayOf(params.StartedAt),
		Aggregate: Aggregate{MinimumPercentage: minimum},
		Schedules: make([]Schedule, 0),
		Records:   make([]*Record, 0),
		AuditLog:  make([]AuditEntry, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// FindRecord returns the record for (slot identity, date) or nil.
// The date is compared at day granularity.
func (s *Subject) FindRecord(slotID string, date time.Time) *Record {
	for _, rec := range s.Records {
		if rec.SlotID == slotID && timeutil.SameDay(rec.Date, date) {
			return rec
		}
	}
	return nil
}

// RecordsOn returns every record dated on the given calendar day.
func (s *Subject) RecordsOn(date time.Time) []*Record {
	var out []*Record
	for _, rec := range s.Records {
		if timeutil.SameDay(rec.Date, date) {
			out = append(out, rec)
		}
	}
	return out
}

// HolidayOnDate reports whether the date is currently a holiday: at least one
// record on that day carries the holiday flag. Recomputed on demand, never
// stored per-day.
func (s *Subject) HolidayOnDate(date time.Time) bool {
	for _, rec := range s.Records {
		if rec.IsHoliday && timeutil.SameDay(rec.Date, date) {
			return true
		}
	}
	return false
}

// AppendAudit appends an immutable history entry with the current name snapshot.
func (s *Subject) AppendAudit(action string) {
	s.AuditLog = append(s.AuditLog, AuditEntry{
		Timestamp:   time.Now().UTC(),
		SubjectName: s.Name,
		Action:      action,
	})
}

// AuditBetween returns audit entries within the inclusive day range.
// A zero from or to leaves that side unbounded.
func (s *Subject) AuditBetween(from, to time.Time) []AuditEntry {
	out := make([]AuditEntry, 0)
	for _, e := range s.AuditLog {
		if !from.IsZero() && e.Timestamp.Before(timeutil.DayOf(from)) {
			continue
		}
		if !to.IsZero() && e.Timestamp.After(timeutil.EndOfDay(to)) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Recount derives both counters from the record set (the I2 definition).
func (s *Subject) Recount() (attended, total int) {
	for _, rec := range s.Records {
		if rec.Status.Counts() {
			total++
			if rec.Status == StatusAttended {
				attended++
			}
		}
	}
	return attended, total
}

// Reconcile replaces the incremental counters with a full rescan of the
// record set. Returns true when the counters had drifted.
func (s *Subject) Reconcile() (changed bool) {
	attended, total := s.Recount()
	if attended == s.Aggregate.AttendedClasses && total == s.Aggregate.TotalClasses {
		return false
	}
	s.Aggregate.AttendedClasses = attended
	s.Aggregate.TotalClasses = total
	s.UpdatedAt = time.Now().UTC()
	return true
}

// CheckInvariants verifies I1 and I2 against the record set.
// Returns nil when the aggregate is consistent.
func (s *Subject) CheckInvariants() error {
	if s.Aggregate.AttendedClasses > s.Aggregate.TotalClasses {
		return fmt.Errorf("attendance: invariant violation: attended %d > total %d",
			s.Aggregate.AttendedClasses, s.Aggregate.TotalClasses)
	}
	attended, total := s.Recount()
	if attended != s.Aggregate.AttendedClasses || total != s.Aggregate.TotalClasses {
		return fmt.Errorf("attendance: aggregate drift: counters (%d/%d), records (%d/%d)",
			s.Aggregate.AttendedClasses, s.Aggregate.TotalClasses, attended, total)
	}
	return nil
}

// String returns a string representation for logging.
func (s *Subject) String() string {
	return fmt.Sprintf("Subject{ID: %s, Name: %s, Attended: %d, Total: %d}",
		s.ID, s.Name, s.Aggregate.AttendedClasses, s.Aggregate.TotalClasses)
}

// Clone creates a shallow copy of the subject with copied collections.
// Records still point at the shared record instances.
func (s *Subject) Clone() *Subject {
	if s == nil {
		return nil
	}

	clone := *s
	clone.Schedules = append([]Schedule(nil), s.Schedules...)
	clone.Records = append([]*Record(nil), s.Records...)
	clone.AuditLog = append([]AuditEntry(nil), s.AuditLog...)
	return &clone
}
