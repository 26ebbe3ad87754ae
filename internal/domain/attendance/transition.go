package attendance

import (
	"time"

	"github.com/classtrack/attendance-ledger/pkg/logger"
	"github.com/classtrack/attendance-ledger/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS TRANSITION PROCESSOR
// The only mutation path for record status and aggregate counters.
// ══════════════════════════════════════════════════════════════════════════════

// Delta is the counter adjustment of one status transition.
type Delta struct {
	Attended int
	Total    int
}

// IsZero reports a no-op delta.
func (d Delta) IsZero() bool {
	return d.Attended == 0 && d.Total == 0
}

// TransitionDelta returns the aggregate adjustment for old -> next.
// The table is the exact derivative of invariant I2 between the record set
// before and after the change:
//
//	old \ next      Attended        NotAttended     Canceled
//	Attended        -               att -1          att -1, tot -1
//	NotAttended     att +1          -               tot -1
//	Canceled        att +1, tot +1  tot +1          -
func TransitionDelta(old, next Status) Delta {
	if old == next {
		return Delta{}
	}

	var d Delta
	if old == StatusAttended {
		d.Attended--
	}
	if next == StatusAttended {
		d.Attended++
	}
	if old.Counts() && !next.Counts() {
		d.Total--
	}
	if !old.Counts() && next.Counts() {
		d.Total++
	}
	return d
}

// Audit label vocabulary for status transitions.
const (
	ActionMarkedPresent   = "Marked as Present"
	ActionMarkedAbsent    = "Marked as Absent"
	ActionPresentReverted = "Present status reverted"
	ActionAbsentReverted  = "Absent status reverted"
	ActionDecisionRevert  = "Decision reverted"
	ActionMarkedHoliday   = "Marked as Holiday"
	ActionHolidayReverted = "Marked as Holiday. Attendance reverted."
)

// defaultAction returns the audit label for old -> next.
func defaultAction(old, next Status) string {
	switch next {
	case StatusAttended:
		return ActionMarkedPresent
	case StatusNotAttended:
		return ActionMarkedAbsent
	default:
		switch old {
		case StatusAttended:
			return ActionPresentReverted
		case StatusNotAttended:
			return ActionAbsentReverted
		}
		return ActionDecisionRevert
	}
}

// Processor applies status transitions to records, adjusting the owning
// subject's aggregate and appending audit entries. It assumes the caller
// serializes mutation per subject.
type Processor struct {
	log *logger.Logger
}

// NewProcessor creates a transition processor.
func NewProcessor(log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Default()
	}
	return &Processor{log: log}
}

// Apply transitions the record to next with the default audit label.
// Requesting the current status is a free no-op. Returns whether the record
// changed.
func (p *Processor) Apply(s *Subject, rec *Record, next Status) bool {
	return p.ApplyWithMessage(s, rec, next, "")
}

// ApplyWithMessage transitions the record to next, logging the given audit
// message instead of the default label when non-empty. Used by the holiday
// bulk-toggle to record context-aware history.
func (p *Processor) ApplyWithMessage(s *Subject, rec *Record, next Status, message string) bool {
	if !next.IsValid() || next == rec.Status {
		return false
	}

	old := rec.Status
	d := TransitionDelta(old, next)

	if clamped := s.Aggregate.apply(d); clamped {
		// The transition table cannot drive a consistent aggregate negative;
		// a clamp means the counters had already drifted from the record set.
		p.log.Error("attendance counter clamped, aggregate drifted from records",
			logger.String("subject_id", s.ID),
			logger.String("slot_id", rec.SlotID),
			logger.Date("date", rec.Date),
			logger.String("old_status", old.String()),
			logger.String("new_status", next.String()),
			logger.Int("attended", s.Aggregate.AttendedClasses),
			logger.Int("total", s.Aggregate.TotalClasses),
		)
	}
	if s.Aggregate.AttendedClasses > s.Aggregate.TotalClasses {
		p.log.Error("attendance invariant violated: attended exceeds total",
			logger.String("subject_id", s.ID),
			logger.Int("attended", s.Aggregate.AttendedClasses),
			logger.Int("total", s.Aggregate.TotalClasses),
		)
	}

	// Status is updated last; the delta above was computed from the old state.
	rec.Status = next
	rec.UpdatedAt = time.Now().UTC()
	s.UpdatedAt = rec.UpdatedAt

	if message == "" {
		message = defaultAction(old, next)
	}
	s.AppendAudit(message)

	p.log.Debug("record transitioned",
		logger.String("subject_id", s.ID),
		logger.String("slot_id", rec.SlotID),
		logger.String("date", timeutil.FormatDateStr(rec.Date)),
		logger.String("from", old.String()),
		logger.String("to", next.String()),
	)

	return true
}
