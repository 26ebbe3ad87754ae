package attendance

import (
	"context"
	"time"

	"github.com/classtrack/attendance-ledger/pkg/logger"
	"github.com/classtrack/attendance-ledger/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HOLIDAY BULK-TOGGLE
// ══════════════════════════════════════════════════════════════════════════════

// HolidayToggle flips the holiday state of a whole calendar date for one
// subject. Marking a holiday forces every due record back to the neutral
// status; un-marking only clears the flags and leaves statuses alone, the
// user re-marks attendance per class if the day turned out to be a class day.
type HolidayToggle struct {
	resolver  *Resolver
	processor *Processor
	log       *logger.Logger
}

// NewHolidayToggle creates the bulk-toggle around a resolver and processor.
func NewHolidayToggle(resolver *Resolver, processor *Processor, log *logger.Logger) *HolidayToggle {
	if log == nil {
		log = logger.Default()
	}
	return &HolidayToggle{resolver: resolver, processor: processor, log: log}
}

// ToggleResult describes one bulk-toggle outcome.
type ToggleResult struct {
	// IsHoliday - the state the date ended up in.
	IsHoliday bool

	// Affected - records whose flag was flipped.
	Affected []*Record

	// Reverted - records whose attendance was forced back to neutral.
	Reverted int
}

// Toggle flips the holiday state of the date. The target state is the
// inverse of the date's current one: if any due record is flagged, the date
// counts as a holiday and the toggle clears it; otherwise it marks one.
func (h *HolidayToggle) Toggle(ctx context.Context, s *Subject, date time.Time) ToggleResult {
	date = timeutil.DayOf(date)

	recs := h.resolver.ResolveDue(ctx, s, date)
	newState := !s.HolidayOnDate(date)

	res := ToggleResult{IsHoliday: newState}
	for _, rec := range recs {
		if rec.IsHoliday == newState {
			continue
		}

		if newState {
			if h.processor.ApplyWithMessage(s, rec, StatusCanceled, ActionHolidayReverted) {
				res.Reverted++
			} else {
				// Already neutral, nothing to revert; record the holiday itself.
				s.AppendAudit(ActionMarkedHoliday)
			}
		}

		rec.IsHoliday = newState
		rec.UpdatedAt = time.Now().UTC()
		res.Affected = append(res.Affected, rec)
	}

	if len(res.Affected) > 0 {
		s.UpdatedAt = time.Now().UTC()
	}

	h.log.Info("holiday toggled",
		logger.String("subject_id", s.ID),
		logger.String("date", timeutil.FormatDateStr(date)),
		logger.Bool("is_holiday", newState),
		logger.Int("affected", len(res.Affected)),
		logger.Int("reverted", res.Reverted),
	)

	return res
}
