package attendance

import (
	"context"
	"time"

	"github.com/classtrack/attendance-ledger/pkg/logger"
	"github.com/classtrack/attendance-ledger/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD RESOLVER
// Lazy record creation: a record exists only after someone looked at its slot
// on its date.
// ══════════════════════════════════════════════════════════════════════════════

// Resolver materializes attendance records on first access. It is the only
// place records are created; everything downstream (transitions, holiday
// toggles, rescans) works on records the resolver produced.
type Resolver struct {
	store RecordStore
	newID func() string
	log   *logger.Logger
}

// NewResolver creates a resolver. newID supplies identities for fresh records;
// the application layer passes uuid generation so the domain stays free of it.
func NewResolver(store RecordStore, newID func() string, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Default()
	}
	return &Resolver{store: store, newID: newID, log: log}
}

// Resolve returns the record for (slot, date), creating it at the default
// status when absent. A date that already carries holiday-marked records
// propagates the holiday flag to the new record so late-resolved slots join
// the day's holiday state.
//
// Resolving an existing record never mutates it: repeated calls are free.
func (r *Resolver) Resolve(ctx context.Context, s *Subject, slot ClassSlot, date time.Time) *Record {
	date = timeutil.DayOf(date)

	if rec := s.FindRecord(slot.ID, date); rec != nil {
		return rec
	}

	rec := newRecord(r.newID(), s.ID, slot.ID, date, s.HolidayOnDate(date))
	s.Records = append(s.Records, rec)
	s.UpdatedAt = time.Now().UTC()

	// Persistence is follow-along: the in-memory subject is authoritative for
	// this mutation, a failed insert is logged and retried by reconciliation.
	if r.store != nil {
		if err := r.store.Insert(ctx, rec); err != nil {
			r.log.Warn("record insert failed, will be restored by reconciliation",
				logger.String("subject_id", s.ID),
				logger.String("slot_id", slot.ID),
				logger.String("date", timeutil.FormatDateStr(date)),
				logger.Err(err),
			)
		}
	}

	r.log.Debug("record resolved",
		logger.String("subject_id", s.ID),
		logger.String("slot_id", slot.ID),
		logger.String("date", timeutil.FormatDateStr(date)),
		logger.Bool("holiday", rec.IsHoliday),
	)

	return rec
}

// ResolveDue materializes records for every slot due on the date, in
// projection order.
func (r *Resolver) ResolveDue(ctx context.Context, s *Subject, date time.Time) []*Record {
	slots := s.DueSlots(date)
	if len(slots) == 0 {
		return nil
	}
	recs := make([]*Record, 0, len(slots))
	for _, slot := range slots {
		recs = append(recs, r.Resolve(ctx, s, slot, date))
	}
	return recs
}
