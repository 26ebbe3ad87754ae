package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/attendance-ledger/pkg/logger"
)

func TestNewSubject_Validation(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("valid", func(t *testing.T) {
		s, err := NewSubject(NewSubjectParams{ID: "id-1", Name: "  Math  ", StartedAt: start})
		require.NoError(t, err)
		assert.Equal(t, "Math", s.Name)
		assert.Equal(t, DefaultMinimumPercentage, s.Aggregate.MinimumPercentage)
		assert.Equal(t, 0, s.Aggregate.TotalClasses)
		assert.Equal(t, 0, s.Aggregate.AttendedClasses)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := NewSubject(NewSubjectParams{Name: "Math", StartedAt: start})
		assert.ErrorIs(t, err, ErrEmptySubjectID)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := NewSubject(NewSubjectParams{ID: "id-1", Name: "   ", StartedAt: start})
		assert.ErrorIs(t, err, ErrEmptySubjectName)
	})

	t.Run("zero start date", func(t *testing.T) {
		_, err := NewSubject(NewSubjectParams{ID: "id-1", Name: "Math"})
		assert.ErrorIs(t, err, ErrZeroStartDate)
	})

	t.Run("requirement out of range", func(t *testing.T) {
		_, err := NewSubject(NewSubjectParams{ID: "id-1", Name: "Math", StartedAt: start, MinimumPercentage: 101})
		assert.ErrorIs(t, err, ErrRequirementOutOfRange)
	})

	t.Run("custom requirement", func(t *testing.T) {
		s, err := NewSubject(NewSubjectParams{ID: "id-1", Name: "Math", StartedAt: start, MinimumPercentage: 60})
		require.NoError(t, err)
		assert.Equal(t, 60.0, s.Aggregate.MinimumPercentage)
	})
}

func TestAggregate_Percentage(t *testing.T) {
	assert.Equal(t, 0.0, Aggregate{}.Percentage(), "no counted classes yields 0, not NaN")
	assert.Equal(t, 50.0, Aggregate{TotalClasses: 2, AttendedClasses: 1}.Percentage())
	assert.Equal(t, 100.0, Aggregate{TotalClasses: 3, AttendedClasses: 3}.Percentage())
}

func TestBandFor(t *testing.T) {
	cases := []struct {
		percentage, minimum float64
		want                Band
	}{
		{100, 75, BandGood},
		{75, 75, BandGood},
		{74.9, 75, BandWarning},
		{50, 75, BandWarning},
		{37.5, 75, BandCritical},
		{0, 75, BandCritical},
		{0, 0, BandGood}, // degenerate requirement, anything passes
	}

	for _, c := range cases {
		assert.Equal(t, c.want, BandFor(c.percentage, c.minimum), "%.1f vs min %.1f", c.percentage, c.minimum)
	}
}

func TestSubject_Reconcile(t *testing.T) {
	s := newTestSubject(t)
	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	addRecord(s, "slot-1", monday).Status = StatusAttended
	addRecord(s, "slot-2", monday).Status = StatusNotAttended
	addRecord(s, "slot-3", monday) // canceled, does not count

	// Counters drifted (for example a crashed process mid-mutation).
	s.Aggregate.AttendedClasses = 5
	s.Aggregate.TotalClasses = 3

	assert.True(t, s.Reconcile())
	assert.Equal(t, 1, s.Aggregate.AttendedClasses)
	assert.Equal(t, 2, s.Aggregate.TotalClasses)
	assert.NoError(t, s.CheckInvariants())

	assert.False(t, s.Reconcile(), "second pass finds nothing to fix")
}

func TestSubject_AuditBetween(t *testing.T) {
	s := newTestSubject(t)
	s.AppendAudit(ActionMarkedPresent)
	s.AppendAudit(ActionMarkedAbsent)

	all := s.AuditBetween(time.Time{}, time.Time{})
	assert.Len(t, all, 2)

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	assert.Empty(t, s.AuditBetween(time.Time{}, yesterday))
	assert.Len(t, s.AuditBetween(yesterday, time.Time{}), 2)
}

// The end-to-end ledger walk: enrollment, two Mondays, then a holiday that
// takes the second Monday back out of the totals.
func TestLedger_MathScenario(t *testing.T) {
	ctx := context.Background()
	log := logger.Default()

	s, err := NewSubject(NewSubjectParams{
		ID:        "math",
		Name:      "Math",
		StartedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, s.UpsertSchedule(Monday, []ClassSlot{
		{ID: "mon-1", Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(10, 30)},
	}))

	resolver := NewResolver(&memRecordStore{}, sequentialIDs(), log)
	processor := NewProcessor(log)
	toggle := NewHolidayToggle(resolver, processor, log)

	// Monday 2025-01-06: attended.
	jan6 := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	slots := s.DueSlots(jan6)
	require.Len(t, slots, 1)
	rec := resolver.Resolve(ctx, s, slots[0], jan6)
	processor.Apply(s, rec, StatusAttended)

	assert.Equal(t, 1, s.Aggregate.AttendedClasses)
	assert.Equal(t, 1, s.Aggregate.TotalClasses)
	assert.Equal(t, 100.0, s.Aggregate.Percentage())

	// Monday 2025-01-13: missed.
	jan13 := time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)
	rec = resolver.Resolve(ctx, s, slots[0], jan13)
	processor.Apply(s, rec, StatusNotAttended)

	assert.Equal(t, 1, s.Aggregate.AttendedClasses)
	assert.Equal(t, 2, s.Aggregate.TotalClasses)
	assert.Equal(t, 50.0, s.Aggregate.Percentage())

	// 2025-01-13 turns out to be a holiday.
	res := toggle.Toggle(ctx, s, jan13)

	assert.True(t, res.IsHoliday)
	assert.Equal(t, 1, s.Aggregate.AttendedClasses)
	assert.Equal(t, 1, s.Aggregate.TotalClasses)
	assert.Equal(t, 100.0, s.Aggregate.Percentage())
	assert.Equal(t, StatusCanceled, rec.Status)
	assert.NoError(t, s.CheckInvariants())
}

// A slot due on a date that nobody ever looked at contributes nothing.
func TestLedger_UnviewedSlotContributesNothing(t *testing.T) {
	s := newTestSubject(t)
	require.NoError(t, s.UpsertSchedule(Monday, []ClassSlot{{ID: "mon-1"}}))

	due := s.DueSlots(time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC))
	require.Len(t, due, 1)

	assert.Empty(t, s.Records)
	assert.Equal(t, 0, s.Aggregate.TotalClasses)
	assert.Equal(t, 0.0, s.Aggregate.Percentage())
}
