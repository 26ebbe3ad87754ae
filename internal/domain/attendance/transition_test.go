package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/attendance-ledger/pkg/logger"
)

func newTestSubject(t *testing.T) *Subject {
	t.Helper()
	s, err := NewSubject(NewSubjectParams{
		ID:        "subject-1",
		Name:      "Math",
		StartedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return s
}

func addRecord(s *Subject, slotID string, date time.Time) *Record {
	rec := newRecord("rec-"+slotID+date.Format("20060102"), s.ID, slotID, date, false)
	s.Records = append(s.Records, rec)
	return rec
}

func TestTransitionDelta_Table(t *testing.T) {
	cases := []struct {
		old, next Status
		want      Delta
	}{
		{StatusAttended, StatusAttended, Delta{0, 0}},
		{StatusAttended, StatusNotAttended, Delta{-1, 0}},
		{StatusAttended, StatusCanceled, Delta{-1, -1}},
		{StatusNotAttended, StatusAttended, Delta{1, 0}},
		{StatusNotAttended, StatusNotAttended, Delta{0, 0}},
		{StatusNotAttended, StatusCanceled, Delta{0, -1}},
		{StatusCanceled, StatusAttended, Delta{1, 1}},
		{StatusCanceled, StatusNotAttended, Delta{0, 1}},
		{StatusCanceled, StatusCanceled, Delta{0, 0}},
	}

	for _, c := range cases {
		got := TransitionDelta(c.old, c.next)
		assert.Equal(t, c.want, got, "%s -> %s", c.old, c.next)
	}
}

func TestProcessor_ApplyAdjustsCounters(t *testing.T) {
	s := newTestSubject(t)
	p := NewProcessor(logger.Default())
	date := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	rec := addRecord(s, "slot-1", date)

	assert.True(t, p.Apply(s, rec, StatusAttended))
	assert.Equal(t, 1, s.Aggregate.AttendedClasses)
	assert.Equal(t, 1, s.Aggregate.TotalClasses)

	assert.True(t, p.Apply(s, rec, StatusNotAttended))
	assert.Equal(t, 0, s.Aggregate.AttendedClasses)
	assert.Equal(t, 1, s.Aggregate.TotalClasses)

	assert.True(t, p.Apply(s, rec, StatusCanceled))
	assert.Equal(t, 0, s.Aggregate.AttendedClasses)
	assert.Equal(t, 0, s.Aggregate.TotalClasses)
}

func TestProcessor_SameStatusIsFreeNoOp(t *testing.T) {
	s := newTestSubject(t)
	p := NewProcessor(logger.Default())
	rec := addRecord(s, "slot-1", time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC))
	p.Apply(s, rec, StatusAttended)

	auditLen := len(s.AuditLog)
	updatedAt := rec.UpdatedAt

	assert.False(t, p.Apply(s, rec, StatusAttended))
	assert.Equal(t, 1, s.Aggregate.AttendedClasses)
	assert.Equal(t, 1, s.Aggregate.TotalClasses)
	assert.Len(t, s.AuditLog, auditLen)
	assert.Equal(t, updatedAt, rec.UpdatedAt)
}

func TestProcessor_RejectsInvalidStatus(t *testing.T) {
	s := newTestSubject(t)
	p := NewProcessor(logger.Default())
	rec := addRecord(s, "slot-1", time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC))

	assert.False(t, p.Apply(s, rec, Status("present")))
	assert.Equal(t, StatusCanceled, rec.Status)
	assert.Equal(t, 0, s.Aggregate.TotalClasses)
}

func TestProcessor_CountersStayReproducible(t *testing.T) {
	// Every transition must leave the counters equal to a fresh rescan of
	// the record set.
	s := newTestSubject(t)
	p := NewProcessor(logger.Default())
	date := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	r1 := addRecord(s, "slot-1", date)
	r2 := addRecord(s, "slot-2", date)

	steps := []struct {
		rec  *Record
		next Status
	}{
		{r1, StatusAttended},
		{r2, StatusNotAttended},
		{r1, StatusNotAttended},
		{r2, StatusAttended},
		{r1, StatusCanceled},
		{r2, StatusCanceled},
		{r1, StatusAttended},
	}

	for _, step := range steps {
		p.Apply(s, step.rec, step.next)
		attended, total := s.Recount()
		assert.Equal(t, attended, s.Aggregate.AttendedClasses)
		assert.Equal(t, total, s.Aggregate.TotalClasses)
		assert.NoError(t, s.CheckInvariants())
	}
}

func TestProcessor_RoundTripIsIdentity(t *testing.T) {
	s := newTestSubject(t)
	p := NewProcessor(logger.Default())
	rec := addRecord(s, "slot-1", time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC))

	cycles := [][]Status{
		{StatusAttended, StatusCanceled},
		{StatusNotAttended, StatusCanceled},
		{StatusAttended, StatusNotAttended, StatusCanceled},
		{StatusNotAttended, StatusAttended, StatusCanceled},
	}

	for _, cycle := range cycles {
		for _, next := range cycle {
			p.Apply(s, rec, next)
		}
		assert.Equal(t, 0, s.Aggregate.AttendedClasses)
		assert.Equal(t, 0, s.Aggregate.TotalClasses)
		assert.Equal(t, StatusCanceled, rec.Status)
	}
}

func TestProcessor_ClampsDriftedAggregate(t *testing.T) {
	s := newTestSubject(t)
	p := NewProcessor(logger.Default())
	rec := addRecord(s, "slot-1", time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC))

	// Simulate externally corrupted counters: the record claims Attended but
	// the counters say zero.
	rec.Status = StatusAttended

	assert.True(t, p.Apply(s, rec, StatusCanceled))
	assert.Equal(t, 0, s.Aggregate.AttendedClasses)
	assert.Equal(t, 0, s.Aggregate.TotalClasses)
	assert.Equal(t, StatusCanceled, rec.Status)
}

func TestProcessor_AuditLabels(t *testing.T) {
	cases := []struct {
		old, next Status
		want      string
	}{
		{StatusCanceled, StatusAttended, ActionMarkedPresent},
		{StatusCanceled, StatusNotAttended, ActionMarkedAbsent},
		{StatusAttended, StatusCanceled, ActionPresentReverted},
		{StatusNotAttended, StatusCanceled, ActionAbsentReverted},
		{StatusAttended, StatusNotAttended, ActionMarkedAbsent},
		{StatusNotAttended, StatusAttended, ActionMarkedPresent},
	}

	for _, c := range cases {
		s := newTestSubject(t)
		p := NewProcessor(logger.Default())
		rec := addRecord(s, "slot-1", time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC))
		if c.old != StatusCanceled {
			p.Apply(s, rec, c.old)
		}

		require.True(t, p.Apply(s, rec, c.next))
		last := s.AuditLog[len(s.AuditLog)-1]
		assert.Equal(t, c.want, last.Action, "%s -> %s", c.old, c.next)
		assert.Equal(t, "Math", last.SubjectName)
	}
}

func TestProcessor_MessageOverridesDefaultLabel(t *testing.T) {
	s := newTestSubject(t)
	p := NewProcessor(logger.Default())
	rec := addRecord(s, "slot-1", time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC))
	p.Apply(s, rec, StatusAttended)

	require.True(t, p.ApplyWithMessage(s, rec, StatusCanceled, ActionHolidayReverted))
	last := s.AuditLog[len(s.AuditLog)-1]
	assert.Equal(t, ActionHolidayReverted, last.Action)
}
