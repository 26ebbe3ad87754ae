package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
	"github.com/classtrack/attendance-ledger/pkg/logger"
)

type stubSubjectRepo struct {
	subjects []*attendance.Subject
}

func (s *stubSubjectRepo) Save(_ context.Context, _ *attendance.Subject) error { return nil }

func (s *stubSubjectRepo) GetByID(_ context.Context, id string) (*attendance.Subject, error) {
	for _, subject := range s.subjects {
		if subject.ID == id {
			return subject, nil
		}
	}
	return nil, shared.ErrSubjectNotFound
}

func (s *stubSubjectRepo) GetAll(_ context.Context) ([]*attendance.Subject, error) {
	return s.subjects, nil
}

func (s *stubSubjectRepo) Delete(_ context.Context, _ string) error { return nil }

func buildSubject(t *testing.T, name string) *attendance.Subject {
	t.Helper()
	s, err := attendance.NewSubject(attendance.NewSubjectParams{
		ID:        name + "-id",
		Name:      name,
		StartedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return s
}

func TestGetDueClasses_SortsByStartTime(t *testing.T) {
	math := buildSubject(t, "Math")
	require.NoError(t, math.UpsertSchedule(attendance.Monday, []attendance.ClassSlot{
		{ID: "math-late", Start: attendance.NewTimeOfDay(14, 0)},
	}))
	physics := buildSubject(t, "Physics")
	require.NoError(t, physics.UpsertSchedule(attendance.Monday, []attendance.ClassSlot{
		{ID: "phys-early", Start: attendance.NewTimeOfDay(9, 0)},
		{ID: "phys-untimed"},
	}))

	h := NewGetDueClassesHandler(&stubSubjectRepo{subjects: []*attendance.Subject{math, physics}}, logger.Default())

	dto, err := h.Handle(context.Background(), GetDueClassesQuery{
		Date: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, dto.Classes, 3)
	assert.Equal(t, "Monday", dto.Weekday)
	assert.Equal(t, "phys-early", dto.Classes[0].SlotID)
	assert.Equal(t, "math-late", dto.Classes[1].SlotID)
	assert.Equal(t, "phys-untimed", dto.Classes[2].SlotID, "untimed slots sort last")
}

func TestGetDueClasses_ShowsRecordStatusWithoutCreating(t *testing.T) {
	math := buildSubject(t, "Math")
	require.NoError(t, math.UpsertSchedule(attendance.Monday, []attendance.ClassSlot{
		{ID: "slot-1", Start: attendance.NewTimeOfDay(9, 0)},
	}))

	h := NewGetDueClassesHandler(&stubSubjectRepo{subjects: []*attendance.Subject{math}}, logger.Default())
	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

	dto, err := h.Handle(context.Background(), GetDueClassesQuery{Date: monday, SubjectID: math.ID})
	require.NoError(t, err)

	require.Len(t, dto.Classes, 1)
	assert.Equal(t, "canceled", dto.Classes[0].Status)
	assert.False(t, dto.Classes[0].RecordExists)
	assert.Empty(t, math.Records, "reads never create records")
	assert.Equal(t, 0, math.Aggregate.TotalClasses)
}

func TestGetDueClasses_EmptyOnOffDay(t *testing.T) {
	math := buildSubject(t, "Math")
	require.NoError(t, math.UpsertSchedule(attendance.Monday, []attendance.ClassSlot{{ID: "slot-1"}}))

	h := NewGetDueClassesHandler(&stubSubjectRepo{subjects: []*attendance.Subject{math}}, logger.Default())

	dto, err := h.Handle(context.Background(), GetDueClassesQuery{
		Date: time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, dto.Classes)
}

// ─────────────────────────────────────────────────────────────────────────────
// Summary
// ─────────────────────────────────────────────────────────────────────────────

type stubSummaryCache struct {
	entries map[string]attendance.Summary
	sets    int
}

func (c *stubSummaryCache) Get(_ context.Context, subjectID string) (*attendance.Summary, error) {
	if s, ok := c.entries[subjectID]; ok {
		return &s, nil
	}
	return nil, shared.ErrCacheMiss
}

func (c *stubSummaryCache) Set(_ context.Context, summary attendance.Summary, _ time.Duration) error {
	c.entries[summary.SubjectID] = summary
	c.sets++
	return nil
}

func (c *stubSummaryCache) Invalidate(_ context.Context, subjectID string) error {
	delete(c.entries, subjectID)
	return nil
}

func TestGetAttendanceSummary_CachesSingleSubject(t *testing.T) {
	math := buildSubject(t, "Math")
	cache := &stubSummaryCache{entries: make(map[string]attendance.Summary)}
	h := NewGetAttendanceSummaryHandler(&stubSubjectRepo{subjects: []*attendance.Subject{math}}, cache, time.Minute, logger.Default())

	first, err := h.Handle(context.Background(), GetAttendanceSummaryQuery{SubjectID: math.ID})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, 1, cache.sets)

	second, err := h.Handle(context.Background(), GetAttendanceSummaryQuery{SubjectID: math.ID})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, 1, cache.sets)

	bypass, err := h.Handle(context.Background(), GetAttendanceSummaryQuery{SubjectID: math.ID, SkipCache: true})
	require.NoError(t, err)
	assert.False(t, bypass.FromCache)
}

func TestGetAttendanceSummary_AllSubjects(t *testing.T) {
	math := buildSubject(t, "Math")
	physics := buildSubject(t, "Physics")
	h := NewGetAttendanceSummaryHandler(&stubSubjectRepo{subjects: []*attendance.Subject{math, physics}}, nil, 0, logger.Default())

	dto, err := h.Handle(context.Background(), GetAttendanceSummaryQuery{})
	require.NoError(t, err)
	require.Len(t, dto.Summaries, 2)
	assert.Equal(t, 0.0, dto.Summaries[0].Percentage)
	assert.Equal(t, attendance.BandCritical, dto.Summaries[0].Band)
}

// ─────────────────────────────────────────────────────────────────────────────
// Audit log
// ─────────────────────────────────────────────────────────────────────────────

func TestGetAuditLog_NewestFirstPaginated(t *testing.T) {
	math := buildSubject(t, "Math")
	math.AppendAudit(attendance.ActionMarkedPresent)
	math.AppendAudit(attendance.ActionMarkedAbsent)
	math.AppendAudit(attendance.ActionDecisionRevert)

	h := NewGetAuditLogHandler(&stubSubjectRepo{subjects: []*attendance.Subject{math}}, logger.Default())

	dto, err := h.Handle(context.Background(), GetAuditLogQuery{
		SubjectID:  math.ID,
		Pagination: shared.NewPagination(1, 2),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, dto.Total)
	require.Len(t, dto.Entries, 2)
	assert.Equal(t, attendance.ActionDecisionRevert, dto.Entries[0].Action)
	assert.Equal(t, attendance.ActionMarkedAbsent, dto.Entries[1].Action)

	page2, err := h.Handle(context.Background(), GetAuditLogQuery{
		SubjectID:  math.ID,
		Pagination: shared.NewPagination(2, 2),
	})
	require.NoError(t, err)
	require.Len(t, page2.Entries, 1)
	assert.Equal(t, attendance.ActionMarkedPresent, page2.Entries[0].Action)
}

func TestGetAuditLog_RequiresSubject(t *testing.T) {
	h := NewGetAuditLogHandler(&stubSubjectRepo{}, logger.Default())

	_, err := h.Handle(context.Background(), GetAuditLogQuery{})
	assert.Error(t, err)

	_, err = h.Handle(context.Background(), GetAuditLogQuery{SubjectID: "missing"})
	assert.ErrorIs(t, err, shared.ErrSubjectNotFound)
}
