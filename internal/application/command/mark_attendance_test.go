package command

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

// ─────────────────────────────────────────────────────────────────────────────
// In-memory fakes
// ─────────────────────────────────────────────────────────────────────────────

type memSubjectRepo struct {
	subjects map[string]*attendance.Subject
}

func newMemSubjectRepo() *memSubjectRepo {
	return &memSubjectRepo{subjects: make(map[string]*attendance.Subject)}
}

func (m *memSubjectRepo) Save(_ context.Context, s *attendance.Subject) error {
	m.subjects[s.ID] = s
	return nil
}

func (m *memSubjectRepo) GetByID(_ context.Context, id string) (*attendance.Subject, error) {
	s, ok := m.subjects[id]
	if !ok {
		return nil, shared.ErrSubjectNotFound
	}
	return s, nil
}

func (m *memSubjectRepo) GetAll(_ context.Context) ([]*attendance.Subject, error) {
	out := make([]*attendance.Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		out = append(out, s)
	}
	return out, nil
}

func (m *memSubjectRepo) Delete(_ context.Context, id string) error {
	delete(m.subjects, id)
	return nil
}

type memRecordStore struct {
	records map[string]*attendance.Record
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{records: make(map[string]*attendance.Record)}
}

func (m *memRecordStore) Insert(_ context.Context, rec *attendance.Record) error {
	m.records[rec.ID] = rec
	return nil
}

func (m *memRecordStore) Save(_ context.Context, rec *attendance.Record) error {
	m.records[rec.ID] = rec
	return nil
}

func (m *memRecordStore) ListBySubject(_ context.Context, subjectID string) ([]*attendance.Record, error) {
	var out []*attendance.Record
	for _, rec := range m.records {
		if rec.SubjectID == subjectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memRecordStore) ListByDate(_ context.Context, subjectID string, date time.Time) ([]*attendance.Record, error) {
	var out []*attendance.Record
	for _, rec := range m.records {
		if rec.SubjectID == subjectID && rec.Date.Equal(date) {
			out = append(out, rec)
		}
	}
	return out, nil
}

type capturePublisher struct {
	events []shared.Event
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixture
// ─────────────────────────────────────────────────────────────────────────────

type fixture struct {
	repo      *memSubjectRepo
	store     *memRecordStore
	publisher *capturePublisher
	locks     *SubjectLocks
	resolver  *attendance.Resolver
	processor *attendance.Processor
	subject   *attendance.Subject
	slotID    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.Default()

	f := &fixture{
		repo:      newMemSubjectRepo(),
		store:     newMemRecordStore(),
		publisher: &capturePublisher{},
		locks:     NewSubjectLocks(),
		processor: attendance.NewProcessor(log),
	}

	n := 0
	f.resolver = attendance.NewResolver(f.store, func() string {
		n++
		return "rec-" + string(rune('0'+n))
	}, log)

	enroll := NewEnrollSubjectHandler(f.repo, f.publisher, log)
	res, err := enroll.Handle(context.Background(), EnrollSubjectCommand{
		Name:      "Math",
		StartedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	upsert := NewUpsertScheduleHandler(f.repo, f.locks, f.publisher, log)
	sched, err := upsert.Handle(context.Background(), UpsertScheduleCommand{
		SubjectID: res.SubjectID,
		Weekday:   "Monday",
		Slots:     []SlotInput{{Start: "09:00", End: "10:30", Room: "301"}},
	})
	require.NoError(t, err)
	require.Len(t, sched.Slots, 1)

	f.subject = f.repo.subjects[res.SubjectID]
	f.slotID = sched.Slots[0].ID
	return f
}

func (f *fixture) markHandler() *MarkAttendanceHandler {
	return NewMarkAttendanceHandler(
		f.repo, f.store, f.resolver, f.processor, f.locks, f.publisher, logger.Default())
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestMarkAttendance_CreatesRecordAndCounts(t *testing.T) {
	f := newFixture(t)
	h := f.markHandler()
	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

	res, err := h.Handle(context.Background(), MarkAttendanceCommand{
		SubjectID: f.subject.ID,
		SlotID:    f.slotID,
		Date:      monday,
		Status:    "attended",
	})
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Equal(t, "canceled", res.OldStatus)
	assert.Equal(t, "attended", res.NewStatus)
	assert.Equal(t, 1, res.Summary.Attended)
	assert.Equal(t, 1, res.Summary.Total)
	assert.Equal(t, 100.0, res.Summary.Percentage)
	assert.Len(t, f.store.records, 1)
}

func TestMarkAttendance_SameStatusIsNoOp(t *testing.T) {
	f := newFixture(t)
	h := f.markHandler()
	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	cmd := MarkAttendanceCommand{
		SubjectID: f.subject.ID, SlotID: f.slotID, Date: monday, Status: "attended",
	}

	_, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	published := len(f.publisher.events)

	res, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)

	assert.False(t, res.Changed)
	assert.Empty(t, res.Events)
	assert.Len(t, f.publisher.events, published, "no event for a no-op")
	assert.Equal(t, 1, res.Summary.Total)
}

func TestMarkAttendance_PublishesStatusChangedEvent(t *testing.T) {
	f := newFixture(t)
	h := f.markHandler()

	res, err := h.Handle(context.Background(), MarkAttendanceCommand{
		SubjectID: f.subject.ID,
		SlotID:    f.slotID,
		Date:      time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		Status:    "not_attended",
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	event, ok := res.Events[0].(shared.RecordStatusChangedEvent)
	require.True(t, ok)
	assert.Equal(t, shared.EventRecordStatusChanged, event.EventType())
	assert.Equal(t, "canceled", event.OldStatus)
	assert.Equal(t, "not_attended", event.NewStatus)
	assert.Equal(t, 1, event.Total)
	assert.Equal(t, 0, event.Attended)
}

func TestMarkAttendance_RejectsUnknownSlot(t *testing.T) {
	f := newFixture(t)
	h := f.markHandler()

	_, err := h.Handle(context.Background(), MarkAttendanceCommand{
		SubjectID: f.subject.ID,
		SlotID:    "missing",
		Date:      time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		Status:    "attended",
	})
	assert.ErrorIs(t, err, shared.ErrSlotNotFound)
}

func TestMarkAttendance_RejectsDateOutsideSchedule(t *testing.T) {
	f := newFixture(t)
	h := f.markHandler()

	// Tuesday: the slot is not due.
	_, err := h.Handle(context.Background(), MarkAttendanceCommand{
		SubjectID: f.subject.ID,
		SlotID:    f.slotID,
		Date:      time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC),
		Status:    "attended",
	})
	assert.ErrorIs(t, err, shared.ErrOutOfRangeDate)

	// Before enrollment.
	_, err = h.Handle(context.Background(), MarkAttendanceCommand{
		SubjectID: f.subject.ID,
		SlotID:    f.slotID,
		Date:      time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC),
		Status:    "attended",
	})
	assert.ErrorIs(t, err, shared.ErrOutOfRangeDate)
}

func TestMarkAttendance_RejectsInvalidStatus(t *testing.T) {
	f := newFixture(t)
	h := f.markHandler()

	_, err := h.Handle(context.Background(), MarkAttendanceCommand{
		SubjectID: f.subject.ID,
		SlotID:    f.slotID,
		Date:      time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		Status:    "present",
	})
	assert.Error(t, err)
}

func TestToggleHoliday_RevertsAndRestores(t *testing.T) {
	f := newFixture(t)
	mark := f.markHandler()
	toggle := NewToggleHolidayHandler(
		f.repo, f.store, attendance.NewHolidayToggle(f.resolver, f.processor, logger.Default()),
		f.locks, f.publisher, logger.Default())

	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	_, err := mark.Handle(context.Background(), MarkAttendanceCommand{
		SubjectID: f.subject.ID, SlotID: f.slotID, Date: monday, Status: "attended",
	})
	require.NoError(t, err)

	res, err := toggle.Handle(context.Background(), ToggleHolidayCommand{
		SubjectID: f.subject.ID,
		Date:      monday,
	})
	require.NoError(t, err)

	assert.True(t, res.IsHoliday)
	assert.Equal(t, 1, res.AffectedRecords)
	assert.Equal(t, 1, res.RevertedRecords)
	assert.Equal(t, 0, res.Summary.Total)

	// Toggling again clears the flags without touching the neutral statuses.
	res, err = toggle.Handle(context.Background(), ToggleHolidayCommand{
		SubjectID: f.subject.ID,
		Date:      monday,
	})
	require.NoError(t, err)
	assert.False(t, res.IsHoliday)
	assert.Equal(t, 0, res.Summary.Total)
}

func TestToggleHoliday_RejectsDateBeforeEnrollment(t *testing.T) {
	f := newFixture(t)
	toggle := NewToggleHolidayHandler(
		f.repo, f.store, attendance.NewHolidayToggle(f.resolver, f.processor, logger.Default()),
		f.locks, f.publisher, logger.Default())

	_, err := toggle.Handle(context.Background(), ToggleHolidayCommand{
		SubjectID: f.subject.ID,
		Date:      time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, shared.ErrOutOfRangeDate)
}

func TestUpsertSchedule_EmptySlotsRemovesWeekday(t *testing.T) {
	f := newFixture(t)
	h := NewUpsertScheduleHandler(f.repo, f.locks, f.publisher, logger.Default())

	res, err := h.Handle(context.Background(), UpsertScheduleCommand{
		SubjectID: f.subject.ID,
		Weekday:   "monday",
		Slots:     nil,
	})
	require.NoError(t, err)

	assert.Equal(t, "Monday", res.Weekday)
	assert.Equal(t, 1, res.ReplacedSlots)
	assert.Empty(t, f.subject.Schedules)
}

func TestUpsertSchedule_RejectsBadClock(t *testing.T) {
	f := newFixture(t)
	h := NewUpsertScheduleHandler(f.repo, f.locks, f.publisher, logger.Default())

	_, err := h.Handle(context.Background(), UpsertScheduleCommand{
		SubjectID: f.subject.ID,
		Weekday:   "Monday",
		Slots:     []SlotInput{{Start: "25:99"}},
	})
	assert.Error(t, err)
}

func TestEnrollSubject_Validation(t *testing.T) {
	h := NewEnrollSubjectHandler(newMemSubjectRepo(), &capturePublisher{}, logger.Default())

	_, err := h.Handle(context.Background(), EnrollSubjectCommand{Name: "Math"})
	assert.Error(t, err)

	_, err = h.Handle(context.Background(), EnrollSubjectCommand{
		StartedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Error(t, err)
}
