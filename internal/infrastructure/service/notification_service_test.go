package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/notification"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
)

type stubSubjectRepo struct {
	subjects map[string]*attendance.Subject
}

func (r *stubSubjectRepo) Save(_ context.Context, s *attendance.Subject) error {
	r.subjects[s.ID] = s
	return nil
}

func (r *stubSubjectRepo) GetByID(_ context.Context, id string) (*attendance.Subject, error) {
	s, ok := r.subjects[id]
	if !ok {
		return nil, shared.ErrSubjectNotFound
	}
	return s, nil
}

func (r *stubSubjectRepo) GetAll(_ context.Context) ([]*attendance.Subject, error) {
	var out []*attendance.Subject
	for _, s := range r.subjects {
		out = append(out, s)
	}
	return out, nil
}

func (r *stubSubjectRepo) Delete(_ context.Context, id string) error {
	delete(r.subjects, id)
	return nil
}

func newMathSubject(t *testing.T) *attendance.Subject {
	t.Helper()

	subject, err := attendance.NewSubject(attendance.NewSubjectParams{
		ID:        "subject-1",
		Name:      "Math",
		StartedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	err = subject.UpsertSchedule(attendance.Monday, []attendance.ClassSlot{
		{ID: "slot-1", Start: attendance.NewTimeOfDay(9, 0), End: attendance.NewTimeOfDay(10, 30), Room: "301"},
	})
	require.NoError(t, err)

	return subject
}

func newTestService(t *testing.T, subject *attendance.Subject) *NotificationService {
	t.Helper()

	repo := &stubSubjectRepo{subjects: map[string]*attendance.Subject{subject.ID: subject}}
	cfg := DefaultNotificationConfig()
	return NewNotificationService(repo, nil, nil, cfg)
}

func TestNotificationService_ReschedulePlansTimedSlots(t *testing.T) {
	subject := newMathSubject(t)
	svc := newTestService(t, subject)

	require.NoError(t, svc.Reschedule(context.Background(), subject.ID))

	pending := svc.PendingReminders(subject.ID)
	require.NotEmpty(t, pending)

	for _, rem := range pending {
		assert.Equal(t, subject.ID, rem.SubjectID)
		assert.Equal(t, "Math", rem.SubjectName)
		assert.Equal(t, "slot-1", rem.SlotID)
		assert.Equal(t, "301", rem.Room)
		assert.Equal(t, time.Monday, rem.FireAt.Weekday())
		// 09:00 minus the 15 minute lead time.
		assert.Equal(t, 8, rem.FireAt.Hour())
		assert.Equal(t, 45, rem.FireAt.Minute())
	}
}

func TestNotificationService_RescheduleSkipsUntimedSlots(t *testing.T) {
	subject := newMathSubject(t)
	require.NoError(t, subject.UpsertSchedule(attendance.Tuesday, []attendance.ClassSlot{
		{ID: "slot-2", Start: attendance.TimeUnset, End: attendance.TimeUnset},
	}))
	svc := newTestService(t, subject)

	require.NoError(t, svc.Reschedule(context.Background(), subject.ID))

	for _, rem := range svc.PendingReminders(subject.ID) {
		assert.NotEqual(t, "slot-2", rem.SlotID)
	}
}

func TestNotificationService_CancelForDate(t *testing.T) {
	subject := newMathSubject(t)
	svc := newTestService(t, subject)

	require.NoError(t, svc.Reschedule(context.Background(), subject.ID))
	pending := svc.PendingReminders(subject.ID)
	require.NotEmpty(t, pending)

	target := pending[0].FireAt
	require.NoError(t, svc.CancelForDate(context.Background(), subject.ID, target))

	for _, rem := range svc.PendingReminders(subject.ID) {
		assert.False(t, rem.FireAt.Year() == target.Year() && rem.FireAt.YearDay() == target.YearDay())
	}
}

func TestNotificationService_RescheduleUnknownSubject(t *testing.T) {
	subject := newMathSubject(t)
	svc := newTestService(t, subject)

	err := svc.Reschedule(context.Background(), "missing")
	assert.ErrorIs(t, err, shared.ErrSubjectNotFound)
}

func TestNotificationService_SendDigestOnLogChannel(t *testing.T) {
	subject := newMathSubject(t)
	svc := newTestService(t, subject)

	err := svc.SendDigest(context.Background(), notification.Digest{
		Date: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		Items: []notification.DigestItem{
			{SubjectName: "Math", Start: "09:00", Room: "301", Status: "canceled"},
		},
	})
	assert.NoError(t, err)
}
