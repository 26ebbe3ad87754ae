package eventhandler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/notification"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
	"github.com/classtrack/attendance-ledger/pkg/logger"
)

type stubSubjectRepo struct {
	subject *attendance.Subject
}

func (s *stubSubjectRepo) Save(_ context.Context, _ *attendance.Subject) error { return nil }

func (s *stubSubjectRepo) GetByID(_ context.Context, id string) (*attendance.Subject, error) {
	if s.subject != nil && s.subject.ID == id {
		return s.subject, nil
	}
	return nil, shared.ErrSubjectNotFound
}

func (s *stubSubjectRepo) GetAll(_ context.Context) ([]*attendance.Subject, error) {
	return []*attendance.Subject{s.subject}, nil
}

func (s *stubSubjectRepo) Delete(_ context.Context, _ string) error { return nil }

type stubCache struct {
	invalidated []string
}

func (c *stubCache) Get(_ context.Context, _ string) (*attendance.Summary, error) {
	return nil, shared.ErrCacheMiss
}

func (c *stubCache) Set(_ context.Context, _ attendance.Summary, _ time.Duration) error {
	return nil
}

func (c *stubCache) Invalidate(_ context.Context, subjectID string) error {
	c.invalidated = append(c.invalidated, subjectID)
	return nil
}

type stubSender struct {
	alerts  []notification.Alert
	digests []notification.Digest
}

func (s *stubSender) SendAlert(_ context.Context, alert notification.Alert) error {
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *stubSender) SendDigest(_ context.Context, digest notification.Digest) error {
	s.digests = append(s.digests, digest)
	return nil
}

func newStatusChangedFixture(t *testing.T) (*stubSubjectRepo, *stubCache, *stubSender, *OnStatusChangedHandler) {
	t.Helper()
	subject, err := attendance.NewSubject(attendance.NewSubjectParams{
		ID:        "math",
		Name:      "Math",
		StartedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	repo := &stubSubjectRepo{subject: subject}
	cache := &stubCache{}
	sender := &stubSender{}
	h := NewOnStatusChangedHandler(repo, cache, sender, nil, logger.Default(), DefaultStatusChangedConfig())
	return repo, cache, sender, h
}

func statusEvent(attended, total int, oldStatus, newStatus string) shared.RecordStatusChangedEvent {
	return shared.NewRecordStatusChangedEvent(
		"math", "rec-1", "slot-1",
		time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		oldStatus, newStatus, attended, total,
	)
}

func TestOnStatusChanged_InvalidatesCache(t *testing.T) {
	_, cache, _, h := newStatusChangedFixture(t)

	err := h.Handle(statusEvent(1, 1, "canceled", "attended"))
	require.NoError(t, err)

	assert.Equal(t, []string{"math"}, cache.invalidated)
}

func TestOnStatusChanged_AlertsOnBandDrop(t *testing.T) {
	// 2/2 (good) -> mark a third class absent -> 2/3 = 66.7% (warning at 75).
	_, _, sender, h := newStatusChangedFixture(t)

	err := h.Handle(statusEvent(2, 3, "canceled", "not_attended"))
	require.NoError(t, err)

	require.Len(t, sender.alerts, 1)
	alert := sender.alerts[0]
	assert.Equal(t, "Math", alert.SubjectName)
	assert.Equal(t, string(attendance.BandWarning), alert.Band)
	assert.InDelta(t, 66.67, alert.Percentage, 0.01)
	assert.Equal(t, 75.0, alert.Requirement)
}

func TestOnStatusChanged_NoAlertWhenBandHolds(t *testing.T) {
	_, _, sender, h := newStatusChangedFixture(t)

	// 3/3 -> 4/4, stays good.
	require.NoError(t, h.Handle(statusEvent(4, 4, "canceled", "attended")))
	assert.Empty(t, sender.alerts)

	// 1/4 -> 1/3 critical -> critical: worse in numbers, same band.
	require.NoError(t, h.Handle(statusEvent(1, 3, "not_attended", "canceled")))
	assert.Empty(t, sender.alerts)
}

func TestOnStatusChanged_AlertCooldown(t *testing.T) {
	_, _, sender, h := newStatusChangedFixture(t)

	require.NoError(t, h.Handle(statusEvent(2, 3, "canceled", "not_attended")))
	// A further drop into critical follows within the cooldown window.
	require.NoError(t, h.Handle(statusEvent(2, 6, "canceled", "not_attended")))

	assert.Len(t, sender.alerts, 1, "second drop within cooldown is silent")
}

// anySubjectRepo serves a fresh subject for any requested ID.
type anySubjectRepo struct{}

func (anySubjectRepo) Save(_ context.Context, _ *attendance.Subject) error { return nil }
func (anySubjectRepo) Delete(_ context.Context, _ string) error            { return nil }
func (anySubjectRepo) GetAll(_ context.Context) ([]*attendance.Subject, error) {
	return nil, nil
}

func (anySubjectRepo) GetByID(_ context.Context, id string) (*attendance.Subject, error) {
	return attendance.NewSubject(attendance.NewSubjectParams{
		ID:        id,
		Name:      "Subject " + id,
		StartedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
}

type countingSender struct {
	mu     sync.Mutex
	alerts map[string]int
}

func (s *countingSender) SendAlert(_ context.Context, alert notification.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alerts == nil {
		s.alerts = make(map[string]int)
	}
	s.alerts[alert.SubjectID]++
	return nil
}

func (s *countingSender) SendDigest(_ context.Context, _ notification.Digest) error { return nil }

func TestOnStatusChanged_ConcurrentHandles(t *testing.T) {
	// The bus dispatches on concurrent workers, so overlapping events for
	// different subjects hit the cooldown map at the same time.
	sender := &countingSender{}
	h := NewOnStatusChangedHandler(anySubjectRepo{}, nil, sender, nil, logger.Default(), DefaultStatusChangedConfig())

	const workers = 8
	const perWorker = 20

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				subjectID := fmt.Sprintf("subject-%d", i%4)
				err := h.Handle(shared.NewRecordStatusChangedEvent(
					subjectID, "rec-1", "slot-1",
					time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
					"canceled", "not_attended", 2, 3,
				))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	// Cooldown holds per subject even under contention.
	for i := 0; i < 4; i++ {
		assert.Equal(t, 1, sender.alerts[fmt.Sprintf("subject-%d", i)])
	}
}

func TestOnStatusChanged_RejectsForeignEvent(t *testing.T) {
	_, _, _, h := newStatusChangedFixture(t)

	err := h.Handle(shared.NewSubjectEnrolledEvent("math", "Math", time.Now()))
	assert.Error(t, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Holiday toggled
// ─────────────────────────────────────────────────────────────────────────────

type stubScheduler struct {
	rescheduled []string
	canceled    []string
}

func (s *stubScheduler) Reschedule(_ context.Context, subjectID string) error {
	s.rescheduled = append(s.rescheduled, subjectID)
	return nil
}

func (s *stubScheduler) CancelForDate(_ context.Context, subjectID string, _ time.Time) error {
	s.canceled = append(s.canceled, subjectID)
	return nil
}

func TestOnHolidayToggled_CancelsAndRestores(t *testing.T) {
	cache := &stubCache{}
	sched := &stubScheduler{}
	h := NewOnHolidayToggledHandler(cache, sched, logger.Default())
	date := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

	require.NoError(t, h.Handle(shared.NewHolidayToggledEvent("math", date, true, 2)))
	assert.Equal(t, []string{"math"}, sched.canceled)
	assert.Equal(t, []string{"math"}, cache.invalidated)

	require.NoError(t, h.Handle(shared.NewHolidayToggledEvent("math", date, false, 2)))
	assert.Equal(t, []string{"math"}, sched.rescheduled)
}

func TestOnScheduleUpdated_Reschedules(t *testing.T) {
	sched := &stubScheduler{}
	h := NewOnScheduleUpdatedHandler(sched, logger.Default())

	require.NoError(t, h.Handle(shared.NewScheduleUpdatedEvent("math", "Monday", 2, 1)))
	assert.Equal(t, []string{"math"}, sched.rescheduled)
}
