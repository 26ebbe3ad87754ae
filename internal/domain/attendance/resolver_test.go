package attendance

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/attendance-ledger/pkg/logger"
	"github.com/classtrack/attendance-ledger/pkg/timeutil"
)

// memRecordStore is a minimal in-memory RecordStore for resolver tests.
type memRecordStore struct {
	inserted  []*Record
	saved     []*Record
	insertErr error
}

func (m *memRecordStore) Insert(_ context.Context, rec *Record) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, rec)
	return nil
}

func (m *memRecordStore) Save(_ context.Context, rec *Record) error {
	m.saved = append(m.saved, rec)
	return nil
}

func (m *memRecordStore) ListBySubject(_ context.Context, _ string) ([]*Record, error) {
	return m.inserted, nil
}

func (m *memRecordStore) ListByDate(_ context.Context, _ string, date time.Time) ([]*Record, error) {
	var out []*Record
	for _, rec := range m.inserted {
		if timeutil.SameDay(rec.Date, date) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("rec-%d", n)
	}
}

func TestResolver_CreatesRecordAtDefaultStatus(t *testing.T) {
	s := newTestSubject(t)
	store := &memRecordStore{}
	r := NewResolver(store, sequentialIDs(), logger.Default())
	slot := ClassSlot{ID: "slot-1", Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(10, 30)}
	date := time.Date(2025, 1, 6, 15, 45, 0, 0, time.UTC)

	rec := r.Resolve(context.Background(), s, slot, date)

	require.NotNil(t, rec)
	assert.Equal(t, StatusCanceled, rec.Status)
	assert.False(t, rec.IsHoliday)
	assert.Equal(t, s.ID, rec.SubjectID)
	assert.Equal(t, "slot-1", rec.SlotID)
	// Date is truncated to day granularity regardless of the query time.
	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), rec.Date)
	assert.Len(t, s.Records, 1)
	assert.Len(t, store.inserted, 1)
}

func TestResolver_IsIdempotent(t *testing.T) {
	s := newTestSubject(t)
	store := &memRecordStore{}
	r := NewResolver(store, sequentialIDs(), logger.Default())
	slot := ClassSlot{ID: "slot-1"}
	date := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

	first := r.Resolve(context.Background(), s, slot, date)
	first.Status = StatusAttended

	again := r.Resolve(context.Background(), s, slot, date.Add(5*time.Hour))

	assert.Same(t, first, again)
	assert.Equal(t, StatusAttended, again.Status)
	assert.Len(t, s.Records, 1)
	assert.Len(t, store.inserted, 1)
}

func TestResolver_CopiesHolidayStateOfDate(t *testing.T) {
	s := newTestSubject(t)
	r := NewResolver(&memRecordStore{}, sequentialIDs(), logger.Default())
	date := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

	existing := addRecord(s, "slot-1", date)
	existing.IsHoliday = true

	rec := r.Resolve(context.Background(), s, ClassSlot{ID: "slot-2"}, date)
	assert.True(t, rec.IsHoliday, "late-resolved slot joins the day's holiday state")

	other := r.Resolve(context.Background(), s, ClassSlot{ID: "slot-2"}, date.AddDate(0, 0, 7))
	assert.False(t, other.IsHoliday, "holiday state does not leak across dates")
}

func TestResolver_InsertFailureDoesNotLoseRecord(t *testing.T) {
	s := newTestSubject(t)
	store := &memRecordStore{insertErr: errors.New("connection refused")}
	r := NewResolver(store, sequentialIDs(), logger.Default())
	date := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

	rec := r.Resolve(context.Background(), s, ClassSlot{ID: "slot-1"}, date)

	require.NotNil(t, rec)
	assert.Len(t, s.Records, 1, "in-memory state is authoritative")
}

func TestResolver_ResolveDue(t *testing.T) {
	s := newTestSubject(t)
	r := NewResolver(&memRecordStore{}, sequentialIDs(), logger.Default())
	require.NoError(t, s.UpsertSchedule(Monday, []ClassSlot{
		{ID: "slot-1", Start: NewTimeOfDay(9, 0)},
		{ID: "slot-2", Start: NewTimeOfDay(11, 0)},
	}))

	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	recs := r.ResolveDue(context.Background(), s, monday)
	require.Len(t, recs, 2)
	assert.Equal(t, "slot-1", recs[0].SlotID)
	assert.Equal(t, "slot-2", recs[1].SlotID)

	tuesday := monday.AddDate(0, 0, 1)
	assert.Empty(t, r.ResolveDue(context.Background(), s, tuesday))
}
