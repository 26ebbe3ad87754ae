package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeekday(t *testing.T) {
	w, ok := ParseWeekday("monday")
	assert.True(t, ok)
	assert.Equal(t, Monday, w)

	w, ok = ParseWeekday(" Friday ")
	assert.True(t, ok)
	assert.Equal(t, Friday, w)

	_, ok = ParseWeekday("someday")
	assert.False(t, ok)
}

func TestTimeOfDay(t *testing.T) {
	assert.Equal(t, "09:05", NewTimeOfDay(9, 5).String())
	assert.Equal(t, "23:59", NewTimeOfDay(23, 59).String())
	assert.False(t, TimeUnset.IsSet())
	assert.True(t, NewTimeOfDay(0, 0).IsSet())
}

func TestClassSlot_Validate(t *testing.T) {
	ok := ClassSlot{ID: "s", Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(10, 0)}
	assert.NoError(t, ok.Validate())

	inverted := ClassSlot{ID: "s", Start: NewTimeOfDay(10, 0), End: NewTimeOfDay(9, 0)}
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidSlotWindow)

	// Slots without times are allowed.
	bare := ClassSlot{ID: "s", Room: "301"}
	assert.NoError(t, bare.Validate())
}

func TestDueSlots_ProjectsByWeekday(t *testing.T) {
	s := newTestSubject(t)
	require.NoError(t, s.UpsertSchedule(Monday, []ClassSlot{
		{ID: "mon-1", Start: NewTimeOfDay(9, 0)},
		{ID: "mon-2", Start: NewTimeOfDay(11, 0)},
	}))
	require.NoError(t, s.UpsertSchedule(Wednesday, []ClassSlot{
		{ID: "wed-1", Start: NewTimeOfDay(14, 0)},
	}))

	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	due := s.DueSlots(monday)
	require.Len(t, due, 2)
	assert.Equal(t, "mon-1", due[0].ID)
	assert.Equal(t, "mon-2", due[1].ID)

	assert.Len(t, s.DueSlots(monday.AddDate(0, 0, 2)), 1)
	assert.Empty(t, s.DueSlots(monday.AddDate(0, 0, 1)))
}

func TestDueSlots_NothingBeforeEnrollment(t *testing.T) {
	s := newTestSubject(t) // starts 2025-01-01 (Wednesday)
	require.NoError(t, s.UpsertSchedule(Monday, []ClassSlot{{ID: "mon-1"}}))

	before := time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, s.DueSlots(before))

	// The start date itself is in range.
	require.NoError(t, s.UpsertSchedule(Wednesday, []ClassSlot{{ID: "wed-1"}}))
	assert.Len(t, s.DueSlots(time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)), 1)
}

func TestDueSlots_ConcatenatesDuplicateWeekdayBlocks(t *testing.T) {
	s := newTestSubject(t)
	s.Schedules = []Schedule{
		{Weekday: Monday, Slots: []ClassSlot{{ID: "a"}}},
		{Weekday: Monday, Slots: []ClassSlot{{ID: "b"}}},
	}

	due := s.DueSlots(time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC))
	require.Len(t, due, 2)
	assert.Equal(t, "a", due[0].ID)
	assert.Equal(t, "b", due[1].ID)
}

func TestUpsertSchedule_ReplacesWeekday(t *testing.T) {
	s := newTestSubject(t)
	require.NoError(t, s.UpsertSchedule(Monday, []ClassSlot{{ID: "old"}}))
	require.NoError(t, s.UpsertSchedule(Monday, []ClassSlot{{ID: "new-1"}, {ID: "new-2"}}))

	require.Len(t, s.Schedules, 1)
	assert.Len(t, s.Schedules[0].Slots, 2)

	_, found := s.FindSlot("old")
	assert.False(t, found)
}

func TestUpsertSchedule_RejectsInvalidSlot(t *testing.T) {
	s := newTestSubject(t)
	err := s.UpsertSchedule(Monday, []ClassSlot{
		{ID: "bad", Start: NewTimeOfDay(10, 0), End: NewTimeOfDay(9, 0)},
	})
	assert.ErrorIs(t, err, ErrInvalidSlotWindow)
	assert.Empty(t, s.Schedules)
}

func TestEditSlotRoom_KeepsIdentity(t *testing.T) {
	s := newTestSubject(t)
	require.NoError(t, s.UpsertSchedule(Monday, []ClassSlot{{ID: "slot-1", Room: "301"}}))

	require.NoError(t, s.EditSlotRoom("slot-1", "302"))

	slot, found := s.FindSlot("slot-1")
	require.True(t, found)
	assert.Equal(t, "302", slot.Room)

	assert.ErrorIs(t, s.EditSlotRoom("missing", "x"), ErrSlotNotFound)
}

func TestRescheduleSlot_ReplacesIdentity(t *testing.T) {
	s := newTestSubject(t)
	require.NoError(t, s.UpsertSchedule(Monday, []ClassSlot{
		{ID: "slot-1", Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(10, 0), Room: "301"},
	}))

	// Records bound to the old identity keep counting after the change.
	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	addRecord(s, "slot-1", monday)

	slot, err := s.RescheduleSlot("slot-1", "slot-2", NewTimeOfDay(10, 0), NewTimeOfDay(11, 0))
	require.NoError(t, err)
	assert.Equal(t, "slot-2", slot.ID)
	assert.Equal(t, "301", slot.Room, "room survives the time change")

	_, found := s.FindSlot("slot-1")
	assert.False(t, found)
	assert.NotNil(t, s.FindRecord("slot-1", monday), "old records stay in the ledger")
}

func TestRemoveSchedule_KeepsRecords(t *testing.T) {
	s := newTestSubject(t)
	require.NoError(t, s.UpsertSchedule(Monday, []ClassSlot{{ID: "slot-1"}}))
	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	addRecord(s, "slot-1", monday)

	s.RemoveSchedule(Monday)

	assert.Empty(t, s.Schedules)
	assert.NotNil(t, s.FindRecord("slot-1", monday))
}
