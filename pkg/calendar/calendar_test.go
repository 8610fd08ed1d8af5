package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/arnavshah/mass-scheduler-go/pkg/apperrors"
	"github.com/arnavshah/mass-scheduler-go/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func slotIDs(slots []*models.Slot) []string {
	ids := make([]string, 0, len(slots))
	for _, s := range slots {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestEaster(t *testing.T) {
	testCases := map[int]time.Time{
		2000: models.Date(2000, 4, 23),
		2019: models.Date(2019, 4, 21),
		2024: models.Date(2024, 3, 31),
		2025: models.Date(2025, 4, 20),
		2038: models.Date(2038, 4, 25),
	}
	for year, want := range testCases {
		assert.Equal(t, want, Easter(year), "year %d", year)
	}
}

func TestResolvePrecedence(t *testing.T) {
	ec, err := New([]models.SlotRecord{
		{ID: "SUN_10", Weekday: "Sunday", Time: "10:00", Servers: 2},
		{ID: "SUN_18", Weekday: "sun", Time: "18:00", Servers: 1},
		{ID: "EASTER_MON", HolidayOffset: intPtr(1), Time: "09:30", Servers: 3},
		{ID: "XMAS_EVE", Date: "12-24", Time: "22:00", Servers: 4, HighPriority: true},
		{ID: "PATRON", Date: "2024-04-01", Time: "11:00", Servers: 2},
		{ID: "WEDDING", Date: "07.04.2024", Custom: true, Time: "14:00", Servers: 2},
	})
	require.NoError(t, err)

	t.Run("weekly recurrence", func(t *testing.T) {
		assert.Equal(t, []string{"SUN_10", "SUN_18"}, slotIDs(ec.Resolve(models.Date(2024, 3, 24))))
		assert.Empty(t, ec.Resolve(models.Date(2024, 3, 26)))
	})

	t.Run("fixed date beats holiday rule", func(t *testing.T) {
		// Easter Monday 2024 is April 1st
		assert.Equal(t, []string{"PATRON"}, slotIDs(ec.Resolve(models.Date(2024, 4, 1))))
	})

	t.Run("holiday rule", func(t *testing.T) {
		assert.Equal(t, []string{"EASTER_MON"}, slotIDs(ec.Resolve(models.Date(2025, 4, 21))))
	})

	t.Run("annual fixed date", func(t *testing.T) {
		assert.Equal(t, []string{"XMAS_EVE"}, slotIDs(ec.Resolve(models.Date(2023, 12, 24))))
		assert.Equal(t, []string{"XMAS_EVE"}, slotIDs(ec.Resolve(models.Date(2024, 12, 24))))
	})

	t.Run("custom slots are appended", func(t *testing.T) {
		assert.Equal(t, []string{"SUN_10", "WEDDING", "SUN_18"}, slotIDs(ec.Resolve(models.Date(2024, 4, 7))))
	})
}

func TestHolidayOffsetCrossesYearBoundary(t *testing.T) {
	ec, err := New([]models.SlotRecord{
		{ID: "BEFORE", HolidayOffset: intPtr(-120), Time: "18:00", Servers: 1},
		{ID: "AFTER", HolidayOffset: intPtr(300), Time: "18:00", Servers: 1},
	})
	require.NoError(t, err)

	// 120 days before Easter 2025
	assert.Equal(t, []string{"BEFORE"}, slotIDs(ec.Resolve(models.Date(2024, 12, 21))))
	// 300 days after Easter 2024
	assert.Equal(t, []string{"AFTER"}, slotIDs(ec.Resolve(models.Date(2025, 1, 25))))
	assert.Empty(t, ec.Resolve(models.Date(2024, 12, 22)))
}

func TestNewRejectsAmbiguousSlots(t *testing.T) {
	testCases := []struct {
		name  string
		slots []models.SlotRecord
	}{
		{name: "empty", slots: nil},
		{name: "duplicate id", slots: []models.SlotRecord{
			{ID: "A", Weekday: "mon", Time: "08:00", Servers: 1},
			{ID: "A", Weekday: "tue", Time: "08:00", Servers: 1},
		}},
		{name: "same weekday and time", slots: []models.SlotRecord{
			{ID: "A", Weekday: "mon", Time: "08:00", Servers: 1},
			{ID: "B", Weekday: "Monday", Time: "08:00", Servers: 2},
		}},
		{name: "same holiday and time", slots: []models.SlotRecord{
			{ID: "A", HolidayOffset: intPtr(0), Time: "10:00", Servers: 1},
			{ID: "B", HolidayOffset: intPtr(0), Time: "10:00", Servers: 1},
		}},
		{name: "unknown alias", slots: []models.SlotRecord{
			{ID: "A", Date: "2024-05-09", Time: "10:00", Servers: 1, TreatedAs: "SUN_10"},
		}},
		{name: "alias chain", slots: []models.SlotRecord{
			{ID: "A", Weekday: "sun", Time: "10:00", Servers: 1, TreatedAs: "B"},
			{ID: "B", Weekday: "sat", Time: "10:00", Servers: 1, TreatedAs: "C"},
			{ID: "C", Weekday: "fri", Time: "10:00", Servers: 1},
		}},
		{name: "two anchors", slots: []models.SlotRecord{
			{ID: "A", Weekday: "sun", Date: "2024-01-01", Time: "10:00", Servers: 1},
		}},
		{name: "no anchor", slots: []models.SlotRecord{{ID: "A", Time: "10:00", Servers: 1}}},
		{name: "bad weekday", slots: []models.SlotRecord{{ID: "A", Weekday: "someday", Time: "10:00", Servers: 1}}},
		{name: "bad time", slots: []models.SlotRecord{{ID: "A", Weekday: "sun", Time: "25:00", Servers: 1}}},
		{name: "no servers", slots: []models.SlotRecord{{ID: "A", Weekday: "sun", Time: "10:00", Servers: 0}}},
		{name: "custom without date", slots: []models.SlotRecord{{ID: "A", Weekday: "sun", Custom: true, Time: "10:00", Servers: 1}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.slots)
			require.Error(t, err)
			assert.True(t, apperrors.IsConfig(err), "got %v", err)
		})
	}
}

func TestPreAssignedByDateIsNormalized(t *testing.T) {
	ec, err := New([]models.SlotRecord{{
		ID: "SUN_10", Weekday: "sun", Time: "10:00", Servers: 2,
		PreAssigned:       []string{"Anna"},
		PreAssignedByDate: map[string][]string{"07.04.2024": {"Ben"}},
	}})
	require.NoError(t, err)

	slot, ok := ec.Slot("SUN_10")
	require.True(t, ok)
	assert.Equal(t, []string{"Anna", "Ben"}, slot.PreAssignedOn(models.Date(2024, 4, 7)))
	assert.Equal(t, []string{"Anna"}, slot.PreAssignedOn(models.Date(2024, 4, 14)))
}

func TestMaterialize(t *testing.T) {
	ec, err := New([]models.SlotRecord{
		{ID: "WED_18", Weekday: "wed", Time: "18:00", Servers: 2},
		{ID: "SUN_10", Weekday: "sun", Time: "10:00", Servers: 2},
		{ID: "SUN_8", Weekday: "sun", Time: "08:00", Servers: 1},
	})
	require.NoError(t, err)

	cal, err := Materialize(ec, models.Date(2024, 3, 1), models.Date(2024, 3, 17))
	require.NoError(t, err)
	require.Len(t, cal.Occurrences, 8)

	for i, occ := range cal.Occurrences {
		assert.Equal(t, i, occ.Index)
		assert.Empty(t, occ.Servers)
		if i > 0 {
			prev := cal.Occurrences[i-1]
			assert.False(t, occ.Date.Before(prev.Date))
			if occ.Date.Equal(prev.Date) {
				assert.Greater(t, occ.Slot.Time, prev.Slot.Time)
			}
		}
	}
	assert.Equal(t, "SUN_8", cal.Occurrences[0].Slot.ID)
	assert.Equal(t, models.Date(2024, 3, 3), cal.Occurrences[0].Date)
	assert.Equal(t, "WED_18", cal.Occurrences[2].Slot.ID)
	assert.Len(t, cal.Days(), 5)

	single, err := Materialize(ec, models.Date(2024, 3, 6), models.Date(2024, 3, 6))
	require.NoError(t, err)
	assert.Len(t, single.Occurrences, 1)
}

func TestMaterializeInvalidHorizon(t *testing.T) {
	ec, err := New([]models.SlotRecord{{ID: "SUN_10", Weekday: "sun", Time: "10:00", Servers: 1}})
	require.NoError(t, err)

	_, err = Materialize(ec, models.Date(2024, 3, 10), models.Date(2024, 3, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidHorizon))
}
