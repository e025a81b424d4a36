package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ylchen87/PillTrack/internal/models"
	"github.com/ylchen87/PillTrack/internal/schedule"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func baseReminder() *models.Reminder {
	return &models.Reminder{
		ID:            1,
		OwnerID:       42,
		MedicineName:  "Metformin",
		Dose:          "500mg",
		Times:         []string{"09:00"},
		Frequency:     models.FrequencyRule{Kind: models.FrequencyDaily},
		StartDate:     date(2025, time.March, 1),
		Enabled:       true,
		Timezone:      "UTC",
		SnoozeMinutes: 10,
	}
}

func TestDailyBeforeSlotReturnsToday(t *testing.T) {
	r := baseReminder()

	occs, err := schedule.NextOccurrences(r, at(2025, time.March, 10, 8, 0))
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, at(2025, time.March, 10, 9, 0), occs[0].At)
}

func TestDailyAfterSlotReturnsTomorrow(t *testing.T) {
	r := baseReminder()

	occs, err := schedule.NextOccurrences(r, at(2025, time.March, 10, 9, 1))
	require.NoError(t, err)
	assert.Equal(t, at(2025, time.March, 11, 9, 0), occs[0].At)
}

func TestDailyExactlyAtSlotReturnsToday(t *testing.T) {
	r := baseReminder()

	occs, err := schedule.NextOccurrences(r, at(2025, time.March, 10, 9, 0))
	require.NoError(t, err)
	assert.Equal(t, at(2025, time.March, 10, 9, 0), occs[0].At)
}

func TestTwoSlots(t *testing.T) {
	r := baseReminder()
	r.Times = []string{"09:00", "21:00"}

	occs, err := schedule.NextOccurrences(r, at(2025, time.March, 10, 8, 0))
	require.NoError(t, err)
	require.Len(t, occs, 2)
	assert.Equal(t, 0, occs[0].SlotIndex)
	assert.Equal(t, at(2025, time.March, 10, 9, 0), occs[0].At)
	assert.Equal(t, 1, occs[1].SlotIndex)
	assert.Equal(t, at(2025, time.March, 10, 21, 0), occs[1].At)
}

func TestEveryNDaysOnlyReturnsAlignedDates(t *testing.T) {
	r := baseReminder()
	r.Frequency = models.FrequencyRule{Kind: models.FrequencyEveryNDays, Interval: 3}
	r.StartDate = date(2025, time.March, 1)

	// Walk forward through several rolls; every date must be aligned to the
	// start date modulo 3.
	ref := at(2025, time.March, 1, 0, 0)
	for i := 0; i < 5; i++ {
		next, err := schedule.NextOccurrenceForSlot(r, 0, ref)
		require.NoError(t, err)
		days := int(next.Truncate(24*time.Hour).Sub(date(2025, time.March, 1)) / (24 * time.Hour))
		assert.Zerof(t, days%3, "occurrence %s is not aligned", next)
		ref = next.Add(time.Second)
	}
}

func TestEveryNDaysSkipsUnalignedDay(t *testing.T) {
	r := baseReminder()
	r.Frequency = models.FrequencyRule{Kind: models.FrequencyEveryNDays, Interval: 2}
	r.StartDate = date(2025, time.March, 1)

	// March 2 is one day past start, so the next aligned day is March 3.
	next, err := schedule.NextOccurrenceForSlot(r, 0, at(2025, time.March, 2, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, at(2025, time.March, 3, 9, 0), next)
}

func TestWeekdaysNeverReturnsWeekend(t *testing.T) {
	r := baseReminder()
	r.Frequency = models.FrequencyRule{Kind: models.FrequencyWeekdays}

	// 2025-03-07 is a Friday; after its slot the next valid day is Monday.
	next, err := schedule.NextOccurrenceForSlot(r, 0, at(2025, time.March, 7, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, at(2025, time.March, 10, 9, 0), next)
	assert.Equal(t, time.Monday, next.Weekday())
}

func TestWeekdaysScanNeverYieldsSaturdayOrSunday(t *testing.T) {
	r := baseReminder()
	r.Frequency = models.FrequencyRule{Kind: models.FrequencyWeekdays}

	ref := at(2025, time.March, 3, 0, 0)
	for i := 0; i < 14; i++ {
		next, err := schedule.NextOccurrenceForSlot(r, 0, ref)
		require.NoError(t, err)
		assert.NotEqual(t, time.Saturday, next.Weekday())
		assert.NotEqual(t, time.Sunday, next.Weekday())
		ref = next.Add(time.Second)
	}
}

func TestStartDateInFuture(t *testing.T) {
	r := baseReminder()
	r.StartDate = date(2025, time.March, 20)

	next, err := schedule.NextOccurrenceForSlot(r, 0, at(2025, time.March, 10, 8, 0))
	require.NoError(t, err)
	assert.Equal(t, at(2025, time.March, 20, 9, 0), next)
}

func TestEndDatePassedReturnsNoValidOccurrence(t *testing.T) {
	r := baseReminder()
	end := date(2025, time.March, 5)
	r.EndDate = &end

	_, err := schedule.NextOccurrenceForSlot(r, 0, at(2025, time.March, 10, 8, 0))
	assert.ErrorIs(t, err, schedule.ErrNoValidOccurrence)
}

func TestEndDateTodayStillFires(t *testing.T) {
	r := baseReminder()
	end := date(2025, time.March, 10)
	r.EndDate = &end

	next, err := schedule.NextOccurrenceForSlot(r, 0, at(2025, time.March, 10, 8, 0))
	require.NoError(t, err)
	assert.Equal(t, at(2025, time.March, 10, 9, 0), next)
}

func TestCustomRuleWeeklyMonday(t *testing.T) {
	r := baseReminder()
	r.Frequency = models.FrequencyRule{Kind: models.FrequencyCustom, RRule: "FREQ=WEEKLY;BYDAY=MO"}
	r.StartDate = date(2025, time.March, 3) // a Monday

	ref := at(2025, time.March, 4, 0, 0)
	for i := 0; i < 4; i++ {
		next, err := schedule.NextOccurrenceForSlot(r, 0, ref)
		require.NoError(t, err)
		assert.Equal(t, time.Monday, next.Weekday())
		ref = next.Add(time.Second)
	}
}

func TestCustomRuleMalformed(t *testing.T) {
	r := baseReminder()
	r.Frequency = models.FrequencyRule{Kind: models.FrequencyCustom, RRule: "FREQ=NOPE"}

	_, err := schedule.NextOccurrenceForSlot(r, 0, at(2025, time.March, 10, 8, 0))
	assert.Error(t, err)
}

func TestDeterminism(t *testing.T) {
	r := baseReminder()
	r.Times = []string{"08:30", "20:15"}
	r.Frequency = models.FrequencyRule{Kind: models.FrequencyEveryNDays, Interval: 2}
	ref := at(2025, time.March, 9, 12, 0)

	first, err := schedule.NextOccurrences(r, ref)
	require.NoError(t, err)
	second, err := schedule.NextOccurrences(r, ref)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSlotIndexOutOfRange(t *testing.T) {
	r := baseReminder()

	_, err := schedule.NextOccurrenceForSlot(r, 3, at(2025, time.March, 10, 8, 0))
	assert.Error(t, err)
}

func TestTimezoneRespected(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)

	r := baseReminder()
	r.Timezone = "Asia/Taipei"

	// 09:00 in Taipei is 01:00 UTC; a reference of 00:00 UTC is before it.
	next, err := schedule.NextOccurrenceForSlot(r, 0, at(2025, time.March, 10, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.March, 10, 9, 0, 0, 0, loc), next)
}
