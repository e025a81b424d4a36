package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ylchen87/PillTrack/internal/models"
	"github.com/ylchen87/PillTrack/internal/repository"
)

func newReminder() *models.Reminder {
	return &models.Reminder{
		OwnerID:       42,
		MedicineName:  "Metformin",
		Dose:          "500mg",
		Form:          "tablet",
		Times:         []string{"09:00", "21:00"},
		Frequency:     models.FrequencyRule{Kind: models.FrequencyDaily},
		StartDate:     time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		Enabled:       true,
		Timezone:      "UTC",
		SnoozeMinutes: 10,
	}
}

func TestReminderCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := repository.NewReminderRepository(mock)
	r := newReminder()
	now := time.Now()

	mock.ExpectQuery("INSERT INTO reminders").
		WithArgs(r.OwnerID, r.MedicineName, r.Dose, r.Form, r.Times,
			r.Frequency.Kind, r.Frequency.Interval, r.Frequency.RRule,
			r.StartDate, r.EndDate, r.Enabled, r.Timezone, r.SnoozeMinutes, r.Notes).
		WillReturnRows(pgxmock.NewRows([]string{"id", "last_updated", "created_at"}).
			AddRow(int64(7), now, now))

	require.NoError(t, repo.Create(context.Background(), r))
	assert.Equal(t, int64(7), r.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := repository.NewReminderRepository(mock)

	mock.ExpectQuery("SELECT (.+) FROM reminders WHERE id").
		WithArgs(int64(99)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_id", "medicine_name", "dose", "form", "times",
			"freq_kind", "freq_interval", "freq_rrule", "start_date", "end_date",
			"enabled", "timezone", "snooze_minutes", "notes", "last_updated", "created_at"}))

	_, err = repo.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReminderSetEnabled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := repository.NewReminderRepository(mock)

	mock.ExpectExec("UPDATE reminders SET enabled").
		WithArgs(false, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.SetEnabled(context.Background(), 7, false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderSetEnabledNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := repository.NewReminderRepository(mock)

	mock.ExpectExec("UPDATE reminders SET enabled").
		WithArgs(true, int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.SetEnabled(context.Background(), 99, true)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReminderDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := repository.NewReminderRepository(mock)

	mock.ExpectExec("DELETE FROM reminders").
		WithArgs(int64(7), int64(42)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, repo.Delete(context.Background(), 7, 42))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderListEnabled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := repository.NewReminderRepository(mock)
	now := time.Now()
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	cols := []string{"id", "owner_id", "medicine_name", "dose", "form", "times",
		"freq_kind", "freq_interval", "freq_rrule", "start_date", "end_date",
		"enabled", "timezone", "snooze_minutes", "notes", "last_updated", "created_at"}
	mock.ExpectQuery("SELECT (.+) FROM reminders WHERE enabled").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(1), int64(42), "Metformin", "500mg", "tablet", []string{"09:00"},
				models.FrequencyDaily, 0, "", start, (*time.Time)(nil),
				true, "UTC", 10, "", now, now))

	reminders, err := repo.ListEnabled(context.Background())
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, "Metformin", reminders[0].MedicineName)
	assert.Equal(t, models.FrequencyDaily, reminders[0].Frequency.Kind)
	assert.Equal(t, []string{"09:00"}, reminders[0].Times)
}
