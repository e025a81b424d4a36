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

func TestHistoryAppend(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := repository.NewHistoryRepository(mock)
	scheduled := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	entry := &models.ReminderHistory{
		ReminderID:    7,
		OwnerID:       42,
		MedicineName:  "Metformin",
		Action:        models.ActionTaken,
		ScheduledTime: &scheduled,
		ActionTime:    scheduled.Add(5 * time.Minute),
	}

	mock.ExpectQuery("INSERT INTO reminder_history").
		WithArgs(entry.ReminderID, entry.OwnerID, entry.MedicineName,
			entry.Action, entry.ScheduledTime, entry.ActionTime, entry.Notes).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))

	require.NoError(t, repo.Append(context.Background(), entry))
	assert.Equal(t, int64(1), entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryCountByOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := repository.NewHistoryRepository(mock)
	to := time.Now()
	from := to.AddDate(0, 0, -7)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(42), from, to).
		WillReturnRows(pgxmock.NewRows([]string{"taken", "total"}).AddRow(3, 4))

	taken, total, err := repo.CountByOwner(context.Background(), 42, from, to)
	require.NoError(t, err)
	assert.Equal(t, 3, taken)
	assert.Equal(t, 4, total)
}

func TestHistoryPurgeByOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := repository.NewHistoryRepository(mock)

	mock.ExpectExec("DELETE FROM reminder_history").
		WithArgs(int64(42)).
		WillReturnResult(pgxmock.NewResult("DELETE", 9))

	require.NoError(t, repo.PurgeByOwner(context.Background(), 42))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryListByOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := repository.NewHistoryRepository(mock)
	to := time.Now()
	from := to.AddDate(0, 0, -7)
	actionTime := to.Add(-time.Hour)

	cols := []string{"id", "reminder_id", "owner_id", "medicine_name", "action",
		"scheduled_time", "action_time", "notes"}
	mock.ExpectQuery("SELECT (.+) FROM reminder_history").
		WithArgs(int64(42), from, to).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(1), int64(7), int64(42), "Metformin", models.ActionSnoozed,
				(*time.Time)(nil), actionTime, ""))

	entries, err := repo.ListByOwner(context.Background(), 42, from, to)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionSnoozed, entries[0].Action)
	assert.Nil(t, entries[0].ScheduledTime)
}
