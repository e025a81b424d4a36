package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ylchen87/PillTrack/internal/models"
)

// ErrNotFound is returned when a reminder does not exist.
var ErrNotFound = errors.New("reminder not found")

type ReminderRepository struct {
	db Querier
}

func NewReminderRepository(db Querier) *ReminderRepository {
	return &ReminderRepository{db: db}
}

const reminderColumns = `id, owner_id, medicine_name, dose, form, times,
	freq_kind, freq_interval, freq_rrule, start_date, end_date, enabled,
	timezone, snooze_minutes, notes, last_updated, created_at`

func (r *ReminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO reminders (owner_id, medicine_name, dose, form, times,
			freq_kind, freq_interval, freq_rrule, start_date, end_date, enabled,
			timezone, snooze_minutes, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id, last_updated, created_at`,
		reminder.OwnerID, reminder.MedicineName, reminder.Dose, reminder.Form, reminder.Times,
		reminder.Frequency.Kind, reminder.Frequency.Interval, reminder.Frequency.RRule,
		reminder.StartDate, reminder.EndDate, reminder.Enabled,
		reminder.Timezone, reminder.SnoozeMinutes, reminder.Notes,
	).Scan(&reminder.ID, &reminder.LastUpdated, &reminder.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

func (r *ReminderRepository) Update(ctx context.Context, reminder *models.Reminder) error {
	err := r.db.QueryRow(ctx,
		`UPDATE reminders SET medicine_name = $1, dose = $2, form = $3, times = $4,
			freq_kind = $5, freq_interval = $6, freq_rrule = $7, start_date = $8,
			end_date = $9, enabled = $10, timezone = $11, snooze_minutes = $12,
			notes = $13, last_updated = NOW()
		 WHERE id = $14 AND owner_id = $15
		 RETURNING last_updated`,
		reminder.MedicineName, reminder.Dose, reminder.Form, reminder.Times,
		reminder.Frequency.Kind, reminder.Frequency.Interval, reminder.Frequency.RRule,
		reminder.StartDate, reminder.EndDate, reminder.Enabled,
		reminder.Timezone, reminder.SnoozeMinutes, reminder.Notes,
		reminder.ID, reminder.OwnerID,
	).Scan(&reminder.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update reminder %d: %w", reminder.ID, err)
	}
	return nil
}

func (r *ReminderRepository) Delete(ctx context.Context, id, ownerID int64) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM reminders WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete reminder %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ReminderRepository) GetByID(ctx context.Context, id int64) (*models.Reminder, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id)
	reminder, err := scanReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder %d: %w", id, err)
	}
	return reminder, nil
}

func (r *ReminderRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*models.Reminder, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE owner_id = $1 ORDER BY id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reminders for owner %d: %w", ownerID, err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// ListEnabled returns every enabled reminder; the recovery pass re-arms them
// all after a restart.
func (r *ReminderRepository) ListEnabled(ctx context.Context) ([]*models.Reminder, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE enabled ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list enabled reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (r *ReminderRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE reminders SET enabled = $1, last_updated = NOW() WHERE id = $2`,
		enabled, id,
	)
	if err != nil {
		return fmt.Errorf("set reminder %d enabled=%v: %w", id, enabled, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReminders(rows pgx.Rows) ([]*models.Reminder, error) {
	var reminders []*models.Reminder
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, reminder)
	}
	return reminders, rows.Err()
}

func scanReminder(row pgx.Row) (*models.Reminder, error) {
	reminder := &models.Reminder{}
	err := row.Scan(
		&reminder.ID, &reminder.OwnerID, &reminder.MedicineName, &reminder.Dose,
		&reminder.Form, &reminder.Times,
		&reminder.Frequency.Kind, &reminder.Frequency.Interval, &reminder.Frequency.RRule,
		&reminder.StartDate, &reminder.EndDate, &reminder.Enabled,
		&reminder.Timezone, &reminder.SnoozeMinutes, &reminder.Notes,
		&reminder.LastUpdated, &reminder.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return reminder, nil
}
