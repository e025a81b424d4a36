package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ylchen87/PillTrack/internal/models"
)

// HistoryRepository owns the append-only reminder_history table. Rows are
// never updated, only inserted and bulk-deleted per owner.
type HistoryRepository struct {
	db Querier
}

func NewHistoryRepository(db Querier) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Append(ctx context.Context, h *models.ReminderHistory) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO reminder_history (reminder_id, owner_id, medicine_name,
			action, scheduled_time, action_time, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		h.ReminderID, h.OwnerID, h.MedicineName, h.Action,
		h.ScheduledTime, h.ActionTime, h.Notes,
	).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("append history for reminder %d: %w", h.ReminderID, err)
	}
	return nil
}

func (r *HistoryRepository) ListByOwner(ctx context.Context, ownerID int64, from, to time.Time) ([]*models.ReminderHistory, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, reminder_id, owner_id, medicine_name, action, scheduled_time, action_time, notes
		 FROM reminder_history
		 WHERE owner_id = $1 AND action_time >= $2 AND action_time <= $3
		 ORDER BY action_time DESC`,
		ownerID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list history for owner %d: %w", ownerID, err)
	}
	defer rows.Close()

	var entries []*models.ReminderHistory
	for rows.Next() {
		h := &models.ReminderHistory{}
		if err := rows.Scan(&h.ID, &h.ReminderID, &h.OwnerID, &h.MedicineName,
			&h.Action, &h.ScheduledTime, &h.ActionTime, &h.Notes); err != nil {
			return nil, err
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

// CountByOwner returns the taken and total action counts in [from, to].
func (r *HistoryRepository) CountByOwner(ctx context.Context, ownerID int64, from, to time.Time) (taken, total int, err error) {
	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE action = 'TAKEN'), COUNT(*)
		 FROM reminder_history
		 WHERE owner_id = $1 AND action_time >= $2 AND action_time <= $3`,
		ownerID, from, to,
	).Scan(&taken, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("count history for owner %d: %w", ownerID, err)
	}
	return taken, total, nil
}

// PurgeByOwner deletes every history row belonging to an owner.
func (r *HistoryRepository) PurgeByOwner(ctx context.Context, ownerID int64) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM reminder_history WHERE owner_id = $1`, ownerID,
	); err != nil {
		return fmt.Errorf("purge history for owner %d: %w", ownerID, err)
	}
	return nil
}
