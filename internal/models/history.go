package models

import "time"

// Action is what the user did with a fired reminder.
type Action string

const (
	ActionTaken   Action = "TAKEN"
	ActionSkipped Action = "SKIPPED"
	ActionSnoozed Action = "SNOOZED"
)

// ReminderHistory is an append-only audit row for one user action on one
// firing. ReminderID is a soft reference: the reminder may be deleted later,
// so MedicineName is denormalized at write time. ScheduledTime is nil for
// snoozes, which don't respond to a particular calendar occurrence.
type ReminderHistory struct {
	ID            int64      `json:"id"`
	ReminderID    int64      `json:"reminder_id"`
	OwnerID       int64      `json:"owner_id"`
	MedicineName  string     `json:"medicine_name"`
	Action        Action     `json:"action"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	ActionTime    time.Time  `json:"action_time"`
	Notes         string     `json:"notes"`
}

// Adherence summarizes logged actions over a time window.
type Adherence struct {
	TakenCount int `json:"taken_count"`
	TotalCount int `json:"total_count"`
	Percentage int `json:"percentage"`
}
