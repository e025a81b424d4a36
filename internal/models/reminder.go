package models

import (
	"fmt"
	"time"
)

// FrequencyKind identifies which calendar-day predicate a reminder uses.
type FrequencyKind string

const (
	FrequencyDaily      FrequencyKind = "daily"
	FrequencyEveryNDays FrequencyKind = "every_n_days"
	FrequencyWeekdays   FrequencyKind = "weekdays"
	FrequencyCustom     FrequencyKind = "custom"
)

// FrequencyRule is a closed set of recurrence rules. Interval is only
// meaningful for FrequencyEveryNDays, RRule only for FrequencyCustom
// (an RFC 5545 RRULE string).
type FrequencyRule struct {
	Kind     FrequencyKind `json:"kind"`
	Interval int           `json:"interval,omitempty"`
	RRule    string        `json:"rrule,omitempty"`
}

// MaxTimes caps the number of dose slots per reminder. Wake-up tokens are
// derived as reminderID*MaxTimes+slotIndex, so this must never shrink.
const MaxTimes = 16

type Reminder struct {
	ID            int64         `json:"id"`
	OwnerID       int64         `json:"owner_id"`
	MedicineName  string        `json:"medicine_name"`
	Dose          string        `json:"dose"`
	Form          string        `json:"form"`
	Times         []string      `json:"times"` // day-local "HH:MM", ordered
	Frequency     FrequencyRule `json:"frequency"`
	StartDate     time.Time     `json:"start_date"`
	EndDate       *time.Time    `json:"end_date,omitempty"`
	Enabled       bool          `json:"enabled"`
	Timezone      string        `json:"timezone"`
	SnoozeMinutes int           `json:"snooze_minutes"`
	Notes         string        `json:"notes"`
	LastUpdated   time.Time     `json:"last_updated"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Location resolves the reminder's timezone, falling back to the process
// local zone when the stored name is unknown.
func (r *Reminder) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ValidationError reports a rejected reminder field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks the invariants that must hold before a reminder is
// persisted or scheduled.
func (r *Reminder) Validate() error {
	if r.MedicineName == "" {
		return &ValidationError{Field: "medicine_name", Reason: "must not be empty"}
	}
	if r.Dose == "" {
		return &ValidationError{Field: "dose", Reason: "must not be empty"}
	}
	if r.Enabled && len(r.Times) == 0 {
		return &ValidationError{Field: "times", Reason: "must not be empty while enabled"}
	}
	if len(r.Times) > MaxTimes {
		return &ValidationError{Field: "times", Reason: fmt.Sprintf("at most %d slots per reminder", MaxTimes)}
	}
	for _, t := range r.Times {
		if _, err := time.Parse("15:04", t); err != nil {
			return &ValidationError{Field: "times", Reason: fmt.Sprintf("%q is not HH:MM", t)}
		}
	}
	if r.SnoozeMinutes <= 0 {
		return &ValidationError{Field: "snooze_minutes", Reason: "must be positive"}
	}
	switch r.Frequency.Kind {
	case FrequencyDaily, FrequencyWeekdays:
	case FrequencyEveryNDays:
		if r.Frequency.Interval < 1 {
			return &ValidationError{Field: "frequency", Reason: "every_n_days interval must be >= 1"}
		}
	case FrequencyCustom:
		if r.Frequency.RRule == "" {
			return &ValidationError{Field: "frequency", Reason: "custom rule requires an RRULE"}
		}
	default:
		return &ValidationError{Field: "frequency", Reason: fmt.Sprintf("unknown kind %q", r.Frequency.Kind)}
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return &ValidationError{Field: "end_date", Reason: "must not be before start_date"}
	}
	return nil
}
