package notify

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ylchen87/PillTrack/internal/models"
	"github.com/ylchen87/PillTrack/internal/wakeup"
)

// ActionToken carries everything the action processor needs to handle one
// button press without consulting external state first.
type ActionToken struct {
	Key           wakeup.Key
	Action        models.Action
	FireID        string
	OwnerID       int64
	MedicineName  string
	Dose          string
	ScheduledTime time.Time
	SnoozeMinutes int
}

const tokenVersion = "v1"

// Encode serializes the token to a single opaque string. Free-text fields
// are escaped so the separator stays unambiguous.
func (t ActionToken) Encode() string {
	return strings.Join([]string{
		tokenVersion,
		strconv.FormatInt(t.Key.ReminderID, 10),
		strconv.Itoa(t.Key.SlotIndex),
		string(t.Action),
		t.FireID,
		strconv.FormatInt(t.OwnerID, 10),
		url.QueryEscape(t.MedicineName),
		url.QueryEscape(t.Dose),
		strconv.FormatInt(t.ScheduledTime.Unix(), 10),
		strconv.Itoa(t.SnoozeMinutes),
	}, "|")
}

// DecodeToken parses a string produced by Encode.
func DecodeToken(s string) (ActionToken, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 10 || parts[0] != tokenVersion {
		return ActionToken{}, fmt.Errorf("malformed action token %q", s)
	}
	var t ActionToken
	var err error
	if t.Key.ReminderID, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
		return ActionToken{}, fmt.Errorf("action token reminder id: %w", err)
	}
	if t.Key.SlotIndex, err = strconv.Atoi(parts[2]); err != nil {
		return ActionToken{}, fmt.Errorf("action token slot index: %w", err)
	}
	switch models.Action(parts[3]) {
	case models.ActionTaken, models.ActionSkipped, models.ActionSnoozed:
		t.Action = models.Action(parts[3])
	default:
		return ActionToken{}, fmt.Errorf("action token unknown action %q", parts[3])
	}
	t.FireID = parts[4]
	if t.OwnerID, err = strconv.ParseInt(parts[5], 10, 64); err != nil {
		return ActionToken{}, fmt.Errorf("action token owner id: %w", err)
	}
	if t.MedicineName, err = url.QueryUnescape(parts[6]); err != nil {
		return ActionToken{}, fmt.Errorf("action token medicine name: %w", err)
	}
	if t.Dose, err = url.QueryUnescape(parts[7]); err != nil {
		return ActionToken{}, fmt.Errorf("action token dose: %w", err)
	}
	sec, err := strconv.ParseInt(parts[8], 10, 64)
	if err != nil {
		return ActionToken{}, fmt.Errorf("action token scheduled time: %w", err)
	}
	t.ScheduledTime = time.Unix(sec, 0)
	if t.SnoozeMinutes, err = strconv.Atoi(parts[9]); err != nil {
		return ActionToken{}, fmt.Errorf("action token snooze minutes: %w", err)
	}
	return t, nil
}
